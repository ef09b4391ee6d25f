package handler

import (
	"net/http"

	"cashbook/internal/ledger"
	"cashbook/internal/models"
	"cashbook/internal/util"

	"github.com/gin-gonic/gin"
)

// TransactionHandler 负责交易和分录接口
type TransactionHandler struct {
	Store *ledger.Store
}

func NewTransactionHandler(store *ledger.Store) *TransactionHandler {
	return &TransactionHandler{Store: store}
}

// ListTransactions 支持 ?account= ?from= ?to= ?template= ?limit= ?offset=
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	f := ledger.TransactionFilter{AccountUID: c.Query("account")}
	var ok bool
	if f.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if f.To, ok = queryTime(c, "to"); !ok {
		return
	}
	if f.Template, ok = queryBool(c, "template"); !ok {
		return
	}
	var err error
	if f.Limit, err = util.ParseNonNegativeInt(c.Query("limit"), 0); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	if f.Offset, err = util.ParseNonNegativeInt(c.Query("offset"), 0); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}

	list, err := h.Store.ListTransactions(c.Request.Context(), f)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"items": list})
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	t, err := h.Store.GetTransaction(c.Request.Context(), c.Param("uid"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"transaction": t})
}

// CreateTransaction 新建交易；借贷不平时返回 400
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var t models.Transaction
	if !bindJSON(c, &t) {
		return
	}
	if err := h.Store.SaveRecord(c.Request.Context(), &t, ledger.ModeInsert); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"transaction": t})
}

// UpdateTransaction 整体替换交易及其分录
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	var t models.Transaction
	if !bindJSON(c, &t) {
		return
	}
	t.UID = c.Param("uid")
	if err := h.Store.SaveRecord(c.Request.Context(), &t, ledger.ModeUpdate); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"transaction": t})
}

func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	if err := h.Store.DeleteTransaction(c.Request.Context(), c.Param("uid")); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"message": "删除成功"})
}

// ListSplits 按科目和日期查询分录，支持 ?account=（可多个）?from= ?to=
func (h *TransactionHandler) ListSplits(c *gin.Context) {
	f := ledger.SplitFilter{AccountUIDs: c.QueryArray("account")}
	var ok bool
	if f.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if f.To, ok = queryTime(c, "to"); !ok {
		return
	}
	list, err := h.Store.ListSplits(c.Request.Context(), f)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"items": list})
}
