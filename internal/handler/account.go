package handler

import (
	"net/http"
	"time"

	"cashbook/internal/balance"
	"cashbook/internal/ledger"
	"cashbook/internal/models"
	"cashbook/internal/util"

	"github.com/gin-gonic/gin"
)

// AccountHandler 负责科目树和余额查询
type AccountHandler struct {
	Store   *ledger.Store
	Balance *balance.Engine
}

func NewAccountHandler(store *ledger.Store, engine *balance.Engine) *AccountHandler {
	return &AccountHandler{Store: store, Balance: engine}
}

// ListAccounts 列出科目，支持 ?parent= ?type= ?hidden= ?favorite=
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	var f ledger.AccountFilter
	if parent, ok := c.GetQuery("parent"); ok {
		f.ParentUID = &parent
	}
	if t := c.Query("type"); t != "" {
		typ, err := models.ParseAccountType(t)
		if err != nil {
			util.Fail(c, err)
			return
		}
		f.Type = typ
	}
	hidden, ok := queryBool(c, "hidden")
	if !ok {
		return
	}
	f.IncludeHidden = hidden != nil && *hidden
	fav, ok := queryBool(c, "favorite")
	if !ok {
		return
	}
	f.Favorites = fav != nil && *fav

	list, err := h.Store.ListAccounts(c.Request.Context(), f)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"items": list})
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	a, err := h.Store.GetAccount(c.Request.Context(), c.Param("uid"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"account": a})
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var a models.Account
	if !bindJSON(c, &a) {
		return
	}
	if err := h.Store.SaveRecord(c.Request.Context(), &a, ledger.ModeInsert); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"account": a})
}

// UpdateAccount 修改科目；改名或换父级会重算子树的全名
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	var a models.Account
	if !bindJSON(c, &a) {
		return
	}
	a.UID = c.Param("uid")
	if err := h.Store.SaveRecord(c.Request.Context(), &a, ledger.ModeUpdate); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"account": a})
}

// DeleteAccount 删除科目，返回级联删除的交易和被停用的定时任务
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	report, err := h.Store.DeleteAccount(c.Request.Context(), c.Param("uid"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"deletion": report})
}

// GetBalance 查询余额，支持 ?as_of= ?from= ?target= ?subaccounts=
func (h *AccountHandler) GetBalance(c *gin.Context) {
	q := balance.Query{AccountUID: c.Param("uid"), TargetCommodityUID: c.Query("target")}
	asOf, ok := queryTime(c, "as_of")
	if !ok {
		return
	}
	if asOf != nil {
		q.AsOf = *asOf
	}
	if q.From, ok = queryTime(c, "from"); !ok {
		return
	}
	sub, ok := queryBool(c, "subaccounts")
	if !ok {
		return
	}
	q.IncludeSubaccounts = sub != nil && *sub
	if q.From != nil && !q.AsOf.IsZero() && q.From.After(q.AsOf) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "from 不能晚于 as_of")
		return
	}

	res, err := h.Balance.BalanceOf(c.Request.Context(), q)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{
		"account_uid":   res.AccountUID,
		"commodity_uid": res.CommodityUID,
		"amount":        res.Amount,
		"as_of":         res.AsOf.Format(time.RFC3339),
		"subtotals":     res.Subtotals,
	})
}
