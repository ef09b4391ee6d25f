package handler

import (
	"context"
	"net/http"
	"time"

	"cashbook/internal/amount"
	"cashbook/internal/ledger"
	"cashbook/internal/models"
	"cashbook/internal/util"

	"github.com/gin-gonic/gin"
)

// PriceHandler 负责汇率/价格接口
type PriceHandler struct {
	Store *ledger.Store
}

func NewPriceHandler(store *ledger.Store) *PriceHandler {
	return &PriceHandler{Store: store}
}

func (h *PriceHandler) ListPrices(c *gin.Context) {
	list, err := h.Store.ListPrices(c.Request.Context())
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"items": list})
}

// AddPrice 新增价格；同一币种对只保留最新一条
func (h *PriceHandler) AddPrice(c *gin.Context) {
	var p models.Price
	if !bindJSON(c, &p) {
		return
	}
	if err := h.Store.AddPrice(c.Request.Context(), &p); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"price": p})
}

func (h *PriceHandler) DeletePrice(c *gin.Context) {
	if err := h.Store.DeletePrice(c.Request.Context(), c.Param("uid")); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"message": "删除成功"})
}

// GetRate 查询 ?from= 到 ?to= 在 ?as_of= 的换算率，没有价格时返回 409
func (h *PriceHandler) GetRate(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "from 和 to 不能为空")
		return
	}
	asOf, ok := queryTime(c, "as_of")
	if !ok {
		return
	}
	at := time.Now().UTC()
	if asOf != nil {
		at = *asOf
	}

	rate, err := conversionRate(c.Request.Context(), h.Store, from, to, at)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"from": from, "to": to, "as_of": at, "rate": rate})
}

func conversionRate(ctx context.Context, store *ledger.Store, from, to string, at time.Time) (rate amount.Amount, err error) {
	err = store.View(ctx, func(tx *ledger.Tx) error {
		rate, err = tx.ConversionRate(from, to, at)
		return err
	})
	return rate, err
}
