package handler

import (
	"cashbook/internal/ledger"
	"cashbook/internal/models"
	"cashbook/internal/util"

	"github.com/gin-gonic/gin"
)

// CommodityHandler 负责币种/商品接口
type CommodityHandler struct {
	Store *ledger.Store
}

func NewCommodityHandler(store *ledger.Store) *CommodityHandler {
	return &CommodityHandler{Store: store}
}

// ListCommodities 列出全部币种
func (h *CommodityHandler) ListCommodities(c *gin.Context) {
	list, err := h.Store.ListCommodities(c.Request.Context())
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"items": list})
}

func (h *CommodityHandler) GetCommodity(c *gin.Context) {
	cm, err := h.Store.GetCommodity(c.Request.Context(), c.Param("uid"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"commodity": cm})
}

// CreateCommodity 新建币种，uid 已存在时报错
func (h *CommodityHandler) CreateCommodity(c *gin.Context) {
	var cm models.Commodity
	if !bindJSON(c, &cm) {
		return
	}
	if err := h.Store.SaveRecord(c.Request.Context(), &cm, ledger.ModeInsert); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"commodity": cm})
}

// UpdateCommodity 修改币种；已被分录引用时精度不可改
func (h *CommodityHandler) UpdateCommodity(c *gin.Context) {
	var cm models.Commodity
	if !bindJSON(c, &cm) {
		return
	}
	cm.UID = c.Param("uid")
	if err := h.Store.SaveRecord(c.Request.Context(), &cm, ledger.ModeUpdate); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"commodity": cm})
}

func (h *CommodityHandler) DeleteCommodity(c *gin.Context) {
	if err := h.Store.DeleteCommodity(c.Request.Context(), c.Param("uid")); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"message": "删除成功"})
}
