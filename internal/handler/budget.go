package handler

import (
	"net/http"
	"strconv"

	"cashbook/internal/budget"
	"cashbook/internal/ledger"
	"cashbook/internal/models"
	"cashbook/internal/util"

	"github.com/gin-gonic/gin"
)

// BudgetHandler 负责预算和执行情况
type BudgetHandler struct {
	Store   *ledger.Store
	Tracker *budget.Tracker
}

func NewBudgetHandler(store *ledger.Store, tracker *budget.Tracker) *BudgetHandler {
	return &BudgetHandler{Store: store, Tracker: tracker}
}

func (h *BudgetHandler) ListBudgets(c *gin.Context) {
	list, err := h.Store.ListBudgets(c.Request.Context())
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"items": list})
}

func (h *BudgetHandler) GetBudget(c *gin.Context) {
	b, err := h.Store.GetBudget(c.Request.Context(), c.Param("uid"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"budget": b})
}

func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	var b models.Budget
	if !bindJSON(c, &b) {
		return
	}
	if err := h.Store.SaveRecord(c.Request.Context(), &b, ledger.ModeInsert); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"budget": b})
}

// UpdateBudget 整体替换预算及其金额
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	var b models.Budget
	if !bindJSON(c, &b) {
		return
	}
	b.UID = c.Param("uid")
	if err := h.Store.SaveRecord(c.Request.Context(), &b, ledger.ModeUpdate); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"budget": b})
}

func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
	if err := h.Store.DeleteBudget(c.Request.Context(), c.Param("uid")); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"message": "删除成功"})
}

// GetPeriod 第 n 期的预算与实际发生额对比
func (h *BudgetHandler) GetPeriod(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "期数必须是整数")
		return
	}
	ctx := c.Request.Context()
	b, err := h.Store.GetBudget(ctx, c.Param("uid"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	start, end, err := budget.Period(b, n)
	if err != nil {
		util.Fail(c, err)
		return
	}
	lines, err := h.Tracker.ActualVsBudget(ctx, b.UID, n)
	if err != nil {
		util.Fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(lines))
	for uid, l := range lines {
		items = append(items, gin.H{
			"account_uid": uid,
			"budgeted":    l.Budgeted,
			"actual":      l.Actual,
			"remaining":   l.Remaining(),
		})
	}
	util.Success(c, util.Response{"period": n, "start": start, "end": end, "items": items})
}
