package handler

import (
	"time"

	"cashbook/internal/ledger"
	"cashbook/internal/models"
	"cashbook/internal/scheduler"
	"cashbook/internal/util"

	"github.com/gin-gonic/gin"
)

// ScheduleHandler 负责定时任务和手动触发调度
type ScheduleHandler struct {
	Store  *ledger.Store
	Engine *scheduler.Engine
}

func NewScheduleHandler(store *ledger.Store, engine *scheduler.Engine) *ScheduleHandler {
	return &ScheduleHandler{Store: store, Engine: engine}
}

// ListScheduledActions 支持 ?enabled=true 只看启用的任务
func (h *ScheduleHandler) ListScheduledActions(c *gin.Context) {
	enabled, ok := queryBool(c, "enabled")
	if !ok {
		return
	}
	list, err := h.Store.ListScheduledActions(c.Request.Context(), enabled != nil && *enabled)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"items": list})
}

func (h *ScheduleHandler) GetScheduledAction(c *gin.Context) {
	a, err := h.Store.GetScheduledAction(c.Request.Context(), c.Param("uid"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"scheduled_action": a})
}

// CreateScheduledAction 新建定时任务，recurrence 一并提交
func (h *ScheduleHandler) CreateScheduledAction(c *gin.Context) {
	var a models.ScheduledAction
	if !bindJSON(c, &a) {
		return
	}
	if err := h.Store.SaveRecord(c.Request.Context(), &a, ledger.ModeInsert); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"scheduled_action": a})
}

func (h *ScheduleHandler) UpdateScheduledAction(c *gin.Context) {
	var a models.ScheduledAction
	if !bindJSON(c, &a) {
		return
	}
	a.UID = c.Param("uid")
	if err := h.Store.SaveRecord(c.Request.Context(), &a, ledger.ModeUpdate); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"scheduled_action": a})
}

// DeleteScheduledAction 删除任务及其 recurrence 和模板交易
func (h *ScheduleHandler) DeleteScheduledAction(c *gin.Context) {
	if err := h.Store.DeleteScheduledAction(c.Request.Context(), c.Param("uid")); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"message": "删除成功"})
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetEnabled 启用或停用任务
func (h *ScheduleHandler) SetEnabled(c *gin.Context) {
	var req enabledRequest
	if !bindJSON(c, &req) {
		return
	}
	uid := c.Param("uid")
	err := h.Store.Update(c.Request.Context(), func(tx *ledger.Tx) error {
		return tx.SetScheduledActionEnabled(uid, *req.Enabled)
	})
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"uid": uid, "enabled": *req.Enabled})
}

// GetState 返回任务在 ?at= 时刻（默认现在）的状态和下次运行时间
func (h *ScheduleHandler) GetState(c *gin.Context) {
	at, ok := queryTime(c, "at")
	if !ok {
		return
	}
	now := time.Now().UTC()
	if at != nil {
		now = *at
	}
	a, err := h.Store.GetScheduledAction(c.Request.Context(), c.Param("uid"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	resp := util.Response{"uid": a.UID, "state": scheduler.StateOf(a, now), "at": now}
	if next, ok := scheduler.NextRun(a); ok {
		resp["next_run"] = next
	}
	util.Success(c, resp)
}

// Tick 手动执行一次调度，?now= 可指定时刻
func (h *ScheduleHandler) Tick(c *gin.Context) {
	at, ok := queryTime(c, "now")
	if !ok {
		return
	}
	now := time.Now().UTC()
	if at != nil {
		now = *at
	}
	report, err := h.Engine.Tick(c.Request.Context(), now)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"report": report})
}
