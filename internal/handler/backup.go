package handler

import (
	"fmt"
	"path/filepath"

	"cashbook/internal/backup"
	"cashbook/internal/util"

	"github.com/gin-gonic/gin"
)

// BackupHandler 负责备份相关接口
type BackupHandler struct {
	Manager *backup.Manager
}

// NewBackupHandler 构造函数
func NewBackupHandler(m *backup.Manager) *BackupHandler {
	return &BackupHandler{Manager: m}
}

// CreateBackup 生成整个账本的加密备份文件
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	rec, err := h.Manager.Create(c.Request.Context(), backup.ReasonManual)
	if err != nil {
		util.Fail(c, err)
		return
	}
	if _, err := h.Manager.Prune(c.Request.Context()); err != nil {
		_ = c.Error(err)
	}
	util.Success(c, util.Response{"backup": rec})
}

// ListBackups 列出已有的备份，最新的在前
func (h *BackupHandler) ListBackups(c *gin.Context) {
	list, err := h.Manager.List(c.Request.Context())
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"items": list})
}

// DownloadBackup 下载指定备份文件
func (h *BackupHandler) DownloadBackup(c *gin.Context) {
	path, err := h.Manager.Path(c.Request.Context(), c.Param("uid"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filepath.Base(path)))
	c.File(path)
}

// RestoreBackup 用指定备份整体替换账本，恢复前自动再备份一次
func (h *BackupHandler) RestoreBackup(c *gin.Context) {
	safety, err := h.Manager.Restore(c.Request.Context(), c.Param("uid"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{
		"message":    "恢复成功",
		"safety_uid": safety.UID,
	})
}

// DeleteBackup 删除备份记录及对应文件
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	if err := h.Manager.Delete(c.Request.Context(), c.Param("uid")); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"message": "删除成功"})
}
