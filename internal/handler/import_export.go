package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"cashbook/internal/export"
	"cashbook/internal/ledger"
	"cashbook/internal/util"

	"github.com/gin-gonic/gin"
)

// maxImportSize 限制导入文件大小
const maxImportSize = 32 << 20

type ImportExportHandler struct {
	Store   *ledger.Store
	Service *export.Service
}

func NewImportExportHandler(store *ledger.Store, svc *export.Service) *ImportExportHandler {
	return &ImportExportHandler{Store: store, Service: svc}
}

// Download 以附件形式导出，格式见 export.Formats()
func (h *ImportExportHandler) Download(c *gin.Context) {
	format := c.Param("format")
	var buf bytes.Buffer
	exp, _, err := h.Service.Render(c.Request.Context(), format, &buf)
	if err != nil {
		util.Fail(c, err)
		return
	}

	// 设置响应头
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"cashbook_%s.%s\"",
		time.Now().Format("20060102"), exp.Extension()))
	c.Data(http.StatusOK, exp.MimeType(), buf.Bytes())
}

// Export 导出到服务器目录，delete_after_export 时随后清空已过账交易
func (h *ImportExportHandler) Export(c *gin.Context) {
	var p export.Params
	if !bindJSON(c, &p) {
		return
	}
	res, err := h.Service.Export(c.Request.Context(), p)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, util.Response{"export": res})
}

// Import 导入 YAML 快照，?mode=insert|update|upsert
func (h *ImportExportHandler) Import(c *gin.Context) {
	mode, err := ledger.ParseMode(c.Query("mode"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	snap, err := export.ReadSnapshot(http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize))
	if err != nil {
		util.Fail(c, err)
		return
	}
	n, err := h.Store.Import(c.Request.Context(), snap, mode)
	if err != nil {
		// 中途取消时已写入的部分保留
		util.Fail(c, fmt.Errorf("imported %d records: %w", n, err))
		return
	}
	util.Success(c, util.Response{"written": n})
}
