package report

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/attendance"
)

// Source は台帳の全件スナップショットを返すもの（attendance.Service）。
type Source interface {
	ListAll(ctx context.Context) ([]attendance.SessionRecord, error)
}

type Handler struct {
	src Source
	opt Options
}

func NewHandler(src Source, opt Options) *Handler {
	return &Handler{src: src, opt: opt}
}

func RegisterRoutes(r gin.IRoutes, h *Handler) {
	r.GET("/reports/attendance.pdf", h.PDF)
	r.GET("/reports/attendance.csv", h.CSV)
}

// PDF godoc
// @Summary  出席レポート（PDF）
// @Produce  application/pdf
// @Success  200 {file} binary
// @Failure  404 {object} map[string]string
// @Router   /reports/attendance.pdf [get]
func (h *Handler) PDF(c *gin.Context) {
	rows, ok := h.rows(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := Render(&buf, rows, h.opt); err != nil {
		log.Printf("[ERROR] render pdf: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render report"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance_report.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

func (h *Handler) CSV(c *gin.Context) {
	rows, ok := h.rows(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := RenderCSV(&buf, rows, h.opt); err != nil {
		log.Printf("[ERROR] render csv: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render report"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance_report.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// 空の台帳は 404（出すものがない）
func (h *Handler) rows(c *gin.Context) ([]attendance.SessionRecord, bool) {
	rows, err := h.src.ListAll(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, attendance.ErrStorageUnavailable) {
			status = http.StatusServiceUnavailable
		}
		log.Printf("[ERROR] report source: %v", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return nil, false
	}
	if len(rows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "attendance log is empty, nothing to export"})
		return nil, false
	}
	return rows, true
}
