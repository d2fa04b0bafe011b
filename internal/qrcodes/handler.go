package qrcodes

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/directory"
)

// RegisterRoutes: GET /students/:id/qr（名簿にある ID だけ）
func RegisterRoutes(r gin.IRoutes, dir *directory.Holder) {
	r.GET("/students/:id/qr", func(c *gin.Context) {
		e, err := dir.Resolve(c.Param("id"))
		if errors.Is(err, directory.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		size, _ := strconv.Atoi(c.DefaultQuery("size", "0"))
		if size > 2048 {
			size = 2048
		}
		png, err := PNG(e.ID, size)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", contentDisposition(FileName(e.Name, e.ID)))
		c.Data(http.StatusOK, "image/png", png)
	})
}

// 日本語の名前は RFC 2231 (filename*=utf-8'') で送る
func contentDisposition(name string) string {
	v := mime.FormatMediaType("inline", map[string]string{"filename": name})
	if v == "" {
		return "inline"
	}
	return v
}
