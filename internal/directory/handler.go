package directory

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Reloader は名簿ファイルを読み直して Holder を差し替える。
type Reloader struct {
	holder *Holder
	path   string
	enc    string
}

func NewReloader(h *Holder, path, enc string) *Reloader {
	return &Reloader{holder: h, path: path, enc: enc}
}

// Reload: 読み込みに失敗したら今の名簿をそのまま使い続ける。
func (r *Reloader) Reload() (int, error) {
	d, err := Load(r.path, r.enc)
	if err != nil {
		return 0, err
	}
	old := r.holder.Swap(d)
	log.Printf("[INFO] roster reloaded: %d -> %d entries", old.Len(), d.Len())
	return d.Len(), nil
}

// 管理者用（JWT 必須のグループに載せる）
func RegisterAdminRoutes(g gin.IRoutes, r *Reloader) {
	g.GET("/roster", func(c *gin.Context) {
		c.JSON(http.StatusOK, r.holder.Current().Entries())
	})
	g.POST("/roster/reload", func(c *gin.Context) {
		n, err := r.Reload()
		if err != nil {
			log.Printf("[ERROR] roster reload: %v", err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": n})
	})
}
