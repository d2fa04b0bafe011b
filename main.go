package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"attendance-backend/docs"
	"attendance-backend/internal/attendance"
	"attendance-backend/internal/directory"
	"attendance-backend/internal/platform/auth"
	"attendance-backend/internal/platform/config"
	"attendance-backend/internal/platform/db"
	"attendance-backend/internal/qrcodes"
	"attendance-backend/internal/report"
)

// スキャン画面（静的ファイル）を埋め込む
//
//go:embed public
var embedded embed.FS

func main() {
	// 設定読み込み
	cfgPath := config.PathFromEnv()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	log.Printf("[INFO] mode:%s config:%s", cfg.Mode, cfgPath)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("[ERROR] timezone: %v", err)
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("[ERROR] open db: %v", err)
	}
	defer conn.Close()
	log.Printf("[INFO] connected to DB (%s)", cfg.DB.Driver)

	// 書き込みは全部この 1 本に流す
	writer := db.NewWorker(conn)
	defer writer.Close()

	store := attendance.NewStore(conn, writer, cfg.DB.Driver)
	if n, err := store.SweepStaleOpens(ctx); err != nil {
		log.Printf("[WARN] stale sweep: %v", err)
	} else if n > 0 {
		log.Printf("[WARN] %d stale open session(s) marked", n)
	}

	roster, err := directory.Load(cfg.Roster.Path, cfg.Roster.Encoding)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	log.Printf("[INFO] roster: %d students from %s", roster.Len(), cfg.Roster.Path)
	holder := directory.NewHolder(roster)

	svc := attendance.NewService(store, holder, attendance.Options{
		Location:               loc,
		AllowTimestampOverride: cfg.AllowTimestampOverride && cfg.Mode == "dev",
	})
	font, err := report.LoadFont(cfg.Report.FontPath)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	if font != nil {
		log.Printf("[INFO] report font: %s", cfg.Report.FontPath)
	}
	reports := report.NewHandler(svc, report.Options{Title: cfg.Report.Title, Location: loc, Font: font})

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Total-Count"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	// 旧フロントのパス
	r.GET("/export_pdf", reports.PDF)

	docs.SwaggerInfo.BasePath = "/api/v1"
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// /api/v1
	api := r.Group("/api/v1")
	attendance.RegisterRoutes(api, svc)
	report.RegisterRoutes(api, reports)
	qrcodes.RegisterRoutes(api, holder)

	if cfg.Auth.Secret != "" {
		authSvc := auth.NewService(cfg.Auth.Secret, cfg.Auth.AdminPasswordHash, cfg.TokenTTL())
		admin := api.Group("/admin")
		auth.RegisterRoutes(admin, authSvc)

		protected := admin.Group("", auth.RequireAuth(authSvc.Secret()), auth.RequireRole(auth.RoleAdmin))
		attendance.RegisterAdminRoutes(protected, svc)
		directory.RegisterAdminRoutes(protected, directory.NewReloader(holder, cfg.Roster.Path, cfg.Roster.Encoding))
	} else {
		log.Println("[WARN] auth.secret is empty: admin API disabled")
	}

	sub, err := fs.Sub(embedded, "public")
	if err != nil {
		log.Fatal(err)
	}
	r.NoRoute(spaHandler(http.FS(sub)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.Certificate != nil && cfg.Certificate.Cert != "" {
			certFile, keyFile := certPaths(cfg)
			log.Printf("[INFO] listening on https://%s", cfg.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Printf("[INFO] listening on http://%s", cfg.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Printf("[ERROR] shutdown: %v", err)
	}
}

// 証明書は config/tls/<mode>/ 以下
func certPaths(cfg *config.Config) (string, string) {
	dir := path.Join("config/tls", cfg.Mode)
	return path.Join(dir, cfg.Certificate.Cert), path.Join(dir, cfg.Certificate.Key)
}

func spaHandler(fileFS http.FileSystem) gin.HandlerFunc {
	return func(c *gin.Context) {
		// API は対象外
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		reqPath := strings.TrimPrefix(c.Request.URL.Path, "/")
		if reqPath == "" {
			reqPath = "index.html"
		}

		// 実ファイルがあるならそれを返す
		if f, err := fileFS.Open(reqPath); err == nil {
			defer f.Close()
			if fi, err := f.Stat(); err == nil && !fi.IsDir() {
				if ct := mime.TypeByExtension(path.Ext(reqPath)); ct != "" {
					c.Header("Content-Type", ct)
				}
				if !strings.HasSuffix(reqPath, "index.html") {
					c.Header("Cache-Control", "public, max-age=86400")
				}
				http.ServeContent(c.Writer, c.Request, reqPath, fi.ModTime(), f)
				return
			}
		}

		// なければ index.html にフォールバック
		idx, err := fileFS.Open("index.html")
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		defer idx.Close()
		fi, err := idx.Stat()
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Header("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(c.Writer, c.Request, "index.html", fi.ModTime(), idx)
	}
}
