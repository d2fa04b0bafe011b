package attendance

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// スキャン（旧フロントは /mark_attendance を叩く）
	r.POST("/mark_attendance", h.Scan)
	r.POST("/attendances/scan", h.Scan)

	r.GET("/attendances", h.List)
	r.GET("/attendances/open", h.GetOpen)
	r.GET("/sessions/:session_ulid", h.Get)
	r.GET("/students/:id", h.GetStudent)
}

// 管理者用（JWT 必須のグループに載せる）
func RegisterAdminRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/export.csv", h.ExportCSV)
	r.POST("/import", h.ImportCSV)
}

// ---------- handlers ----------

// Scan godoc
// @Summary  QR スキャン（入室/退室のトグル）
// @Accept   json
// @Produce  json
// @Param    body body ScanRequest true "scanned id"
// @Success  200 {object} ScanResponse
// @Failure  404 {object} ScanResponse
// @Failure  409 {object} ScanResponse
// @Router   /mark_attendance [post]
func (h *Handler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ScanResponse{Status: StatusError, Message: "invalid json"})
		return
	}
	res, err := h.svc.Scan(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	q := ListQuery{
		Limit:  parseIntDefault(c.Query("limit"), DefaultPageLimit),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Sort:   c.DefaultQuery("sort", DefaultSort),
	}
	if v := c.Query("user_id"); v != "" {
		q.Identifier = &v
	}
	if v := c.Query("on"); v != "" {
		q.On = &v
	}
	if v := c.Query("from"); v != "" {
		q.From = &v
	}
	if v := c.Query("to"); v != "" {
		q.To = &v
	}
	if v := c.Query("open"); v == "true" || v == "1" {
		q.OpenOnly = true
	}

	res, total, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, res)
}

// GetOpen: 参照のみ（台帳には書かない）
func (h *Handler) GetOpen(c *gin.Context) {
	res, err := h.svc.OpenSession(c.Request.Context(), c.Query("user_id"), c.Query("on"))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("session_ulid"))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetStudent(c *gin.Context) {
	e, err := h.svc.Student(c.Param("id"))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) ExportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.svc.ExportLog(c.Request.Context(), &buf); err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance_log.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// multipart の file フィールド、なければ本文そのものを CSV として読む
func (h *Handler) ImportCSV(c *gin.Context) {
	var (
		res ImportResult
		err error
	)
	if fh, ferr := c.FormFile("file"); ferr == nil {
		f, oerr := fh.Open()
		if oerr != nil {
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "cannot open uploaded file"))
			return
		}
		defer f.Close()
		res, err = h.svc.ImportLog(c.Request.Context(), f)
	} else {
		res, err = h.svc.ImportLog(c.Request.Context(), c.Request.Body)
	}
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ---------- helpers ----------

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error *APIError `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	return errorDTO{Error: &APIError{Code: code, Message: msg}}
}

func errorFromErr(err error) errorDTO {
	return errorDTO{Error: toAPIError(err)}
}
