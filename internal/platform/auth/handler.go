package auth

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct{ svc *Service }

// POST /admin/token
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &AuthHandler{svc: svc}
	r.POST("/token", h.Token)
}

type TokenRequest struct {
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, exp, err := h.svc.Login(req.Password)
	switch {
	case errors.Is(err, ErrAuthFailed):
		log.Printf("[WARN] admin login failed from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	case errors.Is(err, ErrDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "admin login is not configured"})
		return
	case err != nil:
		log.Printf("[ERROR] issue token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresAt: exp})
}
