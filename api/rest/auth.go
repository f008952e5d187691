package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vdklabs/license-server/account"
	"github.com/vdklabs/license-server/audit"
	"github.com/vdklabs/license-server/cache"
	"github.com/vdklabs/license-server/config"
	"github.com/vdklabs/license-server/license"
	mw "github.com/vdklabs/license-server/middleware"
)

// AuthHandler handles registration, login and session REST endpoints.
type AuthHandler struct {
	accounts *account.Service
	cache    cache.Cache
	sec      config.SecurityConfig
	audit    *audit.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts *account.Service, c cache.Cache, sec config.SecurityConfig, auditSvc *audit.Service) *AuthHandler {
	return &AuthHandler{accounts: accounts, cache: c, sec: sec, audit: auditSvc}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /api/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "username and password are required"})
		return
	}

	acc, err := h.accounts.Create(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, account.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "username or password too short"})
		return
	case errors.Is(err, account.ErrDuplicateUsername):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "username already exists"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
		return
	}

	h.audit.Log(audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &acc.ID,
		Username:  acc.Username,
		Action:    "register",
		IP:        c.ClientIP(),
	})

	token, err := h.issueSession(c.Request.Context(), acc.ID, acc.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "registered",
		"uid":      acc.ID,
		"username": acc.Username,
		"token":    token,
	})
}

// Login handles POST /api/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "username and password are required"})
		return
	}

	acc, err := h.accounts.Verify(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, account.ErrAuthFailure) {
		// Deliberately identical for unknown username and wrong password.
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid username or password"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
		return
	}

	token, err := h.issueSession(c.Request.Context(), acc.ID, acc.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
		return
	}

	h.audit.Log(audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &acc.ID,
		Username:  acc.Username,
		Action:    "login",
		IP:        c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "logged in",
		"uid":      acc.ID,
		"username": acc.Username,
		"token":    token,
	})
}

// Logout handles POST /api/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(tokenStr))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out"})
}

// CheckAuth handles GET /api/check-auth. The subscription_active field is
// always evaluated live against the current time, never read from a stored
// flag.
func (h *AuthHandler) CheckAuth(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	acc, err := h.accounts.Get(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated":        true,
		"uid":                  acc.ID,
		"username":             acc.Username,
		"created_at":           acc.CreatedAt,
		"subscription_type":    acc.SubscriptionType,
		"subscription_expires": acc.SubscriptionExpires,
		"subscription_active":  license.Active(acc.SubscriptionType, acc.SubscriptionExpires, time.Now()),
	})
}

// issueSession signs a JWT and records the session in the cache so logout
// can invalidate it before the JWT expires.
func (h *AuthHandler) issueSession(ctx context.Context, accountID int64, username string) (string, error) {
	token, err := mw.GenerateToken(accountID, username, h.sec.JWTSecret, h.sec.SessionTTL)
	if err != nil {
		return "", err
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.cache.Set(cacheCtx, mw.SessionKey(token), "1", h.sec.SessionTTL); err != nil {
		return "", err
	}
	return token, nil
}
