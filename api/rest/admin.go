package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vdklabs/license-server/account"
	"github.com/vdklabs/license-server/audit"
	"github.com/vdklabs/license-server/license"
	mw "github.com/vdklabs/license-server/middleware"
	"github.com/vdklabs/license-server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db       *gorm.DB
	accounts *account.Service
	licenses *license.Service
	audit    *audit.Service
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	accounts *account.Service,
	licenses *license.Service,
	auditSvc *audit.Service,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, accounts: accounts, licenses: licenses, audit: auditSvc, logger: logger}
}

// ListUsers returns all accounts.
// GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": accounts})
}

type uidRequest struct {
	UID int64 `json:"uid" binding:"required"`
}

// DeleteUser removes an account by ID.
// POST /api/admin/delete-user
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	var req uidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "uid is required"})
		return
	}
	err := h.accounts.Delete(c.Request.Context(), req.UID)
	if errors.Is(err, account.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
		return
	}
	h.audit.Log(audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &req.UID,
		Action:    "admin_delete_user",
		IP:        c.ClientIP(),
	})
	h.logger.Info("admin deleted account", zap.Int64("account_id", req.UID))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "user deleted"})
}

type generateKeyRequest struct {
	SubscriptionType string `json:"subscription_type" binding:"required"`
	DurationDays     int    `json:"duration_days" binding:"min=0"`
}

// GenerateKey issues a new activation key.
// POST /api/admin/generate-key
func (h *AdminHandler) GenerateKey(c *gin.Context) {
	var req generateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "subscription_type is required"})
		return
	}
	key, err := h.licenses.IssueKey(c.Request.Context(), req.SubscriptionType, req.DurationDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
		return
	}
	h.audit.Log(audit.Entry{
		TraceID: mw.GetTraceID(c),
		Action:  "admin_generate_key",
		Detail:  map[string]interface{}{"subscription_type": req.SubscriptionType, "duration_days": req.DurationDays},
		IP:      c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "key": key.Code})
}

// ListKeys returns all activation keys, newest first.
// GET /api/admin/keys
func (h *AdminHandler) ListKeys(c *gin.Context) {
	keys, err := h.licenses.ListKeys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "keys": keys})
}

// ResetHWID clears an account's hardware binding.
// POST /api/admin/reset-hwid
func (h *AdminHandler) ResetHWID(c *gin.Context) {
	var req uidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "uid is required"})
		return
	}
	if err := h.licenses.ResetHardware(c.Request.Context(), req.UID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
		return
	}
	h.audit.Log(audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &req.UID,
		Action:    "admin_reset_hwid",
		IP:        c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "hwid reset"})
}

// Metrics returns account/key counts for monitoring.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var accounts, keys, redeemed int64
	h.db.Model(&model.Account{}).Count(&accounts)
	h.db.Model(&model.ActivationKey{}).Count(&keys)
	h.db.Model(&model.ActivationKey{}).Where("redeemed = ?", true).Count(&redeemed)

	expired, err := h.licenses.CountExpired(c.Request.Context(), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts":              accounts,
		"keys":                  keys,
		"keys_redeemed":         redeemed,
		"subscriptions_expired": expired,
	})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints are disabled (503) so the server
// cannot be accidentally deployed without protection.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"success": false, "message": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
			return
		}
		c.Next()
	}
}
