package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vdklabs/license-server/account"
	"github.com/vdklabs/license-server/audit"
	"github.com/vdklabs/license-server/license"
	mw "github.com/vdklabs/license-server/middleware"
)

// LauncherHandler serves the unattended launcher client. Every cold start
// hits CheckSubscription; periodic re-checks hit CheckUID.
type LauncherHandler struct {
	svc   *license.Service
	audit *audit.Service
}

// NewLauncherHandler creates a LauncherHandler.
func NewLauncherHandler(svc *license.Service, auditSvc *audit.Service) *LauncherHandler {
	return &LauncherHandler{svc: svc, audit: auditSvc}
}

type launcherCheckRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	HWID     string `json:"hwid" binding:"required"`
}

// CheckSubscription handles POST /api/launcher/check-subscription.
// Credentials, hardware binding and subscription state are checked as
// sequential gates; a hardware mismatch returns before any subscription
// detail is computed.
func (h *LauncherHandler) CheckSubscription(c *gin.Context) {
	var req launcherCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false, "message": "username, password and hwid are required", "has_subscription": false,
		})
		return
	}

	decision, err := h.svc.LauncherAuthenticate(c.Request.Context(), req.Username, req.Password, req.HWID, time.Now())

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	h.audit.Log(audit.Entry{
		TraceID:  mw.GetTraceID(c),
		Username: req.Username,
		Action:   "launcher_check",
		Detail:   map[string]string{"hwid": req.HWID},
		Error:    errMsg,
		IP:       c.ClientIP(),
	})

	switch {
	case errors.Is(err, account.ErrAuthFailure):
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false, "message": "invalid username or password", "has_subscription": false,
		})
		return
	case errors.Is(err, license.ErrHardwareMismatch):
		c.JSON(http.StatusForbidden, gin.H{
			"success": false, "message": "account is bound to another machine", "has_subscription": false,
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false, "message": "server error", "has_subscription": false,
		})
		return
	}

	message := "subscription missing or expired"
	if decision.HasSubscription {
		message = "subscription active"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"message":          message,
		"has_subscription": decision.HasSubscription,
		"hwid":             decision.HardwareID,
		"user": gin.H{
			"uid":        decision.Account.ID,
			"username":   decision.Account.Username,
			"created_at": decision.Account.CreatedAt,
		},
		"subscription": decision.Subscription,
	})
}

// CheckUID handles GET /api/launcher/check-uid/:uid — a lightweight
// re-check for an already-authenticated launcher. No credential or
// hardware verification.
func (h *LauncherHandler) CheckUID(c *gin.Context) {
	uid, err := strconv.ParseInt(c.Param("uid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid uid", "has_subscription": false})
		return
	}

	decision, err := h.svc.CheckByID(c.Request.Context(), uid, time.Now())
	if errors.Is(err, account.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "user not found", "has_subscription": false})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "server error", "has_subscription": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"has_subscription": decision.HasSubscription,
		"user": gin.H{
			"uid":      decision.Account.ID,
			"username": decision.Account.Username,
		},
		"subscription": decision.Subscription,
	})
}
