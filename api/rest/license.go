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
)

// LicenseHandler handles key activation for logged-in users.
type LicenseHandler struct {
	svc   *license.Service
	audit *audit.Service
}

// NewLicenseHandler creates a LicenseHandler.
func NewLicenseHandler(svc *license.Service, auditSvc *audit.Service) *LicenseHandler {
	return &LicenseHandler{svc: svc, audit: auditSvc}
}

type activateRequest struct {
	KeyCode string `json:"key_code" binding:"required"`
}

// Activate handles POST /api/activate-key. Requires an authenticated
// session; the key grants or overwrites the account's subscription.
func (h *LicenseHandler) Activate(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "key code is required"})
		return
	}

	grant, err := h.svc.Redeem(c.Request.Context(), req.KeyCode, accountID, time.Now())

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	h.audit.Log(audit.Entry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &accountID,
		Action:    "activate_key",
		Detail:    map[string]string{"key_code": req.KeyCode},
		Error:     errMsg,
		IP:        c.ClientIP(),
	})

	switch {
	case errors.Is(err, license.ErrKeyNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "key not found"})
		return
	case errors.Is(err, license.ErrKeyAlreadyUsed):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "key already used"})
		return
	case errors.Is(err, account.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "account not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "activation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"message":           "subscription activated",
		"subscription_type": grant.Type,
		"expires":           grant.ExpiresAt,
	})
}
