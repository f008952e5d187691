package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/vdklabs/license-server/account"
	apirest "github.com/vdklabs/license-server/api/rest"
	"github.com/vdklabs/license-server/audit"
	"github.com/vdklabs/license-server/cache"
	"github.com/vdklabs/license-server/config"
	"github.com/vdklabs/license-server/license"
	mw "github.com/vdklabs/license-server/middleware"
	"github.com/vdklabs/license-server/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testAdminKey = "admin-test-key"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	cache    cache.Cache
	accounts *account.Service
	licenses *license.Service
}

// newTestEnv wires the full route table the way main does, minus rate
// limiting so tests can hammer endpoints freely.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{JWTSecret: "test-secret", SessionTTL: time.Hour}
	licCfg := testutil.DefaultLicenseConfig()

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	accounts := account.NewService(db, licCfg, logger)
	licenses := license.NewService(db, c, accounts, licCfg, logger)

	authH := apirest.NewAuthHandler(accounts, c, sec, auditSvc)
	licenseH := apirest.NewLicenseHandler(licenses, auditSvc)
	launcherH := apirest.NewLauncherHandler(licenses, auditSvc)
	adminH := apirest.NewAdminHandler(db, accounts, licenses, auditSvc, logger)

	r := gin.New()
	r.Use(mw.TraceID())
	api := r.Group("/api")
	{
		api.POST("/register", authH.Register)
		api.POST("/login", authH.Login)
		api.POST("/logout", authH.Logout)
		api.GET("/check-auth", mw.Auth(sec, c), authH.CheckAuth)
		api.POST("/activate-key", mw.Auth(sec, c), licenseH.Activate)

		launcherG := api.Group("/launcher")
		launcherG.POST("/check-subscription", launcherH.CheckSubscription)
		launcherG.GET("/check-uid/:uid", launcherH.CheckUID)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(testAdminKey))
		adminG.GET("/users", adminH.ListUsers)
		adminG.POST("/delete-user", adminH.DeleteUser)
		adminG.POST("/generate-key", adminH.GenerateKey)
		adminG.GET("/keys", adminH.ListKeys)
		adminG.POST("/reset-hwid", adminH.ResetHWID)
		adminG.GET("/metrics", adminH.Metrics)
	}

	return &testEnv{router: r, db: db, cache: c, accounts: accounts, licenses: licenses}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	return e.do(t, http.MethodPost, path, body, headers)
}

func (e *testEnv) getJSON(t *testing.T, path string, headers map[string]string) *httptest.ResponseRecorder {
	return e.do(t, http.MethodGet, path, nil, headers)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Key": testAdminKey}
}

// registerUser creates an account via the API and returns its uid and
// session token.
func registerUser(t *testing.T, e *testEnv, username, password string) (int64, string) {
	t.Helper()
	w := e.postJSON(t, "/api/register", gin.H{"username": username, "password": password}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	return int64(body["uid"].(float64)), body["token"].(string)
}

// issueKey creates an activation key via the admin API and returns its code.
func issueKey(t *testing.T, e *testEnv, subType string, days int) string {
	t.Helper()
	w := e.postJSON(t, "/api/admin/generate-key",
		gin.H{"subscription_type": subType, "duration_days": days}, adminHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["key"].(string)
}
