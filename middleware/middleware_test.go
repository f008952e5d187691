package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	mw "github.com/vdklabs/license-server/middleware"
	"golang.org/x/time/rate"
)

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	r := gin.New()
	r.Use(mw.RateLimit(rate.Limit(1), 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := doGet(r, "/ping", "")
		codes = append(codes, w.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	// Burst of 2 exhausted; the rest are throttled.
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}

func TestTraceID_Generated(t *testing.T) {
	r := gin.New()
	r.Use(mw.TraceID())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = mw.GetTraceID(c)
		c.Status(http.StatusOK)
	})

	w := doGet(r, "/ping", "")
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(mw.TraceIDHeader))
}

func TestTraceID_Propagated(t *testing.T) {
	r := gin.New()
	r.Use(mw.TraceID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(mw.TraceIDHeader, "upstream-trace")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "upstream-trace", w.Header().Get(mw.TraceIDHeader))
}

func TestIPWhitelist(t *testing.T) {
	r := gin.New()
	r.Use(mw.IPWhitelist([]string{"10.0.0.1"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	// httptest requests come from 192.0.2.1, which is not whitelisted.
	w := doGet(r, "/ping", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	open := gin.New()
	open.Use(mw.IPWhitelist(nil))
	open.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	w = doGet(open, "/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
