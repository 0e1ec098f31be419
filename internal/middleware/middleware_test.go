package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okRouter(mw gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(mw)
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func get(router *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddlewareAllowsWithinBudget(t *testing.T) {
	router := okRouter(RateLimitMiddleware(RateLimiterConfig{RequestsPerSecond: 100, BurstSize: 10}))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(router, nil).Code)
	}
}

func TestRateLimitMiddlewareRejectsBurstOverflow(t *testing.T) {
	router := okRouter(RateLimitMiddleware(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 2}))

	assert.Equal(t, http.StatusOK, get(router, nil).Code)
	assert.Equal(t, http.StatusOK, get(router, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, nil).Code)
}

func TestIPRateLimiterIsolatesClients(t *testing.T) {
	limiter := NewIPRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 1})

	assert.True(t, limiter.GetLimiter("10.0.0.1").Allow())
	assert.False(t, limiter.GetLimiter("10.0.0.1").Allow())
	// A different client has its own budget.
	assert.True(t, limiter.GetLimiter("10.0.0.2").Allow())
}

func TestCleanupOldLimiters(t *testing.T) {
	limiter := NewIPRateLimiter(DefaultRateLimiterConfig())
	limiter.GetLimiter("10.0.0.1")
	limiter.GetLimiter("10.0.0.2")

	assert.Zero(t, limiter.CleanupOldLimiters(time.Minute))
	assert.Equal(t, 2, limiter.CleanupOldLimiters(0))
	assert.Zero(t, limiter.CleanupOldLimiters(0))
}

func TestServiceRateLimitMiddleware(t *testing.T) {
	router := okRouter(ServiceRateLimitMiddleware(0.001, 1))

	assert.Equal(t, http.StatusOK, get(router, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, nil).Code)
}

func TestInternalAuthMiddleware(t *testing.T) {
	router := okRouter(InternalAuthMiddleware("secret-key"))

	tests := []struct {
		name     string
		key      string
		expected int
	}{
		{"Valid key", "secret-key", http.StatusOK},
		{"Wrong key", "wrong-key", http.StatusUnauthorized},
		{"Missing key", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.key != "" {
				headers["X-Internal-API-Key"] = tt.key
			}
			assert.Equal(t, tt.expected, get(router, headers).Code)
		})
	}
}

func TestInternalAuthMiddlewareMisconfigured(t *testing.T) {
	t.Setenv("INTERNAL_API_KEY", "")
	router := okRouter(InternalAuthMiddleware(""))

	w := get(router, map[string]string{"X-Internal-API-Key": "anything"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	var captured string
	router.GET("/ping", func(c *gin.Context) {
		captured = RequestID(c)
		c.Status(http.StatusOK)
	})

	w := get(router, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, captured)
	assert.Contains(t, id, "req_")

	// A caller-supplied ID is kept.
	w = get(router, map[string]string{RequestIDHeader: "req_upstream"})
	assert.Equal(t, "req_upstream", w.Header().Get(RequestIDHeader))
}
