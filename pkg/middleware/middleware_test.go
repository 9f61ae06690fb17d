package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/middleware"
)

func newEngine(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)

	e := gin.New()
	e.Use(mw)

	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	e.GET("/api/v1/data", ok)
	e.GET("/api/v1/health", ok)

	return e
}

func get(e http.Handler, path string, header ...string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	return w.Code
}

func TestRateLimitPerIP(t *testing.T) {
	e := newEngine(middleware.RateLimitMiddleware(configs.RateLimitConfig{
		Enabled:   true,
		RPS:       0.001,
		Burst:     2,
		Key:       "ip",
		SkipPaths: []string{"/api/v1/health"},
	}))

	for i := range 2 {
		if code := get(e, "/api/v1/data"); code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, code)
		}
	}

	if code := get(e, "/api/v1/data"); code != http.StatusTooManyRequests {
		t.Fatalf("third request: status %d, want 429", code)
	}

	if code := get(e, "/api/v1/health"); code != http.StatusOK {
		t.Fatalf("skipped path: status %d", code)
	}
}

func TestRateLimitByHeader(t *testing.T) {
	e := newEngine(middleware.RateLimitMiddleware(configs.RateLimitConfig{
		Enabled: true,
		RPS:     0.001,
		Burst:   1,
		Key:     "header:X-Client",
	}))

	if code := get(e, "/api/v1/data", "X-Client", "a"); code != http.StatusOK {
		t.Fatalf("client a: status %d", code)
	}

	if code := get(e, "/api/v1/data", "X-Client", "a"); code != http.StatusTooManyRequests {
		t.Fatalf("client a again: status %d, want 429", code)
	}

	if code := get(e, "/api/v1/data", "X-Client", "b"); code != http.StatusOK {
		t.Fatalf("client b: status %d", code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	e := newEngine(middleware.RateLimitMiddleware(configs.RateLimitConfig{Enabled: false, RPS: 1, Burst: 1}))

	for range 5 {
		if code := get(e, "/api/v1/data"); code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
	}
}
