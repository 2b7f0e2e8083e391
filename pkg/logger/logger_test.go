package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestFromContext(t *testing.T) {
	base := New("local")
	ctx := With(context.Background(), base)
	if got := From(ctx); got != base {
		t.Fatalf("expected stored logger back")
	}
	if got := From(context.Background()); got == nil {
		t.Fatalf("expected default fallback, got nil")
	}
}

func TestMiddleware_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(New("local")))
	r.GET("/ping", func(c *gin.Context) {
		if FromGin(c) == nil {
			t.Errorf("expected request logger in gin context")
		}
		c.Status(http.StatusOK)
	})

	// Generated when absent.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id header")
	}

	// Echoed when supplied.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}
