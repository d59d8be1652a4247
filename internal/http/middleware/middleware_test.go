package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/roadmap-tracker/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
	"github.com/yungbote/roadmap-tracker/internal/platform/ratelimit"
	"github.com/yungbote/roadmap-tracker/internal/services"
)

func newAuth(t *testing.T) services.AuthService {
	t.Helper()
	as, err := services.NewAuthService(logger.Nop(), services.AuthConfig{Secret: "test-secret", AccessTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return as
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	as := newAuth(t)
	tok, err := as.IssueAccessToken("u-1")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	r := gin.New()
	r.Use(NewAuthMiddleware(logger.Nop(), as).RequireAuth())
	me := func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.UserID(c.Request.Context()))
	}
	r.GET("/me", me)
	r.POST("/me", me)

	cases := []struct {
		name   string
		method string
		url    string
		header string
		status int
		body   string
	}{
		{name: "missing", url: "/me", status: http.StatusUnauthorized},
		{name: "bearer", url: "/me", header: "Bearer " + tok, status: http.StatusOK, body: "u-1"},
		{name: "bearer lowercase scheme", url: "/me", header: "bearer " + tok, status: http.StatusOK, body: "u-1"},
		{name: "query on GET", url: "/me?token=" + tok, status: http.StatusOK, body: "u-1"},
		{name: "query on POST", method: http.MethodPost, url: "/me?token=" + tok, status: http.StatusUnauthorized},
		{name: "basic scheme", url: "/me", header: "Basic " + tok, status: http.StatusUnauthorized},
		{name: "bad token", url: "/me", header: "Bearer nope", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			method := tc.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, tc.url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status: got=%d want=%d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Fatalf("body: got=%q want=%q", rec.Body.String(), tc.body)
			}
		})
	}
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lim := ratelimit.NewMemoryLimiter(ratelimit.Config{Limit: 1, Window: time.Minute}, logger.Nop())

	r := gin.New()
	r.Use(RateLimit(logger.Nop(), lim, nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}
	if rec := do(); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got=%d want=429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}

	open := gin.New()
	open.Use(RateLimit(logger.Nop(), errLimiter{}, nil))
	open.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("limiter error should fail open, got %d", rec.Code)
	}
}

func TestTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceContext())
	r.GET("/x", func(c *gin.Context) {
		td := ctxutil.GetTraceData(c.Request.Context())
		if td == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, td.RequestID)
	})

	tests := []struct {
		name      string
		requestID string
		wantEcho  bool
	}{
		{name: "echoes client id", requestID: "req-123", wantEcho: true},
		{name: "replaces id with spaces", requestID: "bad id"},
		{name: "replaces oversized id", requestID: strings.Repeat("a", maxRequestIDLen+1)},
		{name: "generates when missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.requestID != "" {
				req.Header.Set(HeaderRequestID, tt.requestID)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			got := rec.Header().Get(HeaderRequestID)
			if got == "" || rec.Body.String() != got {
				t.Fatalf("request id not propagated: body=%q header=%q", rec.Body.String(), got)
			}
			if tt.wantEcho && got != tt.requestID {
				t.Fatalf("expected echo of %q, got %q", tt.requestID, got)
			}
			if !tt.wantEcho && got == tt.requestID {
				t.Fatalf("expected replacement of %q", tt.requestID)
			}
			if rec.Header().Get(HeaderTraceID) == "" {
				t.Fatalf("missing %s", HeaderTraceID)
			}
		})
	}
}
