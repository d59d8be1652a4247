package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/roadmap-tracker/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
)

func newTestAuth(t *testing.T, cfg AuthConfig) *authService {
	t.Helper()
	svc, err := NewAuthService(logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc.(*authService)
}

func TestNewAuthServiceRequiresSecret(t *testing.T) {
	if _, err := NewAuthService(logger.Nop(), AuthConfig{}); err != ErrMissingSecret {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestSetContextFromToken(t *testing.T) {
	as := newTestAuth(t, AuthConfig{Secret: "s3cret", Issuer: "accounts", Audience: "roadmap", AccessTTL: time.Hour})

	tok, err := as.IssueAccessToken("user-42")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	ctx, err := as.SetContextFromToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID != "user-42" || rd.TokenString != tok {
		t.Fatalf("unexpected request data: %+v", rd)
	}

	ctx, err = as.SetContextFromToken(context.Background(), "")
	if err != nil || ctxutil.UserID(ctx) != "" {
		t.Fatalf("empty token should pass through: err=%v", err)
	}
}

func TestSetContextFromTokenRejects(t *testing.T) {
	as := newTestAuth(t, AuthConfig{Secret: "s3cret", Issuer: "accounts", AccessTTL: time.Hour})

	sign := func(secret string, claims jwt.Claims, method jwt.SigningMethod) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	now := time.Now()
	valid := func() JWTClaims {
		return JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "accounts",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	wrongIssuer := valid()
	wrongIssuer.Issuer = "elsewhere"
	noSubject := valid()
	noSubject.Subject = ""

	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", sign("other", valid(), jwt.SigningMethodHS256)},
		{"wrong method", sign("s3cret", valid(), jwt.SigningMethodHS512)},
		{"expired", sign("s3cret", expired, jwt.SigningMethodHS256)},
		{"wrong issuer", sign("s3cret", wrongIssuer, jwt.SigningMethodHS256)},
		{"no subject", sign("s3cret", noSubject, jwt.SigningMethodHS256)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := as.SetContextFromToken(context.Background(), tc.token); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}
