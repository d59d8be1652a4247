package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/roadmap-tracker/internal/http/response"
	"github.com/yungbote/roadmap-tracker/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-tracker/internal/platform/logger"
	"github.com/yungbote/roadmap-tracker/internal/services"
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), authService: authService}
}

// RequireAuth resolves the caller from a bearer token and stores it on the
// request context. Every progress row is keyed by that caller.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		ctx, err := am.authService.SetContextFromToken(c.Request.Context(), tokenString)
		if err != nil {
			am.log.Debug("token rejected", append([]interface{}{"error", err}, ctxutil.LogFields(c.Request.Context())...)...)
			abortAuth(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		if ctxutil.UserID(ctx) == "" {
			abortAuth(c, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, response.ErrorEnvelope{
		Error: response.APIError{Message: msg, Code: code},
	})
}

// bearerToken reads the Authorization header. GET requests may pass
// ?token= instead so export links work as plain downloads.
func bearerToken(c *gin.Context) string {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		if tok = strings.TrimSpace(tok); tok != "" {
			return tok
		}
	}
	if c.Request.Method == http.MethodGet {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}
