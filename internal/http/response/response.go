package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/roadmap-tracker/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	if msg == "" {
		msg = "unknown error"
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// RespondAPIError uses the status and code carried by an *apierr.Error in
// err's chain, falling back to 500 and fallbackCode.
func RespondAPIError(c *gin.Context, err error, fallbackCode string) {
	status, code := apierr.StatusOf(err, http.StatusInternalServerError)
	if code == "" {
		code = fallbackCode
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	RespondError(c, status, code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
