package apierr

import (
	"errors"
	"net/http"
)

// Error attaches an HTTP status and a stable machine code to a domain error.
// Sentinels built with New still match through errors.Is after wrapping.
type Error struct {
	Status int
	Code   string
	Err    error
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Wrap keeps err's chain intact while tagging it; a nil err stays nil.
func Wrap(err error, status int, code string) error {
	if err == nil {
		return nil
	}
	return &Error{Status: status, Code: code, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return e.Code
	case http.StatusText(e.Status) != "":
		return http.StatusText(e.Status)
	default:
		return "api error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// StatusOf returns the status and code of the outermost *Error in err's
// chain, or def and "" when there is none.
func StatusOf(err error, def int) (int, string) {
	var ae *Error
	if !errors.As(err, &ae) || ae == nil {
		return def, ""
	}
	if ae.Status == 0 {
		return def, ae.Code
	}
	return ae.Status, ae.Code
}
