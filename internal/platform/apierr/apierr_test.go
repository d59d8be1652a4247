package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	base := New(http.StatusTooManyRequests, "rate_limited", errors.New("slow down"))
	wrapped := fmt.Errorf("import: %w", base)

	status, code := StatusOf(wrapped, http.StatusInternalServerError)
	if status != http.StatusTooManyRequests || code != "rate_limited" {
		t.Fatalf("StatusOf: got=%d/%q", status, code)
	}
	if wrapped.Error() != "import: slow down" {
		t.Fatalf("message: %q", wrapped.Error())
	}

	status, code = StatusOf(errors.New("plain"), http.StatusBadRequest)
	if status != http.StatusBadRequest || code != "" {
		t.Fatalf("StatusOf plain: got=%d/%q", status, code)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, http.StatusBadRequest, "x") != nil {
		t.Fatalf("Wrap(nil) should be nil")
	}
	base := errors.New("bad goal")
	err := Wrap(base, http.StatusBadRequest, "invalid_goal")
	if !errors.Is(err, base) {
		t.Fatalf("Wrap lost the chain")
	}
	if status, code := StatusOf(err, 0); status != http.StatusBadRequest || code != "invalid_goal" {
		t.Fatalf("StatusOf: got=%d/%q", status, code)
	}
	if got := (&Error{Status: http.StatusConflict}).Error(); got != "Conflict" {
		t.Fatalf("status text fallback: %q", got)
	}
}
