package envutil

import (
	"testing"
	"time"
)

func TestInt(t *testing.T) {
	t.Setenv("ENVUTIL_INT", " 42 ")
	if got := Int("ENVUTIL_INT", 7); got != 42 {
		t.Fatalf("Int: got=%d want=42", got)
	}
	t.Setenv("ENVUTIL_INT", "nope")
	if got := Int("ENVUTIL_INT", 7); got != 7 {
		t.Fatalf("Int fallback: got=%d want=7", got)
	}
}

func TestBool(t *testing.T) {
	cases := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"on", false, true},
		{"YES", false, true},
		{"0", true, false},
		{"maybe", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			t.Setenv("ENVUTIL_BOOL", tc.raw)
			if got := Bool("ENVUTIL_BOOL", tc.def); got != tc.want {
				t.Fatalf("Bool(%q): got=%v want=%v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("ENVUTIL_DUR", "90")
	if got := Duration("ENVUTIL_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("Duration seconds: got=%v", got)
	}
	t.Setenv("ENVUTIL_DUR", "2m")
	if got := Duration("ENVUTIL_DUR", time.Second); got != 2*time.Minute {
		t.Fatalf("Duration string: got=%v", got)
	}
	t.Setenv("ENVUTIL_DUR", "soon")
	if got := Duration("ENVUTIL_DUR", time.Second); got != time.Second {
		t.Fatalf("Duration fallback: got=%v", got)
	}
}

func TestList(t *testing.T) {
	t.Setenv("ENVUTIL_LIST", "a, b,,c ")
	got := List("ENVUTIL_LIST", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("List: got=%v", got)
	}
}
