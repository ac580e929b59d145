package utils

import (
	"errors"
	"testing"
)

func TestAppErrorFormats(t *testing.T) {
	cause := errors.New("disk full")
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"op and key and cause", KeyError("store: save", "model/snapshot", cause), `store: save "model/snapshot": disk full`},
		{"op and key", KeyError("store: resolve", "../escape", nil), `store: resolve "../escape"`},
		{"op and cause", OpError("store: create data dir", cause), "store: create data dir: disk full"},
		{"op only", &AppError{Op: "store: close"}, "store: close"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := KeyError("store: load", "healing/ledger", cause)

	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause not reachable through errors.Is")
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As failed to recover *AppError")
	}
	if appErr.Key != "healing/ledger" {
		t.Errorf("key = %q, want healing/ledger", appErr.Key)
	}
}
