package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestBridgeError_Message(t *testing.T) {
	err := ErrNotFound("session not found").WithResource("s1")
	if got := err.Error(); got != "not_found (s1): session not found" {
		t.Errorf("Error() = %q", got)
	}

	plain := ErrTransient("connection lost")
	if got := plain.Error(); got != "transient: connection lost" {
		t.Errorf("Error() = %q", got)
	}
}

func TestBridgeError_HTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  *BridgeError
		want int
	}{
		{ErrNotFound("x"), http.StatusNotFound},
		{ErrTransient("x"), http.StatusServiceUnavailable},
		{ErrCommand("x"), http.StatusBadGateway},
		{ErrCommand("x").WithStatusCode(http.StatusBadRequest), http.StatusBadRequest},
		{ErrTerminal("x"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := tc.err.HTTPStatusCode(); got != tc.want {
			t.Errorf("HTTPStatusCode(%s) = %d, want %d", tc.err.Type, got, tc.want)
		}
	}
}

func TestErrorPredicatesUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("poll: %w", ErrTransient("backend down"))
	if !IsTransient(wrapped) {
		t.Error("IsTransient() = false for wrapped transient")
	}
	if IsNotFound(wrapped) {
		t.Error("IsNotFound() = true for transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("IsTransient() = true for plain error")
	}

	fatal := fmt.Errorf("dial: %w", ErrTerminal("retry budget exhausted"))
	if !IsTerminal(fatal) {
		t.Error("IsTerminal() = false for wrapped terminal")
	}
	if IsTransient(fatal) {
		t.Error("IsTransient() = true for terminal")
	}
}

func TestInterventionStatusTerminal(t *testing.T) {
	terminal := []InterventionStatus{InterventionResolved, InterventionCancelled, InterventionTimedOut}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("Terminal(%s) = false, want true", s)
		}
	}
	for _, s := range []InterventionStatus{InterventionPending, InterventionInProgress} {
		if s.Terminal() {
			t.Errorf("Terminal(%s) = true, want false", s)
		}
	}
}
