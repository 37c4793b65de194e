package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Classified(t *testing.T) {
	err := New(Conflict, "slot no longer available")
	if KindOf(err) != Conflict {
		t.Errorf("expected Conflict, got %v", KindOf(err))
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := New(StaleWrite, "version mismatch")
	outer := fmt.Errorf("update case: %w", inner)
	if KindOf(outer) != StaleWrite {
		t.Errorf("expected StaleWrite through wrapping, got %v", KindOf(outer))
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if KindOf(errors.New("connection refused")) != StorageUnavailable {
		t.Error("unclassified errors must map to StorageUnavailable")
	}
}

func TestIsKind(t *testing.T) {
	err := Wrap(NotFound, errors.New("no rows"), "invoice not found")
	if !IsKind(err, NotFound) {
		t.Error("expected IsKind NotFound")
	}
	if IsKind(err, Validation) {
		t.Error("did not expect Validation")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{Validation, http.StatusBadRequest},
		{Conflict, http.StatusConflict},
		{StaleWrite, http.StatusConflict},
		{InvalidTransition, http.StatusUnprocessableEntity},
		{ExceedsBalance, http.StatusUnprocessableEntity},
		{NotFound, http.StatusNotFound},
		{StorageUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := HTTPStatus(New(tc.kind, "x")); got != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
}

func TestError_UnwrapPreservesCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrap(StorageUnavailable, cause, "record payment")
	if !errors.Is(err, cause) {
		t.Error("expected cause reachable via errors.Is")
	}
}
