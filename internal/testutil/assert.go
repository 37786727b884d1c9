package testutil

import (
	"encoding/json"
	"errors"
	"testing"

	apperrors "exforge/pkg/errors"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// AssertNil fails the test when err is not nil.
func AssertNil(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test when err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error, got nil")
	}
}

// AssertErrorIs fails unless errors.Is(err, target).
func AssertErrorIs(t testing.TB, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error %v, got %v", target, err)
	}
}

// AssertCode fails unless err carries the given application error code.
func AssertCode(t testing.TB, err error, code apperrors.ErrorCode) {
	t.Helper()
	if got := apperrors.GetCode(err); got != code {
		t.Fatalf("expected error code %d, got %d (%v)", code, got, err)
	}
}

// AssertEqual compares got and want structurally and prints a diff on mismatch.
// Empty and nil slices or maps are treated as equal.
func AssertEqual(t testing.TB, got, want interface{}) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

// AssertTrue fails with msg when cond is false.
func AssertTrue(t testing.TB, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Fatalf("assertion failed: %s", msg)
	}
}

// MustUnmarshalJSON decodes data into v or fails the test.
func MustUnmarshalJSON(t testing.TB, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
}
