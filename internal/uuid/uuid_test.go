// Package uuid tests for identifier generation and validation.
package uuid

import (
	"testing"

	apperrors "github.com/medadhere/backend/internal/errors"
)

// TestNew verifies generated ids are unique v4 strings.
func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("New() = %q, not a v4 uuid", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

// TestIsValid verifies strict v4 matching.
func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"v4 lowercase", "f47ac10b-58cc-4372-a567-0e02b2c3d479", true},
		{"v4 uppercase", "6BA7B810-9DAD-41D1-80B4-00C04FD430C8", true},
		{"v1", "f47ac10b-58cc-1372-a567-0e02b2c3d479", false},
		{"bad variant", "f47ac10b-58cc-4372-c567-0e02b2c3d479", false},
		{"no dashes", "f47ac10b58cc4372a5670e02b2c3d479", false},
		{"empty", "", false},
		{"garbage", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.in); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestValidate verifies the error carries INVALID_INPUT.
func TestValidate(t *testing.T) {
	if err := Validate(New()); err != nil {
		t.Errorf("Validate(New()) error = %v", err)
	}
	err := Validate("nope")
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Validate(nope) = %v, want INVALID_INPUT", err)
	}
}

// TestCanonical verifies any version is accepted and normalised.
func TestCanonical(t *testing.T) {
	got, err := Canonical(" 6BA7B810-9DAD-11D1-80B4-00C04FD430C8 ")
	if err != nil {
		t.Fatalf("Canonical() error = %v", err)
	}
	if got != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("Canonical() = %q", got)
	}

	if _, err := Canonical("xyz"); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Canonical(xyz) error = %v, want INVALID_INPUT", err)
	}
}
