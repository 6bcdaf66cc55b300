// Package uuid generates and validates the identifiers used by the sync core:
// local record ids, queued action ids, conflict ids and cloud ids.
package uuid

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/medadhere/backend/internal/errors"
)

// Locally minted ids are always v4.
var v4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new lowercase UUID v4 string.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether s is a hyphenated UUID v4.
func IsValid(s string) bool {
	return v4Regex.MatchString(s)
}

// Validate returns an INVALID_INPUT error if s is not a UUID v4.
func Validate(s string) error {
	if !IsValid(s) {
		return apperrors.New(apperrors.ErrInvalid, "invalid id: "+quote(s))
	}
	return nil
}

// Canonical parses an id of any UUID version and returns its lowercase
// hyphenated form. Remote backends may assign non-v4 cloud ids.
func Canonical(s string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "invalid id: "+quote(s), err)
	}
	return id.String(), nil
}

func quote(s string) string {
	return `"` + s + `"`
}
