package tool

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxNameLength is the longest function name accepted by model backends.
const MaxNameLength = 64

// ErrInvalidIdentifier is returned when a function name does not match
// ^[A-Za-z0-9_-]{1,64}$.
var ErrInvalidIdentifier = errors.New("invalid function name")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateName checks name against the function name grammar.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidIdentifier, name, namePattern.String())
	}
	return nil
}

// SanitizeName maps an arbitrary string into the function name grammar:
// every rune outside [A-Za-z0-9_-] becomes '_' and the result is truncated
// to MaxNameLength. An empty input yields "_".
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	n := 0
	for _, r := range name {
		if n == MaxNameLength {
			break
		}
		if isNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}

	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func isNameRune(r rune) bool {
	return r == '_' || r == '-' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
