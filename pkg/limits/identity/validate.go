package identity

import (
	"errors"
	"fmt"
	"unicode"
)

// MaxLength is the longest identity accepted by Validate.
const MaxLength = 256

// ErrInvalidIdentity is returned for empty, oversize or malformed identities.
var ErrInvalidIdentity = errors.New("invalid identity")

// Validate rejects identities that must never reach storage: empty strings,
// strings longer than MaxLength and strings containing whitespace or control
// characters.
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if len(id) > MaxLength {
		return fmt.Errorf("%w: length %d exceeds %d", ErrInvalidIdentity, len(id), MaxLength)
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == unicode.ReplacementChar {
			return fmt.Errorf("%w: contains disallowed character %q", ErrInvalidIdentity, r)
		}
	}
	return nil
}
