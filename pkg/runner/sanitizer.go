package runner

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize bounds a raw utterance in bytes.
const DefaultMaxInputSize = 4096

var (
	ErrInputTooLarge = errors.New("utterance exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("utterance contains invalid UTF-8 sequences")
)

// Sanitizer turns raw input into a single-line utterance.
type Sanitizer struct {
	// MaxBytes caps the raw input. Zero means DefaultMaxInputSize.
	MaxBytes int
}

// Clean rejects oversized or invalid input, drops control characters and
// collapses whitespace runs, line breaks included, into single spaces.
// Whitespace-only input cleans to "".
func (s Sanitizer) Clean(input string) (string, error) {
	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	// Oversized input is rejected, never truncated.
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	var b strings.Builder
	b.Grow(len(input))
	pendingSpace := false
	for _, r := range input {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsControl(r):
			// ESC, NUL, BEL and friends would corrupt terminals and logs.
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// SanitizeInput cleans input with the default size limit.
func SanitizeInput(input string) (string, error) {
	return Sanitizer{}.Clean(input)
}
