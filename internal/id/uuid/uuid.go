// Package uuid provides ID generation helpers.
package uuid

import (
	"strings"

	"github.com/google/uuid"
)

// Generator creates request ids and short article codes.
type Generator struct{}

// New creates a new Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a UUID7 string, falling back to a random UUID when the
// clock-based variant cannot be produced.
func (Generator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ShortHex returns the first n lowercase hex characters of a random UUID.
// n is clamped to [1, 32].
func (Generator) ShortHex(n int) string {
	n = max(1, min(n, 32))
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return hex[:n]
}
