// Package token generates the short opaque job identifiers handed back to
// polling clients.
package token

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Length is the number of hex characters in a generated token. Twelve
// characters of a UUIDv7 keep the time-ordered prefix while staying short
// enough to paste into a status URL.
const Length = 12

// Generator creates short tokens derived from UUIDv7 values.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a fresh short token.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	compact := strings.ReplaceAll(id.String(), "-", "")
	return compact[:Length], nil
}
