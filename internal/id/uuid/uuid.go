// Package uuid provides run ID generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings, optionally prefixed.
type Generator struct {
	prefix string
}

// NewUUIDGenerator creates a new Generator. The prefix is prepended verbatim.
func NewUUIDGenerator(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// NewID returns a time-ordered UUID7 string.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return g.prefix + id.String(), nil
}
