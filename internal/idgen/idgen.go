// Package idgen generates approval record identifiers. Callers treat them as
// opaque strings; tests may stub NewFunc for stable ids.
package idgen

import "github.com/google/uuid"

// NewFunc is the active generator.
var NewFunc = func() string { return uuid.New().String() }

// New returns a fresh globally unique identifier.
func New() string { return NewFunc() }
