// Package idgen provides pluggable ID generation for docflow.
//
// Constructors across the repo (docstore, intake, archive) accept a
// Generator, making the ID strategy a startup-time decision rather than a
// compile-time one.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv4 returns a Generator that produces random RFC 4122 version 4 UUIDs.
// This is the document-id strategy: 122 random bits, collision defense is
// out of scope per the storage uniqueness contract.
func UUIDv4() Generator {
	return func() string {
		return uuid.NewString()
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable; useful for log-like records where insertion order helps.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
// Useful for type-scoped identifiers (e.g. "doc_", "evt_", "perp_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the repo default: random UUID v4.
var Default Generator = UUIDv4()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns it or an error.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}
