// Package streamid defines the opaque stream identifier shared by the
// Channel Map, Stream Manager, and Config Persister (spec §3.1).
package streamid

import "github.com/google/uuid"

// ID is an opaque 128-bit stream identifier (UUID-v4 shape). Comparable
// and hashable; stable for the lifetime of a stream.
type ID uuid.UUID

// Nil is the distinguished null ID value.
var Nil = ID(uuid.Nil)

// New generates a fresh random stream ID.
func New() ID {
	return ID(uuid.New())
}

// String returns the canonical UUID text form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether id is the null value.
func (id ID) IsNil() bool {
	return id == Nil
}

// Parse decodes a canonical UUID string into an ID.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, err
	}
	return ID(u), nil
}
