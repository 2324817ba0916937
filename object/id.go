// Package object implements the immutable scientific data objects that flow
// between pipeline modules and the thread-safe registry that owns them.
package object

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a globally unique, 128-bit identifier for an Object. It is stable
// for the lifetime of the object it names and is comparable and hashable,
// so it can be used directly as a map key.
type ID uuid.UUID

// Nil is the zero ID. It never names a stored object.
var Nil = ID(uuid.Nil)

// NewID returns a freshly generated, random ID.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("object: parse id %q: %w", s, err)
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler so IDs serialize as their
// canonical string form in JSON and similar formats.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
