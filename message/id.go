package message

import (
	"fmt"

	"github.com/google/uuid"
)

// ID uniquely identifies one message envelope.
type ID uuid.UUID

// NewID generates a fresh, randomly-distributed message id.
func NewID() ID { return ID(uuid.New()) }

func (id ID) String() string { return uuid.UUID(id).String() }

func (id ID) bytes() [16]byte { return uuid.UUID(id) }

func idFromBytes(b [16]byte) ID { return ID(uuid.UUID(b)) }

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("message: parse id: %w", err)
	}
	return ID(u), nil
}
