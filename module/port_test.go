package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortSetDeclareAndLookup(t *testing.T) {
	ps := NewPortSet()
	ps.Declare(Port{Name: "in", Direction: DirectionInput})
	ps.Declare(Port{Name: "out", Direction: DirectionOutput, Optional: true})

	p, ok := ps.Get("in")
	assert.True(t, ok)
	assert.Equal(t, DirectionInput, p.Direction)

	_, ok = ps.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"in"}, ps.Inputs())
	assert.Equal(t, []string{"out"}, ps.Outputs())
	assert.Equal(t, []string{"in", "out"}, ps.Names())
}
