package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"citycore/internal/sim/world/gateway"
)

func TestAssignment(t *testing.T) {
	a := New(gateway.Server)
	assert.Equal(t, Citizen, a.Current())
	assert.True(t, a.Set(Police))
	assert.True(t, a.Is(Police))
	assert.False(t, a.Set(ID(42)))
	assert.Equal(t, Police, a.Current())

	c := New(gateway.Client)
	assert.False(t, c.Set(Thief))
	assert.Equal(t, Citizen, c.Current())
}

func TestParseAndTitle(t *testing.T) {
	j, ok := Parse("POLICE")
	assert.True(t, ok)
	assert.Equal(t, Police, j)
	assert.Equal(t, "Police", j.Title())
	_, ok = Parse("mayor")
	assert.False(t, ok)
	assert.True(t, Police.Government())
	assert.False(t, Thief.Government())
}

func TestPawnTemplate(t *testing.T) {
	tpl := map[string]string{"citizen": "pawn_citizen", "police": "pawn_police"}
	assert.Equal(t, "pawn_police", PawnTemplate(Police, tpl))
	assert.Equal(t, "pawn_citizen", PawnTemplate(Thief, tpl))
}
