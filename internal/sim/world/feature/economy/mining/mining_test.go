package mining

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"citycore/internal/sim/world/gateway"
)

func TestAccumulatorPaysWholeIntervals(t *testing.T) {
	a := NewAccumulator(3, 20)
	total := 0
	for i := 0; i < 19; i++ {
		total += a.Advance(1)
	}
	assert.Equal(t, 0, total)
	assert.Equal(t, 3, a.Advance(1))
	assert.Equal(t, 0, a.Pending())

	// A long stall pays every missed interval at once.
	assert.Equal(t, 9, a.Advance(65))
	assert.Equal(t, 5, a.Pending())
	assert.Equal(t, 0, a.Advance(0))
}

func TestNodeDepletesAndRestores(t *testing.T) {
	n := NewNode(NodeConfig{Name: "Granite", MaxHits: 3, CooldownTicks: 20, Reward: 10})
	assert.Equal(t, "Mine Granite", n.Prompt())

	assert.True(t, n.Hit(0).Accepted)
	assert.False(t, n.Hit(5).Accepted, "cooldown")
	assert.True(t, n.Hit(20).Accepted)
	last := n.Hit(40)
	assert.Equal(t, Hit{Accepted: true, Depleted: true, Reward: 10}, last)
	assert.True(t, n.Depleted())
	assert.False(t, n.Hit(60).Accepted)

	n.Restore()
	assert.False(t, n.Depleted())
	assert.Equal(t, 3, n.HitsLeft())
}

func TestWalletAuthority(t *testing.T) {
	w := NewWallet(gateway.Server)
	w.AddStone(4)
	w.AddStone(-1)
	w.AddIronOre(2)
	assert.Equal(t, 4, w.Stone())
	assert.Equal(t, 2, w.IronOre())

	c := NewWallet(gateway.Client)
	c.AddStone(4)
	assert.Equal(t, 0, c.Stone())
}
