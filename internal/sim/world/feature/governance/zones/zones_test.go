package zones

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citycore/internal/sim/entity"
	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world/gateway"
)

func newScene() *entity.Scene {
	return entity.NewScene(entity.Template{Name: "zone", Markers: entity.MarkerZone})
}

func box(id string, min, max [3]float64) tuning.ZoneDef {
	return tuning.ZoneDef{PropertyID: id, Name: id, Min: min, Max: max, Price: 500}
}

func TestFindZoneAtContainment(t *testing.T) {
	scene := newScene()
	reg := NewRegistry(scene)
	house := New(gateway.Server, scene.Spawn("zone", "", entity.Vec3{}).ID, box("house", [3]float64{0, 0, 0}, [3]float64{100, 100, 50}))
	reg.Register(house)
	reg.Register(house)

	assert.Same(t, house, reg.FindZoneAt(entity.Vec3{X: 50, Y: 50, Z: 10}))
	assert.Same(t, house, reg.FindZoneAt(entity.Vec3{X: 100, Y: 0, Z: 50}))
	assert.Nil(t, reg.FindZoneAt(entity.Vec3{X: 101, Y: 50, Z: 10}))
	assert.Len(t, reg.All(), 1)
}

func TestFindZoneAtPrunesDestroyed(t *testing.T) {
	scene := newScene()
	reg := NewRegistry(scene)
	e := scene.Spawn("zone", "", entity.Vec3{})
	z := New(gateway.Server, e.ID, box("shed", [3]float64{0, 0, 0}, [3]float64{10, 10, 10}))
	reg.Register(z)

	scene.Destroy(e.ID)
	assert.Nil(t, reg.FindZoneAt(entity.Vec3{X: 5, Y: 5, Z: 5}))
	assert.Empty(t, reg.All())
}

func TestOverlapResolvesToFirstRegistered(t *testing.T) {
	scene := newScene()
	reg := NewRegistry(scene)
	outer := New(gateway.Server, scene.Spawn("zone", "", entity.Vec3{}).ID, box("block", [3]float64{0, 0, 0}, [3]float64{100, 100, 100}))
	inner := New(gateway.Server, scene.Spawn("zone", "", entity.Vec3{}).ID, box("flat", [3]float64{10, 10, 10}, [3]float64{20, 20, 20}))
	reg.Register(outer)
	reg.Register(inner)
	assert.Same(t, outer, reg.FindZoneAt(entity.Vec3{X: 15, Y: 15, Z: 15}))

	reg.Unregister(outer)
	assert.Same(t, inner, reg.FindZoneAt(entity.Vec3{X: 15, Y: 15, Z: 15}))
}

func TestBuySellAndAccess(t *testing.T) {
	z := New(gateway.Server, 1, box("house", [3]float64{}, [3]float64{1, 1, 1}))
	require.True(t, z.ForSale())
	assert.False(t, z.HasAccess("alice"))

	require.True(t, z.TryBuy("alice", "Alice", 500))
	assert.False(t, z.TryBuy("bob", "Bob", 500))
	assert.True(t, z.HasAccess("alice"))
	assert.False(t, z.HasAccess("bob"))
	assert.False(t, z.ForSale())
	assert.Equal(t, 250, z.SellRefund(50))
	assert.Equal(t, 0, z.SellRefund(0))

	assert.True(t, z.AddAllowed("bob"))
	assert.False(t, z.AddAllowed("bob"))
	assert.False(t, z.AddAllowed("alice"))
	assert.True(t, z.HasAccess("bob"))
	assert.True(t, z.RemoveAllowed("bob"))
	assert.False(t, z.HasAccess("bob"))
	z.AddAllowed("bob")

	z.ClearOwnerAndReset()
	assert.False(t, z.IsOwned())
	assert.Equal(t, 0, z.GuestCount())
	assert.Equal(t, 0, z.LastPaid())
	assert.True(t, z.ForSale())
	assert.False(t, z.HasAccess("bob"))
}

func TestGuestsNeedOwner(t *testing.T) {
	z := New(gateway.Server, 1, box("house", [3]float64{}, [3]float64{1, 1, 1}))
	assert.False(t, z.AddAllowed("bob"))
	assert.False(t, z.RemoveAllowed("bob"))
}

func TestGovernmentZoneIsNotForSale(t *testing.T) {
	def := box("station", [3]float64{}, [3]float64{1, 1, 1})
	def.Government = true
	z := New(gateway.Server, 1, def)
	assert.False(t, z.ForSale())
	assert.False(t, z.TryBuy("alice", "Alice", 0))
}

func TestOffAuthorityMutationsIgnored(t *testing.T) {
	z := New(gateway.Client, 1, box("house", [3]float64{}, [3]float64{1, 1, 1}))
	assert.False(t, z.TryBuy("alice", "Alice", 500))
	assert.False(t, z.IsOwned())
}

func TestReleaseOwnedBy(t *testing.T) {
	scene := newScene()
	reg := NewRegistry(scene)
	var owned []*Zone
	for _, id := range []string{"a", "b", "c"} {
		z := New(gateway.Server, scene.Spawn("zone", "", entity.Vec3{}).ID, box(id, [3]float64{}, [3]float64{1, 1, 1}))
		reg.Register(z)
		owned = append(owned, z)
	}
	owned[0].TryBuy("alice", "Alice", 100)
	owned[1].TryBuy("bob", "Bob", 100)
	owned[2].TryBuy("alice", "Alice", 100)

	assert.Len(t, reg.OwnedBy("alice"), 2)
	assert.Equal(t, 2, reg.ReleaseOwnedBy("alice"))
	assert.Empty(t, reg.OwnedBy("alice"))
	assert.True(t, owned[1].OwnedBy("bob"))
	assert.Same(t, owned[1], reg.ByProperty("b"))
	assert.Same(t, owned[2], reg.ByEntity(owned[2].Entity()))
}
