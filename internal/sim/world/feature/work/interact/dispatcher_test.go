package interact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citycore/internal/sim/entity"
	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world/feature/governance/zones"
	"citycore/internal/sim/world/gateway"
)

type pawns map[entity.ConnID]*entity.Entity

func (p pawns) ResolvePawn(c entity.ConnID) *entity.Entity { return p[c] }

type fixture struct {
	scene *entity.Scene
	reg   *Registry
	zones *zones.Registry
	d     *Dispatcher
	alice *entity.Entity
	bob   *entity.Entity
	door  *entity.Entity
}

func newFixture(t *testing.T, role gateway.Authority) *fixture {
	t.Helper()
	scene := entity.NewScene(
		entity.Template{Name: "pawn", Markers: entity.MarkerPawn, Networked: true, Radius: 16},
		entity.Template{Name: "door", Markers: entity.MarkerDoor, Networked: true, Radius: 24},
		entity.Template{Name: "handle", Markers: entity.MarkerProp, Networked: true, Radius: 4},
		entity.Template{Name: "local", Markers: entity.MarkerProp, Radius: 4},
		entity.Template{Name: "zone", Markers: entity.MarkerZone},
	)
	f := &fixture{scene: scene, reg: NewRegistry(), zones: zones.NewRegistry(scene)}
	f.alice = scene.Spawn("pawn", "alice", entity.Vec3{})
	f.bob = scene.Spawn("pawn", "bob", entity.Vec3{X: 10})
	f.door = scene.Spawn("door", "", entity.Vec3{X: 50})
	gw := gateway.New(role, scene, nil)
	f.d = NewDispatcher(gw, scene, pawns{"alice": f.alice, "bob": f.bob}, f.zones, f.reg, nil)
	return f
}

func (f *fixture) addZone(owner entity.ConnID) *zones.Zone {
	z := zones.New(gateway.Server, f.scene.Spawn("zone", "", entity.Vec3{}).ID, tuning.ZoneDef{
		PropertyID: "house", Name: "House", Min: [3]float64{-100, -100, -100}, Max: [3]float64{100, 100, 100}, Price: 500,
	})
	if owner != "" {
		z.TryBuy(owner, string(owner), 500)
	}
	f.zones.Register(z)
	return z
}

func counter(act Action, n *int) *Funcs {
	return &Funcs{Base: Base{Act: act}, Do: func(Use) Outcome { *n++; return Done() }}
}

func TestOnlyEligibleCandidateRuns(t *testing.T) {
	f := newFixture(t, gateway.Server)
	var high, low int
	blocked := counter(ActionLockpickDoor, &high)
	blocked.Rank = func(Use) int { return 100 }
	blocked.Check = func(Use) bool { return false }
	f.reg.Attach(f.door.ID, blocked, counter(ActionOpenDoor, &low))

	res := f.d.RequestUse("alice", f.alice.ID, f.door.ID)
	require.True(t, res.Handled)
	assert.Equal(t, ActionOpenDoor, res.Action)
	assert.Equal(t, 0, high)
	assert.Equal(t, 1, low)
}

func TestHighestPriorityWinsAndFirstBreaksTies(t *testing.T) {
	f := newFixture(t, gateway.Server)
	var a, b, c int
	first := counter(ActionUse, &a)
	second := counter(ActionOpenDoor, &b)
	third := counter(ActionLockpickDoor, &c)
	third.Rank = func(Use) int { return 5 }
	f.reg.Attach(f.door.ID, first, second)

	f.d.RequestUse("alice", f.alice.ID, f.door.ID)
	assert.Equal(t, []int{1, 0}, []int{a, b})

	f.reg.Attach(f.door.ID, third)
	res := f.d.RequestUse("alice", f.alice.ID, f.door.ID)
	assert.Equal(t, ActionLockpickDoor, res.Action)
	assert.Equal(t, []int{1, 0, 1}, []int{a, b, c})
}

func TestCandidatesIncludeAncestors(t *testing.T) {
	f := newFixture(t, gateway.Server)
	handle := f.scene.Spawn("handle", "", entity.Vec3{X: 50})
	require.True(t, f.scene.SetParent(handle.ID, f.door.ID))
	var n int
	f.reg.Attach(f.door.ID, counter(ActionOpenDoor, &n))

	res := f.d.RequestUse("alice", f.alice.ID, handle.ID)
	require.True(t, res.Handled)
	assert.Equal(t, f.door.ID, res.Entity)
	assert.Equal(t, 1, n)
}

func TestRejections(t *testing.T) {
	f := newFixture(t, gateway.Server)
	var n int
	f.reg.Attach(f.door.ID, counter(ActionOpenDoor, &n))
	local := f.scene.Spawn("local", "", entity.Vec3{X: 20})
	f.reg.Attach(local.ID, counter(ActionUse, &n))

	// Spoofed interactor.
	assert.False(t, f.d.RequestUse("alice", f.bob.ID, f.door.ID).Handled)
	// Unnetworked and missing targets.
	assert.False(t, f.d.RequestUse("alice", f.alice.ID, local.ID).Handled)
	assert.False(t, f.d.RequestUse("alice", f.alice.ID, 9999).Handled)
	// Too far.
	f.alice.Pos = entity.Vec3{X: 500}
	assert.False(t, f.d.RequestUse("alice", f.alice.ID, f.door.ID).Handled)
	assert.Equal(t, 0, n)

	remote := newFixture(t, gateway.Client)
	remote.reg.Attach(remote.door.ID, counter(ActionOpenDoor, &n))
	assert.False(t, remote.d.RequestUse("alice", remote.alice.ID, remote.door.ID).Handled)
	assert.Equal(t, 0, n)
}

func TestPropertyAccessRequirement(t *testing.T) {
	f := newFixture(t, gateway.Server)
	var n int
	c := counter(ActionManageMiner, &n)
	c.RequireAccess = true
	f.reg.Attach(f.door.ID, c)

	assert.False(t, f.d.RequestUse("alice", f.alice.ID, f.door.ID).Handled)
	info, ok := f.d.AccessInfo("alice", f.alice.ID, f.door.ID)
	require.True(t, ok)
	assert.Equal(t, Access{Allowed: false, Reason: ReasonNotInProperty, Prompt: "Use"}, info)

	f.addZone("bob")
	assert.False(t, f.d.RequestUse("alice", f.alice.ID, f.door.ID).Handled)
	info, _ = f.d.AccessInfo("alice", f.alice.ID, f.door.ID)
	assert.Equal(t, ReasonNoAccess, info.Reason)

	assert.True(t, f.d.RequestUse("bob", f.bob.ID, f.door.ID).Handled)
	info, _ = f.d.AccessInfo("bob", f.bob.ID, f.door.ID)
	assert.True(t, info.Allowed)
	assert.Equal(t, 1, n)
}

func TestPreviewIsPermissive(t *testing.T) {
	f := newFixture(t, gateway.Client)
	lockpick := &Funcs{
		Base:    Base{Act: ActionLockpickDoor, Label: "Lockpick"},
		Preview: func(u Use) bool { return u.Pawn != nil && u.Pawn.Owner == "bob" },
		Rank:    func(Use) int { return 10 },
	}
	open := &Funcs{Base: Base{Act: ActionOpenDoor, Label: "Open"}}
	f.reg.Attach(f.door.ID, open, lockpick)
	f.alice.Pos = entity.Vec3{X: 5000}

	p, ok := f.d.Preview("alice", f.door.ID)
	require.True(t, ok)
	assert.Equal(t, "Open", p)
	p, _ = f.d.Preview("bob", f.door.ID)
	assert.Equal(t, "Lockpick", p)

	_, ok = f.d.Preview("alice", 4242)
	assert.False(t, ok)
}
