package interact

import (
	"citycore/internal/sim/entity"
	"citycore/internal/sim/world/feature/governance/zones"
)

type Action string

const (
	ActionUse          Action = "use"
	ActionOpenDoor     Action = "open_door"
	ActionLockDoor     Action = "lock_door"
	ActionLockpickDoor Action = "lockpick_door"
	ActionBuyProperty  Action = "buy_property"
	ActionConsume      Action = "consume"
	ActionSetJob       Action = "set_job"
	ActionManageMiner  Action = "manage_miner"
	ActionMineNode     Action = "mine_node"
	ActionPickupChunk  Action = "pickup_chunk"
)

// DefaultUseDistance applies when a capability declares none.
const DefaultUseDistance = 120

// Use is everything a capability sees about one attempt.
type Use struct {
	Caller entity.ConnID
	Pawn   *entity.Entity
	// Target is the entity the capability is attached to.
	Target *entity.Entity
	// Zone is the property at Target's position, if any.
	Zone *zones.Zone
}

// Outcome is recorded for audit only. Callers never see it.
type Outcome struct {
	OK      bool
	Code    string
	Message string
}

func Done() Outcome { return Outcome{OK: true} }

func Fail(code, msg string) Outcome { return Outcome{Code: code, Message: msg} }

// Capability is one player-triggerable behaviour attached to an entity.
type Capability interface {
	Action() Action
	UseDistance() float64
	RequiresPropertyAccess() bool

	// CanPreview is the cheap client-side check used to pick prompt text.
	// It is never trusted.
	CanPreview(u Use) bool
	// CanUse is the capability's own authority-side predicate. Distance,
	// authority and property access are checked by the dispatcher first.
	CanUse(u Use) bool
	Priority(u Use) int
	Prompt(u Use) string
	Interact(u Use) Outcome
}

// Base supplies defaults. Concrete capabilities embed it.
type Base struct {
	Act           Action
	Distance      float64
	RequireAccess bool
	Label         string
}

func (b Base) Action() Action { return b.Act }

func (b Base) UseDistance() float64 {
	if b.Distance <= 0 {
		return DefaultUseDistance
	}
	return b.Distance
}

func (b Base) RequiresPropertyAccess() bool { return b.RequireAccess }
func (b Base) CanPreview(Use) bool          { return true }
func (b Base) CanUse(Use) bool              { return true }
func (b Base) Priority(Use) int             { return 0 }

func (b Base) Prompt(Use) string {
	if b.Label == "" {
		return "Use"
	}
	return b.Label
}

// Funcs builds a capability out of closures. Nil closures fall back to Base.
type Funcs struct {
	Base
	Preview func(Use) bool
	Check   func(Use) bool
	Rank    func(Use) int
	Text    func(Use) string
	Do      func(Use) Outcome
}

func (f *Funcs) CanPreview(u Use) bool {
	if f.Preview == nil {
		return f.Base.CanPreview(u)
	}
	return f.Preview(u)
}

func (f *Funcs) CanUse(u Use) bool {
	if f.Check == nil {
		return f.Base.CanUse(u)
	}
	return f.Check(u)
}

func (f *Funcs) Priority(u Use) int {
	if f.Rank == nil {
		return f.Base.Priority(u)
	}
	return f.Rank(u)
}

func (f *Funcs) Prompt(u Use) string {
	if f.Text == nil {
		return f.Base.Prompt(u)
	}
	return f.Text(u)
}

func (f *Funcs) Interact(u Use) Outcome {
	if f.Do == nil {
		return Done()
	}
	return f.Do(u)
}

// Registry attaches capabilities to entities in declaration order.
type Registry struct {
	byEntity map[entity.ID][]Capability
}

func NewRegistry() *Registry { return &Registry{byEntity: map[entity.ID][]Capability{}} }

func (r *Registry) Attach(id entity.ID, caps ...Capability) {
	for _, c := range caps {
		if c != nil {
			r.byEntity[id] = append(r.byEntity[id], c)
		}
	}
}

func (r *Registry) Detach(id entity.ID) { delete(r.byEntity, id) }

func (r *Registry) On(id entity.ID) []Capability { return r.byEntity[id] }

func (r *Registry) Len() int { return len(r.byEntity) }
