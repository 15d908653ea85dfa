// Package identity maps a connection to its live pawn and its persistent
// player state, and keeps the pawn <-> state link between them.
//
// Lookups go through an explicit binding first. If the binding is missing or
// points at a destroyed entity the resolver scans the scene for an entity
// owned by the connection and repairs the binding, which covers the window
// where a pawn exists before its state (or the other way round).
package identity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"citycore/internal/logging"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/world/gateway"
)

var (
	ErrOwnerMismatch = errors.New("pawn and state are owned by different connections")
	ErrNotHost       = errors.New("not the authority")
	ErrNoEntity      = errors.New("entity not found")
)

// Scene is what the resolver needs from the world's entity store.
type Scene interface {
	entity.Spawner
	entity.Lookup
	Each(fn func(*entity.Entity) bool)
}

type binding struct {
	pawn  entity.ID
	state entity.ID
}

type Resolver struct {
	host          gateway.Host
	scene         Scene
	stateTemplate string
	log           logrus.FieldLogger

	bindings    map[entity.ConnID]*binding
	stateByPawn map[entity.ID]entity.ID
	pawnByState map[entity.ID]entity.ID

	// OnStateCreated runs right after EnsureState spawns a new state so the
	// caller can attach components to it.
	OnStateCreated func(conn entity.ConnID, state *entity.Entity)
}

// New builds a resolver. An empty stateTemplate disables player states.
func New(host gateway.Host, scene Scene, stateTemplate string, log logrus.FieldLogger) *Resolver {
	return &Resolver{
		host:          host,
		scene:         scene,
		stateTemplate: stateTemplate,
		log:           logging.Component(log, "identity"),
		bindings:      map[entity.ConnID]*binding{},
		stateByPawn:   map[entity.ID]entity.ID{},
		pawnByState:   map[entity.ID]entity.ID{},
	}
}

func (r *Resolver) authority() bool { return r.host != nil && r.host.IsHost() }

func (r *Resolver) bind(conn entity.ConnID) *binding {
	b := r.bindings[conn]
	if b == nil {
		b = &binding{}
		r.bindings[conn] = b
	}
	return b
}

// live returns the entity if it is alive, owned by conn and carries marker.
func (r *Resolver) live(id entity.ID, conn entity.ConnID, marker entity.Marker) *entity.Entity {
	e := r.scene.Get(id)
	if e == nil || e.Owner != conn || !e.Has(marker) {
		return nil
	}
	return e
}

func (r *Resolver) scan(conn entity.ConnID, marker entity.Marker) *entity.Entity {
	var found *entity.Entity
	r.scene.Each(func(e *entity.Entity) bool {
		if e.Owner == conn && e.Has(marker) {
			found = e
			return false
		}
		return true
	})
	return found
}

// ResolvePawn returns the connection's live pawn, or nil.
func (r *Resolver) ResolvePawn(conn entity.ConnID) *entity.Entity {
	if conn == "" {
		return nil
	}
	if b := r.bindings[conn]; b != nil {
		if p := r.live(b.pawn, conn, entity.MarkerPawn); p != nil {
			return p
		}
		if s := r.live(b.state, conn, entity.MarkerState); s != nil {
			if p := r.live(r.pawnByState[s.ID], conn, entity.MarkerPawn); p != nil {
				b.pawn = p.ID
				return p
			}
		}
	}
	p := r.scan(conn, entity.MarkerPawn)
	if p != nil {
		r.bind(conn).pawn = p.ID
	}
	return p
}

// ResolveState returns the connection's player state, or nil.
func (r *Resolver) ResolveState(conn entity.ConnID) *entity.Entity {
	if conn == "" {
		return nil
	}
	if b := r.bindings[conn]; b != nil {
		if s := r.live(b.state, conn, entity.MarkerState); s != nil {
			return s
		}
		if p := r.live(b.pawn, conn, entity.MarkerPawn); p != nil {
			if s := r.live(r.stateByPawn[p.ID], conn, entity.MarkerState); s != nil {
				b.state = s.ID
				return s
			}
		}
	}
	s := r.scan(conn, entity.MarkerState)
	if s != nil {
		r.bind(conn).state = s.ID
	}
	return s
}

// EnsureState returns the connection's state, creating it on first use.
// Only the authority creates states; nil means unavailable.
func (r *Resolver) EnsureState(conn entity.ConnID) *entity.Entity {
	if !r.authority() || conn == "" {
		return nil
	}
	if s := r.ResolveState(conn); s != nil {
		return s
	}
	if r.stateTemplate == "" {
		return nil
	}
	s := r.scene.Spawn(r.stateTemplate, conn, entity.Vec3{})
	if s == nil {
		r.log.WithField("template", r.stateTemplate).Warn("state template did not spawn")
		return nil
	}
	r.bind(conn).state = s.ID
	r.log.WithFields(logrus.Fields{"conn": conn, "state": s.ID}).Info("player state created")
	if r.OnStateCreated != nil {
		r.OnStateCreated(conn, s)
	}
	if p := r.ResolvePawn(conn); p != nil {
		_ = r.Link(p, s)
	}
	return s
}

// Link ties a pawn to a state. Both must belong to the same connection.
func (r *Resolver) Link(pawn, state *entity.Entity) error {
	if !r.authority() {
		return ErrNotHost
	}
	if pawn == nil || state == nil || r.scene.Get(pawn.ID) == nil || r.scene.Get(state.ID) == nil {
		return ErrNoEntity
	}
	if pawn.Owner == "" || pawn.Owner != state.Owner {
		r.log.WithFields(logrus.Fields{
			"pawn":        pawn.ID,
			"pawn_owner":  pawn.Owner,
			"state":       state.ID,
			"state_owner": state.Owner,
		}).Error("refusing to link pawn and state")
		return fmt.Errorf("link %d <-> %d: %w", pawn.ID, state.ID, ErrOwnerMismatch)
	}
	if old, ok := r.pawnByState[state.ID]; ok && old != pawn.ID {
		delete(r.stateByPawn, old)
	}
	if old, ok := r.stateByPawn[pawn.ID]; ok && old != state.ID {
		delete(r.pawnByState, old)
	}
	r.stateByPawn[pawn.ID] = state.ID
	r.pawnByState[state.ID] = pawn.ID
	b := r.bind(pawn.Owner)
	b.pawn, b.state = pawn.ID, state.ID
	return nil
}

// BindPawn registers a freshly spawned pawn for its owner. Any other live
// pawn of that connection is destroyed first, then the pawn is linked to the
// state if there is one.
func (r *Resolver) BindPawn(pawn *entity.Entity) error {
	if !r.authority() {
		return ErrNotHost
	}
	if pawn == nil || r.scene.Get(pawn.ID) == nil {
		return ErrNoEntity
	}
	conn := pawn.Owner
	if conn == "" || !pawn.Has(entity.MarkerPawn) {
		return fmt.Errorf("bind pawn %d: %w", pawn.ID, ErrOwnerMismatch)
	}
	var stale []entity.ID
	r.scene.Each(func(e *entity.Entity) bool {
		if e.ID != pawn.ID && e.Owner == conn && e.Has(entity.MarkerPawn) {
			stale = append(stale, e.ID)
		}
		return true
	})
	for _, id := range stale {
		r.unlink(id)
		r.scene.Destroy(id)
	}
	if len(stale) > 0 {
		r.log.WithFields(logrus.Fields{"conn": conn, "destroyed": len(stale)}).Debug("replaced previous pawn")
	}
	r.bind(conn).pawn = pawn.ID
	if s := r.ResolveState(conn); s != nil {
		return r.Link(pawn, s)
	}
	return nil
}

func (r *Resolver) unlink(id entity.ID) {
	if s, ok := r.stateByPawn[id]; ok {
		delete(r.pawnByState, s)
		delete(r.stateByPawn, id)
	}
	if p, ok := r.pawnByState[id]; ok {
		delete(r.stateByPawn, p)
		delete(r.pawnByState, id)
	}
}

// StateOf follows the link from a pawn to its state.
func (r *Resolver) StateOf(pawn entity.ID) *entity.Entity {
	p := r.scene.Get(pawn)
	if p == nil {
		return nil
	}
	return r.live(r.stateByPawn[pawn], p.Owner, entity.MarkerState)
}

// PawnOf follows the link from a state to its pawn.
func (r *Resolver) PawnOf(state entity.ID) *entity.Entity {
	s := r.scene.Get(state)
	if s == nil {
		return nil
	}
	return r.live(r.pawnByState[state], s.Owner, entity.MarkerPawn)
}

// Forget destroys the connection's pawn and state and drops its binding.
func (r *Resolver) Forget(conn entity.ConnID) {
	if !r.authority() || conn == "" {
		return
	}
	for _, p := range []*entity.Entity{r.ResolvePawn(conn), r.ResolveState(conn)} {
		if p == nil {
			continue
		}
		r.unlink(p.ID)
		r.scene.Destroy(p.ID)
	}
	delete(r.bindings, conn)
}

// Connections lists every connection with a binding, sorted.
func (r *Resolver) Connections() []entity.ConnID {
	out := make([]entity.ConnID, 0, len(r.bindings))
	for c := range r.bindings {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
