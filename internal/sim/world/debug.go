package world

import (
	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/world/feature/equipment"
)

// Debug* helpers give tests deterministic preconditions and a read view of
// state that is not replicated. They must run on the world goroutine (or
// between StepOnce calls).

func (w *World) DebugSelf(conn string) (protocol.SelfState, bool) {
	if w.clients[entity.ConnID(conn)] == nil {
		return protocol.SelfState{}, false
	}
	return *w.selfState(entity.ConnID(conn)), true
}

func (w *World) DebugSetPawnPos(conn string, pos [3]float64) bool {
	pawn := w.resolver.ResolvePawn(entity.ConnID(conn))
	if pawn == nil {
		return false
	}
	pawn.Pos = entity.FromArray(pos)
	return true
}

func (w *World) DebugSetFacing(conn string, facing [3]float64) bool {
	pawn := w.resolver.ResolvePawn(entity.ConnID(conn))
	if pawn == nil {
		return false
	}
	f := entity.FromArray(facing).Normalize()
	if f.Len() == 0 {
		return false
	}
	pawn.Facing = f
	return true
}

func (w *World) DebugEquip(conn string, slot string) bool {
	p := w.playerOf(entity.ConnID(conn))
	s, ok := equipment.ParseSlot(slot)
	if p == nil || !ok {
		return false
	}
	p.Equip.Set(s)
	return true
}

func (w *World) DebugSetBalance(conn string, balance int) bool {
	p := w.playerOf(entity.ConnID(conn))
	if p == nil || balance < 0 {
		return false
	}
	if cur := p.Bank.Balance(); cur > 0 {
		p.Bank.Remove(cur)
	}
	if balance > 0 {
		p.Bank.Add(balance)
	}
	return true
}

func (w *World) DebugDoor(id uint64) (protocol.DoorState, bool) {
	d := w.doors[entity.ID(id)]
	if d == nil {
		return protocol.DoorState{}, false
	}
	return d.Snapshot(), true
}

// DebugDoorIDs lists map doors in placement order.
func (w *World) DebugDoorIDs() []uint64 {
	out := make([]uint64, 0, len(w.doorOrder))
	for _, id := range w.doorOrder {
		out = append(out, uint64(id))
	}
	return out
}

func (w *World) DebugZone(propertyID string) (protocol.ZoneState, uint64, bool) {
	z := w.zones.ByProperty(propertyID)
	if z == nil {
		return protocol.ZoneState{}, 0, false
	}
	return z.Snapshot(), uint64(z.Entity()), true
}

// DebugFind returns the first live entity with the given name.
func (w *World) DebugFind(name string) (protocol.EntityState, bool) {
	var found *entity.Entity
	w.scene.Each(func(e *entity.Entity) bool {
		if e.Name == name {
			found = e
			return false
		}
		return true
	})
	if found == nil {
		return protocol.EntityState{}, false
	}
	return protocol.EntityState{
		ID:    uint64(found.ID),
		Name:  found.Name,
		Kind:  found.Template,
		Owner: string(found.Owner),
		Pos:   found.Pos.Array(),
	}, true
}

func (w *World) DebugAlive(id uint64) bool { return w.scene.Alive(entity.ID(id)) }

// DebugOwned counts live entities owned by conn.
func (w *World) DebugOwned(conn string) int {
	n := 0
	w.scene.Each(func(e *entity.Entity) bool {
		if e.Owner == entity.ConnID(conn) {
			n++
		}
		return true
	})
	return n
}

func (w *World) DebugEntityCount() int { return w.scene.Len() }
