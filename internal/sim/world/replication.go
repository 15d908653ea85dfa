package world

import (
	"encoding/json"

	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
)

// replicate mirrors the authoritative state to every client and observer.
// Clients get their own private section on top of the shared view.
func (w *World) replicate(now uint64) {
	if len(w.clients) == 0 && len(w.observers) == 0 {
		return
	}
	shared := w.sharedState(now)

	for conn, c := range w.clients {
		if c.Out == nil {
			continue
		}
		msg := shared
		msg.Self = w.selfState(conn)
		b, err := json.Marshal(msg)
		if err != nil {
			w.log.WithError(err).Error("marshal state")
			continue
		}
		sendLatest(c.Out, b)
	}

	if len(w.observers) == 0 {
		return
	}
	b, err := json.Marshal(shared)
	if err != nil {
		w.log.WithError(err).Error("marshal observer state")
		return
	}
	for _, o := range w.observers {
		sendLatest(o.out, b)
	}
}

func (w *World) sharedState(now uint64) protocol.StateMsg {
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            now,
		Doors:           []protocol.DoorState{},
		Zones:           []protocol.ZoneState{},
		Entities:        []protocol.EntityState{},
	}
	for _, id := range w.doorOrder {
		if d := w.doors[id]; d != nil && w.scene.Alive(id) {
			msg.Doors = append(msg.Doors, d.Snapshot())
		}
	}
	for _, z := range w.zones.All() {
		msg.Zones = append(msg.Zones, z.Snapshot())
	}
	w.scene.Each(func(e *entity.Entity) bool {
		if !e.Networked || e.Has(entity.MarkerState) {
			return true
		}
		msg.Entities = append(msg.Entities, protocol.EntityState{
			ID:    uint64(e.ID),
			Name:  e.Name,
			Kind:  e.Template,
			Owner: string(e.Owner),
			Pos:   e.Pos.Array(),
		})
		return true
	})
	return msg
}

func (w *World) selfState(conn entity.ConnID) *protocol.SelfState {
	s := &protocol.SelfState{ConnectionID: string(conn)}
	if pawn := w.resolver.ResolvePawn(conn); pawn != nil {
		s.PawnID = uint64(pawn.ID)
	}
	p := w.playerOf(conn)
	if p == nil {
		return s
	}
	s.StateID = uint64(p.Entity)
	s.Balance = p.Bank.Balance()
	s.Health = p.Health.Value()
	s.MaxHealth = p.Health.Max()
	s.Dead = p.Health.IsDead()
	s.Hunger = p.Needs.Hunger()
	s.Thirst = p.Needs.Thirst()
	s.Job = p.Job.Current().String()
	s.Slot = p.Equip.Active().String()
	s.Stone = p.Wallet.Stone()
	return s
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.out)
	}
	w.observers[req.SessionID] = &observerClient{id: req.SessionID, out: req.Out}
}

func (w *World) handleObserverLeave(sessionID string) {
	o := w.observers[sessionID]
	if o == nil {
		return
	}
	delete(w.observers, sessionID)
	close(o.out)
}
