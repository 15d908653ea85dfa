// Package equipment is the single active-slot selector a player cycles with
// the scroll wheel. It lives on the player state so it survives respawns.
package equipment

import (
	"strings"

	"citycore/internal/sim/entity"
	"citycore/internal/sim/world/gateway"
)

type Slot int

const (
	Empty Slot = iota
	Fists
	Pistol
	Lockpick
	Keys

	SlotCount = 5
)

var slotNames = [SlotCount]string{"empty", "fists", "pistol", "lockpick", "keys"}

func (s Slot) String() string {
	if s < 0 || int(s) >= SlotCount {
		return "unknown"
	}
	return slotNames[s]
}

func ParseSlot(name string) (Slot, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range slotNames {
		if n == name {
			return Slot(i), true
		}
	}
	return Empty, false
}

type State struct {
	gw     *gateway.Gateway
	holder entity.ID
	active Slot
}

// New attaches equipment to the holder entity. Only the holder's network
// owner may cycle it.
func New(gw *gateway.Gateway, holder entity.ID) *State {
	return &State{gw: gw, holder: holder}
}

func (s *State) Active() Slot {
	if s == nil {
		return Empty
	}
	return s.active
}

func (s *State) Holding(slot Slot) bool { return s.Active() == slot }

// Cycle moves the active slot by dir, wrapping in both directions.
func (s *State) Cycle(caller entity.ConnID, dir int) bool {
	if s == nil || dir == 0 {
		return false
	}
	if !s.gw.RequireAuthorityAndOwnership(s.holder, caller) {
		return false
	}
	next := (int(s.active) + dir) % SlotCount
	if next < 0 {
		next += SlotCount
	}
	s.active = Slot(next)
	return true
}

// Set forces the active slot. Host-side only; used by tooling and tests.
func (s *State) Set(slot Slot) {
	if s == nil || !s.gw.IsHost() || slot < 0 || int(slot) >= SlotCount {
		return
	}
	s.active = slot
}
