// Package zones is the property layer: axis-aligned regions that can be
// bought, shared with guests, and released back to the market.
package zones

import (
	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world/gateway"
)

type Zone struct {
	host   gateway.Host
	entity entity.ID

	PropertyID string
	Name       string
	Min, Max   entity.Vec3
	Government bool
	Price      int

	owner     entity.ConnID
	ownerName string
	lastPaid  int
	forSale   bool
	allowed   map[entity.ConnID]struct{}
}

// New builds a zone bound to the entity that represents it in the scene.
// The zone disappears from lookups once that entity is destroyed.
func New(host gateway.Host, ent entity.ID, def tuning.ZoneDef) *Zone {
	return &Zone{
		host:       host,
		entity:     ent,
		PropertyID: def.PropertyID,
		Name:       def.Name,
		Min:        entity.FromArray(def.Min),
		Max:        entity.FromArray(def.Max),
		Government: def.Government,
		Price:      def.Price,
		forSale:    !def.Government,
		allowed:    map[entity.ConnID]struct{}{},
	}
}

func (z *Zone) authority() bool { return z.host != nil && z.host.IsHost() }

func (z *Zone) Entity() entity.ID    { return z.entity }
func (z *Zone) Owner() entity.ConnID { return z.owner }
func (z *Zone) OwnerName() string    { return z.ownerName }
func (z *Zone) LastPaid() int        { return z.lastPaid }
func (z *Zone) ForSale() bool        { return z.forSale }
func (z *Zone) IsOwned() bool        { return z.owner != "" }

func (z *Zone) OwnedBy(id entity.ConnID) bool { return id != "" && z.owner == id }

func (z *Zone) Contains(p entity.Vec3) bool {
	return p.X >= z.Min.X && p.X <= z.Max.X &&
		p.Y >= z.Min.Y && p.Y <= z.Max.Y &&
		p.Z >= z.Min.Z && p.Z <= z.Max.Z
}

// HasAccess is true for the owner and the owner's guests. Unowned zones
// grant nobody access.
func (z *Zone) HasAccess(id entity.ConnID) bool {
	if z.owner == "" || id == "" {
		return false
	}
	if z.owner == id {
		return true
	}
	_, ok := z.allowed[id]
	return ok
}

// TryBuy claims an unowned zone for id. Government property is never sold.
func (z *Zone) TryBuy(id entity.ConnID, name string, paid int) bool {
	if !z.authority() || id == "" || z.IsOwned() || z.Government {
		return false
	}
	z.owner = id
	z.ownerName = name
	z.lastPaid = paid
	z.forSale = false
	clear(z.allowed)
	return true
}

// SellRefund is percent of the last paid price, rounded down.
func (z *Zone) SellRefund(percent int) int {
	if percent <= 0 || z.lastPaid <= 0 {
		return 0
	}
	return z.lastPaid * percent / 100
}

// ClearOwnerAndReset returns the zone to the market. Used for voluntary
// sales and when the owner disconnects.
func (z *Zone) ClearOwnerAndReset() {
	if !z.authority() {
		return
	}
	z.owner = ""
	z.ownerName = ""
	z.lastPaid = 0
	clear(z.allowed)
	z.forSale = !z.Government
}

func (z *Zone) AddAllowed(id entity.ConnID) bool {
	if !z.authority() || z.owner == "" || id == "" || id == z.owner {
		return false
	}
	if _, ok := z.allowed[id]; ok {
		return false
	}
	z.allowed[id] = struct{}{}
	return true
}

func (z *Zone) RemoveAllowed(id entity.ConnID) bool {
	if !z.authority() {
		return false
	}
	if _, ok := z.allowed[id]; !ok {
		return false
	}
	delete(z.allowed, id)
	return true
}

func (z *Zone) GuestCount() int { return len(z.allowed) }

func (z *Zone) Snapshot() protocol.ZoneState {
	return protocol.ZoneState{
		PropertyID: z.PropertyID,
		Name:       z.Name,
		Owner:      string(z.owner),
		OwnerName:  z.ownerName,
		ForSale:    z.forSale,
		Price:      z.Price,
		LastPaid:   z.lastPaid,
		Government: z.Government,
	}
}
