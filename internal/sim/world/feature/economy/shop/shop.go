// Package shop validates purchases from the item catalog. Charging and
// spawning happen in the world once a purchase passes.
package shop

import (
	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/tuning"
)

type Category string

const (
	Devices Category = "devices"
	Food    Category = "food"
	Drink   Category = "drink"
)

type Catalog struct {
	items []tuning.ShopItem
	byID  map[string]int
}

func NewCatalog(items []tuning.ShopItem) *Catalog {
	c := &Catalog{byID: map[string]int{}}
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if _, dup := c.byID[it.ID]; dup {
			continue
		}
		c.byID[it.ID] = len(c.items)
		c.items = append(c.items, it)
	}
	return c
}

func (c *Catalog) Item(id string) (tuning.ShopItem, bool) {
	i, ok := c.byID[id]
	if !ok {
		return tuning.ShopItem{}, false
	}
	return c.items[i], true
}

func (c *Catalog) Items() []tuning.ShopItem { return append([]tuning.ShopItem(nil), c.items...) }

// Consumable reports whether using the item restores a need.
func Consumable(it tuning.ShopItem) bool { return it.HungerGain > 0 || it.ThirstGain > 0 }

// Device reports whether the item generates passive income.
func Device(it tuning.ShopItem) bool { return it.IncomePerInterval > 0 }

// Placement describes where the buyer wants the item.
type Placement struct {
	Pos     entity.Vec3
	Buyer   *entity.Entity
	MaxDist float64
}

// ValidatePurchase checks everything except the buyer's balance.
func ValidatePurchase(it tuning.ShopItem, found bool, templateKnown bool, p Placement) (bool, string, string) {
	if !found {
		return false, protocol.ErrInvalidTarget, "unknown item"
	}
	if it.Template == "" || !templateKnown {
		return false, protocol.ErrUnavailable, "item has no template"
	}
	if p.Buyer != nil && p.MaxDist > 0 && p.Pos.Distance(p.Buyer.Pos) > p.MaxDist {
		return false, protocol.ErrBlocked, "placement too far"
	}
	return true, "", ""
}
