package world

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world/feature/economy/mining"
	"citycore/internal/sim/world/feature/equipment"
	"citycore/internal/sim/world/feature/governance/zones"
	"citycore/internal/sim/world/feature/jobs"
	"citycore/internal/sim/world/feature/property/door"
	"citycore/internal/sim/world/feature/work/interact"
)

const chunkStone = 1

func (w *World) useDistance() float64 { return w.cfg.Interaction.UseDistance }

func (w *World) holding(conn entity.ConnID, slot equipment.Slot) bool {
	p := w.playerOf(conn)
	return p != nil && p.Equip.Holding(slot)
}

func (w *World) doorCapabilities(d *door.Door) []interact.Capability {
	open := &interact.Funcs{
		Base: interact.Base{Act: interact.ActionOpenDoor, Distance: w.useDistance()},
		Preview: func(u interact.Use) bool {
			return !d.IsLocked() || w.holding(u.Caller, equipment.Keys)
		},
		Check: func(interact.Use) bool { return !d.IsLocked() },
		Text: func(interact.Use) string {
			switch {
			case d.IsLocked():
				return "Locked - Unlock (Keys)"
			case d.IsOpen():
				return "Close - Lock (Keys)"
			default:
				return "Open - Lock (Keys)"
			}
		},
		Do: func(interact.Use) interact.Outcome {
			if !d.ToggleOpen() {
				return interact.Fail(protocol.ErrBlocked, "door locked")
			}
			return interact.Done()
		},
	}
	// Locking goes through the keys request only.
	lock := &interact.Funcs{
		Base:    interact.Base{Act: interact.ActionLockDoor, Distance: w.useDistance(), Label: "Lock (Keys)"},
		Preview: func(interact.Use) bool { return false },
		Check:   func(interact.Use) bool { return false },
	}
	pick := &interact.Funcs{
		Base: interact.Base{Act: interact.ActionLockpickDoor, Distance: w.useDistance()},
		Preview: func(u interact.Use) bool {
			return d.Lockpickable() && !d.BeingLockpicked() && w.holding(u.Caller, equipment.Lockpick)
		},
		Check: func(u interact.Use) bool { return w.lockpickAllowed(d, u) },
		Rank: func(u interact.Use) int {
			if w.holding(u.Caller, equipment.Lockpick) {
				return 10
			}
			return 0
		},
		Text: func(interact.Use) string {
			if d.BeingLockpicked() {
				return "Lockpicking..."
			}
			return "Lockpick"
		},
		Do: func(u interact.Use) interact.Outcome {
			if d.BeingLockpicked() {
				if !d.CancelLockpick(u.Caller) {
					return interact.Fail(protocol.ErrNoPermission, "not the picker")
				}
				return interact.Done()
			}
			if !d.StartLockpick(u.Caller, w.tick.Load(), w.lockpickTicks()) {
				return interact.Fail(protocol.ErrBlocked, "cannot start lockpick")
			}
			return interact.Done()
		},
	}
	return []interact.Capability{open, lock, pick}
}

func (w *World) lockpickTicks() int { return w.cfg.Ticks(w.cfg.Lockpick.DurationSeconds) }

// lockpickAllowed is the authority-side lockpick rule. On government
// property the active picker may use the door again to stop; elsewhere a
// door being picked refuses everyone, and a door outside any property
// cannot be picked at all.
func (w *World) lockpickAllowed(d *door.Door, u interact.Use) bool {
	if !d.IsLocked() {
		return false
	}
	gov := u.Zone != nil && u.Zone.Government
	if d.BeingLockpicked() {
		return gov && d.Session().Picker == u.Caller
	}
	if u.Zone == nil {
		return false
	}
	return d.Lockpickable() && w.holding(u.Caller, equipment.Lockpick)
}

func (w *World) signCapability(z *zones.Zone, def tuning.SignDef) interact.Capability {
	price := func() int {
		if def.PriceOverride > 0 {
			return def.PriceOverride
		}
		return z.Price
	}
	refundPct := w.cfg.Economy.PropertyRefundPercent
	return &interact.Funcs{
		Base:  interact.Base{Act: interact.ActionBuyProperty, Distance: w.useDistance()},
		Check: func(interact.Use) bool { return !z.Government },
		Text: func(u interact.Use) string {
			if !z.IsOwned() {
				if p := price(); p > 0 {
					return fmt.Sprintf("Buy %s ($%d)", z.Name, p)
				}
				return "Buy " + z.Name
			}
			if !z.OwnedBy(u.Caller) {
				return "Owned by " + z.OwnerName()
			}
			if def.DisallowSell {
				return "Owned by you: " + z.Name
			}
			if r := z.SellRefund(refundPct); r > 0 {
				return fmt.Sprintf("Sell %s (+$%d)", z.Name, r)
			}
			return "Sell " + z.Name
		},
		Do: func(u interact.Use) interact.Outcome {
			p := w.playerOf(u.Caller)
			if p == nil {
				return interact.Fail(protocol.ErrNoResource, "no player state")
			}
			if z.IsOwned() {
				if !z.OwnedBy(u.Caller) {
					return interact.Fail(protocol.ErrNoPermission, "owned by someone else")
				}
				if def.DisallowSell {
					return interact.Fail(protocol.ErrBlocked, "selling disabled")
				}
				refund := z.SellRefund(refundPct)
				if refund > 0 {
					p.Bank.Add(refund)
				}
				z.ClearOwnerAndReset()
				w.log.WithFields(logrus.Fields{"conn": u.Caller, "property": z.PropertyID, "refund": refund}).Info("property sold")
				return interact.Done()
			}
			cost := price()
			if cost > 0 && !p.Bank.TrySpend(cost) {
				return interact.Fail(protocol.ErrNoResource, "insufficient funds")
			}
			if !z.TryBuy(u.Caller, w.displayName(u.Caller), cost) {
				if cost > 0 {
					p.Bank.Add(cost)
				}
				return interact.Fail(protocol.ErrConflict, "property unavailable")
			}
			w.log.WithFields(logrus.Fields{"conn": u.Caller, "property": z.PropertyID, "price": cost}).Info("property bought")
			return interact.Done()
		},
	}
}

func (w *World) terminalCapability(job jobs.ID) interact.Capability {
	return &interact.Funcs{
		Base: interact.Base{Act: interact.ActionSetJob, Distance: w.useDistance(), Label: "Become " + job.Title()},
		Do: func(u interact.Use) interact.Outcome {
			if !w.setJobAndRespawn(w.playerOf(u.Caller), job) {
				return interact.Fail(protocol.ErrUnavailable, "job change failed")
			}
			return interact.Done()
		},
	}
}

func (w *World) consumeCapability(it tuning.ShopItem) interact.Capability {
	return &interact.Funcs{
		Base: interact.Base{Act: interact.ActionConsume, Distance: w.useDistance(), Label: "Consume " + it.Name},
		Do: func(u interact.Use) interact.Outcome {
			p := w.playerOf(u.Caller)
			if p == nil {
				return interact.Fail(protocol.ErrNoResource, "no player state")
			}
			if it.HungerGain > 0 {
				p.Needs.AddHunger(it.HungerGain)
			}
			if it.ThirstGain > 0 {
				p.Needs.AddThirst(it.ThirstGain)
			}
			w.removeEntity(u.Target.ID)
			return interact.Done()
		},
	}
}

// minerCapability only proves the property-access path for now; the device
// pays out on its own every tick.
func (w *World) minerCapability() interact.Capability {
	return &interact.Funcs{
		Base: interact.Base{Act: interact.ActionManageMiner, Distance: w.useDistance(), RequireAccess: true, Label: "Manage Miner"},
		Do: func(u interact.Use) interact.Outcome {
			w.log.WithFields(logrus.Fields{"conn": u.Caller, "miner": u.Target.ID}).Info("miner used")
			return interact.Done()
		},
	}
}

func (w *World) nodeCapability(n *mining.Node) interact.Capability {
	return &interact.Funcs{
		Base:  interact.Base{Act: interact.ActionMineNode, Distance: w.useDistance()},
		Check: func(interact.Use) bool { return !n.Depleted() },
		Text:  func(interact.Use) string { return n.Prompt() },
		Do: func(u interact.Use) interact.Outcome {
			p := w.playerOf(u.Caller)
			if p == nil {
				return interact.Fail(protocol.ErrNoResource, "no wallet")
			}
			now := w.tick.Load()
			hit := n.Hit(now)
			if !hit.Accepted {
				return interact.Fail(protocol.ErrRateLimit, "too soon")
			}
			if !hit.Depleted {
				return interact.Done()
			}
			p.Wallet.AddStone(hit.Reward)
			node := u.Target.ID
			if chunk := w.scene.Spawn(w.cfg.Templates.Chunk, "", u.Target.Pos); chunk != nil {
				chunk.Name = "Rock Chunk"
				w.caps.Attach(chunk.ID, w.chunkCapability(chunkStone))
			}
			w.sched.After("node_respawn", now, n.RespawnTicks(), func(uint64) {
				if w.scene.Alive(node) {
					n.Restore()
				}
			})
			w.log.WithFields(logrus.Fields{"conn": u.Caller, "node": node, "stone": hit.Reward}).Info("node depleted")
			return interact.Done()
		},
	}
}

func (w *World) chunkCapability(stone int) interact.Capability {
	return &interact.Funcs{
		Base: interact.Base{Act: interact.ActionPickupChunk, Distance: w.useDistance(), Label: fmt.Sprintf("Pick up Rock (+%d)", stone)},
		Do: func(u interact.Use) interact.Outcome {
			p := w.playerOf(u.Caller)
			if p == nil {
				return interact.Fail(protocol.ErrNoResource, "no wallet")
			}
			p.Wallet.AddStone(stone)
			w.removeEntity(u.Target.ID)
			return interact.Done()
		},
	}
}

// AttachCapabilities hangs extra capabilities off an entity after the map is
// built.
func (w *World) AttachCapabilities(id entity.ID, caps ...interact.Capability) {
	w.caps.Attach(id, caps...)
}

// UseCapability is the plain "use" that only logs.
func (w *World) UseCapability(label string) interact.Capability {
	return &interact.Funcs{
		Base: interact.Base{Act: interact.ActionUse, Distance: w.useDistance(), Label: label},
		Do: func(u interact.Use) interact.Outcome {
			w.log.WithFields(logrus.Fields{"conn": u.Caller, "target": u.Target.ID}).Info("used")
			return interact.Done()
		},
	}
}
