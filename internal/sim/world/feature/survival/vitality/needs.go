// Package vitality holds hunger, thirst and health for a player state.
// Values are written by the authority only and replicated to everyone.
package vitality

import (
	"math"

	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world/gateway"
)

type Needs struct {
	host gateway.Host
	cfg  tuning.Needs

	hunger float64
	thirst float64
}

func NewNeeds(host gateway.Host, cfg tuning.Needs) *Needs {
	n := &Needs{host: host, cfg: cfg}
	if n.authority() {
		n.hunger = cfg.MaxHunger
		n.thirst = cfg.MaxThirst
	}
	return n
}

func (n *Needs) authority() bool { return n != nil && n.host != nil && n.host.IsHost() }

func (n *Needs) Hunger() float64 { return n.hunger }
func (n *Needs) Thirst() float64 { return n.thirst }

func (n *Needs) Starving() bool { return n.hunger <= 0 || n.thirst <= 0 }

// Tick drains both needs by dt seconds. While either is empty the owner
// takes starvation damage.
func (n *Needs) Tick(dt float64, h *Health) {
	if !n.authority() || dt <= 0 {
		return
	}
	n.hunger = math.Max(0, n.hunger-n.cfg.HungerDrainPerSecond*dt)
	n.thirst = math.Max(0, n.thirst-n.cfg.ThirstDrainPerSecond*dt)
	if n.Starving() && h != nil {
		h.Damage(n.cfg.StarveDamagePerSecond * dt)
	}
}

func (n *Needs) AddHunger(amount float64) {
	if !n.authority() || amount <= 0 {
		return
	}
	n.hunger = math.Min(n.cfg.MaxHunger, n.hunger+amount)
}

func (n *Needs) AddThirst(amount float64) {
	if !n.authority() || amount <= 0 {
		return
	}
	n.thirst = math.Min(n.cfg.MaxThirst, n.thirst+amount)
}

func (n *Needs) Reset() {
	if !n.authority() {
		return
	}
	n.hunger = n.cfg.MaxHunger
	n.thirst = n.cfg.MaxThirst
}
