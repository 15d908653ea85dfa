package vitality

import (
	"math"

	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world/gateway"
)

// Hooks connect Health to the rest of the world. Any of them may be nil.
type Hooks struct {
	// RequestDamage forwards damage from a non-authority role to the host.
	RequestDamage func(amount float64)
	// Died runs once on the authority when health reaches zero: spawn the
	// ragdoll where the pawn stands and remove the pawn.
	Died func()
	// After schedules fn to run once, seconds from now.
	After func(seconds float64, fn func())
	// Respawn runs the spawn pipeline for the owner. It reports false when
	// the owner is gone.
	Respawn func() bool
}

type Health struct {
	host  gateway.Host
	cfg   tuning.Health
	needs *Needs
	hooks Hooks

	health        float64
	dead          bool
	respawnQueued bool
}

func NewHealth(host gateway.Host, cfg tuning.Health, needs *Needs, hooks Hooks) *Health {
	h := &Health{host: host, cfg: cfg, needs: needs, hooks: hooks}
	if h.authority() {
		h.health = cfg.MaxHealth
	}
	return h
}

func (h *Health) authority() bool { return h != nil && h.host != nil && h.host.IsHost() }

func (h *Health) Value() float64      { return h.health }
func (h *Health) Max() float64        { return h.cfg.MaxHealth }
func (h *Health) IsDead() bool        { return h.dead }
func (h *Health) RespawnQueued() bool { return h.respawnQueued }

// Damage applies amount on the authority, or forwards it there otherwise.
func (h *Health) Damage(amount float64) {
	if h == nil || amount <= 0 {
		return
	}
	if !h.authority() {
		if h.hooks.RequestDamage != nil {
			h.hooks.RequestDamage(amount)
		}
		return
	}
	h.hostDamage(amount)
}

func (h *Health) hostDamage(amount float64) {
	if h.dead {
		return
	}
	h.health = math.Max(0, h.health-amount)
	if h.health > 0 {
		return
	}
	h.dead = true
	if h.hooks.Died != nil {
		h.hooks.Died()
	}
	h.queueRespawn()
}

func (h *Health) queueRespawn() {
	if !h.cfg.AutoRespawn || h.respawnQueued || h.hooks.After == nil {
		return
	}
	h.respawnQueued = true
	h.hooks.After(h.cfg.RespawnDelaySeconds, func() {
		defer func() { h.respawnQueued = false }()
		if h.hooks.Respawn == nil || !h.hooks.Respawn() {
			return
		}
		h.health = h.cfg.MaxHealth
		h.dead = false
		h.needs.Reset()
	})
}

// Reset restores full health and needs.
func (h *Health) Reset() {
	if !h.authority() {
		return
	}
	h.dead = false
	h.health = h.cfg.MaxHealth
	h.needs.Reset()
}
