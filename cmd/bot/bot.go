package main

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/world/feature/work/interact"
)

const (
	hoverRange  = 150.0
	wanderEvery = 50 // ticks
	wanderStep  = 35.0
)

// Fixture kinds the bot is curious about.
var fixtureKinds = map[string]bool{
	"door":          true,
	"for_sale_sign": true,
	"job_terminal":  true,
	"mining_node":   true,
}

type bot struct {
	send func(v any) error
	log  logrus.FieldLogger
	rng  *rand.Rand

	conn   string
	pawn   uint64
	pos    [3]float64
	hover  *interact.HoverCache
	prompt string
	used   map[uint64]bool
}

func newBot(seed int64, send func(v any) error, log logrus.FieldLogger) *bot {
	return &bot{
		send:  send,
		log:   log,
		rng:   rand.New(rand.NewSource(seed)),
		hover: interact.NewHoverCache(),
		used:  map[uint64]bool{},
	}
}

func (b *bot) onWelcome(w protocol.WelcomeMsg) {
	b.conn = w.ConnectionID
	b.pawn = w.PawnID
}

func (b *bot) request(kind string) protocol.RequestMsg {
	return protocol.RequestMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		Kind:            kind,
		Actor:           b.pawn,
	}
}

func (b *bot) onState(st protocol.StateMsg) {
	if st.Self == nil {
		return
	}
	if st.Self.PawnID != b.pawn && st.Self.PawnID != 0 {
		b.log.WithFields(logrus.Fields{"old": b.pawn, "new": st.Self.PawnID}).Info("respawned")
		b.hover.Hover(0)
	}
	b.pawn = st.Self.PawnID
	if b.pawn == 0 || st.Self.Dead {
		return
	}

	var target uint64
	best := math.MaxFloat64
	for _, e := range st.Entities {
		if e.ID == b.pawn {
			b.pos = e.Pos
		}
	}
	for _, e := range st.Entities {
		if !fixtureKinds[e.Kind] {
			continue
		}
		if d := dist(b.pos, e.Pos); d <= hoverRange && d < best {
			best, target = d, e.ID
		}
	}
	if b.hover.Hover(entity.ID(target)) {
		req := b.request(protocol.KindAccessInfo)
		req.Target = target
		_ = b.send(req)
	}

	if st.Tick%wanderEvery == 0 {
		ang := b.rng.Float64() * 2 * math.Pi
		next := [3]float64{b.pos[0] + math.Cos(ang)*wanderStep, b.pos[1] + math.Sin(ang)*wanderStep, b.pos[2]}
		req := b.request(protocol.KindMove)
		req.Pos = &next
		facing := [3]float64{math.Cos(ang), math.Sin(ang), 0}
		req.Facing = &facing
		_ = b.send(req)
	}
}

func (b *bot) onAccessInfo(ai protocol.AccessInfoMsg) {
	if !b.hover.Receive(entity.ID(ai.Target), ai.Allowed, ai.Reason, ai.Prompt) {
		return
	}
	if p := b.hover.Prompt(); p != b.prompt {
		b.prompt = p
		b.log.WithFields(logrus.Fields{"target": ai.Target, "allowed": ai.Allowed}).Info(p)
	}
	// Try each fixture once.
	if ai.Allowed && !b.used[ai.Target] {
		b.used[ai.Target] = true
		req := b.request(protocol.KindUse)
		req.Target = ai.Target
		_ = b.send(req)
	}
}

func dist(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
