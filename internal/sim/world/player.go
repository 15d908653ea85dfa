package world

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/world/feature/economy/ledger"
	"citycore/internal/sim/world/feature/economy/mining"
	"citycore/internal/sim/world/feature/equipment"
	"citycore/internal/sim/world/feature/jobs"
	"citycore/internal/sim/world/feature/survival/vitality"
)

// playerOf returns the components of conn's player state, if it has one.
func (w *World) playerOf(conn entity.ConnID) *PlayerState {
	st := w.resolver.ResolveState(conn)
	if st == nil {
		return nil
	}
	return w.players[st.ID]
}

func (w *World) displayName(conn entity.ConnID) string {
	if c := w.clients[conn]; c != nil && c.Name != "" {
		return c.Name
	}
	return string(conn)
}

// attachPlayerState runs once per newly created state entity.
func (w *World) attachPlayerState(conn entity.ConnID, st *entity.Entity) {
	name := w.displayName(conn)
	st.Name = "PlayerState - " + name

	needs := vitality.NewNeeds(w.host, w.cfg.Needs)
	p := &PlayerState{
		Conn:   conn,
		Name:   name,
		Entity: st.ID,
		Bank:   ledger.New(w.host, w.cfg.Economy.StartingBalance),
		Needs:  needs,
		Equip:  equipment.New(w.gw, st.ID),
		Job:    jobs.New(w.host),
		Wallet: mining.NewWallet(w.host),
	}
	p.Health = vitality.NewHealth(w.host, w.cfg.Health, needs, vitality.Hooks{
		Died: func() { w.onDeath(p) },
		After: func(seconds float64, fn func()) {
			w.sched.After("respawn", w.tick.Load(), w.cfg.Ticks(seconds), func(uint64) { fn() })
		},
		Respawn: func() bool {
			// The timer outlives the session; a rejoin under the same id
			// owns a different state.
			if w.players[p.Entity] != p || w.playerOf(p.Conn) != p {
				return false
			}
			return w.respawn(p.Conn)
		},
	})
	w.players[st.ID] = p
}

// spawnPawn instantiates the pawn for conn's current job at the next spawn
// point and makes it the connection's only pawn.
func (w *World) spawnPawn(conn entity.ConnID) *entity.Entity {
	job := jobs.Citizen
	if p := w.playerOf(conn); p != nil {
		job = p.Job.Current()
	}
	tpl := jobs.PawnTemplate(job, w.cfg.Templates.Pawns)
	pawn := w.scene.Spawn(tpl, conn, w.nextSpawnPoint())
	if pawn == nil {
		w.log.WithFields(logrus.Fields{"conn": conn, "template": tpl}).Error("pawn template missing")
		return nil
	}
	pawn.Name = "Player - " + w.displayName(conn)
	if err := w.resolver.BindPawn(pawn); err != nil {
		w.log.WithError(err).WithField("conn", conn).Error("bind pawn")
		w.scene.Destroy(pawn.ID)
		return nil
	}
	return pawn
}

// respawn is the spawn pipeline used after death and job changes. It fails
// once the connection is gone.
func (w *World) respawn(conn entity.ConnID) bool {
	if w.clients[conn] == nil {
		return false
	}
	return w.spawnPawn(conn) != nil
}

func (w *World) setJobAndRespawn(p *PlayerState, job jobs.ID) bool {
	if p == nil || !p.Job.Set(job) {
		return false
	}
	w.log.WithFields(logrus.Fields{"conn": p.Conn, "job": job.String()}).Info("job changed")
	if p.Health.IsDead() {
		// The queued respawn picks up the new template.
		return true
	}
	return w.respawn(p.Conn)
}

// onDeath swaps the pawn for a ragdoll that cleans itself up later.
func (w *World) onDeath(p *PlayerState) {
	pawn := w.resolver.PawnOf(p.Entity)
	w.log.WithField("conn", p.Conn).Info("player died")
	w.audit(AuditEntry{Actor: string(p.Conn), Action: "DEATH", OK: true})
	if pawn == nil {
		return
	}
	if rag := w.scene.Spawn(w.cfg.Templates.Ragdoll, "", pawn.Pos); rag != nil {
		rag.Name = pawn.Name + " (Ragdoll)"
		rag.Facing = pawn.Facing
		id := rag.ID
		w.sched.After("ragdoll_cleanup", w.tick.Load(), w.cfg.Ticks(w.cfg.Health.RagdollLifetimeSeconds), func(uint64) {
			w.scene.Destroy(id)
		})
	}
	w.scene.Destroy(pawn.ID)
}

func (w *World) joinPlayer(req JoinRequest) JoinResponse {
	conn := entity.ConnID(strings.TrimSpace(req.PlayerID))
	if conn == "" {
		conn = entity.ConnID(fmt.Sprintf("P%d", w.nextPlayer.Add(1)))
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = string(conn)
	}

	if w.clients[conn] != nil {
		// A live identity is only reachable through its resume token.
		w.log.WithField("conn", conn).Warn("join refused: identity in use")
		w.audit(AuditEntry{Actor: string(conn), Action: "JOIN", Code: protocol.ErrConflict, Reason: "identity in use"})
		return JoinResponse{Refused: "player_id in use"}
	}

	c := &clientState{Conn: conn, Name: name, Out: req.Out, ResumeToken: uuid.NewString()}
	w.clients[conn] = c
	w.tokens[c.ResumeToken] = conn

	w.resolver.EnsureState(conn)
	w.spawnPawn(conn)
	w.log.WithFields(logrus.Fields{"conn": conn, "name": name}).Info("player joined")
	return JoinResponse{Welcome: w.welcome(c)}
}

func (w *World) handleAttach(req AttachRequest) {
	var resp JoinResponse
	token := strings.TrimSpace(req.ResumeToken)
	if conn, ok := w.tokens[token]; ok && token != "" && req.Out != nil {
		if c := w.clients[conn]; c != nil {
			w.replaceOut(c, req.Out)
			// Rotate on every resume so a token works once.
			delete(w.tokens, c.ResumeToken)
			c.ResumeToken = uuid.NewString()
			w.tokens[c.ResumeToken] = conn
			w.log.WithField("conn", conn).Info("session resumed")
			resp.Welcome = w.welcome(c)
		}
	}
	if req.Resp != nil {
		req.Resp <- resp
	}
}

// replaceOut points the session at a new socket. The old channel is closed
// so its transport knows it was superseded and must not send a leave.
func (w *World) replaceOut(c *clientState, out chan []byte) {
	if c.Out != nil && c.Out != out {
		close(c.Out)
	}
	c.Out = out
}

func (w *World) welcome(c *clientState) protocol.WelcomeMsg {
	msg := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ConnectionID:    string(c.Conn),
		ResumeToken:     c.ResumeToken,
		WorldParams: protocol.WorldParams{
			WorldID:    w.cfg.WorldID,
			TickRateHz: w.cfg.TickRateHz,
			SlotCount:  equipment.SlotCount,
		},
	}
	if pawn := w.resolver.ResolvePawn(c.Conn); pawn != nil {
		msg.PawnID = uint64(pawn.ID)
	}
	if st := w.resolver.ResolveState(c.Conn); st != nil {
		msg.StateID = uint64(st.ID)
	}
	return msg
}

// handleLeave is the disconnect hook: it ends the connection's lockpicks,
// releases its property and removes everything it owned.
func (w *World) handleLeave(conn entity.ConnID) {
	c := w.clients[conn]
	if c == nil {
		return
	}
	for _, id := range w.doorOrder {
		if d := w.doors[id]; d != nil {
			d.CancelLockpick(conn)
		}
	}
	released := w.zones.ReleaseOwnedBy(conn)

	if p := w.playerOf(conn); p != nil {
		delete(w.players, p.Entity)
	}
	var owned []entity.ID
	w.scene.Each(func(e *entity.Entity) bool {
		if e.Owner == conn {
			owned = append(owned, e.ID)
		}
		return true
	})
	for _, id := range owned {
		w.removeEntity(id)
	}
	w.resolver.Forget(conn)

	delete(w.tokens, c.ResumeToken)
	delete(w.clients, conn)
	w.log.WithFields(logrus.Fields{"conn": conn, "zones_released": released, "entities": len(owned)}).Info("player left")
	w.audit(AuditEntry{Actor: string(conn), Action: "LEAVE", OK: true, Details: map[string]any{"zones_released": released}})
}

// removeEntity destroys id and forgets every capability or device hanging
// off it.
func (w *World) removeEntity(id entity.ID) {
	w.caps.Detach(id)
	delete(w.miners, id)
	w.scene.Destroy(id)
}

func (w *World) sortedPlayers() []*PlayerState {
	out := make([]*PlayerState, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}
