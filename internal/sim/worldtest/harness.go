package worldtest

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/tuning"
	world "citycore/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join()/Leave() go through StepOnce()
// - Do()/DoFor() send one REQ and step once
// - Per-connection Out channels carry STATE and ACCESS_INFO JSON
// - Audits records every outcome the world audits
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T      *testing.T
	W      *world.World
	Audits *AuditRecorder
	Ticks  *TickRecorder

	DefaultConn string

	sessions map[string]*session
}

type session struct {
	Conn    string
	Welcome protocol.WelcomeMsg
	Out     chan []byte

	lastState  protocol.StateMsg
	lastAccess *protocol.AccessInfoMsg
}

// AuditRecorder is an in-memory world.AuditLogger.
type AuditRecorder struct {
	Entries []world.AuditEntry
}

func (r *AuditRecorder) WriteAudit(e world.AuditEntry) error {
	r.Entries = append(r.Entries, e)
	return nil
}

// Last returns the newest audit for actor and action.
func (r *AuditRecorder) Last(actor, action string) (world.AuditEntry, bool) {
	for i := len(r.Entries) - 1; i >= 0; i-- {
		e := r.Entries[i]
		if e.Actor == actor && e.Action == action {
			return e, true
		}
	}
	return world.AuditEntry{}, false
}

// TickRecorder is an in-memory world.TickLogger.
type TickRecorder struct {
	Entries []world.TickLogEntry
}

func (r *TickRecorder) WriteTick(e world.TickLogEntry) error {
	r.Entries = append(r.Entries, e)
	return nil
}

// Logger discards output unless -v is set.
func Logger(t *testing.T) logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	if !testing.Verbose() {
		l.SetOutput(io.Discard)
	}
	return l
}

// City is a small deterministic map shared by the world tests:
//   - house_1 [0,200]^3 and house_2 [300,500]^3, both for sale at 500
//   - police_station [1000,1200]^3, government
//   - a locked basic door in each of them plus one secure door in house_2
//     and a locked door outside any property
//   - for-sale signs, a police terminal and a mining node
func City() tuning.Tuning {
	t := tuning.Defaults()
	t.WorldID = "test"
	t.TickRateHz = 10
	t.Economy.StartingBalance = 1000
	t.Lockpick.DurationSeconds = 5
	t.Debug.AllowCheats = true
	t.Map = tuning.Map{
		SpawnPoints: [][3]float64{{100, 0, 20}},
		Zones: []tuning.ZoneDef{
			{PropertyID: "house_1", Name: "Small House", Min: [3]float64{0, 0, 0}, Max: [3]float64{200, 200, 200}, Price: 500},
			{PropertyID: "house_2", Name: "Corner House", Min: [3]float64{300, 0, 300}, Max: [3]float64{500, 200, 500}, Price: 500},
			{PropertyID: "police_station", Name: "Police Station", Min: [3]float64{1000, 0, 1000}, Max: [3]float64{1200, 200, 1200}, Government: true},
		},
		Doors: []tuning.DoorDef{
			{Name: "House 1 Door", Pos: [3]float64{100, 0, 100}, Locked: true},
			{Name: "House 2 Door", Pos: [3]float64{400, 0, 400}, Locked: true},
			{Name: "Vault Door", Pos: [3]float64{450, 0, 450}, Locked: true, Security: "secure"},
			{Name: "Station Door", Pos: [3]float64{1100, 0, 1100}, Locked: true},
			{Name: "Shed Door", Pos: [3]float64{-500, 0, -500}, Locked: true},
		},
		Signs: []tuning.SignDef{
			{PropertyID: "house_1", Pos: [3]float64{50, 0, 50}},
			{PropertyID: "house_2", Pos: [3]float64{350, 0, 350}},
		},
		JobTerminals: []tuning.TerminalDef{
			{Pos: [3]float64{0, 0, -300}, Job: "police"},
		},
		MiningNodes: []tuning.MiningNodeDef{
			{Name: "Quarry Rock", Pos: [3]float64{-300, 0, 0}, MaxHits: 3, RespawnSeconds: 2, StonePerNode: 5},
		},
	}
	return t
}

func NewHarness(t *testing.T, cfg tuning.Tuning, playerID string) *Harness {
	t.Helper()

	w, err := world.New(cfg, nil, Logger(t))
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	h := &Harness{
		T:        t,
		W:        w,
		Audits:   &AuditRecorder{},
		Ticks:    &TickRecorder{},
		sessions: map[string]*session{},
	}
	w.SetAuditLogger(h.Audits)
	w.SetTickLogger(h.Ticks)
	if playerID != "" {
		h.DefaultConn = h.Join(playerID)
	}
	return h
}

func (h *Harness) Join(playerID string) string {
	h.T.Helper()

	out := make(chan []byte, 16)
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepOnce([]world.JoinRequest{{
		PlayerID: playerID,
		Name:     playerID,
		Out:      out,
		Resp:     resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.ConnectionID == "" {
		h.T.Fatalf("join returned empty connection id")
	}
	s := &session{Conn: jr.Welcome.ConnectionID, Welcome: jr.Welcome, Out: out}
	h.sessions[s.Conn] = s
	h.drainAll()
	return s.Conn
}

func (h *Harness) Leave(conn string) {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, []entity.ConnID{entity.ConnID(conn)}, nil)
	delete(h.sessions, conn)
	h.drainAll()
}

func (h *Harness) session(conn string) *session {
	h.T.Helper()
	s := h.sessions[conn]
	if s == nil {
		h.T.Fatalf("unknown connection: %q", conn)
	}
	return s
}

func (h *Harness) Welcome(conn string) protocol.WelcomeMsg { return h.session(conn).Welcome }

func (h *Harness) LastState(conn string) protocol.StateMsg { return h.session(conn).lastState }

// LastAccess returns the newest ACCESS_INFO reply, if any arrived.
func (h *Harness) LastAccess(conn string) (protocol.AccessInfoMsg, bool) {
	s := h.session(conn)
	if s.lastAccess == nil {
		return protocol.AccessInfoMsg{}, false
	}
	return *s.lastAccess, true
}

// Self reads the connection's private state straight from the world so
// tests see the effect of the current tick.
func (h *Harness) Self(conn string) protocol.SelfState {
	h.T.Helper()
	s, ok := h.W.DebugSelf(conn)
	if !ok {
		h.T.Fatalf("DebugSelf(%q) returned false", conn)
	}
	return s
}

func (h *Harness) Pawn(conn string) uint64 { return h.Self(conn).PawnID }

// Req builds a request acting through conn's current pawn.
func (h *Harness) Req(conn, kind string) protocol.RequestMsg {
	return protocol.RequestMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		Kind:            kind,
		Actor:           h.Pawn(conn),
	}
}

// Do sends one request for the default connection and steps once.
func (h *Harness) Do(req protocol.RequestMsg) (world.AuditEntry, bool) {
	return h.DoFor(h.DefaultConn, req)
}

// DoFor sends req for conn, steps once and returns the audit it produced.
// Successful quiet kinds produce none.
func (h *Harness) DoFor(conn string, req protocol.RequestMsg) (world.AuditEntry, bool) {
	h.T.Helper()
	before := len(h.Audits.Entries)
	h.StepMulti([]world.Envelope{{Conn: entity.ConnID(conn), Req: req}})
	for _, e := range h.Audits.Entries[before:] {
		if e.Actor == conn && e.Action == req.Kind {
			return e, true
		}
	}
	return world.AuditEntry{}, false
}

// MustDo is DoFor that fails the test unless the request succeeded.
func (h *Harness) MustDo(conn string, req protocol.RequestMsg) {
	h.T.Helper()
	e, ok := h.DoFor(conn, req)
	if ok && !e.OK {
		h.T.Fatalf("%s for %s failed: %s (%s)", req.Kind, conn, e.Code, e.Reason)
	}
}

func (h *Harness) StepMulti(envs []world.Envelope) {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, nil, envs)
	h.drainAll()
}

func (h *Harness) StepNoop() {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, nil, nil)
	h.drainAll()
}

func (h *Harness) StepFor(ticks int) {
	h.T.Helper()
	for i := 0; i < ticks; i++ {
		h.StepNoop()
	}
}

// StepSeconds advances whole seconds at the world's tick rate.
func (h *Harness) StepSeconds(seconds float64) {
	h.StepFor(int(seconds * float64(h.W.TickRateHz())))
}

func (h *Harness) SetPos(conn string, pos [3]float64) {
	h.T.Helper()
	if !h.W.DebugSetPawnPos(conn, pos) {
		h.T.Fatalf("DebugSetPawnPos(%q) returned false", conn)
	}
}

func (h *Harness) Equip(conn, slot string) {
	h.T.Helper()
	if !h.W.DebugEquip(conn, slot) {
		h.T.Fatalf("DebugEquip(%q, %q) returned false", conn, slot)
	}
}

func (h *Harness) Find(name string) protocol.EntityState {
	h.T.Helper()
	e, ok := h.W.DebugFind(name)
	if !ok {
		h.T.Fatalf("no entity named %q", name)
	}
	return e
}

func (h *Harness) Door(name string) protocol.DoorState {
	h.T.Helper()
	d, ok := h.W.DebugDoor(h.Find(name).ID)
	if !ok {
		h.T.Fatalf("%q is not a door", name)
	}
	return d
}

func (h *Harness) Zone(propertyID string) (protocol.ZoneState, uint64) {
	h.T.Helper()
	z, id, ok := h.W.DebugZone(propertyID)
	if !ok {
		h.T.Fatalf("unknown zone %q", propertyID)
	}
	return z, id
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOne(s)
	}
}

func (h *Harness) drainOne(s *session) {
	h.T.Helper()
	for {
		var b []byte
		select {
		case msg, ok := <-s.Out:
			if !ok {
				// Superseded by a newer socket.
				return
			}
			b = msg
		default:
			return
		}
		var base protocol.BaseMessage
		if err := json.Unmarshal(b, &base); err != nil {
			h.T.Fatalf("unmarshal message: %v", err)
		}
		switch base.Type {
		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(b, &st); err != nil {
				h.T.Fatalf("unmarshal STATE: %v", err)
			}
			s.lastState = st
		case protocol.TypeAccessInfo:
			var ai protocol.AccessInfoMsg
			if err := json.Unmarshal(b, &ai); err != nil {
				h.T.Fatalf("unmarshal ACCESS_INFO: %v", err)
			}
			s.lastAccess = &ai
		}
	}
}
