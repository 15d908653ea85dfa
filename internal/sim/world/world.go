package world

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"citycore/internal/logging"
	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/tasks"
	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world/feature/economy/ledger"
	"citycore/internal/sim/world/feature/economy/mining"
	"citycore/internal/sim/world/feature/economy/shop"
	"citycore/internal/sim/world/feature/equipment"
	"citycore/internal/sim/world/feature/governance/zones"
	"citycore/internal/sim/world/feature/jobs"
	"citycore/internal/sim/world/feature/property/door"
	"citycore/internal/sim/world/feature/session/identity"
	"citycore/internal/sim/world/feature/survival/vitality"
	"citycore/internal/sim/world/feature/work/interact"
	"citycore/internal/sim/world/gateway"
)

type JoinRequest struct {
	// PlayerID is the stable identity the client presented. Empty means the
	// world assigns one.
	PlayerID string
	Name     string
	Out      chan []byte
	Resp     chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	// Refused is set, and Welcome left empty, when the join was not
	// admitted.
	Refused string
}

// AttachRequest rebinds a live session to a new outbound channel after a
// reconnect.
type AttachRequest struct {
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

type Envelope struct {
	Conn entity.ConnID
	Req  protocol.RequestMsg
}

type ObserverJoinRequest struct {
	SessionID string
	Out       chan []byte
}

type RecordedJoin struct {
	Conn string `json:"conn"`
	Name string `json:"name"`
}

type RecordedRequest struct {
	Conn string              `json:"conn"`
	Req  protocol.RequestMsg `json:"req"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// StateRecorder receives a periodic copy of the durable parts of the world
// (zone ownership and balances) for read models.
type StateRecorder interface {
	RecordState(rec StateRecord) error
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Joins    []RecordedJoin    `json:"joins,omitempty"`
	Leaves   []string          `json:"leaves,omitempty"`
	Requests []RecordedRequest `json:"requests,omitempty"`
	Digest   string            `json:"digest"`
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	Target  uint64         `json:"target,omitempty"`
	OK      bool           `json:"ok"`
	Code    string         `json:"code,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type StateRecord struct {
	Tick     uint64               `json:"tick"`
	Zones    []protocol.ZoneState `json:"zones"`
	Balances []BalanceRow         `json:"balances"`
}

type BalanceRow struct {
	Conn    string `json:"conn"`
	Name    string `json:"name"`
	Balance int    `json:"balance"`
	Stone   int    `json:"stone"`
}

// PlayerState is everything hanging off one player-state entity.
type PlayerState struct {
	Conn   entity.ConnID
	Name   string
	Entity entity.ID

	Bank   *ledger.Account
	Needs  *vitality.Needs
	Health *vitality.Health
	Equip  *equipment.State
	Job    *jobs.Assignment
	Wallet *mining.Wallet

	nextPunch uint64
}

type clientState struct {
	Conn        entity.ConnID
	Name        string
	Out         chan []byte
	ResumeToken string
}

type observerClient struct {
	id  string
	out chan []byte
}

type miner struct {
	owner entity.ConnID
	acc   *mining.Accumulator
}

type World struct {
	cfg  tuning.Tuning
	log  logrus.FieldLogger
	host gateway.Host

	tick atomic.Uint64

	scene    *entity.Scene
	sched    *tasks.Scheduler
	gw       *gateway.Gateway
	resolver *identity.Resolver
	zones    *zones.Registry
	caps     *interact.Registry
	dispatch *interact.Dispatcher
	catalog  *shop.Catalog

	players   map[entity.ID]*PlayerState
	clients   map[entity.ConnID]*clientState
	observers map[string]*observerClient
	tokens    map[string]entity.ConnID

	doors     map[entity.ID]*door.Door
	doorOrder []entity.ID
	miners    map[entity.ID]*miner
	nodes     map[entity.ID]*mining.Node

	spawnIdx   int
	nextPlayer atomic.Uint64

	inbox         chan Envelope
	join          chan JoinRequest
	attach        chan AttachRequest
	leave         chan entity.ConnID
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	stop          chan struct{}
	stopOnce      sync.Once

	tickLogger    TickLogger
	auditLogger   AuditLogger
	stateRecorder StateRecorder

	// audits collected while applying the current tick.
	pendingAudits []AuditEntry

	metrics atomic.Pointer[WorldMetrics]
}

// New builds a world for t and lays out its map. host is normally
// gateway.Server; tests pass gateway.Client to exercise the non-authority
// paths.
func New(t tuning.Tuning, host gateway.Host, log logrus.FieldLogger) (*World, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if host == nil {
		host = gateway.Server
	}
	log = logging.Component(log, "world").WithField("world", t.WorldID)

	scene := entity.NewScene(templatesFor(t)...)
	w := &World{
		cfg:           t,
		log:           log,
		host:          host,
		scene:         scene,
		sched:         tasks.NewScheduler(),
		zones:         zones.NewRegistry(scene),
		caps:          interact.NewRegistry(),
		catalog:       shop.NewCatalog(t.Shop.Items),
		players:       map[entity.ID]*PlayerState{},
		clients:       map[entity.ConnID]*clientState{},
		observers:     map[string]*observerClient{},
		tokens:        map[string]entity.ConnID{},
		doors:         map[entity.ID]*door.Door{},
		miners:        map[entity.ID]*miner{},
		nodes:         map[entity.ID]*mining.Node{},
		inbox:         make(chan Envelope, 1024),
		join:          make(chan JoinRequest, 64),
		attach:        make(chan AttachRequest, 64),
		leave:         make(chan entity.ConnID, 64),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		stop:          make(chan struct{}),
	}
	w.sched.OnPanic = func(name string, r any) {
		w.log.WithFields(logrus.Fields{"task": name, "panic": fmt.Sprint(r)}).Error("task panicked")
	}
	w.gw = gateway.New(host, scene, log)
	w.resolver = identity.New(host, scene, t.Templates.State, log)
	w.resolver.OnStateCreated = w.attachPlayerState
	w.dispatch = interact.NewDispatcher(w.gw, scene, w.resolver, w.zones, w.caps, log)

	if err := w.buildMap(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)       { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)     { w.auditLogger = l }
func (w *World) SetStateRecorder(r StateRecorder) { w.stateRecorder = r }

func (w *World) Inbox() chan<- Envelope                   { return w.inbox }
func (w *World) Join() chan<- JoinRequest                 { return w.join }
func (w *World) Attach() chan<- AttachRequest             { return w.attach }
func (w *World) Leave() chan<- entity.ConnID              { return w.leave }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.WorldID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) Tuning() tuning.Tuning { return w.cfg }
