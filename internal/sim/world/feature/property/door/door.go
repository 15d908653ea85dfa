// Package door is the lockable door: open/closed, locked/unlocked, and a
// lockpick session that runs across ticks and can be cancelled at any point.
package door

import (
	"strings"

	"github.com/sirupsen/logrus"

	"citycore/internal/logging"
	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/tasks"
	"citycore/internal/sim/world/feature/governance/zones"
	"citycore/internal/sim/world/gateway"
)

type Security int

const (
	Basic Security = iota + 1
	Reinforced
	Secure
)

func (s Security) String() string {
	switch s {
	case Basic:
		return "basic"
	case Reinforced:
		return "reinforced"
	case Secure:
		return "secure"
	}
	return "unknown"
}

// ParseSecurity defaults to Basic for empty or unknown names.
func ParseSecurity(s string) Security {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reinforced":
		return Reinforced
	case "secure":
		return Secure
	}
	return Basic
}

// Session is the lockpick state. Token moves forward on every transition
// that ends a session; a running lockpick task gives up as soon as the token
// it captured is no longer current.
type Session struct {
	Active   bool
	Progress float64
	Picker   entity.ConnID
	Token    uint64
}

// Probe reports where picker's pawn stands and whether it is holding a
// lockpick. ok is false when the picker has no live pawn.
type Probe func(picker entity.ConnID) (pos entity.Vec3, holding bool, ok bool)

type Config struct {
	Locked         bool
	Security       Security
	CancelDistance float64
}

type Door struct {
	host   gateway.Host
	lookup entity.Lookup
	sched  *tasks.Scheduler
	probe  Probe
	log    logrus.FieldLogger

	ent            entity.ID
	security       Security
	cancelDistance float64

	open    bool
	locked  bool
	session Session
}

func New(host gateway.Host, lookup entity.Lookup, sched *tasks.Scheduler, ent entity.ID, cfg Config, probe Probe, log logrus.FieldLogger) *Door {
	if cfg.Security == 0 {
		cfg.Security = Basic
	}
	return &Door{
		host:           host,
		lookup:         lookup,
		sched:          sched,
		probe:          probe,
		log:            logging.Component(log, "door").WithField("door", ent),
		ent:            ent,
		security:       cfg.Security,
		cancelDistance: cfg.CancelDistance,
		locked:         cfg.Locked,
	}
}

func (d *Door) authority() bool { return d.host != nil && d.host.IsHost() }

func (d *Door) Entity() entity.ID     { return d.ent }
func (d *Door) IsOpen() bool          { return d.open }
func (d *Door) IsLocked() bool        { return d.locked }
func (d *Door) Security() Security    { return d.security }
func (d *Door) Session() Session      { return d.session }
func (d *Door) BeingLockpicked() bool { return d.session.Active }

// Lockpickable is true for locked doors that are not Secure.
func (d *Door) Lockpickable() bool { return d.locked && d.security <= Reinforced }

// ToggleOpen swings an unlocked door.
func (d *Door) ToggleOpen() bool {
	if !d.authority() || d.locked {
		return false
	}
	d.open = !d.open
	return true
}

// Permit is the property context a lock change is judged against.
type Permit struct {
	// Zone is the property the door stands in, if any.
	Zone *zones.Zone
	// Government is true when the caller works a job allowed to operate
	// government property.
	Government bool
}

// SetLocked changes the lock if caller may. Government doors answer to
// government jobs; other doors need an owned zone the caller has access to.
// Permission is always judged before the already-in-state shortcut.
func (d *Door) SetLocked(caller entity.ConnID, want bool, p Permit) bool {
	if !d.authority() || caller == "" {
		return false
	}
	z := p.Zone
	switch {
	case z == nil:
		d.log.WithField("caller", caller).Debug("lock denied: no zone")
		return false
	case z.Government:
		if !p.Government {
			d.log.WithFields(logrus.Fields{"caller": caller, "zone": z.PropertyID}).Debug("lock denied: government zone")
			return false
		}
	case !z.IsOwned():
		d.log.WithFields(logrus.Fields{"caller": caller, "zone": z.PropertyID}).Debug("lock denied: zone not owned")
		return false
	case !z.HasAccess(caller):
		d.log.WithFields(logrus.Fields{"caller": caller, "zone": z.PropertyID}).Debug("lock denied: no access")
		return false
	}
	if d.locked == want {
		return true
	}
	d.locked = want
	d.log.WithFields(logrus.Fields{"caller": caller, "locked": want, "zone": z.PropertyID}).Info("lock changed")
	return true
}

// StartLockpick begins a session for picker lasting durationTicks. It does
// nothing when the door is unlocked, too secure, or already being picked.
func (d *Door) StartLockpick(picker entity.ConnID, now uint64, durationTicks int) bool {
	if !d.authority() || picker == "" || d.sched == nil {
		return false
	}
	if !d.Lockpickable() || d.session.Active {
		return false
	}
	if durationTicks < 1 {
		durationTicks = 1
	}
	d.session.Token++
	d.session.Active = true
	d.session.Progress = 0
	d.session.Picker = picker
	token := d.session.Token

	d.log.WithFields(logrus.Fields{"picker": picker, "ticks": durationTicks}).Info("lockpick started")
	d.sched.Start("lockpick", tasks.Func(func(t uint64) bool {
		// The scheduler drops a panicking task; the session must not
		// outlive it.
		defer func() {
			if r := recover(); r != nil {
				if d.session.Token == token {
					d.endSession("task failed")
				}
				panic(r)
			}
		}()
		return d.stepLockpick(token, picker, now, durationTicks, t)
	}))
	return true
}

func (d *Door) stepLockpick(token uint64, picker entity.ConnID, start uint64, duration int, now uint64) bool {
	// Superseded: whoever moved the token already reset the session, and a
	// newer session may be running.
	if d.session.Token != token {
		return true
	}
	self := d.lookup.Get(d.ent)
	if self == nil {
		d.endSession("door gone")
		return true
	}
	if !d.locked {
		d.endSession("door unlocked elsewhere")
		return true
	}
	if d.probe == nil {
		d.endSession("no probe")
		return true
	}
	pos, holding, ok := d.probe(picker)
	switch {
	case !ok:
		d.endSession("picker has no pawn")
		return true
	case !holding:
		d.endSession("lockpick put away")
		return true
	case pos.Distance(self.Pos) > d.cancelDistance:
		d.endSession("picker walked away")
		return true
	}

	elapsed := float64(now - start)
	if elapsed >= float64(duration) {
		d.locked = false
		d.endSession("")
		d.log.WithField("picker", picker).Info("lockpick succeeded")
		return true
	}
	d.session.Progress = elapsed / float64(duration)
	return false
}

func (d *Door) endSession(why string) {
	if why != "" {
		d.log.WithFields(logrus.Fields{"picker": d.session.Picker, "reason": why}).Info("lockpick ended")
	}
	d.session.Active = false
	d.session.Progress = 0
	d.session.Picker = ""
	d.session.Token++
}

// CancelLockpick stops the session. Only the picker may cancel.
func (d *Door) CancelLockpick(caller entity.ConnID) bool {
	if !d.authority() || caller == "" || !d.session.Active {
		return false
	}
	if d.session.Picker != "" && caller != d.session.Picker {
		return false
	}
	d.endSession("cancelled")
	return true
}

func (d *Door) Snapshot() protocol.DoorState {
	return protocol.DoorState{
		ID:          uint64(d.ent),
		Open:        d.open,
		Locked:      d.locked,
		Lockpicking: d.session.Active,
		Progress:    d.session.Progress,
		Picker:      string(d.session.Picker),
		Security:    d.security.String(),
	}
}
