// Package interact routes a player's "use" on an entity to exactly one of
// the capabilities attached to that entity or its ancestors.
package interact

import (
	"github.com/sirupsen/logrus"

	"citycore/internal/logging"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/world/feature/governance/zones"
	"citycore/internal/sim/world/gateway"
)

// UI reasons for the access hint.
const (
	ReasonNotInProperty = "Not in a property"
	ReasonNoAccess      = "No access"
)

type Scene interface {
	entity.Lookup
	Ancestors(id entity.ID) []*entity.Entity
}

type PawnResolver interface {
	ResolvePawn(conn entity.ConnID) *entity.Entity
}

type ZoneFinder interface {
	FindZoneAt(p entity.Vec3) *zones.Zone
}

type Dispatcher struct {
	gw       *gateway.Gateway
	scene    Scene
	resolver PawnResolver
	zones    ZoneFinder
	reg      *Registry
	log      logrus.FieldLogger
}

func NewDispatcher(gw *gateway.Gateway, scene Scene, resolver PawnResolver, zf ZoneFinder, reg *Registry, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		gw:       gw,
		scene:    scene,
		resolver: resolver,
		zones:    zf,
		reg:      reg,
		log:      logging.Component(log, "interact"),
	}
}

// Result says which capability ran, if any.
type Result struct {
	Handled bool
	Action  Action
	Entity  entity.ID
	Outcome Outcome
}

type candidate struct {
	cap  Capability
	host *entity.Entity
}

func (d *Dispatcher) candidates(target *entity.Entity) []candidate {
	var out []candidate
	for _, e := range d.scene.Ancestors(target.ID) {
		for _, c := range d.reg.On(e.ID) {
			out = append(out, candidate{cap: c, host: e})
		}
	}
	return out
}

func (d *Dispatcher) use(caller entity.ConnID, pawn *entity.Entity, host *entity.Entity) Use {
	u := Use{Caller: caller, Pawn: pawn, Target: host}
	if d.zones != nil {
		u.Zone = d.zones.FindZoneAt(host.Pos)
	}
	return u
}

// canInteract is the authoritative gate shared by every capability.
func (d *Dispatcher) canInteract(c Capability, u Use) bool {
	if u.Pawn == nil || u.Target == nil {
		return false
	}
	if u.Pawn.Pos.Distance(u.Target.Pos) > c.UseDistance() {
		return false
	}
	if !d.gw.IsHost() {
		return false
	}
	if c.RequiresPropertyAccess() && (u.Zone == nil || !u.Zone.HasAccess(u.Caller)) {
		return false
	}
	return c.CanUse(u)
}

// RequestUse runs the single best capability for caller on target.
// interactor is the entity the request claims to come from; it must be owned
// by caller. Nothing about a refusal is reported back to the caller.
func (d *Dispatcher) RequestUse(caller entity.ConnID, interactor, targetID entity.ID) Result {
	if !d.gw.RequireAuthorityAndOwnership(interactor, caller) {
		return Result{}
	}
	target := d.scene.Get(targetID)
	if target == nil || !target.Networked {
		d.debug(caller, targetID, "invalid target")
		return Result{}
	}
	pawn := d.resolver.ResolvePawn(caller)
	if pawn == nil {
		d.debug(caller, targetID, "no pawn")
		return Result{}
	}

	var best *candidate
	var bestUse Use
	bestRank := 0
	for _, c := range d.candidates(target) {
		u := d.use(caller, pawn, c.host)
		if !d.canInteract(c.cap, u) {
			continue
		}
		rank := c.cap.Priority(u)
		if best == nil || rank > bestRank {
			c := c
			best, bestUse, bestRank = &c, u, rank
		}
	}
	if best == nil {
		d.debug(caller, targetID, "no eligible capability")
		return Result{}
	}

	out := best.cap.Interact(bestUse)
	d.log.WithFields(logrus.Fields{
		"caller": caller,
		"target": best.host.ID,
		"action": best.cap.Action(),
		"ok":     out.OK,
	}).Info("interact")
	return Result{Handled: true, Action: best.cap.Action(), Entity: best.host.ID, Outcome: out}
}

func (d *Dispatcher) debug(caller entity.ConnID, target entity.ID, why string) {
	d.log.WithFields(logrus.Fields{"caller": caller, "target": target, "reason": why}).Debug("use ignored")
}

// previewed picks the capability whose prompt the caller should see. No
// distance or authority checks: this is a UI hint only.
func (d *Dispatcher) previewed(caller entity.ConnID, target *entity.Entity) (Capability, Use, bool) {
	pawn := d.resolver.ResolvePawn(caller)
	var best Capability
	var bestUse Use
	bestRank := 0
	for _, c := range d.candidates(target) {
		u := d.use(caller, pawn, c.host)
		if !c.cap.CanPreview(u) {
			continue
		}
		rank := c.cap.Priority(u)
		if best == nil || rank > bestRank {
			best, bestUse, bestRank = c.cap, u, rank
		}
	}
	return best, bestUse, best != nil
}

// Preview returns the prompt for the capability the caller would most likely
// trigger on target.
func (d *Dispatcher) Preview(caller entity.ConnID, targetID entity.ID) (string, bool) {
	target := d.scene.Get(targetID)
	if target == nil {
		return "", false
	}
	c, u, ok := d.previewed(caller, target)
	if !ok {
		return "", false
	}
	return c.Prompt(u), true
}

// Access is the authority's advisory answer for a hovered target.
type Access struct {
	Allowed bool
	Reason  string
	Prompt  string
}

// AccessInfo computes the access hint for caller on target. It is never used
// for enforcement; RequestUse re-checks everything. ok is false off
// authority or when there is nothing to interact with.
func (d *Dispatcher) AccessInfo(caller entity.ConnID, interactor, targetID entity.ID) (Access, bool) {
	if !d.gw.RequireAuthorityAndOwnership(interactor, caller) {
		return Access{}, false
	}
	target := d.scene.Get(targetID)
	if target == nil {
		return Access{}, false
	}
	c, u, ok := d.previewed(caller, target)
	if !ok {
		return Access{}, false
	}
	a := Access{Allowed: true, Prompt: c.Prompt(u)}
	if c.RequiresPropertyAccess() {
		switch {
		case u.Zone == nil:
			a.Allowed, a.Reason = false, ReasonNotInProperty
		case !u.Zone.HasAccess(caller):
			a.Allowed, a.Reason = false, ReasonNoAccess
		}
	}
	return a, true
}
