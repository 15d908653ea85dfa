package world

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/world/feature/economy/mining"
	"citycore/internal/sim/world/feature/economy/shop"
	"citycore/internal/sim/world/feature/equipment"
	"citycore/internal/sim/world/feature/property/door"
	"citycore/internal/sim/world/feature/work/interact"
)

type requestHandler func(w *World, conn entity.ConnID, req protocol.RequestMsg) interact.Outcome

var requestHandlers = map[string]requestHandler{
	protocol.KindMove:           (*World).handleMove,
	protocol.KindBuyItem:        (*World).handleBuyItem,
	protocol.KindAddMoney:       (*World).handleAddMoney,
	protocol.KindRemoveMoney:    (*World).handleRemoveMoney,
	protocol.KindDamage:         (*World).handleDamage,
	protocol.KindPunch:          (*World).handlePunch,
	protocol.KindUse:            (*World).handleUse,
	protocol.KindAccessInfo:     (*World).handleAccessInfo,
	protocol.KindCycleEquipment: (*World).handleCycleEquipment,
	protocol.KindSetDoorLock:    (*World).handleSetDoorLock,
	protocol.KindStartLockpick:  (*World).handleStartLockpick,
	protocol.KindCancelLockpick: (*World).handleCancelLockpick,
	protocol.KindAddGuest:       (*World).handleAddGuest,
	protocol.KindRemoveGuest:    (*World).handleRemoveGuest,
}

// Debug kinds only run when tuning allows cheats.
var debugKinds = map[string]bool{
	protocol.KindAddMoney:    true,
	protocol.KindRemoveMoney: true,
	protocol.KindDamage:      true,
}

// selfChecked kinds run the ownership guard inside the dispatcher.
var selfChecked = map[string]bool{
	protocol.KindUse:        true,
	protocol.KindAccessInfo: true,
}

// quiet kinds are too frequent to audit when they succeed.
var quiet = map[string]bool{
	protocol.KindMove:       true,
	protocol.KindAccessInfo: true,
}

func (w *World) applyRequest(env Envelope) {
	out := w.handleRequest(env.Conn, env.Req)
	if out.OK && quiet[env.Req.Kind] {
		return
	}
	w.audit(AuditEntry{
		Actor:  string(env.Conn),
		Action: env.Req.Kind,
		Target: env.Req.Target,
		OK:     out.OK,
		Code:   out.Code,
		Reason: out.Message,
	})
}

// handleRequest never lets a fault in one request escape the tick.
func (w *World) handleRequest(conn entity.ConnID, req protocol.RequestMsg) (out interact.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.log.WithFields(logrus.Fields{
				"conn":  conn,
				"kind":  req.Kind,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("request handler panicked")
			out = interact.Fail(protocol.ErrInternal, "handler panic")
		}
	}()

	if w.clients[conn] == nil {
		return interact.Fail(protocol.ErrStale, "unknown connection")
	}
	h, ok := requestHandlers[req.Kind]
	if !ok {
		return interact.Fail(protocol.ErrBadRequest, "unknown kind")
	}
	if debugKinds[req.Kind] && !w.cfg.Debug.AllowCheats {
		return interact.Fail(protocol.ErrNoPermission, "cheats disabled")
	}
	if !selfChecked[req.Kind] && !w.gw.RequireAuthorityAndOwnership(entity.ID(req.Actor), conn) {
		if !w.gw.IsHost() {
			return interact.Fail(protocol.ErrNotAuthority, "not the authority")
		}
		return interact.Fail(protocol.ErrNotOwner, "actor not owned by caller")
	}
	return h(w, conn, req)
}

// actorPawn resolves the caller's pawn and insists the request was sent
// through it.
func (w *World) actorPawn(conn entity.ConnID, req protocol.RequestMsg) (*entity.Entity, bool) {
	pawn := w.resolver.ResolvePawn(conn)
	if pawn == nil || pawn.ID != entity.ID(req.Actor) {
		return nil, false
	}
	return pawn, true
}

func (w *World) handleMove(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	pawn, ok := w.actorPawn(conn, req)
	if !ok {
		return interact.Fail(protocol.ErrInvalidTarget, "actor is not the pawn")
	}
	if req.Pos != nil {
		pawn.Pos = pawn.Pos.ClampStep(entity.FromArray(*req.Pos), w.cfg.MaxMoveStep)
	}
	if req.Facing != nil {
		if f := entity.FromArray(*req.Facing).Normalize(); f.Len() > 0 {
			pawn.Facing = f
		}
	}
	return interact.Done()
}

func (w *World) handleBuyItem(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	p := w.playerOf(conn)
	pawn := w.resolver.ResolvePawn(conn)
	if p == nil || pawn == nil {
		return interact.Fail(protocol.ErrNoResource, "no pawn or player state")
	}
	it, found := w.catalog.Item(req.Item)
	pos := pawn.Pos
	if req.Pos != nil {
		pos = entity.FromArray(*req.Pos)
	}
	if ok, code, msg := shop.ValidatePurchase(it, found, w.scene.HasTemplate(it.Template), shop.Placement{
		Pos:     pos,
		Buyer:   pawn,
		MaxDist: w.cfg.Shop.MaxPlaceDistance,
	}); !ok {
		return interact.Fail(code, msg)
	}
	if !p.Bank.TrySpend(it.Price) {
		return interact.Fail(protocol.ErrNoResource, "insufficient funds")
	}
	ent := w.spawnItem(it.ID, conn, pos)
	if ent == nil {
		p.Bank.Add(it.Price)
		return interact.Fail(protocol.ErrInternal, "spawn failed")
	}
	w.log.WithFields(logrus.Fields{"conn": conn, "item": it.ID, "price": it.Price, "entity": ent.ID}).Info("item bought")
	return interact.Done()
}

// spawnItem places a shop item owned by owner and wires its behaviour.
func (w *World) spawnItem(id string, owner entity.ConnID, pos entity.Vec3) *entity.Entity {
	it, ok := w.catalog.Item(id)
	if !ok {
		return nil
	}
	ent := w.scene.Spawn(it.Template, owner, pos)
	if ent == nil {
		return nil
	}
	ent.Name = it.Name
	if shop.Consumable(it) {
		w.caps.Attach(ent.ID, w.consumeCapability(it))
	}
	if shop.Device(it) {
		w.miners[ent.ID] = &miner{owner: owner, acc: mining.NewAccumulator(it.IncomePerInterval, w.cfg.Ticks(it.IntervalSeconds))}
		w.caps.Attach(ent.ID, w.minerCapability())
	}
	return ent
}

func (w *World) handleAddMoney(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	p := w.playerOf(conn)
	if p == nil {
		return interact.Fail(protocol.ErrNoResource, "no player state")
	}
	if req.Amount > protocol.MaxAmount || !p.Bank.Add(int(req.Amount)) {
		return interact.Fail(protocol.ErrBadRequest, "bad amount")
	}
	return interact.Done()
}

func (w *World) handleRemoveMoney(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	p := w.playerOf(conn)
	if p == nil {
		return interact.Fail(protocol.ErrNoResource, "no player state")
	}
	if req.Amount > protocol.MaxAmount {
		return interact.Fail(protocol.ErrBadRequest, "bad amount")
	}
	if removed := p.Bank.Remove(int(req.Amount)); removed <= 0 {
		return interact.Fail(protocol.ErrNoResource, "nothing removed")
	}
	return interact.Done()
}

func (w *World) handleDamage(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	p := w.playerOf(conn)
	if p == nil {
		return interact.Fail(protocol.ErrNoResource, "no player state")
	}
	if req.Amount <= 0 {
		return interact.Fail(protocol.ErrBadRequest, "bad amount")
	}
	p.Health.Damage(req.Amount)
	return interact.Done()
}

func (w *World) handlePunch(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	p := w.playerOf(conn)
	pawn := w.resolver.ResolvePawn(conn)
	if p == nil || pawn == nil {
		return interact.Fail(protocol.ErrNoResource, "no pawn or player state")
	}
	now := w.tick.Load()
	if now < p.nextPunch {
		return interact.Fail(protocol.ErrRateLimit, "punch cooldown")
	}
	p.nextPunch = now + uint64(w.cfg.Ticks(w.cfg.Combat.PunchCooldownSeconds))

	tr := w.scene.TraceFromEyes(pawn, w.cfg.Combat.PunchRange, entity.MarkerPawn)
	if !tr.Hit || tr.Entity == nil || tr.Entity.ID == pawn.ID {
		return interact.Outcome{OK: true, Message: "miss"}
	}
	victim := tr.Entity
	st := w.resolver.StateOf(victim.ID)
	if st == nil {
		return interact.Fail(protocol.ErrInvalidTarget, "victim has no state")
	}
	vp := w.players[st.ID]
	if vp == nil {
		return interact.Fail(protocol.ErrInvalidTarget, "victim has no health")
	}
	vp.Health.Damage(w.cfg.Combat.PunchDamage)
	w.log.WithFields(logrus.Fields{"attacker": conn, "victim": vp.Conn, "damage": w.cfg.Combat.PunchDamage}).Info("punch hit")
	return interact.Done()
}

func (w *World) handleUse(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	res := w.dispatch.RequestUse(conn, entity.ID(req.Actor), entity.ID(req.Target))
	if !res.Handled {
		return interact.Fail(protocol.ErrBlocked, "nothing to use")
	}
	return res.Outcome
}

func (w *World) handleAccessInfo(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	a, ok := w.dispatch.AccessInfo(conn, entity.ID(req.Actor), entity.ID(req.Target))
	if !ok {
		return interact.Fail(protocol.ErrInvalidTarget, "nothing to preview")
	}
	w.sendTo(conn, protocol.AccessInfoMsg{
		Type:            protocol.TypeAccessInfo,
		ProtocolVersion: protocol.Version,
		Tick:            w.tick.Load(),
		Target:          req.Target,
		Allowed:         a.Allowed,
		Reason:          a.Reason,
		Prompt:          a.Prompt,
	})
	return interact.Done()
}

func (w *World) handleCycleEquipment(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	p := w.playerOf(conn)
	if p == nil {
		return interact.Fail(protocol.ErrNoResource, "no player state")
	}
	if req.Dir != 1 && req.Dir != -1 {
		return interact.Fail(protocol.ErrBadRequest, "dir must be 1 or -1")
	}
	if !p.Equip.Cycle(conn, req.Dir) {
		return interact.Fail(protocol.ErrNotOwner, "cannot cycle")
	}
	return interact.Done()
}

// doorInReach finds the target door and checks that conn's pawn stands
// within reach of it.
func (w *World) doorInReach(conn entity.ConnID, req protocol.RequestMsg, reach float64) (*door.Door, *entity.Entity, interact.Outcome, bool) {
	d := w.doors[entity.ID(req.Target)]
	ent := w.scene.Get(entity.ID(req.Target))
	if d == nil || ent == nil {
		return nil, nil, interact.Fail(protocol.ErrInvalidTarget, "not a door"), false
	}
	pawn := w.resolver.ResolvePawn(conn)
	if pawn == nil {
		return nil, nil, interact.Fail(protocol.ErrNoResource, "no pawn"), false
	}
	if pawn.Pos.Distance(ent.Pos) > reach {
		return nil, nil, interact.Fail(protocol.ErrBlocked, "out of reach"), false
	}
	return d, ent, interact.Outcome{}, true
}

// handleSetDoorLock is the keys tool.
func (w *World) handleSetDoorLock(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	p := w.playerOf(conn)
	if p == nil {
		return interact.Fail(protocol.ErrNoResource, "no player state")
	}
	if !p.Equip.Holding(equipment.Keys) {
		return interact.Fail(protocol.ErrBlocked, "keys not equipped")
	}
	if req.Locked == nil {
		return interact.Fail(protocol.ErrBadRequest, "missing locked")
	}
	d, ent, fail, ok := w.doorInReach(conn, req, w.cfg.Interaction.TraceDistance)
	if !ok {
		return fail
	}
	permit := door.Permit{Zone: w.zones.FindZoneAt(ent.Pos), Government: p.Job.Current().Government()}
	if !d.SetLocked(conn, *req.Locked, permit) {
		return interact.Fail(protocol.ErrNoPermission, "no access")
	}
	return interact.Done()
}

func (w *World) handleStartLockpick(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	d, ent, fail, ok := w.doorInReach(conn, req, w.useDistance())
	if !ok {
		return fail
	}
	if d.BeingLockpicked() {
		return interact.Fail(protocol.ErrConflict, "already being picked")
	}
	u := interact.Use{Caller: conn, Pawn: w.resolver.ResolvePawn(conn), Target: ent, Zone: w.zones.FindZoneAt(ent.Pos)}
	if !w.lockpickAllowed(d, u) {
		return interact.Fail(protocol.ErrNoPermission, "cannot pick this door")
	}
	if !d.StartLockpick(conn, w.tick.Load(), w.lockpickTicks()) {
		return interact.Fail(protocol.ErrBlocked, "cannot start lockpick")
	}
	return interact.Done()
}

func (w *World) handleCancelLockpick(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	d := w.doors[entity.ID(req.Target)]
	if d == nil {
		return interact.Fail(protocol.ErrInvalidTarget, "not a door")
	}
	if !d.CancelLockpick(conn) {
		return interact.Fail(protocol.ErrNoPermission, "not picking this door")
	}
	return interact.Done()
}

func (w *World) handleAddGuest(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	z := w.zones.ByEntity(entity.ID(req.Target))
	if z == nil {
		return interact.Fail(protocol.ErrInvalidTarget, "not a property")
	}
	if !z.OwnedBy(conn) {
		return interact.Fail(protocol.ErrNoPermission, "not the owner")
	}
	if req.Guest == "" {
		return interact.Fail(protocol.ErrBadRequest, "missing guest")
	}
	if !z.AddAllowed(entity.ConnID(req.Guest)) {
		return interact.Fail(protocol.ErrConflict, "guest not added")
	}
	return interact.Done()
}

func (w *World) handleRemoveGuest(conn entity.ConnID, req protocol.RequestMsg) interact.Outcome {
	z := w.zones.ByEntity(entity.ID(req.Target))
	if z == nil {
		return interact.Fail(protocol.ErrInvalidTarget, "not a property")
	}
	if !z.OwnedBy(conn) {
		return interact.Fail(protocol.ErrNoPermission, "not the owner")
	}
	if !z.RemoveAllowed(entity.ConnID(req.Guest)) {
		return interact.Fail(protocol.ErrConflict, "not a guest")
	}
	return interact.Done()
}

func (w *World) sendTo(conn entity.ConnID, v any) {
	c := w.clients[conn]
	if c == nil || c.Out == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		w.log.WithError(err).Error("marshal outbound")
		return
	}
	sendLatest(c.Out, b)
}
