package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/sirupsen/logrus"

	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
)

func (w *World) systemNeeds() {
	dt := w.cfg.TickSeconds()
	for _, p := range w.sortedPlayers() {
		if p.Health.IsDead() {
			continue
		}
		p.Needs.Tick(dt, p.Health)
	}
}

// systemMiners pays each device's owner for the intervals completed this
// tick.
func (w *World) systemMiners() {
	ids := make([]entity.ID, 0, len(w.miners))
	for id := range w.miners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		m := w.miners[id]
		if !w.scene.Alive(id) {
			delete(w.miners, id)
			continue
		}
		amount := m.acc.Advance(1)
		if amount <= 0 {
			continue
		}
		if p := w.playerOf(m.owner); p != nil {
			p.Bank.Add(amount)
		}
	}
}

func (w *World) audit(e AuditEntry) {
	e.Tick = w.tick.Load()
	if !protocol.IsKnownCode(e.Code) {
		w.log.WithFields(logrus.Fields{"action": e.Action, "code": e.Code}).Error("unknown audit code")
		e.Code = protocol.ErrInternal
	}
	w.pendingAudits = append(w.pendingAudits, e)
}

func (w *World) flushAudits() {
	if len(w.pendingAudits) == 0 {
		return
	}
	if w.auditLogger != nil {
		for _, e := range w.pendingAudits {
			if err := w.auditLogger.WriteAudit(e); err != nil {
				w.log.WithError(err).Warn("audit write")
				break
			}
		}
	}
	w.pendingAudits = w.pendingAudits[:0]
}

// recordState hands the durable state to the read model once a second.
func (w *World) recordState(now uint64) {
	if w.stateRecorder == nil || w.cfg.TickRateHz <= 0 || now%uint64(w.cfg.TickRateHz) != 0 {
		return
	}
	if err := w.stateRecorder.RecordState(w.StateRecord()); err != nil {
		w.log.WithError(err).Warn("state record")
	}
}

// StateRecord copies zone ownership and every player's balance.
func (w *World) StateRecord() StateRecord {
	rec := StateRecord{Tick: w.tick.Load()}
	for _, z := range w.zones.All() {
		rec.Zones = append(rec.Zones, z.Snapshot())
	}
	for _, p := range w.sortedPlayers() {
		rec.Balances = append(rec.Balances, BalanceRow{
			Conn:    string(p.Conn),
			Name:    p.Name,
			Balance: p.Bank.Balance(),
			Stone:   p.Wallet.Stone(),
		})
	}
	return rec
}

// stateDigest hashes the replicated authoritative state so replays can be
// compared tick by tick.
func (w *World) stateDigest(tick uint64) string {
	h := sha256.New()
	var buf [8]byte
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	str := func(s string) {
		u64(uint64(len(s)))
		h.Write([]byte(s))
	}
	u64(tick)
	for _, z := range w.zones.All() {
		str(z.PropertyID)
		str(string(z.Owner()))
		u64(uint64(z.LastPaid()))
		u64(uint64(z.GuestCount()))
	}
	for _, id := range w.doorOrder {
		d := w.doors[id]
		if d == nil {
			continue
		}
		s := d.Snapshot()
		flags := uint64(0)
		if s.Open {
			flags |= 1
		}
		if s.Locked {
			flags |= 2
		}
		if s.Lockpicking {
			flags |= 4
		}
		u64(s.ID)
		u64(flags)
	}
	for _, p := range w.sortedPlayers() {
		str(string(p.Conn))
		u64(uint64(p.Bank.Balance()))
		u64(uint64(p.Wallet.Stone()))
		u64(uint64(p.Equip.Active()))
		u64(uint64(p.Job.Current()))
	}
	w.scene.Each(func(e *entity.Entity) bool {
		u64(uint64(e.ID))
		str(string(e.Owner))
		return true
	})
	return hex.EncodeToString(h.Sum(nil))
}
