package world

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"citycore/internal/sim/entity"
	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world/feature/economy/mining"
	"citycore/internal/sim/world/feature/equipment"
	"citycore/internal/sim/world/feature/governance/zones"
	"citycore/internal/sim/world/feature/jobs"
	"citycore/internal/sim/world/feature/property/door"
)

// buildMap places the static fixtures described by tuning: property zones
// first so that everything placed later can find the zone it stands in.
func (w *World) buildMap() error {
	m := w.cfg.Map
	for _, def := range m.Zones {
		center := entity.FromArray(def.Min).Add(entity.FromArray(def.Max)).Scale(0.5)
		ent := w.scene.Spawn(tplZone, "", center)
		ent.Name = def.Name
		w.zones.Register(zones.New(w.host, ent.ID, def))
	}
	for _, def := range m.Doors {
		w.placeDoor(def)
	}
	for _, def := range m.Signs {
		z := w.zones.ByProperty(def.PropertyID)
		if z == nil {
			return fmt.Errorf("%w: sign references unknown zone %q", tuning.ErrInvalid, def.PropertyID)
		}
		ent := w.scene.Spawn(tplSign, "", entity.FromArray(def.Pos))
		ent.Name = "For Sale: " + z.Name
		w.caps.Attach(ent.ID, w.signCapability(z, def))
	}
	for _, def := range m.JobTerminals {
		job, ok := jobs.Parse(def.Job)
		if !ok {
			return fmt.Errorf("%w: job terminal with unknown job %q", tuning.ErrInvalid, def.Job)
		}
		ent := w.scene.Spawn(tplTerminal, "", entity.FromArray(def.Pos))
		ent.Name = job.Title() + " Terminal"
		w.caps.Attach(ent.ID, w.terminalCapability(job))
	}
	for _, def := range m.MiningNodes {
		w.placeNode(def)
	}
	w.log.WithFields(logrus.Fields{
		"zones":     len(m.Zones),
		"doors":     len(m.Doors),
		"signs":     len(m.Signs),
		"terminals": len(m.JobTerminals),
		"nodes":     len(m.MiningNodes),
	}).Info("map ready")
	return nil
}

func (w *World) placeDoor(def tuning.DoorDef) *door.Door {
	ent := w.scene.Spawn(tplDoor, "", entity.FromArray(def.Pos))
	if def.Name != "" {
		ent.Name = def.Name
	}
	d := door.New(w.host, w.scene, w.sched, ent.ID, door.Config{
		Locked:         def.Locked,
		Security:       door.ParseSecurity(def.Security),
		CancelDistance: w.cfg.Lockpick.CancelDistance,
	}, w.lockpickProbe, w.log)
	w.doors[ent.ID] = d
	w.doorOrder = append(w.doorOrder, ent.ID)
	w.caps.Attach(ent.ID, w.doorCapabilities(d)...)
	return d
}

func (w *World) placeNode(def tuning.MiningNodeDef) *mining.Node {
	ent := w.scene.Spawn(tplNode, "", entity.FromArray(def.Pos))
	n := mining.NewNode(mining.NodeConfig{
		Name:          def.Name,
		MaxHits:       def.MaxHits,
		RespawnTicks:  w.cfg.Ticks(def.RespawnSeconds),
		CooldownTicks: w.cfg.Ticks(def.SecondsPerHit),
		Reward:        def.StonePerNode,
	})
	ent.Name = def.Name
	if ent.Name == "" {
		ent.Name = "Rock"
	}
	w.nodes[ent.ID] = n
	w.caps.Attach(ent.ID, w.nodeCapability(n))
	return n
}

// lockpickProbe reports where the picker's pawn stands and whether the
// picker still holds the lockpick.
func (w *World) lockpickProbe(picker entity.ConnID) (entity.Vec3, bool, bool) {
	pawn := w.resolver.ResolvePawn(picker)
	p := w.playerOf(picker)
	if pawn == nil || p == nil {
		return entity.Vec3{}, false, false
	}
	return pawn.Pos, p.Equip.Holding(equipment.Lockpick), true
}

func (w *World) nextSpawnPoint() entity.Vec3 {
	pts := w.cfg.Map.SpawnPoints
	if len(pts) == 0 {
		return entity.Vec3{}
	}
	p := pts[w.spawnIdx%len(pts)]
	w.spawnIdx++
	return entity.FromArray(p)
}
