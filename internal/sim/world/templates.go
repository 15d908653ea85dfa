package world

import (
	"citycore/internal/sim/entity"
	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world/feature/economy/shop"
)

// Fixture templates placed by the map. Everything else comes from tuning.
const (
	tplZone     = "property_zone"
	tplDoor     = "door"
	tplSign     = "for_sale_sign"
	tplTerminal = "job_terminal"
	tplNode     = "mining_node"
)

const (
	pawnRadius  = 16
	itemRadius  = 10
	chunkRadius = 8
)

func templatesFor(t tuning.Tuning) []entity.Template {
	out := []entity.Template{
		{Name: tplZone, Markers: entity.MarkerZone, Networked: true},
		{Name: tplDoor, Markers: entity.MarkerDoor, Networked: true, Radius: 24},
		{Name: tplSign, Markers: entity.MarkerProp, Networked: true, Radius: 12},
		{Name: tplTerminal, Markers: entity.MarkerProp, Networked: true, Radius: 16},
		{Name: tplNode, Markers: entity.MarkerProp, Networked: true, Radius: 24},
	}
	if t.Templates.State != "" {
		out = append(out, entity.Template{Name: t.Templates.State, Markers: entity.MarkerState, Networked: true})
	}
	for _, name := range t.Templates.Pawns {
		if name == "" {
			continue
		}
		out = append(out, entity.Template{Name: name, Markers: entity.MarkerPawn, Networked: true, Radius: pawnRadius})
	}
	if t.Templates.Ragdoll != "" {
		out = append(out, entity.Template{Name: t.Templates.Ragdoll, Markers: entity.MarkerRagdoll, Networked: true, Radius: pawnRadius})
	}
	if t.Templates.Chunk != "" {
		out = append(out, entity.Template{Name: t.Templates.Chunk, Markers: entity.MarkerItem, Networked: true, Radius: chunkRadius})
	}
	for _, it := range t.Shop.Items {
		if it.Template == "" {
			continue
		}
		m := entity.MarkerItem
		if shop.Device(it) {
			m |= entity.MarkerDevice
		}
		out = append(out, entity.Template{Name: it.Template, Markers: m, Networked: true, Radius: itemRadius})
	}
	return out
}
