package entity

import "math"

// EyeHeight is the fallback eye offset above a pawn's origin.
const EyeHeight = 64

// Scene is an in-memory Spawner/Lookup/Tracer. It is not safe for concurrent
// use; the world loop owns it.
type Scene struct {
	templates map[string]Template
	entities  map[ID]*Entity
	order     []ID
	next      ID
}

func NewScene(templates ...Template) *Scene {
	s := &Scene{
		templates: map[string]Template{},
		entities:  map[ID]*Entity{},
	}
	for _, t := range templates {
		s.Define(t)
	}
	return s
}

func (s *Scene) Define(t Template) {
	if t.Name == "" {
		return
	}
	s.templates[t.Name] = t
}

func (s *Scene) HasTemplate(name string) bool {
	_, ok := s.templates[name]
	return name != "" && ok
}

// Spawn instantiates a template owned by owner at pos. Unknown templates
// return nil.
func (s *Scene) Spawn(template string, owner ConnID, pos Vec3) *Entity {
	t, ok := s.templates[template]
	if !ok || template == "" {
		return nil
	}
	s.next++
	e := &Entity{
		ID:        s.next,
		Name:      t.Name,
		Template:  t.Name,
		Owner:     owner,
		Pos:       pos,
		Facing:    Vec3{X: 1},
		Radius:    t.Radius,
		Networked: t.Networked,
		Markers:   t.Markers,
	}
	s.entities[e.ID] = e
	s.order = append(s.order, e.ID)
	return e
}

// SetParent attaches child under parent. Both must be alive.
func (s *Scene) SetParent(child, parent ID) bool {
	c := s.Get(child)
	if c == nil || s.Get(parent) == nil || child == parent {
		return false
	}
	c.Parent = parent
	return true
}

// Destroy removes an entity and everything parented under it. Destroying a
// dead id is a no-op.
func (s *Scene) Destroy(id ID) {
	if _, ok := s.entities[id]; !ok {
		return
	}
	delete(s.entities, id)
	for _, e := range s.entities {
		if e.Parent == id {
			s.Destroy(e.ID)
		}
	}
}

func (s *Scene) Get(id ID) *Entity {
	if id == 0 {
		return nil
	}
	return s.entities[id]
}

func (s *Scene) Alive(id ID) bool { return s.Get(id) != nil }

func (s *Scene) Len() int { return len(s.entities) }

// Ancestors returns the entity followed by its live parent chain.
func (s *Scene) Ancestors(id ID) []*Entity {
	var out []*Entity
	seen := map[ID]bool{}
	for e := s.Get(id); e != nil && !seen[e.ID]; e = s.Get(e.Parent) {
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}

// Each visits live entities in spawn order until fn returns false.
func (s *Scene) Each(fn func(*Entity) bool) {
	live := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.entities[id]; ok {
			live = append(live, id)
		}
	}
	s.order = live
	ids := append([]ID(nil), live...)
	for _, id := range ids {
		e := s.entities[id]
		if e == nil {
			continue
		}
		if !fn(e) {
			return
		}
	}
}

// FindOwned is the slow path: first live entity owned by conn carrying marker.
func (s *Scene) FindOwned(conn ConnID, marker Marker) *Entity {
	if conn == "" {
		return nil
	}
	var found *Entity
	s.Each(func(e *Entity) bool {
		if e.Owner == conn && e.Has(marker) {
			found = e
			return false
		}
		return true
	})
	return found
}

// TraceFromEyes casts a ray from the pawn's eyes along its facing and returns
// the nearest entity sphere it crosses. The pawn and everything parented to
// it are ignored.
func (s *Scene) TraceFromEyes(pawn *Entity, maxDistance float64, filter Marker) TraceResult {
	if pawn == nil || maxDistance <= 0 {
		return TraceResult{}
	}
	origin := pawn.Pos.Add(Up.Scale(EyeHeight))
	dir := pawn.Facing.Normalize()
	if dir == (Vec3{}) {
		return TraceResult{}
	}

	best := math.Inf(1)
	var hit *Entity
	s.Each(func(e *Entity) bool {
		if e.Radius <= 0 || s.isUnder(e.ID, pawn.ID) {
			return true
		}
		if filter != 0 && !e.Has(filter) {
			return true
		}
		oc := e.Pos.Sub(origin)
		t := oc.Dot(dir)
		if t < 0 {
			return true
		}
		closest := origin.Add(dir.Scale(t))
		d := closest.Distance(e.Pos)
		if d > e.Radius {
			return true
		}
		entry := t - math.Sqrt(e.Radius*e.Radius-d*d)
		if entry < 0 {
			entry = 0
		}
		if entry <= maxDistance && entry < best {
			best = entry
			hit = e
		}
		return true
	})
	if hit == nil {
		return TraceResult{}
	}
	return TraceResult{Hit: true, Entity: hit, Point: origin.Add(dir.Scale(best))}
}

func (s *Scene) isUnder(id, root ID) bool {
	for _, e := range s.Ancestors(id) {
		if e.ID == root {
			return true
		}
	}
	return false
}
