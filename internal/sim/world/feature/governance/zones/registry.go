package zones

import "citycore/internal/sim/entity"

// Registry resolves points to zones. Zones are kept in registration order
// and dropped lazily once their entity is gone.
type Registry struct {
	lookup entity.Lookup
	zones  []*Zone
}

func NewRegistry(lookup entity.Lookup) *Registry {
	return &Registry{lookup: lookup}
}

func (r *Registry) Register(z *Zone) {
	if z == nil {
		return
	}
	for _, have := range r.zones {
		if have == z {
			return
		}
	}
	r.zones = append(r.zones, z)
}

func (r *Registry) Unregister(z *Zone) {
	for i, have := range r.zones {
		if have == z {
			r.zones = append(r.zones[:i], r.zones[i+1:]...)
			return
		}
	}
}

func (r *Registry) live(z *Zone) bool {
	return z != nil && (r.lookup == nil || r.lookup.Get(z.entity) != nil)
}

func (r *Registry) prune() {
	keep := r.zones[:0]
	for _, z := range r.zones {
		if r.live(z) {
			keep = append(keep, z)
		}
	}
	clear(r.zones[len(keep):])
	r.zones = keep
}

// FindZoneAt returns the first registered live zone containing p. Overlaps
// resolve to whichever zone was registered first.
func (r *Registry) FindZoneAt(p entity.Vec3) *Zone {
	r.prune()
	for _, z := range r.zones {
		if z.Contains(p) {
			return z
		}
	}
	return nil
}

func (r *Registry) ByProperty(id string) *Zone {
	r.prune()
	for _, z := range r.zones {
		if z.PropertyID == id {
			return z
		}
	}
	return nil
}

// ByEntity finds the zone represented by ent.
func (r *Registry) ByEntity(ent entity.ID) *Zone {
	r.prune()
	for _, z := range r.zones {
		if z.entity == ent {
			return z
		}
	}
	return nil
}

func (r *Registry) All() []*Zone {
	r.prune()
	return append([]*Zone(nil), r.zones...)
}

func (r *Registry) OwnedBy(id entity.ConnID) []*Zone {
	var out []*Zone
	for _, z := range r.All() {
		if z.OwnedBy(id) {
			out = append(out, z)
		}
	}
	return out
}

// ReleaseOwnedBy clears every zone owned by id and reports how many.
func (r *Registry) ReleaseOwnedBy(id entity.ConnID) int {
	n := 0
	for _, z := range r.OwnedBy(id) {
		z.ClearOwnerAndReset()
		if !z.IsOwned() {
			n++
		}
	}
	return n
}
