// Package entity holds the world-object model shared by every component:
// entities, their network owner, the ancestor chain, and the in-memory
// scene that plays the spawn and trace collaborators.
package entity

// ID identifies an entity for its whole lifetime. IDs are never reused.
type ID uint64

// ConnID is the stable identity of a remote participant (survives reconnects).
// The empty ConnID means "host-owned".
type ConnID string

type Connection struct {
	ID   ConnID
	Name string
}

// Marker tags what an entity is. A single entity may carry several.
type Marker uint16

const (
	MarkerPawn Marker = 1 << iota
	MarkerState
	MarkerZone
	MarkerDoor
	MarkerItem
	MarkerRagdoll
	MarkerProp
	MarkerDevice
)

// Template is a spawnable prefab.
type Template struct {
	Name      string
	Markers   Marker
	Networked bool
	Radius    float64
}

type Entity struct {
	ID        ID
	Name      string
	Template  string
	Owner     ConnID
	Parent    ID
	Pos       Vec3
	Facing    Vec3
	Radius    float64
	Networked bool
	Markers   Marker
}

func (e *Entity) Has(m Marker) bool { return e != nil && e.Markers&m == m }

// OwnedBy reports whether conn is the network owner. Host-owned entities are
// owned by nobody.
func (e *Entity) OwnedBy(conn ConnID) bool {
	return e != nil && conn != "" && e.Owner == conn
}

// Spawner is the prefab instantiation collaborator.
type Spawner interface {
	Spawn(template string, owner ConnID, pos Vec3) *Entity
	Destroy(id ID)
}

// Lookup resolves ids to live entities. Destroyed or unknown ids yield nil.
type Lookup interface {
	Get(id ID) *Entity
}

// TraceResult is what an eye trace reports: whether anything was hit, the
// hit entity (may be nil for world geometry) and the hit point.
type TraceResult struct {
	Hit    bool
	Entity *Entity
	Point  Vec3
}

// Tracer is the spatial query collaborator. filter restricts hits to
// entities carrying every bit of the marker; zero accepts anything.
type Tracer interface {
	TraceFromEyes(pawn *Entity, maxDistance float64, filter Marker) TraceResult
}
