package protocol

// STATE (authority -> observers). Every field is a read-only mirror of host state.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Self     *SelfState    `json:"self,omitempty"`
	Doors    []DoorState   `json:"doors"`
	Zones    []ZoneState   `json:"zones"`
	Entities []EntityState `json:"entities"`
}

type SelfState struct {
	ConnectionID string  `json:"connection_id"`
	PawnID       uint64  `json:"pawn_id,omitempty"`
	StateID      uint64  `json:"state_id,omitempty"`
	Balance      int     `json:"balance"`
	Health       float64 `json:"health"`
	MaxHealth    float64 `json:"max_health"`
	Dead         bool    `json:"dead"`
	Hunger       float64 `json:"hunger"`
	Thirst       float64 `json:"thirst"`
	Job          string  `json:"job"`
	Slot         string  `json:"slot"`
	Stone        int     `json:"stone"`
}

type DoorState struct {
	ID          uint64  `json:"id"`
	Open        bool    `json:"open"`
	Locked      bool    `json:"locked"`
	Lockpicking bool    `json:"lockpicking"`
	Progress    float64 `json:"progress"`
	Picker      string  `json:"picker,omitempty"`
	Security    string  `json:"security"`
}

type ZoneState struct {
	PropertyID string `json:"property_id"`
	Name       string `json:"name"`
	Owner      string `json:"owner,omitempty"`
	OwnerName  string `json:"owner_name,omitempty"`
	ForSale    bool   `json:"for_sale"`
	Price      int    `json:"price"`
	LastPaid   int    `json:"last_paid"`
	Government bool   `json:"government,omitempty"`
}

type EntityState struct {
	ID    uint64     `json:"id"`
	Name  string     `json:"name"`
	Kind  string     `json:"kind"`
	Owner string     `json:"owner,omitempty"`
	Pos   [3]float64 `json:"pos"`
}
