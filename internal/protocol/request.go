package protocol

// Request kinds (client -> authority).
const (
	KindMove           = "MOVE"
	KindBuyItem        = "BUY_ITEM"
	KindAddMoney       = "ADD_MONEY"
	KindRemoveMoney    = "REMOVE_MONEY"
	KindDamage         = "DAMAGE"
	KindPunch          = "PUNCH"
	KindUse            = "USE"
	KindAccessInfo     = "ACCESS_INFO"
	KindCycleEquipment = "CYCLE_EQUIPMENT"
	KindSetDoorLock    = "SET_DOOR_LOCK"
	KindStartLockpick  = "START_LOCKPICK"
	KindCancelLockpick = "CANCEL_LOCKPICK"
	KindAddGuest       = "ADD_GUEST"
	KindRemoveGuest    = "REMOVE_GUEST"
)

// MaxAmount bounds the amount of a single money or damage request.
const MaxAmount = 1_000_000_000

// RequestMsg is the single request envelope. Actor is the entity the client
// claims to act through (its pawn or player state); the gateway checks it
// against the session's connection before anything else happens.
type RequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Kind            string `json:"kind"`
	Actor           uint64 `json:"actor"`
	Target          uint64 `json:"target,omitempty"`

	Amount float64     `json:"amount,omitempty"`
	Dir    int         `json:"dir,omitempty"`
	Locked *bool       `json:"locked,omitempty"`
	Item   string      `json:"item,omitempty"`
	Pos    *[3]float64 `json:"pos,omitempty"`
	Facing *[3]float64 `json:"facing,omitempty"`
	Guest  string      `json:"guest,omitempty"`
}

var knownKinds = map[string]struct{}{
	KindMove:           {},
	KindBuyItem:        {},
	KindAddMoney:       {},
	KindRemoveMoney:    {},
	KindDamage:         {},
	KindPunch:          {},
	KindUse:            {},
	KindAccessInfo:     {},
	KindCycleEquipment: {},
	KindSetDoorLock:    {},
	KindStartLockpick:  {},
	KindCancelLockpick: {},
	KindAddGuest:       {},
	KindRemoveGuest:    {},
}

func IsKnownKind(kind string) bool {
	_, ok := knownKinds[kind]
	return ok
}
