package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	PlayerID        string            `json:"player_id"`
	DisplayName     string            `json:"display_name,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ConnectionID    string      `json:"connection_id"`
	ResumeToken     string      `json:"resume_token"`
	PawnID          uint64      `json:"pawn_id,omitempty"`
	StateID         uint64      `json:"state_id,omitempty"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	WorldID    string `json:"world_id"`
	TickRateHz int    `json:"tick_rate_hz"`
	SlotCount  int    `json:"slot_count"`
}

// SUBSCRIBE (spectator -> server)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// ACCESS_INFO (server -> client). Advisory only; the authority re-checks on use.
type AccessInfoMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Target          uint64 `json:"target"`
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
}
