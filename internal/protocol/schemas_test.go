package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"citycore/internal/protocol"
)

func TestValidator_AcceptsWellFormedMessages(t *testing.T) {
	v, err := protocol.NewValidator()
	require.NoError(t, err)

	require.NoError(t, v.ValidateHello([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "player_id":"76561198000000001",
	  "display_name":"alice",
	  "capabilities":{"max_queue":8}
	}`)))

	locked := true
	req := protocol.RequestMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		Kind:            protocol.KindSetDoorLock,
		Actor:           3,
		Target:          9,
		Locked:          &locked,
	}
	b, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, v.ValidateRequest(b))

	pos := [3]float64{1, 0, 2}
	buy := protocol.RequestMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		Kind:            protocol.KindBuyItem,
		Actor:           3,
		Item:            "burger",
		Pos:             &pos,
	}
	b, err = json.Marshal(buy)
	require.NoError(t, err)
	require.NoError(t, v.ValidateRequest(b))
}

func TestValidator_RejectsMalformedRequests(t *testing.T) {
	v, err := protocol.NewValidator()
	require.NoError(t, err)

	cases := map[string]string{
		"unknown kind":       `{"type":"REQ","protocol_version":"1.0","kind":"TELEPORT","actor":1}`,
		"missing actor":      `{"type":"REQ","protocol_version":"1.0","kind":"USE","target":2}`,
		"use without target": `{"type":"REQ","protocol_version":"1.0","kind":"USE","actor":1}`,
		"lock without flag":  `{"type":"REQ","protocol_version":"1.0","kind":"SET_DOOR_LOCK","actor":1,"target":2}`,
		"bad dir":            `{"type":"REQ","protocol_version":"1.0","kind":"CYCLE_EQUIPMENT","actor":1,"dir":2}`,
		"short pos":          `{"type":"REQ","protocol_version":"1.0","kind":"MOVE","actor":1,"pos":[1,2]}`,
		"extra field":        `{"type":"REQ","protocol_version":"1.0","kind":"PUNCH","actor":1,"owner":"x"}`,
		"huge amount":        `{"type":"REQ","protocol_version":"1.0","kind":"ADD_MONEY","actor":1,"amount":1e19}`,
	}
	for name, raw := range cases {
		require.Error(t, v.ValidateRequest([]byte(raw)), name)
	}

	require.Error(t, v.ValidateHello([]byte(`{"type":"HELLO","protocol_version":"1.0"}`)))
}

func TestKnownKindsMatchSchema(t *testing.T) {
	v, err := protocol.NewValidator()
	require.NoError(t, err)
	for _, kind := range []string{
		protocol.KindPunch,
		protocol.KindCancelLockpick,
		protocol.KindStartLockpick,
	} {
		require.True(t, protocol.IsKnownKind(kind))
		raw := `{"type":"REQ","protocol_version":"1.0","kind":"` + kind + `","actor":1,"target":4}`
		require.NoError(t, v.ValidateRequest([]byte(raw)), kind)
	}
}
