package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"citycore/internal/protocol"
	"citycore/internal/sim/world"
	"citycore/internal/sim/worldtest"
)

func startServer(t *testing.T) (*world.World, string) {
	t.Helper()
	w, err := world.New(worldtest.City(), nil, worldtest.Logger(t))
	require.NoError(t, err)
	v, err := protocol.NewValidator()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	srv := httptest.NewServer(NewServer(w, v, worldtest.Logger(t)).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return w, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, hello protocol.HelloMsg) (*websocket.Conn, protocol.WelcomeMsg) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	hello.Type = protocol.TypeHello
	hello.ProtocolVersion = protocol.Version
	require.NoError(t, conn.WriteJSON(hello))

	var welcome protocol.WelcomeMsg
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, protocol.TypeWelcome, welcome.Type)
	return conn, welcome
}

// readUntil returns the first message of type typ that satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func([]byte) bool) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		base, err := protocol.DecodeBase(b)
		require.NoError(t, err)
		if base.Type == typ && (match == nil || match(b)) {
			return b
		}
	}
}

func TestHandshake_WelcomeThenPrivateState(t *testing.T) {
	_, url := startServer(t)
	conn, welcome := dial(t, url, protocol.HelloMsg{PlayerID: "alice", DisplayName: "Alice"})

	require.Equal(t, "alice", welcome.ConnectionID)
	require.NotEmpty(t, welcome.ResumeToken)
	require.NotZero(t, welcome.PawnID)
	require.Equal(t, 10, welcome.WorldParams.TickRateHz)

	var st protocol.StateMsg
	require.NoError(t, json.Unmarshal(readUntil(t, conn, protocol.TypeState, nil), &st))
	require.NotNil(t, st.Self)
	require.Equal(t, "alice", st.Self.ConnectionID)
	require.Equal(t, 1000, st.Self.Balance)
}

func TestHandshake_RejectsWrongVersion(t *testing.T) {
	_, url := startServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1", PlayerID: "alice"}))
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestRequests_ReachTheWorld(t *testing.T) {
	_, url := startServer(t)
	conn, welcome := dial(t, url, protocol.HelloMsg{PlayerID: "alice"})

	require.NoError(t, conn.WriteJSON(protocol.RequestMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		Kind:            protocol.KindAddMoney,
		Actor:           welcome.PawnID,
		Amount:          250,
	}))
	readUntil(t, conn, protocol.TypeState, func(b []byte) bool {
		var st protocol.StateMsg
		return json.Unmarshal(b, &st) == nil && st.Self != nil && st.Self.Balance == 1250
	})

	// Schema-invalid requests are dropped silently.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"REQ","protocol_version":"1.0","kind":"ADD_MONEY","actor":0,"amount":5}`)))
	require.NoError(t, conn.WriteJSON(protocol.RequestMsg{
		Type:            protocol.TypeReq,
		ProtocolVersion: protocol.Version,
		Kind:            protocol.KindRemoveMoney,
		Actor:           welcome.PawnID,
		Amount:          50,
	}))
	readUntil(t, conn, protocol.TypeState, func(b []byte) bool {
		var st protocol.StateMsg
		return json.Unmarshal(b, &st) == nil && st.Self != nil && st.Self.Balance == 1200
	})
}

func TestResume_TakesOverSessionAndClosesOldSocket(t *testing.T) {
	_, url := startServer(t)
	first, welcome := dial(t, url, protocol.HelloMsg{PlayerID: "alice"})
	readUntil(t, first, protocol.TypeState, nil)

	second, resumed := dial(t, url, protocol.HelloMsg{
		PlayerID: "alice",
		Auth:     &protocol.HelloAuth{Token: welcome.ResumeToken},
	})
	require.Equal(t, welcome.ConnectionID, resumed.ConnectionID)
	require.Equal(t, welcome.PawnID, resumed.PawnID)

	// The superseded socket is closed by the server.
	_ = first.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	// The session survives the old socket going away.
	time.Sleep(300 * time.Millisecond)
	var st protocol.StateMsg
	require.NoError(t, json.Unmarshal(readUntil(t, second, protocol.TypeState, nil), &st))
	require.NotNil(t, st.Self)
	require.Equal(t, welcome.PawnID, st.Self.PawnID)
}

func TestHandshake_RefusesLiveIdentityWithoutToken(t *testing.T) {
	_, url := startServer(t)
	first, welcome := dial(t, url, protocol.HelloMsg{PlayerID: "alice"})
	readUntil(t, first, protocol.TypeState, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerID:        "alice",
		Auth:            &protocol.HelloAuth{Token: "guessed"},
	}))
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	// The original socket keeps its session.
	var st protocol.StateMsg
	require.NoError(t, json.Unmarshal(readUntil(t, first, protocol.TypeState, nil), &st))
	require.NotNil(t, st.Self)
	require.Equal(t, welcome.PawnID, st.Self.PawnID)
}
