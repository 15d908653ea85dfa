package worldtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"citycore/internal/protocol"
	world "citycore/internal/sim/world"
)

func TestJoin_WelcomeCarriesPawnAndState(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn
	require.Equal(t, "alice", a)

	wl := h.Welcome(a)
	require.Equal(t, protocol.TypeWelcome, wl.Type)
	require.NotEmpty(t, wl.ResumeToken)
	require.NotZero(t, wl.PawnID)
	require.NotZero(t, wl.StateID)
	require.NotEqual(t, wl.PawnID, wl.StateID)
	require.Equal(t, "test", wl.WorldParams.WorldID)
	require.Equal(t, 10, wl.WorldParams.TickRateHz)

	pawn := h.Find("Player - alice")
	require.Equal(t, wl.PawnID, pawn.ID)
	require.Equal(t, a, pawn.Owner)
	state := h.Find("PlayerState - alice")
	require.Equal(t, wl.StateID, state.ID)
	require.Equal(t, a, state.Owner)
}

func TestJoin_AssignsIDWhenMissing(t *testing.T) {
	h := NewHarness(t, City(), "")
	c := h.Join("")
	require.NotEmpty(t, c)
	require.NotZero(t, h.Pawn(c))
}

func TestJoin_LiveIdentityWithoutTokenIsRefused(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn
	first := h.Welcome(a)
	count := h.W.DebugEntityCount()

	out := make(chan []byte, 4)
	resp := make(chan world.JoinResponse, 1)
	h.W.StepOnce([]world.JoinRequest{{PlayerID: "alice", Name: "mallory", Out: out, Resp: resp}}, nil, nil)
	r := <-resp
	require.NotEmpty(t, r.Refused)
	require.Empty(t, r.Welcome.ConnectionID)
	require.Empty(t, r.Welcome.ResumeToken, "no token is handed out")
	require.Equal(t, count, h.W.DebugEntityCount())
	require.Empty(t, out, "the refused socket sees no state")

	e, ok := h.Audits.Last("alice", "JOIN")
	require.True(t, ok)
	require.Equal(t, protocol.ErrConflict, e.Code)
	require.Empty(t, h.Ticks.Entries[len(h.Ticks.Entries)-1].Joins)

	// The real session is untouched and still the only one that can act.
	h.StepNoop()
	require.Equal(t, first.PawnID, h.Pawn(a))
	h.MustDo(a, useOn(h, a, h.Find("For Sale: Small House").ID))
	z, _ := h.Zone("house_1")
	require.Equal(t, "alice", z.Owner)
	require.Equal(t, "alice", z.OwnerName, "the refused join did not rename the player")
}

func TestDisconnect_ReleasesZonesAndDestroysEntities(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn
	b := h.Join("bob")

	h.MustDo(a, useOn(h, a, h.Find("For Sale: Small House").ID))
	h.SetPos(a, [3]float64{340, 0, 340})
	h.MustDo(a, useOn(h, a, h.Find("For Sale: Corner House").ID))
	require.Zero(t, h.Self(a).Balance)

	_, zoneID := h.Zone("house_1")
	add := h.Req(a, protocol.KindAddGuest)
	add.Target = zoneID
	add.Guest = b
	h.MustDo(a, add)

	wl := h.Welcome(a)
	h.Leave(a)

	for _, id := range []string{"house_1", "house_2"} {
		z, _ := h.Zone(id)
		require.Empty(t, z.Owner, id)
		require.Empty(t, z.OwnerName, id)
		require.True(t, z.ForSale, id)
		require.Zero(t, z.LastPaid, id)
	}
	require.False(t, h.W.DebugAlive(wl.PawnID))
	require.False(t, h.W.DebugAlive(wl.StateID))
	require.Zero(t, h.W.DebugOwned(a))

	// The guest list went with the owner.
	h.Equip(b, "keys")
	e, _ := h.DoFor(b, setLock(h, b, h.Find("House 1 Door").ID, false))
	require.Equal(t, protocol.ErrNoPermission, e.Code)

	leave, ok := h.Audits.Last(a, "LEAVE")
	require.True(t, ok)
	require.EqualValues(t, 2, leave.Details["zones_released"])
}

func TestDisconnect_RejoinStartsFresh(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	a := h.DefaultConn
	h.MustDo(a, buy(h, a, "burger"))
	old := h.Welcome(a)

	h.Leave(a)
	h.Join("alice")
	wl := h.Welcome("alice")
	require.NotEqual(t, old.StateID, wl.StateID)
	require.NotEqual(t, old.ResumeToken, wl.ResumeToken)
	require.Equal(t, 1000, h.Self("alice").Balance)
}

func TestLeave_RecordedInTickLog(t *testing.T) {
	h := NewHarness(t, City(), "alice")

	h.Leave("ghost")
	last := h.Ticks.Entries[len(h.Ticks.Entries)-1]
	require.Empty(t, last.Leaves, "unknown connections are ignored")

	h.Leave("alice")
	last = h.Ticks.Entries[len(h.Ticks.Entries)-1]
	require.Equal(t, []string{"alice"}, last.Leaves)
	require.NotEmpty(t, last.Digest)
}

func TestAttach_ResumeTokenRebindsOutput(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	token := h.Welcome("alice").ResumeToken

	out := make(chan []byte, 4)
	resp := make(chan world.JoinResponse, 1)
	h.W.Attach() <- world.AttachRequest{ResumeToken: token, Out: out, Resp: resp}

	// Attach is served by Run.
	ctx, stop := runWorld(t, h.W)
	defer stop()
	r := waitResp(t, ctx, resp)
	require.Equal(t, "alice", r.Welcome.ConnectionID)
	require.NotEqual(t, token, r.Welcome.ResumeToken, "token rotates on resume")
	require.NotNil(t, waitMsg(t, ctx, out))

	// The spent token no longer resumes.
	again := make(chan world.JoinResponse, 1)
	h.W.Attach() <- world.AttachRequest{ResumeToken: token, Out: make(chan []byte, 4), Resp: again}
	require.Empty(t, waitResp(t, ctx, again).Welcome.ConnectionID)

	bad := make(chan world.JoinResponse, 1)
	h.W.Attach() <- world.AttachRequest{ResumeToken: "nope", Resp: bad}
	r = waitResp(t, ctx, bad)
	require.Empty(t, r.Welcome.ConnectionID)
}
