package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	persistlog "citycore/internal/persistence/log"
	"citycore/internal/protocol"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/world"
	"citycore/internal/sim/worldtest"
)

// recordCity runs a short session through a real tick logger and returns the
// events dir.
func recordCity(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	w, err := world.New(worldtest.City(), nil, worldtest.Logger(t))
	require.NoError(t, err)
	tl := persistlog.NewTickLogger(dir)
	w.SetTickLogger(tl)

	join := func(id string) protocol.WelcomeMsg {
		resp := make(chan world.JoinResponse, 1)
		w.StepOnce([]world.JoinRequest{{PlayerID: id, Name: id, Resp: resp}}, nil, nil)
		return (<-resp).Welcome
	}
	alice := join("alice")
	bob := join("bob")
	sign, ok := w.DebugFind("For Sale: Small House")
	require.True(t, ok)

	script := map[int][]world.Envelope{
		0: {{Conn: "alice", Req: protocol.RequestMsg{Kind: protocol.KindUse, Actor: alice.PawnID, Target: sign.ID}}},
		2: {{Conn: "bob", Req: protocol.RequestMsg{Kind: protocol.KindCycleEquipment, Actor: bob.PawnID, Dir: 1}}},
		4: {{Conn: "alice", Req: protocol.RequestMsg{Kind: protocol.KindMove, Actor: alice.PawnID, Pos: &[3]float64{110, 0, 20}}}},
	}
	for i := 0; i < 30; i++ {
		w.StepOnce(nil, nil, script[i])
	}
	w.StepOnce(nil, []entity.ConnID{"bob"}, nil)
	require.NoError(t, tl.Close())
	return persistlog.EventsDir(dir)
}

func TestReplay_VerifiesRecordedDigests(t *testing.T) {
	events := recordCity(t)

	res, err := replay(worldtest.City(), events, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(33), res.Checked)
	require.Equal(t, uint64(32), res.LastTick)

	partial, err := replay(worldtest.City(), events, 10, 20)
	require.NoError(t, err)
	require.Equal(t, uint64(11), partial.Checked)
	require.Equal(t, uint64(20), partial.LastTick)
}

func TestReplay_DetectsDivergentTuning(t *testing.T) {
	events := recordCity(t)

	cfg := worldtest.City()
	cfg.Economy.StartingBalance = 999
	_, err := replay(cfg, events, 0, 0)
	require.ErrorContains(t, err, "digest mismatch")
}

func TestCommand_FailsOnForeignWorld(t *testing.T) {
	events := recordCity(t)
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs([]string{
		"--tuning", filepath.Join("..", "..", "configs", "tuning.yaml"),
		"--events", events,
	})
	// The sample tuning is a different world, so the first digest diverges.
	require.Error(t, cmd.Execute())
	require.Empty(t, out.String())
}
