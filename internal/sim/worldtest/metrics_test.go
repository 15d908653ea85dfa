package worldtest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetrics_TrackClientsAndLastTick(t *testing.T) {
	h := NewHarness(t, City(), "alice")
	h.Join("bob")

	m := h.W.Metrics()
	require.Equal(t, h.W.CurrentTick()-1, m.Tick)
	require.Equal(t, 2, m.Clients)
	require.Zero(t, m.Observers)
	require.Zero(t, m.OwnedZones)
	require.Zero(t, m.Lockpicks)
	require.Equal(t, h.W.DebugEntityCount(), m.Entities)
	require.Zero(t, m.QueueDepths.Inbox)

	h.Leave("bob")
	require.Equal(t, 1, h.W.Metrics().Clients)
}
