package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"citycore/internal/sim/world"
)

func TestTickLogger_RoundTripsThroughZstd(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := uint64(0); i < 50; i++ {
		require.NoError(t, l.WriteTick(world.TickLogEntry{
			Tick:   i,
			Leaves: []string{"bob"},
			Digest: "d",
		}))
	}
	require.NoError(t, l.Close())
	require.Equal(t, uint64(50), l.Stats().Written)

	var ticks []uint64
	require.NoError(t, ReadTicks(EventsDir(dir), func(e world.TickLogEntry) error {
		ticks = append(ticks, e.Tick)
		require.Equal(t, []string{"bob"}, e.Leaves)
		return nil
	}))
	require.Len(t, ticks, 50)
	require.Equal(t, uint64(49), ticks[49])
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "audit")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	require.NoError(t, w.Write(world.AuditEntry{Tick: 1, Actor: "alice", Action: "BUY_ZONE", OK: true}))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, w.Write(world.AuditEntry{Tick: 2, Actor: "alice", Action: "SELL_ZONE", OK: true}))
	require.NoError(t, w.Close())

	files, err := ListFiles(dir, "audit")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "audit-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "audit-2026-03-01-11.jsonl.zst"),
	}, files)

	var got world.AuditEntry
	require.NoError(t, ScanJSONL(files[1], func(line []byte) error { return json.Unmarshal(line, &got) }))
	require.Equal(t, "SELL_ZONE", got.Action)
}

func TestAsyncWriter_DropsWhenFull(t *testing.T) {
	w := NewJSONLZstdWriter(t.TempDir(), "audit")
	a := &asyncWriter{w: w, ch: make(chan any, 1), done: make(chan struct{})}

	// No consumer yet, so the second entry has nowhere to go.
	require.NoError(t, a.enqueue(world.AuditEntry{Tick: 1}))
	require.ErrorIs(t, a.enqueue(world.AuditEntry{Tick: 2}), ErrQueueFull)
	require.Equal(t, uint64(1), a.Stats().Dropped)

	go a.loop()
	require.NoError(t, a.Close())
	require.Equal(t, uint64(1), a.Stats().Written)
}

func TestReadTicks_EmptyDir(t *testing.T) {
	require.Error(t, ReadTicks(t.TempDir(), func(world.TickLogEntry) error { return nil }))
}
