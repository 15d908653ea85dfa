package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"citycore/internal/protocol"
	"citycore/internal/sim/world"
)

func findRepoRootForServerTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSampleTuning_LoadsAndBuildsWorld(t *testing.T) {
	root := findRepoRootForServerTests(t)
	tune, err := loadTuning(filepath.Join(root, "configs", "tuning.yaml"), quietLogger())
	require.NoError(t, err)
	require.Equal(t, "city_1", tune.WorldID)
	require.False(t, tune.Debug.AllowCheats)
	require.Len(t, tune.Map.Zones, 4)

	w, err := world.New(tune, nil, quietLogger())
	require.NoError(t, err)
	require.Equal(t, "city_1", w.ID())
}

func TestLoadTuning_MissingFileFallsBackToDefaults(t *testing.T) {
	tune, err := loadTuning(filepath.Join(t.TempDir(), "nope.yaml"), quietLogger())
	require.NoError(t, err)
	require.NoError(t, tune.Validate())
}

func TestMux_HealthMetricsAndAdmin(t *testing.T) {
	root := findRepoRootForServerTests(t)
	tune, err := loadTuning(filepath.Join(root, "configs", "tuning.yaml"), quietLogger())
	require.NoError(t, err)
	w, err := world.New(tune, nil, quietLogger())
	require.NoError(t, err)
	w.StepOnce(nil, nil, nil)
	v, err := protocol.NewValidator()
	require.NoError(t, err)

	srv := httptest.NewServer(newMux(w, v, nil, &serverOptions{AdminHTTP: true}, quietLogger()))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	code, body := get("/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body)

	code, body = get("/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `citycore_world_tick{world="city_1"} 1`)
	require.Contains(t, body, `citycore_world_queue_depth{world="city_1",queue="inbox"} 0`)
	require.NotContains(t, body, "citycore_index_dropped_total")

	code, body = get("/admin/v1/state")
	require.Equal(t, http.StatusOK, code)
	var st struct {
		WorldID string             `json:"world_id"`
		Metrics world.WorldMetrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	require.Equal(t, "city_1", st.WorldID)
	require.Positive(t, st.Metrics.Entities)

	code, _ = get("/admin/v1/zones")
	require.Equal(t, http.StatusNotFound, code, "zones need the index db")
}

func TestIsLoopbackRemote(t *testing.T) {
	require.True(t, isLoopbackRemote("127.0.0.1:1234"))
	require.True(t, isLoopbackRemote("[::1]:1234"))
	require.False(t, isLoopbackRemote("192.168.1.4:1234"))
}

type failingAudit struct{ calls int }

func (f *failingAudit) WriteAudit(world.AuditEntry) error {
	f.calls++
	return errors.New("disk full")
}

type countingAudit struct{ calls int }

func (c *countingAudit) WriteAudit(world.AuditEntry) error {
	c.calls++
	return nil
}

func TestMultiAuditLogger_FansOutAndJoinsErrors(t *testing.T) {
	bad, good := &failingAudit{}, &countingAudit{}
	err := multiAuditLogger{bad, good}.WriteAudit(world.AuditEntry{Tick: 1})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "disk full"))
	require.Equal(t, 1, bad.calls)
	require.Equal(t, 1, good.calls)
}
