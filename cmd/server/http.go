package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"citycore/internal/persistence/indexdb"
	"citycore/internal/protocol"
	"citycore/internal/sim/world"
	"citycore/internal/transport/observer"
	"citycore/internal/transport/ws"
)

func newMux(w *world.World, v *protocol.Validator, idx *indexdb.SQLiteIndex, opts *serverOptions, logger logrus.FieldLogger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, idx))

	obsSrv := observer.NewServer(w, logger)
	obsSrv.AllowRemote = opts.RemoteObs
	mux.HandleFunc("/v1/observe/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observe", obsSrv.WSHandler())

	if opts.AdminHTTP {
		// Local-only admin endpoints (read-only; do not affect the simulation).
		mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			writeJSON(rw, struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: w.ID(),
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			})
		}))
		if idx != nil {
			mux.HandleFunc("/admin/v1/zones", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
				ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
				defer cancel()
				zones, err := idx.Zones(ctx)
				if err != nil {
					http.Error(rw, err.Error(), http.StatusServiceUnavailable)
					return
				}
				writeJSON(rw, zones)
			}))
			mux.HandleFunc("/admin/v1/audits", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
				ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
				defer cancel()
				q := r.URL.Query()
				f := indexdb.AuditFilter{Actor: q.Get("actor"), Action: q.Get("action")}
				fmt.Sscan(q.Get("limit"), &f.Limit)
				fmt.Sscan(q.Get("since"), &f.Since)
				audits, err := idx.Audits(ctx, f)
				if err != nil {
					http.Error(rw, err.Error(), http.StatusServiceUnavailable)
					return
				}
				writeJSON(rw, audits)
			}))
		}
	}

	mux.HandleFunc("/v1/ws", ws.NewServer(w, v, logger).Handler())
	return mux
}

func metricsHandler(w *world.World, idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Metrics()
		id := w.ID()

		// Minimal Prometheus exposition format.
		gauge := func(name, help string, value any) {
			fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
			fmt.Fprintf(rw, "%s{world=%q} %v\n", name, id, value)
		}
		gauge("citycore_world_tick", "Current world tick.", w.CurrentTick())
		gauge("citycore_world_clients", "Connected players.", m.Clients)
		gauge("citycore_world_observers", "Connected spectators.", m.Observers)
		gauge("citycore_world_entities", "Live entities.", m.Entities)
		gauge("citycore_world_owned_zones", "Zones with an owner.", m.OwnedZones)
		gauge("citycore_world_lockpicks", "Doors being lockpicked.", m.Lockpicks)
		gauge("citycore_world_step_ms", "Last tick step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))

		fmt.Fprintf(rw, "# HELP citycore_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE citycore_world_queue_depth gauge\n")
		for _, q := range []struct {
			name  string
			depth int
		}{
			{"inbox", m.QueueDepths.Inbox},
			{"join", m.QueueDepths.Join},
			{"leave", m.QueueDepths.Leave},
			{"attach", m.QueueDepths.Attach},
		} {
			fmt.Fprintf(rw, "citycore_world_queue_depth{world=%q,queue=%q} %d\n", id, q.name, q.depth)
		}

		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP citycore_index_dropped_total Index writes dropped under load.\n")
			fmt.Fprintf(rw, "# TYPE citycore_index_dropped_total counter\n")
			fmt.Fprintf(rw, "citycore_index_dropped_total{world=%q,kind=%q} %d\n", id, "tick", st.DropTickTotal)
			fmt.Fprintf(rw, "citycore_index_dropped_total{world=%q,kind=%q} %d\n", id, "audit", st.DropAuditTotal)
			fmt.Fprintf(rw, "citycore_index_dropped_total{world=%q,kind=%q} %d\n", id, "state", st.DropStateTotal)
		}
	}
}

func loopbackOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
