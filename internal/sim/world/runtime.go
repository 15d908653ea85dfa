package world

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"citycore/internal/sim/entity"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingRequests []Envelope
	var pendingJoins []JoinRequest
	var pendingLeaves []entity.ConnID

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-w.attach:
			w.handleAttach(req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case env := <-w.inbox:
			pendingRequests = append(pendingRequests, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingRequests)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingRequests = pendingRequests[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering as
// the server loop. It is meant for tests and replays and must not be mixed
// with a running Run.
func (w *World) StepOnce(joins []JoinRequest, leaves []entity.ConnID, requests []Envelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(joins, leaves, requests)
	return tick, w.stateDigest(tick)
}

func (w *World) step(joins []JoinRequest, leaves []entity.ConnID, requests []Envelope) {
	start := time.Now()
	now := w.tick.Load()

	// Leaves first so a reconnecting identity starts clean.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if w.clients[id] == nil {
			continue
		}
		w.handleLeave(id)
		recordedLeaves = append(recordedLeaves, string(id))
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := w.joinPlayer(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if resp.Refused != "" {
			continue
		}
		recordedJoins = append(recordedJoins, RecordedJoin{Conn: resp.Welcome.ConnectionID, Name: req.Name})
	}

	// Requests apply in receive order.
	recorded := make([]RecordedRequest, 0, len(requests))
	for _, env := range requests {
		recorded = append(recorded, RecordedRequest{Conn: string(env.Conn), Req: env.Req})
		w.applyRequest(env)
	}

	w.systemNeeds()
	w.systemMiners()
	w.sched.Tick(now)

	w.replicate(now)
	w.flushAudits()
	w.recordState(now)

	if w.tickLogger != nil {
		digest := w.stateDigest(now)
		if err := w.tickLogger.WriteTick(TickLogEntry{
			Tick:     now,
			Joins:    recordedJoins,
			Leaves:   recordedLeaves,
			Requests: recorded,
			Digest:   digest,
		}); err != nil {
			w.log.WithError(err).Warn("tick log write")
		}
	}

	d := time.Since(start)
	if d > time.Second/time.Duration(w.cfg.TickRateHz) {
		w.log.WithFields(logrus.Fields{"tick": now, "took": d.String()}).Warn("slow tick")
	}
	w.publishMetrics(now, d)
	w.tick.Add(1)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
