package world

import "time"

type QueueDepths struct {
	Inbox  int `json:"inbox"`
	Join   int `json:"join"`
	Leave  int `json:"leave"`
	Attach int `json:"attach"`
}

type WorldMetrics struct {
	Tick        uint64      `json:"tick"`
	Clients     int         `json:"clients"`
	Observers   int         `json:"observers"`
	Entities    int         `json:"entities"`
	OwnedZones  int         `json:"owned_zones"`
	Lockpicks   int         `json:"lockpicks"`
	StepMS      float64     `json:"step_ms"`
	QueueDepths QueueDepths `json:"queue_depths"`
}

// Metrics is safe to call from any goroutine. Counts are as of the last
// completed tick.
func (w *World) Metrics() WorldMetrics {
	var m WorldMetrics
	if p := w.metrics.Load(); p != nil {
		m = *p
	}
	m.QueueDepths = QueueDepths{
		Inbox:  len(w.inbox),
		Join:   len(w.join),
		Leave:  len(w.leave),
		Attach: len(w.attach),
	}
	return m
}

func (w *World) publishMetrics(now uint64, took time.Duration) {
	m := &WorldMetrics{
		Tick:      now,
		Clients:   len(w.clients),
		Observers: len(w.observers),
		Entities:  w.scene.Len(),
		StepMS:    float64(took.Microseconds()) / 1000,
	}
	for _, z := range w.zones.All() {
		if z.Owner() != "" {
			m.OwnedZones++
		}
	}
	for _, d := range w.doors {
		if d.BeingLockpicked() {
			m.Lockpicks++
		}
	}
	w.metrics.Store(m)
}
