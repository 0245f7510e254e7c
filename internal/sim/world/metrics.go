package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Drones         int `json:"drones"`
	ActiveDrones   int `json:"active_drones"`
	FinishedDrones int `json:"finished_drones"`
	Observers      int `json:"observers"`
	Claims         int `json:"claims"`
	EditedBlocks   int `json:"edited_blocks"`
	TotalActions   int `json:"total_actions"`

	SorterSubmitted uint64 `json:"sorter_submitted"`
	SorterOverflow  uint64 `json:"sorter_overflow"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	ObserverJoin  int `json:"observer_join"`
	ObserverSub   int `json:"observer_sub"`
	ObserverLeave int `json:"observer_leave"`
	Abort         int `json:"abort"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) updateMetrics(tick uint64, took time.Duration) {
	m := WorldMetrics{
		Tick:         tick,
		Drones:       len(w.drones),
		Observers:    len(w.observers),
		Claims:       w.claims.Len(),
		EditedBlocks: len(w.terrain.edits),
		QueueDepths: QueueDepths{
			ObserverJoin:  len(w.observerJoin),
			ObserverSub:   len(w.observerSub),
			ObserverLeave: len(w.observerLeave),
			Abort:         len(w.abort),
		},
		StepMS: float64(took.Microseconds()) / 1000,
	}
	for _, d := range w.drones {
		if d.Finished {
			m.FinishedDrones++
		} else {
			m.ActiveDrones++
		}
		m.TotalActions += d.Actions + d.StepActions()
	}
	m.SorterSubmitted, m.SorterOverflow = w.sorter.Stats()
	w.metrics.Store(m)
}
