package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingAborts []abortReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.abort:
			pendingAborts = append(pendingAborts, req)
		case req := <-w.state:
			req.Resp <- w.State()
		case <-ticker.C:
			for _, req := range pendingAborts {
				req.Resp <- w.AbortDrone(req.Ref)
			}
			pendingAborts = pendingAborts[:0]
			w.step()
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering
// semantics as Run. It is primarily intended for tests.
func (w *World) StepOnce() (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.step()
	return tick, digest
}

func (w *World) step() string {
	start := time.Now()
	tick := w.tick.Load()

	for _, id := range w.order {
		w.drones[id].nav.tick()
	}
	w.terrain.Grow(tick)
	for _, id := range w.order {
		w.stepDrone(tick, w.drones[id])
	}

	digest := w.stateDigest(tick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: tick, Drones: w.droneTicks(), Digest: digest})
	}
	w.broadcastTick(tick)

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && tick > 0 && tick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot(tick):
		default:
			w.log.WithField("tick", tick).Warn("snapshot sink busy; skipped")
		}
	}

	w.updateMetrics(tick, time.Since(start))
	w.tick.Inc()
	return digest
}

// stepDrone polls the drone's running goal once, in the manner of a
// goal selector: an idle goal is asked to start, a running one to continue.
func (w *World) stepDrone(tick uint64, d *Drone) {
	if d.Finished || tick < d.idleUntil {
		return
	}
	if d.search == nil && !w.startStep(tick, d) {
		return
	}
	s := d.search
	if d.running {
		d.running = s.ShouldContinue()
	} else {
		d.running = s.ShouldExecute()
	}
	if d.running {
		return
	}
	switch {
	case s.Aborted():
		w.finishStep(tick, d, ReasonAborted)
	case s.Done():
		w.finishStep(tick, d, ReasonDone)
	case s.LastPassFailed():
		w.finishStep(tick, d, ReasonNoWork)
		d.idleUntil = tick + uint64(w.cfg.RetryDelayTicks)
	}
}
