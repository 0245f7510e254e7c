package world

import (
	"github.com/sirupsen/logrus"

	"dronecraft.ai/internal/sim/debugger"
	"dronecraft.ai/internal/sim/feature/blocksearch"
	"dronecraft.ai/internal/sim/tasks"
)

func (w *World) droneLog(d *Drone) logrus.FieldLogger {
	return w.log.WithFields(logrus.Fields{"drone": d.Name, "step": d.Cursor})
}

// startStep builds the executor and search for the drone's current step.
func (w *World) startStep(tick uint64, d *Drone) bool {
	desc, ok := d.Step()
	if !ok {
		d.Finished = true
		return false
	}
	env := droneEnv{w: w, d: d}
	exec, err := desc.Build(env)
	if err != nil {
		w.droneLog(d).WithError(err).Error("cannot build step")
		w.recordStep(tick, d, desc, ReasonError, 0, nil)
		w.advance(d)
		return false
	}
	d.exec = exec
	d.search = blocksearch.New(env, exec, desc.Traits(), desc.Area.Region(), desc.Ordering, blocksearch.Config{
		MaxLookups: w.cfg.MaxLookups,
		Color:      desc.Color,
	}).SetMaxActions(desc.MaxActions)
	d.running = false
	d.dbg.AddEntry(debugger.KeyStepStarted)
	w.droneLog(d).WithField("kind", desc.Kind).Debug("step started")
	return true
}

// finishStep ends the running step, releases the drone's claims and moves
// the program cursor on.
func (w *World) finishStep(tick uint64, d *Drone, reason string) {
	desc, _ := d.Step()
	actions := d.search.TotalActions()
	var counts map[string]int
	if c, ok := d.exec.(tasks.Counter); ok {
		counts = c.Counts()
	}
	d.Actions += actions
	d.nav.stop()
	released := w.claims.ReleaseHolder(d.ID)
	d.dbg.AddEntry(debugger.KeyStepDone)
	w.recordStep(tick, d, desc, reason, actions, counts)
	w.droneLog(d).WithFields(logrus.Fields{
		"reason":   reason,
		"actions":  actions,
		"released": released,
	}).Debug("step finished")

	if reason == ReasonAborted {
		d.Aborted = true
		d.Finished = true
		d.search, d.exec, d.running = nil, nil, false
		return
	}
	w.advance(d)
}

func (w *World) advance(d *Drone) {
	d.search, d.exec, d.running = nil, nil, false
	d.Cursor++
	if d.Cursor >= len(d.steps) {
		if d.Loop && len(d.steps) > 0 {
			d.Cursor = 0
			return
		}
		d.Finished = true
		w.droneLog(d).Info("program finished")
	}
}

func (w *World) recordStep(tick uint64, d *Drone, desc tasks.Descriptor, reason string, actions int, counts map[string]int) {
	if w.stepLogger == nil {
		return
	}
	_ = w.stepLogger.WriteStep(StepResult{
		Tick:      tick,
		DroneID:   d.ID.String(),
		DroneName: d.Name,
		Step:      d.Cursor,
		Kind:      string(desc.Kind),
		Reason:    reason,
		Actions:   actions,
		Counts:    counts,
	})
}
