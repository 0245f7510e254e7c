package debugger

import (
	"sort"

	"github.com/df-mc/dragonfly/server/block/cube"

	"dronecraft.ai/internal/sim/feature/observe"
)

// Keys recorded by the drone host around program steps.
const (
	KeyStepStarted = "drone.debug.step_started"
	KeyStepDone    = "drone.debug.step_done"
	KeyAborted     = "drone.debug.aborted"
)

type Entry struct {
	Tick    uint64  `json:"tick"`
	DroneID string  `json:"drone_id"`
	Key     string  `json:"key"`
	Pos     *[3]int `json:"pos,omitempty"`
}

// Wireframe marks a position a drone gave up on.
type Wireframe struct {
	DroneID string
	Pos     cube.Pos
}

type Sink interface {
	WriteDebug(e Entry) error
}

// Debugger keeps a drone's recent debug entries and the observers watching
// it. It is owned by the world loop goroutine.
type Debugger struct {
	droneID string
	now     func() uint64
	sink    Sink
	max     int

	entries   []Entry
	observers map[string]observe.Observer
}

func New(droneID string, now func() uint64, sink Sink, history int) *Debugger {
	if history <= 0 {
		history = 64
	}
	if now == nil {
		now = func() uint64 { return 0 }
	}
	return &Debugger{
		droneID:   droneID,
		now:       now,
		sink:      sink,
		max:       history,
		observers: map[string]observe.Observer{},
	}
}

func (d *Debugger) SetSink(s Sink) { d.sink = s }

// AddEntry records key with an optional position argument.
func (d *Debugger) AddEntry(key string, pos ...cube.Pos) {
	e := Entry{Tick: d.now(), DroneID: d.droneID, Key: key}
	if len(pos) > 0 {
		p := [3]int(pos[0])
		e.Pos = &p
	}
	d.entries = append(d.entries, e)
	if over := len(d.entries) - d.max; over > 0 {
		d.entries = append(d.entries[:0], d.entries[over:]...)
	}
	if d.sink != nil {
		_ = d.sink.WriteDebug(e)
	}
	for _, o := range d.Observers() {
		o.Send(e)
	}
}

func (d *Debugger) Wireframe(pos cube.Pos) {
	w := Wireframe{DroneID: d.droneID, Pos: pos}
	for _, o := range d.Observers() {
		o.Send(w)
	}
}

// Entries returns a copy of the retained history, oldest first.
func (d *Debugger) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

func (d *Debugger) Attach(o observe.Observer) { d.observers[o.ID()] = o }
func (d *Debugger) Detach(id string)          { delete(d.observers, id) }

// Observers returns the attached observers ordered by id.
func (d *Debugger) Observers() []observe.Observer {
	if len(d.observers) == 0 {
		return nil
	}
	ids := make([]string, 0, len(d.observers))
	for id := range d.observers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]observe.Observer, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.observers[id])
	}
	return out
}
