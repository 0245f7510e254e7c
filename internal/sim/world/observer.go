package world

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"dronecraft.ai/internal/observerproto"
	"dronecraft.ai/internal/sim/debugger"
	"dronecraft.ai/internal/sim/feature/observe"
)

// ObserverJoinRequest registers a read-only observer session. Debug traffic
// and indicators for watched drones are written to Out as JSON.
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID    string
	Out          chan []byte
	DroneID      string
	Pos          mgl64.Vec3
	Capabilities []string
}

// ObserverSubscribeRequest moves an observer or changes what it watches.
type ObserverSubscribeRequest struct {
	SessionID    string
	DroneID      string
	Pos          mgl64.Vec3
	Capabilities []string
}

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

type observerClient struct {
	w       *World
	id      string
	out     chan []byte
	droneID string
	pos     mgl64.Vec3
	caps    map[string]bool
	dropped int
}

func (o *observerClient) ID() string      { return o.id }
func (o *observerClient) Pos() mgl64.Vec3 { return o.pos }

func (o *observerClient) HasCapability(name string) bool {
	return o.caps[strings.ToUpper(name)]
}

// Send encodes msg for the wire. Unknown message types are refused.
func (o *observerClient) Send(msg any) bool {
	tick := o.w.tick.Load()
	var v any
	switch m := msg.(type) {
	case observe.Indicator:
		pos := make([][3]int, 0, len(m.Positions))
		for _, p := range m.Positions {
			pos = append(pos, [3]int(p))
		}
		v = observerproto.IndicatorMsg{
			Type:            "INDICATOR",
			ProtocolVersion: observerproto.Version,
			Tick:            tick,
			DroneID:         m.DroneID,
			Positions:       pos,
			Color:           fmt.Sprintf("#%06X", m.Color&0xFFFFFF),
		}
	case debugger.Entry:
		v = observerproto.DebugMsg{
			Type:            "DEBUG",
			ProtocolVersion: observerproto.Version,
			Tick:            m.Tick,
			DroneID:         m.DroneID,
			Key:             m.Key,
			Pos:             m.Pos,
		}
	case debugger.Wireframe:
		v = observerproto.WireframeMsg{
			Type:            "WIREFRAME",
			ProtocolVersion: observerproto.Version,
			Tick:            tick,
			DroneID:         m.DroneID,
			Pos:             [3]int(m.Pos),
		}
	case observerproto.TickMsg:
		v = m
	default:
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case o.out <- b:
		return true
	default:
		o.dropped++
		return false
	}
}

func (o *observerClient) watches(d *Drone) bool {
	return o.droneID == "" || o.droneID == d.ID.String() || o.droneID == d.Name
}

func (o *observerClient) attachIfWatching(d *Drone) {
	if o.watches(d) {
		d.dbg.Attach(o)
	} else {
		d.dbg.Detach(o.id)
	}
}

func (o *observerClient) apply(droneID string, pos mgl64.Vec3, caps []string) {
	o.droneID = droneID
	o.pos = pos
	o.caps = map[string]bool{}
	for _, c := range caps {
		o.caps[strings.ToUpper(strings.TrimSpace(c))] = true
	}
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	o := &observerClient{w: w, id: req.SessionID, out: req.Out}
	o.apply(req.DroneID, req.Pos, req.Capabilities)
	w.observers[o.id] = o
	for _, id := range w.order {
		o.attachIfWatching(w.drones[id])
	}
	w.log.WithField("observer", o.id).Debug("observer joined")
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	o := w.observers[req.SessionID]
	if o == nil {
		return
	}
	o.apply(req.DroneID, req.Pos, req.Capabilities)
	for _, id := range w.order {
		o.attachIfWatching(w.drones[id])
	}
}

func (w *World) handleObserverLeave(id string) {
	if _, ok := w.observers[id]; !ok {
		return
	}
	delete(w.observers, id)
	for _, d := range w.drones {
		d.dbg.Detach(id)
	}
	w.log.WithField("observer", id).Debug("observer left")
}

func (w *World) broadcastTick(tick uint64) {
	if len(w.observers) == 0 {
		return
	}
	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
	}
	for _, id := range w.order {
		d := w.drones[id]
		st := observerproto.DroneState{
			ID:      d.ID.String(),
			Name:    d.Name,
			Pos:     [3]float64{d.Pos[0], d.Pos[1], d.Pos[2]},
			Step:    d.Cursor,
			State:   d.State().String(),
			Actions: d.Actions + d.StepActions(),
		}
		if desc, ok := d.Step(); ok {
			st.Kind = string(desc.Kind)
		}
		msg.Drones = append(msg.Drones, st)
	}
	for _, o := range w.observers {
		o.Send(msg)
	}
}
