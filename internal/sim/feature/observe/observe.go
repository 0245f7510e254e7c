package observe

import (
	"strings"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
)

// DefaultRangeSq is the squared radius around the first inspected position
// inside which observers receive indicators.
const DefaultRangeSq = 32 * 32

// Capabilities an observer needs by default to see search indicators.
const (
	CapEntityTracker = "ENTITY_TRACKER"
	CapDispenser     = "DISPENSER"
)

// Observer is a remote viewer watching a drone.
type Observer interface {
	ID() string
	Pos() mgl64.Vec3
	HasCapability(name string) bool
	Send(msg any) bool
}

// Indicator highlights the positions one scan window inspected.
type Indicator struct {
	DroneID   string
	Positions []cube.Pos
	Color     uint32
}

// Channel pushes indicators to nearby eligible observers.
type Channel struct {
	RangeSq  float64
	Eligible func(Observer) bool
}

func NewChannel(rangeSq float64, eligible func(Observer) bool) *Channel {
	if rangeSq <= 0 {
		rangeSq = DefaultRangeSq
	}
	return &Channel{RangeSq: rangeSq, Eligible: eligible}
}

// Notify sends ind to every observer within range of its first position
// that passes the eligibility check. It returns the number of deliveries.
func (c *Channel) Notify(observers []Observer, ind Indicator) int {
	if c == nil || len(ind.Positions) == 0 || len(observers) == 0 {
		return 0
	}
	first := ind.Positions[0].Vec3()
	sent := 0
	for _, o := range observers {
		if o == nil {
			continue
		}
		if o.Pos().Sub(first).LenSqr() >= c.RangeSq {
			continue
		}
		if c.Eligible != nil && !c.Eligible(o) {
			continue
		}
		if o.Send(ind) {
			sent++
		}
	}
	return sent
}

// RequireCapabilities builds an eligibility check that passes observers
// carrying every listed capability.
func RequireCapabilities(caps ...string) func(Observer) bool {
	want := make([]string, 0, len(caps))
	for _, c := range caps {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			want = append(want, c)
		}
	}
	return func(o Observer) bool {
		for _, c := range want {
			if !o.HasCapability(c) {
				return false
			}
		}
		return true
	}
}
