package blocksearch

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"

	"dronecraft.ai/internal/sim/area"
	"dronecraft.ai/internal/sim/feature/observe"
	"dronecraft.ai/internal/sim/sorter"
)

// DefaultMaxLookups bounds how many eligible positions one poll inspects.
const DefaultMaxLookups = 30

type State int

const (
	StateIdle State = iota
	StateSearching
	StateNavigating
	StateInteracting
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "SEARCHING"
	case StateNavigating:
		return "NAVIGATING"
	case StateInteracting:
		return "INTERACTING"
	case StateAborted:
		return "ABORTED"
	default:
		return "IDLE"
	}
}

type Config struct {
	MaxLookups int
	// Color tints the indicators observers receive.
	Color uint32
}

// Search finds the next position a drone should work on and drives the
// drone there. It is polled by the world loop once per tick and never
// blocks: ranking happens on the sorter and the search waits for it by
// polling.
//
// Search is not safe for concurrent use.
type Search struct {
	env    Env
	task   Task
	traits Traits
	order  area.Ordering
	region area.Region
	cfg    Config

	job *sorter.Job

	cur    cube.Pos
	hasCur bool

	blacklist map[cube.Pos]struct{}

	curY       int
	passStartY int
	searching  bool
	index      int

	totalActions int
	maxActions   int
	aborted      bool
	passFailed   bool
}

func New(env Env, task Task, traits Traits, region area.Region, order area.Ordering, cfg Config) *Search {
	if cfg.MaxLookups <= 0 {
		cfg.MaxLookups = DefaultMaxLookups
	}
	s := &Search{
		env:        env,
		task:       task,
		traits:     traits,
		order:      order,
		region:     region,
		cfg:        cfg,
		blacklist:  map[cube.Pos]struct{}{},
		maxActions: -1,
	}
	if !region.Empty() {
		s.curY = order.StartY(region)
	}
	return s
}

// SetMaxActions caps the number of committed actions. Negative means no cap.
func (s *Search) SetMaxActions(n int) *Search {
	s.maxActions = n
	return s
}

func (s *Search) Abort()                  { s.aborted = true }
func (s *Search) Aborted() bool           { return s.aborted }
func (s *Search) TotalActions() int       { return s.totalActions }
func (s *Search) CurrentY() int           { return s.curY }
func (s *Search) Ordering() area.Ordering { return s.order }

// LastPassFailed reports whether the most recent pass ended without finding
// a usable position.
func (s *Search) LastPassFailed() bool { return s.passFailed }

// Candidate is the position the drone committed to, if any.
func (s *Search) Candidate() (cube.Pos, bool) { return s.cur, s.hasCur }

func (s *Search) limitReached() bool {
	return s.maxActions >= 0 && s.totalActions >= s.maxActions
}

// Done reports that the search will never run again.
func (s *Search) Done() bool { return s.aborted || s.limitReached() }

func (s *Search) State() State {
	switch {
	case s.aborted:
		return StateAborted
	case s.searching:
		return StateSearching
	case s.hasCur:
		if s.traits.InPlace || s.distSq(s.cur) < s.arriveDistSq() {
			return StateInteracting
		}
		return StateNavigating
	default:
		return StateIdle
	}
}

// Reset swaps in a new region, e.g. after the task's area changed. Any sort
// in flight is abandoned.
func (s *Search) Reset(region area.Region) {
	s.region = region
	s.job = nil
	s.searching = false
	s.hasCur = false
	s.index = 0
	s.curY = 0
	if !region.Empty() {
		s.curY = s.order.StartY(region)
	}
}

// Blacklist excludes pos for the rest of the current pass.
func (s *Search) Blacklist(pos cube.Pos) {
	s.blacklist[pos] = struct{}{}
	s.env.Debugger().AddEntry(KeyBlacklisted, pos)
	s.env.Debugger().Wireframe(pos)
}

func (s *Search) Blacklisted(pos cube.Pos) bool {
	_, ok := s.blacklist[pos]
	return ok
}

// ShouldExecute starts a new pass. It reports false when the search is
// aborted, out of actions, or already searching.
func (s *Search) ShouldExecute() bool {
	if s.Done() || s.searching {
		return false
	}
	s.searching = true
	s.passFailed = false
	s.passStartY = s.curY
	s.hasCur = false
	s.index = 0
	if s.job == nil || s.job.Done() {
		s.job = s.env.Sorter().Sort(s.region.Positions, sorter.PositionLess(s.env.DronePos(), s.order))
	}
	return true
}

// ShouldContinue advances the search by one poll and reports whether it is
// still running.
func (s *Search) ShouldContinue() bool {
	if s.aborted {
		return false
	}
	if !s.searching {
		return s.continueInteraction()
	}
	if !s.job.Done() {
		return true
	}
	ranked := s.job.Result()
	observing := len(s.env.Debugger().Observers()) > 0

	searched := 0
	for first := true; first || (!s.aborted && !s.hasCur && s.order.Layered() && s.curY != s.passStartY); first = false {
		var inspected []cube.Pos
		for !s.aborted && s.index < len(ranked) {
			pos := ranked[s.index]
			s.index++
			if s.eligible(pos) {
				if observing {
					inspected = append(inspected, pos)
				}
				if s.task.Validate(pos) {
					if s.commit(pos) {
						return true
					}
				}
				searched++
			}
			if searched >= s.cfg.MaxLookups {
				s.indicate(inspected)
				return true
			}
		}
		s.indicate(inspected)
		if !s.hasCur {
			s.index = 0
			s.curY = s.order.NextY(s.curY, s.region)
		}
	}

	s.searching = false
	if !s.aborted {
		s.passFailed = true
		s.env.Debugger().AddEntry(KeyNoValidBlocks)
	}
	return false
}

func (s *Search) eligible(pos cube.Pos) bool {
	if s.order.Layered() && pos.Y() != s.curY {
		return false
	}
	if s.Blacklisted(pos) {
		return false
	}
	if s.traits.RespectClaims && s.env.Claims().IsClaimed(pos) {
		return false
	}
	return true
}

// commit tries to act on a validated position. It reports true when the
// search is done for this pass.
func (s *Search) commit(pos cube.Pos) bool {
	if s.traits.InPlace {
		s.cur, s.hasCur = pos, true
		s.searching = false
		s.totalActions++
		return true
	}
	if s.tryMoveTo(pos) {
		return true
	}
	if s.env.Navigator().IsGoingToTeleport() {
		return s.arrived(pos)
	}
	s.env.Debugger().AddEntry(KeyCantNavigate, pos)
	return false
}

func (s *Search) tryMoveTo(pos cube.Pos) bool {
	nav := s.env.Navigator()
	if s.traits.MoveIntoBlock {
		if s.allowsMovement(pos) && nav.MoveTo(approachPoint(pos)) {
			return s.arrived(pos)
		}
		return false
	}
	for _, face := range cube.Faces() {
		side := pos.Side(face)
		if s.distSq(side) < 0.5 {
			return s.arrived(pos)
		}
		if s.traits.sideSelected(face) && s.allowsMovement(side) && nav.MoveTo(approachPoint(side)) {
			return s.arrived(pos)
		}
	}
	return false
}

// arrived commits the drone to pos: the pass ends, one action is counted,
// the claim is taken and the blacklist starts over.
func (s *Search) arrived(pos cube.Pos) bool {
	s.cur, s.hasCur = pos, true
	s.searching = false
	s.totalActions++
	if s.traits.RespectClaims {
		s.env.Claims().Claim(pos, s.env.DroneID())
	}
	clear(s.blacklist)
	return true
}

func (s *Search) continueInteraction() bool {
	if s.hasCur {
		if s.traits.RespectClaims {
			s.env.Claims().Claim(s.cur, s.env.DroneID())
		}
		d := s.distSq(s.cur)
		if s.traits.InPlace || d < s.arriveDistSq() {
			return s.task.Interact(s.cur, d)
		}
	}
	return !s.env.Navigator().HasNoPath()
}

func (s *Search) allowsMovement(pos cube.Pos) bool {
	if fluid, ok := s.env.FluidAt(pos); ok {
		return s.env.CanMoveIntoFluid(fluid)
	}
	return s.env.Passable(pos)
}

func (s *Search) indicate(batch []cube.Pos) {
	if len(batch) == 0 {
		return
	}
	s.env.Indicators().Notify(s.env.Debugger().Observers(), observe.Indicator{
		DroneID:   s.env.DroneID().String(),
		Positions: batch,
		Color:     s.cfg.Color,
	})
}

// arriveDistSq is 1 block for move-into tasks and 2 blocks otherwise.
func (s *Search) arriveDistSq() float64 {
	if s.traits.MoveIntoBlock {
		return 1
	}
	return 4
}

func (s *Search) distSq(pos cube.Pos) float64 {
	return s.env.DronePos().Sub(pos.Vec3Centre()).LenSqr()
}

func approachPoint(pos cube.Pos) mgl64.Vec3 {
	return pos.Vec3Centre()
}
