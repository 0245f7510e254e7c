package blocksearch

import (
	"context"
	"testing"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"dronecraft.ai/internal/sim/area"
	"dronecraft.ai/internal/sim/claims"
	"dronecraft.ai/internal/sim/feature/observe"
	"dronecraft.ai/internal/sim/sorter"
)

type stubNav struct {
	accept   func(target mgl64.Vec3) bool
	teleport bool
	noPath   bool
	calls    []mgl64.Vec3
}

func (n *stubNav) MoveTo(target mgl64.Vec3) bool {
	n.calls = append(n.calls, target)
	if n.accept == nil {
		return true
	}
	return n.accept(target)
}
func (n *stubNav) IsGoingToTeleport() bool { return n.teleport }
func (n *stubNav) HasNoPath() bool         { return n.noPath }

type stubDebugger struct {
	entries    []string
	wireframes []cube.Pos
	observers  []observe.Observer
}

func (d *stubDebugger) AddEntry(key string, pos ...cube.Pos) { d.entries = append(d.entries, key) }
func (d *stubDebugger) Observers() []observe.Observer        { return d.observers }
func (d *stubDebugger) Wireframe(pos cube.Pos)               { d.wireframes = append(d.wireframes, pos) }

func (d *stubDebugger) count(key string) int {
	n := 0
	for _, e := range d.entries {
		if e == key {
			n++
		}
	}
	return n
}

type stubEnv struct {
	id         uuid.UUID
	pos        mgl64.Vec3
	nav        *stubNav
	dbg        *stubDebugger
	claims     *claims.Manager
	solid      map[cube.Pos]bool
	fluids     map[cube.Pos]string
	allowFluid bool
	channel    *observe.Channel
}

func newStubEnv() *stubEnv {
	return &stubEnv{
		id:      uuid.New(),
		pos:     mgl64.Vec3{0.5, 10.5, 0.5},
		nav:     &stubNav{},
		dbg:     &stubDebugger{},
		claims:  claims.NewManager(),
		solid:   map[cube.Pos]bool{},
		fluids:  map[cube.Pos]string{},
		channel: observe.NewChannel(0, nil),
	}
}

func (e *stubEnv) DroneID() uuid.UUID           { return e.id }
func (e *stubEnv) DronePos() mgl64.Vec3         { return e.pos }
func (e *stubEnv) Navigator() Navigator         { return e.nav }
func (e *stubEnv) Debugger() Debugger           { return e.dbg }
func (e *stubEnv) Claims() ClaimStore           { return e.claims }
func (e *stubEnv) Sorter() Sorter               { return (*sorter.Pool)(nil) }
func (e *stubEnv) Indicators() *observe.Channel { return e.channel }
func (e *stubEnv) Passable(pos cube.Pos) bool   { return !e.solid[pos] }
func (e *stubEnv) CanMoveIntoFluid(string) bool { return e.allowFluid }
func (e *stubEnv) FluidAt(pos cube.Pos) (string, bool) {
	f, ok := e.fluids[pos]
	return f, ok
}

type stubTask struct {
	valid     func(pos cube.Pos) bool
	interact  bool
	validated []cube.Pos
	interacts []cube.Pos
}

func (t *stubTask) Validate(pos cube.Pos) bool {
	t.validated = append(t.validated, pos)
	return t.valid != nil && t.valid(pos)
}

func (t *stubTask) Interact(pos cube.Pos, distSq float64) bool {
	t.interacts = append(t.interacts, pos)
	return t.interact
}

func waitSorted(t *testing.T, s *Search) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.job.Wait(ctx); err != nil {
		t.Fatalf("sorter did not finish: %v", err)
	}
}

func cubeRegion(lo, hi cube.Pos) area.Region {
	return area.FromBoxes(area.Box{From: lo, To: hi})
}

func TestSearchWaitsForSorter(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{}
	s := New(env, task, Traits{}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{1, 0, 1}), area.Closest, Config{})
	if !s.ShouldExecute() {
		t.Fatalf("expected a fresh search to start")
	}
	if s.State() != StateSearching {
		t.Fatalf("expected searching state, got %v", s.State())
	}
	if s.ShouldExecute() {
		t.Fatalf("must not restart while searching")
	}
	waitSorted(t, s)
	if s.ShouldContinue() {
		t.Fatalf("expected the pass to fail with no valid positions")
	}
	if len(task.validated) != 4 {
		t.Fatalf("expected every position validated once, got %d", len(task.validated))
	}
}

func TestClosestNeverFiltersY(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{}
	s := New(env, task, Traits{}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{1, 4, 1}), area.Closest, Config{MaxLookups: 1000})
	s.ShouldExecute()
	waitSorted(t, s)
	if s.ShouldContinue() {
		t.Fatalf("expected failed pass")
	}
	ys := map[int]bool{}
	for _, p := range task.validated {
		ys[p.Y()] = true
	}
	if len(task.validated) != 20 || len(ys) != 5 {
		t.Fatalf("expected all 20 positions across 5 layers, got %d positions %d layers", len(task.validated), len(ys))
	}
	if env.dbg.count(KeyNoValidBlocks) != 1 {
		t.Fatalf("expected a no-valid-blocks debug entry")
	}
	if !s.LastPassFailed() || s.State() != StateIdle {
		t.Fatalf("expected idle after failed pass, got %v", s.State())
	}
	if !s.ShouldExecute() {
		t.Fatalf("a failed pass must allow re-entry")
	}
}

func TestLayeredOnlyOffersCurrentLayer(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{}
	s := New(env, task, Traits{}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{2, 2, 2}), area.LowToHigh, Config{MaxLookups: 1000})
	s.ShouldExecute()
	waitSorted(t, s)
	if s.ShouldContinue() {
		t.Fatalf("expected failed pass after a full wrap")
	}
	if len(task.validated) != 27 {
		t.Fatalf("expected 27 validations over 3 layers, got %d", len(task.validated))
	}
	for i, p := range task.validated {
		if want := i / 9; p.Y() != want {
			t.Fatalf("validation %d: expected y=%d, got %v", i, want, p)
		}
	}
	if s.CurrentY() != 0 {
		t.Fatalf("expected to wrap back to the start layer, got y=%d", s.CurrentY())
	}
}

func TestHighToLowStartsAtTop(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{valid: func(p cube.Pos) bool { return p.Y() == 1 }}
	s := New(env, task, Traits{InPlace: true}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{0, 2, 0}), area.HighToLow, Config{})
	s.ShouldExecute()
	waitSorted(t, s)
	if !s.ShouldContinue() {
		t.Fatalf("expected a candidate on the middle layer")
	}
	if len(task.validated) != 2 || task.validated[0].Y() != 2 || task.validated[1].Y() != 1 {
		t.Fatalf("expected top layer first then middle, got %v", task.validated)
	}
	if p, ok := s.Candidate(); !ok || p != (cube.Pos{0, 1, 0}) {
		t.Fatalf("unexpected candidate %v %v", p, ok)
	}
}

func TestScanBudgetYieldsAndResumes(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{}
	s := New(env, task, Traits{}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{3, 0, 3}), area.Closest, Config{MaxLookups: 5})
	s.ShouldExecute()
	waitSorted(t, s)
	if !s.ShouldContinue() {
		t.Fatalf("expected to yield after the budget")
	}
	if len(task.validated) != 5 {
		t.Fatalf("expected 5 inspected positions, got %d", len(task.validated))
	}
	first := append([]cube.Pos(nil), task.validated...)
	s.ShouldContinue()
	if len(task.validated) != 10 {
		t.Fatalf("expected to resume for another 5, got %d", len(task.validated))
	}
	for _, p := range task.validated[5:] {
		for _, q := range first {
			if p == q {
				t.Fatalf("position %v inspected twice", p)
			}
		}
	}
}

func TestClaimsAndBlacklistHaveIndependentLifecycles(t *testing.T) {
	env := newStubEnv()
	target := cube.Pos{0, 0, 0}
	task := &stubTask{valid: func(p cube.Pos) bool { return p == target }}
	s := New(env, task, Traits{RespectClaims: true}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{2, 0, 0}), area.Closest, Config{})
	s.Blacklist(cube.Pos{2, 0, 0})

	s.ShouldExecute()
	waitSorted(t, s)
	if !s.ShouldContinue() {
		t.Fatalf("expected navigation to start")
	}
	if !env.claims.IsClaimed(target) {
		t.Fatalf("expected the target to be claimed on commit")
	}
	if s.Blacklisted(cube.Pos{2, 0, 0}) {
		t.Fatalf("expected blacklist cleared on commit")
	}
	if !env.claims.IsClaimed(target) {
		t.Fatalf("claim must survive blacklist clearing")
	}
	if len(env.dbg.wireframes) != 1 {
		t.Fatalf("expected blacklist to be mirrored as a wireframe")
	}
	if s.TotalActions() != 1 {
		t.Fatalf("expected one action on commit, got %d", s.TotalActions())
	}
}

func TestClaimedPositionsAreSkipped(t *testing.T) {
	env := newStubEnv()
	other := uuid.New()
	env.claims.Claim(cube.Pos{0, 0, 0}, other)
	task := &stubTask{valid: func(cube.Pos) bool { return true }}
	s := New(env, task, Traits{RespectClaims: true}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{1, 0, 0}), area.Closest, Config{})
	s.ShouldExecute()
	waitSorted(t, s)
	s.ShouldContinue()
	if p, _ := s.Candidate(); p != (cube.Pos{1, 0, 0}) {
		t.Fatalf("expected the unclaimed position, got %v", p)
	}
	for _, p := range task.validated {
		if p == (cube.Pos{0, 0, 0}) {
			t.Fatalf("claimed position must not be validated")
		}
	}

	free := New(newStubEnv(), &stubTask{valid: func(cube.Pos) bool { return true }}, Traits{}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{0, 0, 0}), area.Closest, Config{})
	free.env.(*stubEnv).claims.Claim(cube.Pos{0, 0, 0}, other)
	free.ShouldExecute()
	waitSorted(t, free)
	if !free.ShouldContinue() {
		t.Fatalf("tasks that ignore claims should still pick claimed positions")
	}
}

func TestInteractFalseStopsAfterOneAction(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{valid: func(cube.Pos) bool { return true }, interact: false}
	s := New(env, task, Traits{InPlace: true}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{1, 0, 0}), area.Closest, Config{})
	s.ShouldExecute()
	waitSorted(t, s)
	if !s.ShouldContinue() {
		t.Fatalf("expected in-place commit to keep running")
	}
	if s.State() != StateInteracting {
		t.Fatalf("expected interacting state, got %v", s.State())
	}
	if s.ShouldContinue() {
		t.Fatalf("interact returning false must stop the cycle")
	}
	if s.TotalActions() != 1 || len(task.interacts) != 1 {
		t.Fatalf("expected one action and one interaction, got %d/%d", s.TotalActions(), len(task.interacts))
	}
	if len(env.nav.calls) != 0 {
		t.Fatalf("in-place tasks must not navigate")
	}
}

func TestInteractTrueKeepsRetryingWithoutCounting(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{valid: func(cube.Pos) bool { return true }, interact: true}
	s := New(env, task, Traits{InPlace: true}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{0, 0, 0}), area.Closest, Config{})
	s.ShouldExecute()
	waitSorted(t, s)
	s.ShouldContinue()
	for i := 0; i < 3; i++ {
		if !s.ShouldContinue() {
			t.Fatalf("interact returning true must keep the task running")
		}
	}
	if s.TotalActions() != 1 || len(task.interacts) != 3 {
		t.Fatalf("expected 1 action and 3 interactions, got %d/%d", s.TotalActions(), len(task.interacts))
	}
}

func TestAbortStopsEverything(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{}
	s := New(env, task, Traits{RespectClaims: true}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{5, 0, 5}), area.Closest, Config{MaxLookups: 3})
	s.ShouldExecute()
	waitSorted(t, s)
	if !s.ShouldContinue() {
		t.Fatalf("expected the search to yield mid-scan")
	}
	task.valid = func(cube.Pos) bool { return true }
	s.Abort()
	validated := len(task.validated)
	if s.ShouldContinue() {
		t.Fatalf("aborted search must report not running")
	}
	if s.ShouldExecute() {
		t.Fatalf("aborted search must not restart")
	}
	if len(task.validated) != validated || len(env.nav.calls) != 0 || env.claims.Len() != 0 {
		t.Fatalf("no side effects allowed after abort")
	}
	if s.State() != StateAborted {
		t.Fatalf("expected aborted state, got %v", s.State())
	}
}

func TestActionLimit(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{valid: func(cube.Pos) bool { return true }, interact: false}
	s := New(env, task, Traits{InPlace: true}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{9, 0, 0}), area.Closest, Config{}).SetMaxActions(3)
	for i := 0; i < 3; i++ {
		if !s.ShouldExecute() {
			t.Fatalf("cycle %d: expected to start", i)
		}
		waitSorted(t, s)
		s.ShouldContinue()
		s.ShouldContinue()
	}
	if s.TotalActions() != 3 {
		t.Fatalf("expected 3 actions, got %d", s.TotalActions())
	}
	for i := 0; i < 5; i++ {
		if s.ShouldExecute() {
			t.Fatalf("search must not start past its action limit")
		}
	}
	if !s.Done() {
		t.Fatalf("expected done after the limit")
	}
}

func TestNavigationFailureContinuesScanning(t *testing.T) {
	env := newStubEnv()
	env.pos = mgl64.Vec3{0.5, 0.5, -20}
	blocked := cube.Pos{0, 0, 0}
	env.nav.accept = func(target mgl64.Vec3) bool {
		return target.Sub(blocked.Vec3Centre()).LenSqr() > 1.1
	}
	task := &stubTask{valid: func(cube.Pos) bool { return true }}
	s := New(env, task, Traits{}, area.Region{Positions: []cube.Pos{blocked, {0, 0, 10}}, MinY: 0, MaxY: 0}, area.Closest, Config{})
	s.ShouldExecute()
	waitSorted(t, s)
	if !s.ShouldContinue() {
		t.Fatalf("expected the second candidate to be reachable")
	}
	if env.dbg.count(KeyCantNavigate) != 1 {
		t.Fatalf("expected one cant-navigate entry, got %v", env.dbg.entries)
	}
	if p, _ := s.Candidate(); p != (cube.Pos{0, 0, 10}) {
		t.Fatalf("expected the reachable candidate, got %v", p)
	}
}

func TestTeleportCountsAsArrival(t *testing.T) {
	env := newStubEnv()
	env.nav.accept = func(mgl64.Vec3) bool { return false }
	env.nav.teleport = true
	task := &stubTask{valid: func(cube.Pos) bool { return true }}
	s := New(env, task, Traits{}, cubeRegion(cube.Pos{5, 0, 5}, cube.Pos{5, 0, 5}), area.Closest, Config{})
	s.ShouldExecute()
	waitSorted(t, s)
	if !s.ShouldContinue() || s.TotalActions() != 1 {
		t.Fatalf("expected teleport to commit the candidate")
	}
	if env.dbg.count(KeyCantNavigate) != 0 {
		t.Fatalf("teleport must not be reported as a navigation failure")
	}
}

func TestSidedApproach(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{valid: func(cube.Pos) bool { return true }}
	target := cube.Pos{3, 0, 3}
	s := New(env, task, Traits{Sides: []cube.Face{cube.FaceUp}}, cubeRegion(target, target), area.Closest, Config{})
	s.ShouldExecute()
	waitSorted(t, s)
	s.ShouldContinue()
	if len(env.nav.calls) != 1 || env.nav.calls[0] != target.Side(cube.FaceUp).Vec3Centre() {
		t.Fatalf("expected a single move to the top face, got %v", env.nav.calls)
	}
}

func TestApproachSkipsSolidNeighbours(t *testing.T) {
	env := newStubEnv()
	target := cube.Pos{3, 0, 3}
	env.solid[target.Side(cube.FaceDown)] = true
	task := &stubTask{valid: func(cube.Pos) bool { return true }}
	s := New(env, task, Traits{}, cubeRegion(target, target), area.Closest, Config{})
	s.ShouldExecute()
	waitSorted(t, s)
	s.ShouldContinue()
	if len(env.nav.calls) != 1 || env.nav.calls[0] != target.Side(cube.FaceUp).Vec3Centre() {
		t.Fatalf("expected to skip the solid face below, got %v", env.nav.calls)
	}
}

func TestMoveIntoFluidNeedsPermission(t *testing.T) {
	env := newStubEnv()
	target := cube.Pos{1, 0, 1}
	env.fluids[target] = "WATER"
	task := &stubTask{valid: func(cube.Pos) bool { return true }}
	s := New(env, task, Traits{MoveIntoBlock: true}, cubeRegion(target, target), area.Closest, Config{})
	s.ShouldExecute()
	waitSorted(t, s)
	if s.ShouldContinue() || len(env.nav.calls) != 0 {
		t.Fatalf("drone without fluid permission must not enter water")
	}

	env.allowFluid = true
	s.ShouldExecute()
	waitSorted(t, s)
	if !s.ShouldContinue() {
		t.Fatalf("expected to enter the fluid block")
	}
	if env.nav.calls[0] != target.Vec3Centre() {
		t.Fatalf("move-into should target the block itself, got %v", env.nav.calls[0])
	}
}

func TestNavigateThenInteractWithinRange(t *testing.T) {
	env := newStubEnv()
	target := cube.Pos{8, 0, 0}
	task := &stubTask{valid: func(cube.Pos) bool { return true }, interact: false}
	s := New(env, task, Traits{RespectClaims: true}, cubeRegion(target, target), area.Closest, Config{})
	s.ShouldExecute()
	waitSorted(t, s)
	s.ShouldContinue()
	if s.State() != StateNavigating {
		t.Fatalf("expected navigating, got %v", s.State())
	}
	if !s.ShouldContinue() || len(task.interacts) != 0 {
		t.Fatalf("expected to keep travelling without interacting")
	}
	env.pos = env.nav.calls[0]
	if s.ShouldContinue() {
		t.Fatalf("interaction returning false should stop the task")
	}
	if len(task.interacts) != 1 {
		t.Fatalf("expected one interaction on arrival")
	}

	env.pos = mgl64.Vec3{100, 100, 100}
	env.nav.noPath = true
	if s.ShouldContinue() {
		t.Fatalf("out of range with no path should stop")
	}
}

type recordingObserver struct {
	pos  mgl64.Vec3
	msgs []any
}

func (o *recordingObserver) ID() string                { return "O1" }
func (o *recordingObserver) Pos() mgl64.Vec3           { return o.pos }
func (o *recordingObserver) HasCapability(string) bool { return true }
func (o *recordingObserver) Send(msg any) bool         { o.msgs = append(o.msgs, msg); return true }

func TestIndicatorsSentOncePerWindow(t *testing.T) {
	env := newStubEnv()
	obs := &recordingObserver{pos: mgl64.Vec3{0, 0, 0}}
	env.dbg.observers = []observe.Observer{obs}
	task := &stubTask{}
	s := New(env, task, Traits{}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{3, 0, 3}), area.Closest, Config{MaxLookups: 4, Color: 0xff0000})
	s.ShouldExecute()
	waitSorted(t, s)
	s.ShouldContinue()
	if len(obs.msgs) != 1 {
		t.Fatalf("expected one indicator per scan window, got %d", len(obs.msgs))
	}
	ind, ok := obs.msgs[0].(observe.Indicator)
	if !ok || len(ind.Positions) != 4 || ind.Color != 0xff0000 {
		t.Fatalf("unexpected indicator %#v", obs.msgs[0])
	}
}

func TestResetDiscardsSorter(t *testing.T) {
	env := newStubEnv()
	task := &stubTask{valid: func(p cube.Pos) bool { return p.X() == 7 }}
	s := New(env, task, Traits{InPlace: true}, cubeRegion(cube.Pos{0, 0, 0}, cube.Pos{1, 0, 0}), area.Closest, Config{})
	s.ShouldExecute()
	s.Reset(cubeRegion(cube.Pos{7, 0, 0}, cube.Pos{7, 0, 0}))
	if s.State() != StateIdle {
		t.Fatalf("reset should leave the search idle")
	}
	s.ShouldExecute()
	waitSorted(t, s)
	if !s.ShouldContinue() {
		t.Fatalf("expected the new region to be searched")
	}
}
