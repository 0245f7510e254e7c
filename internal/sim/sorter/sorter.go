package sorter

import (
	"context"
	"sort"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/atomic"

	"dronecraft.ai/internal/sim/area"
)

// Less reports whether a ranks before b.
type Less func(a, b cube.Pos) bool

// Job is one background sort. Callers poll Done and must not read the
// result before it reports true.
type Job struct {
	positions []cube.Pos
	less      Less

	done atomic.Bool
	ch   chan struct{}
}

func (j *Job) Done() bool { return j.done.Load() }

// Result returns the ranked copy, or nil while the job is still running.
func (j *Job) Result() []cube.Pos {
	if !j.done.Load() {
		return nil
	}
	return j.positions
}

// Wait blocks until the job finishes or ctx ends. The world loop never
// calls it; it exists for tools and tests.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) run() {
	sort.SliceStable(j.positions, func(a, b int) bool {
		return j.less(j.positions[a], j.positions[b])
	})
	j.done.Store(true)
	close(j.ch)
}

// Pool ranks position lists on a fixed set of worker goroutines.
type Pool struct {
	jobs chan *Job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Uint64
	overflow  atomic.Uint64
}

func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 64
	}
	p := &Pool{jobs: make(chan *Job, queue)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				j.run()
			}
		}()
	}
	return p
}

// Sort copies positions and ranks the copy in the background. It never
// blocks: with a full queue, or a nil or closed pool, the job gets its own
// goroutine.
func (p *Pool) Sort(positions []cube.Pos, less Less) *Job {
	j := &Job{
		positions: append([]cube.Pos(nil), positions...),
		less:      less,
		ch:        make(chan struct{}),
	}
	if p == nil {
		go j.run()
		return j
	}
	p.submitted.Inc()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		go j.run()
		return j
	}
	select {
	case p.jobs <- j:
	default:
		p.overflow.Inc()
		go j.run()
	}
	return j
}

// Stats returns the number of submitted jobs and how many bypassed the queue.
func (p *Pool) Stats() (submitted, overflow uint64) {
	return p.submitted.Load(), p.overflow.Load()
}

// Close stops accepting queued work and waits for the workers to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// PositionLess ranks positions for a drone at origin. Layered orderings
// compare Y first; ties (and CLOSEST) fall back to the squared distance
// between origin and the block centre.
func PositionLess(origin mgl64.Vec3, order area.Ordering) Less {
	return func(a, b cube.Pos) bool {
		if order.Layered() && a.Y() != b.Y() {
			if order == area.HighToLow {
				return a.Y() > b.Y()
			}
			return a.Y() < b.Y()
		}
		return distSq(origin, a) < distSq(origin, b)
	}
}

func distSq(origin mgl64.Vec3, p cube.Pos) float64 {
	return p.Vec3Centre().Sub(origin).LenSqr()
}
