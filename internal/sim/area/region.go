package area

import (
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// Region is an immutable ordered list of block positions plus its Y bounds.
// Callers must not modify Positions.
type Region struct {
	Positions []cube.Pos
	MinY      int
	MaxY      int
}

func (r Region) Len() int    { return len(r.Positions) }
func (r Region) Empty() bool { return len(r.Positions) == 0 }
func (r Region) Layers() int {
	if r.Empty() {
		return 0
	}
	return r.MaxY - r.MinY + 1
}

// Box is an inclusive axis-aligned box between two corners.
type Box struct {
	From cube.Pos
	To   cube.Pos
}

func (b Box) bounds() (lo, hi cube.Pos) {
	for i := 0; i < 3; i++ {
		lo[i], hi[i] = b.From[i], b.To[i]
		if lo[i] > hi[i] {
			lo[i], hi[i] = hi[i], lo[i]
		}
	}
	return lo, hi
}

// Volume is the number of positions inside the box.
func (b Box) Volume() int {
	lo, hi := b.bounds()
	return (hi[0] - lo[0] + 1) * (hi[1] - lo[1] + 1) * (hi[2] - lo[2] + 1)
}

// FromBoxes builds a region from the union of boxes in x, y, z iteration
// order. Positions shared by several boxes appear once, at their first
// occurrence.
func FromBoxes(boxes ...Box) Region {
	var r Region
	seen := map[cube.Pos]struct{}{}
	for _, b := range boxes {
		lo, hi := b.bounds()
		for x := lo[0]; x <= hi[0]; x++ {
			for y := lo[1]; y <= hi[1]; y++ {
				for z := lo[2]; z <= hi[2]; z++ {
					p := cube.Pos{x, y, z}
					if _, ok := seen[p]; ok {
						continue
					}
					seen[p] = struct{}{}
					if len(r.Positions) == 0 || y < r.MinY {
						r.MinY = y
					}
					if len(r.Positions) == 0 || y > r.MaxY {
						r.MaxY = y
					}
					r.Positions = append(r.Positions, p)
				}
			}
		}
	}
	return r
}

// Area is the task-owned description of where a drone works. The region is
// computed on first use and cached.
type Area struct {
	boxes []Box

	once   sync.Once
	region Region
}

func New(boxes ...Box) *Area {
	return &Area{boxes: append([]Box(nil), boxes...)}
}

func (a *Area) Boxes() []Box { return append([]Box(nil), a.boxes...) }

func (a *Area) Region() Region {
	a.once.Do(func() { a.region = FromBoxes(a.boxes...) })
	return a.region
}
