package area

import (
	"errors"
	"fmt"
	"strings"
)

// Ordering decides how a drone ranks the positions of its area and which
// Y layer is eligible while it searches.
type Ordering int

const (
	Closest Ordering = iota
	HighToLow
	LowToHigh
)

var ErrUnknownOrdering = errors.New("unknown ordering")

func (o Ordering) String() string {
	switch o {
	case HighToLow:
		return "HIGH_TO_LOW"
	case LowToHigh:
		return "LOW_TO_HIGH"
	default:
		return "CLOSEST"
	}
}

func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "CLOSEST":
		return Closest, nil
	case "HIGH_TO_LOW":
		return HighToLow, nil
	case "LOW_TO_HIGH":
		return LowToHigh, nil
	default:
		return Closest, fmt.Errorf("%w: %q", ErrUnknownOrdering, s)
	}
}

func (o Ordering) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Ordering) UnmarshalText(b []byte) error {
	v, err := ParseOrdering(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Layered reports whether only one Y layer is eligible at a time.
func (o Ordering) Layered() bool { return o != Closest }

// StartY is the layer a fresh search begins on.
func (o Ordering) StartY(r Region) int {
	switch o {
	case HighToLow:
		return r.MaxY
	case LowToHigh:
		return r.MinY
	default:
		return 0
	}
}

// NextY advances cur by one layer in the ordering's direction, wrapping
// between the region's bounds.
func (o Ordering) NextY(cur int, r Region) int {
	switch o {
	case LowToHigh:
		cur++
		if cur > r.MaxY {
			cur = r.MinY
		}
	case HighToLow:
		cur--
		if cur < r.MinY {
			cur = r.MaxY
		}
	}
	return cur
}
