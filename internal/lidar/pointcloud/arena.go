package pointcloud

import (
	"image/color"

	"gonum.org/v1/gonum/spatial/r3"
)

// Handle indexes a Record in an Arena.
type Handle uint32

// Band is the radius class a point is coloured by.
type Band uint8

const (
	// BandNear is any return closer than 5 m.
	BandNear Band = iota
	// BandMid covers 5 m to 10 m inclusive.
	BandMid
	// BandFar is anything beyond 10 m.
	BandFar
)

// BandFor classifies a radius.
func BandFor(radius float64) Band {
	switch {
	case radius < 5:
		return BandNear
	case radius <= 10:
		return BandMid
	default:
		return BandFar
	}
}

func (b Band) String() string {
	switch b {
	case BandNear:
		return "near"
	case BandMid:
		return "mid"
	case BandFar:
		return "far"
	}
	return "unknown"
}

// Color returns the render colour: red, yellow or green.
func (b Band) Color() color.RGBA {
	switch b {
	case BandNear:
		return color.RGBA{R: 255, A: 255}
	case BandMid:
		return color.RGBA{R: 255, G: 255, A: 255}
	default:
		return color.RGBA{G: 255, A: 255}
	}
}

// Record lifetimes. Records live until replaced, never by timeout.
const (
	StartLifetime     = 1500.0
	RemainingLifetime = 3000.0
)

// Record is one rendered point.
type Record struct {
	Position  r3.Vec
	Radius    float64
	Band      Band
	Size      float64
	Start     float64
	Remaining float64
}

// Arena is a growable slab of Records addressed by Handle, with a LIFO
// free list. Acquire and Release are O(1). Not safe for concurrent use.
type Arena struct {
	slab []Record
	free []Handle
}

// NewArena returns an arena with room for capacity records before the slab
// has to grow.
func NewArena(capacity int) *Arena {
	return &Arena{slab: make([]Record, 0, capacity)}
}

// Acquire returns a released record if one is available, otherwise a
// freshly allocated one. The record's contents are unspecified.
func (a *Arena) Acquire() Handle {
	if n := len(a.free); n > 0 {
		h := a.free[n-1]
		a.free = a.free[:n-1]
		return h
	}
	a.slab = append(a.slab, Record{})
	return Handle(len(a.slab) - 1)
}

// Release returns h to the free list. Releasing a handle twice corrupts the
// arena.
func (a *Arena) Release(h Handle) {
	a.free = append(a.free, h)
}

// Get returns the record behind h.
func (a *Arena) Get(h Handle) *Record { return &a.slab[h] }

// Allocated is the number of records ever created.
func (a *Arena) Allocated() int { return len(a.slab) }

// Free is the number of records waiting on the free list.
func (a *Arena) Free() int { return len(a.free) }

// Live is the number of records currently handed out.
func (a *Arena) Live() int { return len(a.slab) - len(a.free) }
