// Package world provides the collision environment the simulated sensor
// queries. The sensor only ever reads it: CastRay is the single capability
// it needs. A small primitive scene (boxes, spheres, ground plane) is
// included for the demo binary and tests.
package world

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Hit describes a ray intersection.
type Hit struct {
	Distance float64
	Point    r3.Vec
}

// Environment is the read-only collision query used by lasers.
type Environment interface {
	// CastRay returns the nearest hit along dir (unit length) from origin
	// within maxDistance, or false if nothing was hit.
	CastRay(origin, dir r3.Vec, maxDistance float64) (Hit, bool)
}

// Overlapper reports whether a sphere intersects any geometry.
type Overlapper interface {
	OverlapSphere(center r3.Vec, radius float64) bool
}

// Shape is a primitive that can be placed in a Scene.
type Shape interface {
	// intersect returns the smallest positive ray parameter, or +Inf.
	intersect(o, d r3.Vec) float64
	overlapsSphere(c r3.Vec, radius float64) bool
}

// Scene is a static list of shapes. It is safe for concurrent reads once
// built; Add must not race with CastRay.
type Scene struct {
	shapes []Shape
}

// NewScene returns a scene containing shapes.
func NewScene(shapes ...Shape) *Scene {
	return &Scene{shapes: shapes}
}

// Add appends shapes to the scene.
func (s *Scene) Add(shapes ...Shape) { s.shapes = append(s.shapes, shapes...) }

// Len returns the number of shapes.
func (s *Scene) Len() int { return len(s.shapes) }

// CastRay implements Environment.
func (s *Scene) CastRay(origin, dir r3.Vec, maxDistance float64) (Hit, bool) {
	best := math.Inf(1)
	for _, sh := range s.shapes {
		if t := sh.intersect(origin, dir); t < best {
			best = t
		}
	}
	if math.IsInf(best, 1) || best > maxDistance {
		return Hit{}, false
	}
	return Hit{Distance: best, Point: r3.Add(origin, r3.Scale(best, dir))}, true
}

// OverlapSphere implements Overlapper.
func (s *Scene) OverlapSphere(center r3.Vec, radius float64) bool {
	for _, sh := range s.shapes {
		if sh.overlapsSphere(center, radius) {
			return true
		}
	}
	return false
}

// Box is an axis-aligned box.
type Box struct {
	Min, Max r3.Vec
}

// NewBox builds a box from its center and full extents.
func NewBox(center, size r3.Vec) Box {
	h := r3.Scale(0.5, size)
	return Box{Min: r3.Sub(center, h), Max: r3.Add(center, h)}
}

// intersect uses the slab method. A ray starting inside the box reports the
// exit distance so enclosing rooms behave like walls.
func (b Box) intersect(o, d r3.Vec) float64 {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	origins := [3]float64{o.X, o.Y, o.Z}
	dirs := [3]float64{d.X, d.Y, d.Z}
	mins := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	maxs := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	for i := range origins {
		origin, dir := origins[i], dirs[i]
		if math.Abs(dir) < 1e-12 {
			if origin < mins[i] || origin > maxs[i] {
				return math.Inf(1)
			}
			continue
		}
		inv := 1 / dir
		t1 := (mins[i] - origin) * inv
		t2 := (maxs[i] - origin) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
	}
	if tmax < 0 || tmin > tmax {
		return math.Inf(1)
	}
	if tmin > 1e-9 {
		return tmin
	}
	if tmax > 1e-9 {
		return tmax
	}
	return math.Inf(1)
}

func (b Box) overlapsSphere(c r3.Vec, radius float64) bool {
	closest := r3.Vec{
		X: clamp(c.X, b.Min.X, b.Max.X),
		Y: clamp(c.Y, b.Min.Y, b.Max.Y),
		Z: clamp(c.Z, b.Min.Z, b.Max.Z),
	}
	return r3.Norm2(r3.Sub(c, closest)) <= radius*radius
}

// Sphere is a solid sphere.
type Sphere struct {
	Center r3.Vec
	Radius float64
}

func (s Sphere) intersect(o, d r3.Vec) float64 {
	oc := r3.Sub(o, s.Center)
	b := r3.Dot(oc, d)
	c := r3.Dot(oc, oc) - s.Radius*s.Radius
	disc := b*b - c
	if disc < 0 {
		return math.Inf(1)
	}
	sq := math.Sqrt(disc)
	if t := -b - sq; t > 1e-9 {
		return t
	}
	if t := -b + sq; t > 1e-9 {
		return t
	}
	return math.Inf(1)
}

func (s Sphere) overlapsSphere(c r3.Vec, radius float64) bool {
	r := s.Radius + radius
	return r3.Norm2(r3.Sub(c, s.Center)) <= r*r
}

// Ground is the infinite horizontal plane z = Height. Only rays travelling
// downward from above it hit.
type Ground struct {
	Height float64
}

func (g Ground) intersect(o, d r3.Vec) float64 {
	if d.Z >= -1e-12 || o.Z < g.Height {
		return math.Inf(1)
	}
	t := (g.Height - o.Z) / d.Z
	if t <= 1e-9 {
		return math.Inf(1)
	}
	return t
}

func (g Ground) overlapsSphere(c r3.Vec, radius float64) bool {
	return c.Z-radius <= g.Height
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
