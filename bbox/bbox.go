// Package bbox provides the 3D axis-aligned bounding volume used to filter
// indexed reads and to address octree nodes.
package bbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalid is returned for boxes whose minimum exceeds their maximum.
var ErrInvalid = errors.New("bbox: min exceeds max")

// Point is a 3D coordinate.
type Point struct {
	X, Y, Z float64
}

// BBox is an axis-aligned box. Min is inclusive, Max is inclusive.
type BBox struct {
	Min Point
	Max Point
}

// New returns the box spanning min and max.
func New(minX, minY, minZ, maxX, maxY, maxZ float64) (BBox, error) {
	b := BBox{Min: Point{minX, minY, minZ}, Max: Point{maxX, maxY, maxZ}}
	if !b.valid() {
		return BBox{}, fmt.Errorf("%w: %v", ErrInvalid, b)
	}
	return b, nil
}

// Everything returns a box containing every finite point.
func Everything() BBox {
	inf := math.Inf(1)
	return BBox{Min: Point{-inf, -inf, -inf}, Max: Point{inf, inf, inf}}
}

// Empty returns a box that Grow can expand from and that contains nothing.
func Empty() BBox {
	inf := math.Inf(1)
	return BBox{Min: Point{inf, inf, inf}, Max: Point{-inf, -inf, -inf}}
}

func (b BBox) valid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// Exists reports whether the box encloses at least one point.
func (b BBox) Exists() bool {
	return b.valid()
}

// Contains reports whether p lies inside b.
func (b BBox) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ContainsBox reports whether o lies entirely inside b.
func (b BBox) ContainsBox(o BBox) bool {
	return b.Contains(o.Min) && b.Contains(o.Max)
}

// Overlaps reports whether b and o share at least one point.
func (b BBox) Overlaps(o BBox) bool {
	if !b.Exists() || !o.Exists() {
		return false
	}
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Grow returns b expanded to include p.
func (b BBox) Grow(p Point) BBox {
	return BBox{
		Min: Point{min(b.Min.X, p.X), min(b.Min.Y, p.Y), min(b.Min.Z, p.Z)},
		Max: Point{max(b.Max.X, p.X), max(b.Max.Y, p.Y), max(b.Max.Z, p.Z)},
	}
}

// Mid returns the center of b.
func (b BBox) Mid() Point {
	return Point{
		X: b.Min.X + (b.Max.X-b.Min.X)/2,
		Y: b.Min.Y + (b.Max.Y-b.Min.Y)/2,
		Z: b.Min.Z + (b.Max.Z-b.Min.Z)/2,
	}
}

// Octant returns the index (0..7) of the child of b that p falls into.
// Bit 0 is east (x >= mid), bit 1 north (y >= mid), bit 2 up (z >= mid).
func (b BBox) Octant(p Point) int {
	mid := b.Mid()
	i := 0
	if p.X >= mid.X {
		i |= 1
	}
	if p.Y >= mid.Y {
		i |= 2
	}
	if p.Z >= mid.Z {
		i |= 4
	}
	return i
}

// Child returns the i-th octant of b, using the bit layout of Octant.
func (b BBox) Child(i int) BBox {
	mid := b.Mid()
	c := b
	if i&1 != 0 {
		c.Min.X = mid.X
	} else {
		c.Max.X = mid.X
	}
	if i&2 != 0 {
		c.Min.Y = mid.Y
	} else {
		c.Max.Y = mid.Y
	}
	if i&4 != 0 {
		c.Min.Z = mid.Z
	} else {
		c.Max.Z = mid.Z
	}
	return c
}

// Cubify returns the smallest cube centered on b that contains b.
// Octree roots are cubic so every depth subdivides evenly.
func (b BBox) Cubify() BBox {
	mid := b.Mid()
	r := max(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y, b.Max.Z-b.Min.Z) / 2
	if r == 0 {
		r = 1
	}
	return BBox{
		Min: Point{mid.X - r, mid.Y - r, mid.Z - r},
		Max: Point{mid.X + r, mid.Y + r, mid.Z + r},
	}
}

// Pad returns b grown by d on every side.
func (b BBox) Pad(d float64) BBox {
	return BBox{
		Min: Point{b.Min.X - d, b.Min.Y - d, b.Min.Z - d},
		Max: Point{b.Max.X + d, b.Max.Y + d, b.Max.Z + d},
	}
}

// Volume returns the volume of b, or 0 when b is empty.
func (b BBox) Volume() float64 {
	if !b.Exists() {
		return 0
	}
	return (b.Max.X - b.Min.X) * (b.Max.Y - b.Min.Y) * (b.Max.Z - b.Min.Z)
}

func (b BBox) String() string {
	return fmt.Sprintf("[%g, %g, %g, %g, %g, %g]", b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
}

// MarshalJSON encodes b as [minx, miny, minz, maxx, maxy, maxz].
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([6]float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z})
}

// UnmarshalJSON decodes the six-element array form. A four-element array is
// read as a 2D box [minx, miny, maxx, maxy] spanning all of z.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	var out BBox
	switch len(v) {
	case 6:
		out = BBox{Min: Point{v[0], v[1], v[2]}, Max: Point{v[3], v[4], v[5]}}
	case 4:
		inf := math.Inf(1)
		out = BBox{Min: Point{v[0], v[1], -inf}, Max: Point{v[2], v[3], inf}}
	default:
		return fmt.Errorf("bbox: want 4 or 6 values, got %d", len(v))
	}
	if !out.valid() {
		return fmt.Errorf("%w: %v", ErrInvalid, out)
	}
	*b = out
	return nil
}
