package index

import "fmt"

// MaxDepth bounds the tree so node ids fit 32-bit hierarchy bitmaps.
const MaxDepth = 10

const axisBits = MaxDepth

// Key addresses an octree node.
type Key struct {
	Depth   int
	X, Y, Z uint32
}

// String returns the chunk blob name of the node.
func (k Key) String() string {
	return fmt.Sprintf("%d-%d-%d-%d", k.Depth, k.X, k.Y, k.Z)
}

// ID packs the coordinates into the per-depth hierarchy id.
func (k Key) ID() uint32 {
	return k.X | k.Y<<axisBits | k.Z<<(2*axisBits)
}

// Child returns the key of octant i (bbox.Octant bit layout).
func (k Key) Child(i int) Key {
	c := Key{Depth: k.Depth + 1, X: k.X << 1, Y: k.Y << 1, Z: k.Z << 1}
	if i&1 != 0 {
		c.X |= 1
	}
	if i&2 != 0 {
		c.Y |= 1
	}
	if i&4 != 0 {
		c.Z |= 1
	}
	return c
}
