package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/schema"
)

// Blob names inside an index root.
const (
	MetadataName  = "entwine"
	HierarchyName = "entwine-hierarchy"
)

// FormatVersion is written into new metadata.
const FormatVersion = "1.0"

// Metadata is the JSON document stored at <root>/entwine.
type Metadata struct {
	Version     string         `json:"version"`
	Bounds      bbox.BBox      `json:"bounds"`
	Conforming  bbox.BBox      `json:"boundsConforming"`
	Schema      *schema.Schema `json:"schema"`
	SRS         string         `json:"srs,omitempty"`
	NumPoints   uint64         `json:"numPoints"`
	Compression Compression    `json:"compression"`
	Depth       int            `json:"depth"`
	Capacity    int            `json:"capacity"`
}

func (m *Metadata) validate() error {
	switch {
	case m.Schema == nil:
		return fmt.Errorf("%w: missing schema", ErrCorrupt)
	case !m.Schema.HasXYZ():
		return fmt.Errorf("%w: schema lacks X/Y/Z", ErrCorrupt)
	case !m.Bounds.Exists():
		return fmt.Errorf("%w: invalid bounds", ErrCorrupt)
	case m.Depth < 0 || m.Depth > MaxDepth+1:
		return fmt.Errorf("%w: depth %d", ErrCorrupt, m.Depth)
	}
	return nil
}

// Hierarchy records which nodes exist, one bitmap per depth.
type Hierarchy []*roaring.Bitmap

// Has reports whether node k exists.
func (h Hierarchy) Has(k Key) bool {
	return k.Depth < len(h) && h[k.Depth].Contains(k.ID())
}

// Nodes returns the number of nodes.
func (h Hierarchy) Nodes() uint64 {
	var n uint64
	for _, bm := range h {
		n += bm.GetCardinality()
	}
	return n
}

func (h Hierarchy) add(k Key) Hierarchy {
	for len(h) <= k.Depth {
		h = append(h, roaring.New())
	}
	h[k.Depth].Add(k.ID())
	return h
}

// MarshalBinary writes the depth count followed by one length-prefixed
// bitmap per depth.
func (h Hierarchy) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(h)))
	for _, bm := range h {
		bm.RunOptimize()
		var part bytes.Buffer
		if _, err := bm.WriteTo(&part); err != nil {
			return nil, err
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint32(part.Len()))
		buf.Write(part.Bytes())
	}
	return buf.Bytes(), nil
}

func decodeHierarchy(data []byte) (Hierarchy, error) {
	r := bytes.NewReader(data)

	var depths uint32
	if err := binary.Read(r, binary.LittleEndian, &depths); err != nil {
		return nil, fmt.Errorf("%w: hierarchy header: %v", ErrCorrupt, err)
	}
	if depths > MaxDepth+1 {
		return nil, fmt.Errorf("%w: hierarchy depth %d", ErrCorrupt, depths)
	}

	h := make(Hierarchy, depths)
	for d := range h {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: hierarchy depth %d: %v", ErrCorrupt, d, err)
		}
		if int64(n) > int64(r.Len()) {
			return nil, fmt.Errorf("%w: hierarchy depth %d truncated", ErrCorrupt, d)
		}
		part := make([]byte, n)
		if _, err := io.ReadFull(r, part); err != nil {
			return nil, fmt.Errorf("%w: hierarchy depth %d truncated", ErrCorrupt, d)
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(part); err != nil {
			return nil, fmt.Errorf("%w: hierarchy depth %d: %v", ErrCorrupt, d, err)
		}
		h[d] = bm
	}
	return h, nil
}
