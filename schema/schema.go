// Package schema describes the attribute layout of a point record.
//
// A Schema is an ordered list of fixed-width dimensions. Records are packed
// little-endian in schema order with no padding, which is also the layout of
// every block a query cursor emits.
package schema

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidDimension is returned for unsupported type/size combinations.
	ErrInvalidDimension = errors.New("schema: invalid dimension")

	// ErrDuplicateDimension is returned when a name appears twice.
	ErrDuplicateDimension = errors.New("schema: duplicate dimension")

	// ErrEmpty is returned for a schema without dimensions.
	ErrEmpty = errors.New("schema: no dimensions")
)

// DimType is the numeric kind of a dimension.
type DimType uint8

const (
	Signed DimType = iota + 1
	Unsigned
	Floating
)

func (t DimType) String() string {
	switch t {
	case Signed:
		return "signed"
	case Unsigned:
		return "unsigned"
	case Floating:
		return "floating"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t DimType) MarshalText() ([]byte, error) {
	s := t.String()
	if s == "unknown" {
		return nil, fmt.Errorf("%w: type %d", ErrInvalidDimension, t)
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DimType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "signed", "int":
		*t = Signed
	case "unsigned", "uint":
		*t = Unsigned
	case "floating", "float", "double":
		*t = Floating
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidDimension, b)
	}
	return nil
}

// DimInfo is a single named dimension.
type DimInfo struct {
	Name string  `json:"name"`
	Type DimType `json:"type"`
	Size int     `json:"size"`
}

func (d DimInfo) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDimension)
	}
	switch d.Type {
	case Signed, Unsigned:
		switch d.Size {
		case 1, 2, 4, 8:
			return nil
		}
	case Floating:
		switch d.Size {
		case 4, 8:
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s/%d", ErrInvalidDimension, d.Name, d.Type, d.Size)
}

// Common dimensions.
var (
	X         = DimInfo{Name: "X", Type: Floating, Size: 8}
	Y         = DimInfo{Name: "Y", Type: Floating, Size: 8}
	Z         = DimInfo{Name: "Z", Type: Floating, Size: 8}
	Intensity = DimInfo{Name: "Intensity", Type: Unsigned, Size: 2}
)

// Schema is an immutable ordered set of dimensions.
type Schema struct {
	dims    []DimInfo
	offsets []int
	size    int
	byName  map[string]int
}

// New validates dims and builds a Schema.
func New(dims ...DimInfo) (*Schema, error) {
	if len(dims) == 0 {
		return nil, ErrEmpty
	}

	s := &Schema{
		dims:    make([]DimInfo, len(dims)),
		offsets: make([]int, len(dims)),
		byName:  make(map[string]int, len(dims)),
	}
	for i, d := range dims {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, ok := s.byName[d.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDimension, d.Name)
		}
		s.dims[i] = d
		s.offsets[i] = s.size
		s.byName[d.Name] = i
		s.size += d.Size
	}
	return s, nil
}

// MustNew is New for static schemas; it panics on error.
func MustNew(dims ...DimInfo) *Schema {
	s, err := New(dims...)
	if err != nil {
		panic(err)
	}
	return s
}

// XYZ returns a schema with double-precision X, Y and Z.
func XYZ() *Schema {
	return MustNew(X, Y, Z)
}

// PointSize is the packed record size in bytes.
func (s *Schema) PointSize() int { return s.size }

// Dims returns a copy of the dimensions in order.
func (s *Schema) Dims() []DimInfo {
	out := make([]DimInfo, len(s.dims))
	copy(out, s.dims)
	return out
}

// Len returns the number of dimensions.
func (s *Schema) Len() int { return len(s.dims) }

// Names returns the dimension names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.dims))
	for i, d := range s.dims {
		out[i] = d.Name
	}
	return out
}

// Find returns the position of the named dimension.
func (s *Schema) Find(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// HasXYZ reports whether the schema carries all three coordinates.
func (s *Schema) HasXYZ() bool {
	_, x := s.byName["X"]
	_, y := s.byName["Y"]
	_, z := s.byName["Z"]
	return x && y && z
}

// Equal reports whether both schemas have identical dimensions.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.dims) != len(o.dims) {
		return false
	}
	for i := range s.dims {
		if s.dims[i] != o.dims[i] {
			return false
		}
	}
	return true
}

// Encode packs values (one per dimension, schema order) into dst, which must
// hold at least PointSize bytes. Values are converted to the dimension type.
func (s *Schema) Encode(dst []byte, values []float64) {
	for i, d := range s.dims {
		putValue(dst[s.offsets[i]:], d, values[i])
	}
}

// Decode unpacks one record from src into dst (len >= Len()).
func (s *Schema) Decode(dst []float64, src []byte) {
	for i, d := range s.dims {
		dst[i] = getValue(src[s.offsets[i]:], d)
	}
}

// Projection maps records of s into the layout of out. Dimensions of out
// that s lacks are zero-filled.
type Projection struct {
	out *Schema
	src []int // index into source values, -1 for missing
}

// Project builds a projection from s onto out.
func (s *Schema) Project(out *Schema) *Projection {
	p := &Projection{out: out, src: make([]int, len(out.dims))}
	for i, d := range out.dims {
		j, ok := s.byName[d.Name]
		if !ok {
			j = -1
		}
		p.src[i] = j
	}
	return p
}

// Out returns the target schema.
func (p *Projection) Out() *Schema { return p.out }

// Append encodes the source values of one point in the target layout and
// appends the record to dst.
func (p *Projection) Append(dst []byte, values []float64) []byte {
	n := len(dst)
	dst = append(dst, make([]byte, p.out.size)...)
	rec := dst[n:]
	for i, d := range p.out.dims {
		if j := p.src[i]; j >= 0 {
			putValue(rec[p.out.offsets[i]:], d, values[j])
		}
	}
	return dst
}

func putValue(b []byte, d DimInfo, v float64) {
	switch d.Type {
	case Floating:
		if d.Size == 4 {
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		} else {
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		}
	case Signed:
		putUint(b, d.Size, uint64(int64(v)))
	case Unsigned:
		putUint(b, d.Size, uint64(v))
	}
}

func putUint(b []byte, size int, u uint64) {
	switch size {
	case 1:
		b[0] = byte(u)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(u))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(u))
	case 8:
		binary.LittleEndian.PutUint64(b, u)
	}
}

func getValue(b []byte, d DimInfo) float64 {
	switch d.Type {
	case Floating:
		if d.Size == 4 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case Signed:
		switch d.Size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(binary.LittleEndian.Uint16(b)))
		case 4:
			return float64(int32(binary.LittleEndian.Uint32(b)))
		default:
			return float64(int64(binary.LittleEndian.Uint64(b)))
		}
	default:
		switch d.Size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(binary.LittleEndian.Uint16(b))
		case 4:
			return float64(binary.LittleEndian.Uint32(b))
		default:
			return float64(binary.LittleEndian.Uint64(b))
		}
	}
}

// MarshalJSON encodes the schema as an array of dimensions.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.dims)
}

// UnmarshalJSON decodes and validates the array form.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var dims []DimInfo
	if err := json.Unmarshal(data, &dims); err != nil {
		return err
	}
	parsed, err := New(dims...)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
