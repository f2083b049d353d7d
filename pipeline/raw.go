package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/blobstore"
	"github.com/hupe1980/greyhound/codec"
	"github.com/hupe1980/greyhound/schema"
	"github.com/klauspost/compress/zstd"
)

// rawMagic opens every .grp file.
var rawMagic = [4]byte{'G', 'R', 'P', '1'}

const rawPrefixSize = 8 // magic + uint32 header length

// Raw body compression values.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// RawHeader is the JSON header of a .grp file.
type RawHeader struct {
	Schema      *schema.Schema `json:"schema"`
	NumPoints   uint64         `json:"numPoints"`
	Bounds      bbox.BBox      `json:"bounds"`
	SRS         string         `json:"srs,omitempty"`
	Compression string         `json:"compression,omitempty"`
}

// EncodeRaw serializes points in the .grp layout. NumPoints and Bounds of h
// are computed from points.
func EncodeRaw(c codec.Codec, h RawHeader, points [][]float64) ([]byte, error) {
	if h.Schema == nil {
		return nil, fmt.Errorf("%w: raw header needs a schema", ErrInvalidOptions)
	}
	c = codec.OrDefault(c)

	h.NumPoints = uint64(len(points))
	h.Bounds = bbox.Empty()
	xi, hasX := h.Schema.Find("X")
	yi, hasY := h.Schema.Find("Y")
	zi, hasZ := h.Schema.Find("Z")

	body := make([]byte, 0, len(points)*h.Schema.PointSize())
	rec := make([]byte, h.Schema.PointSize())
	for _, p := range points {
		h.Schema.Encode(rec, p)
		body = append(body, rec...)
		if hasX && hasY && hasZ {
			h.Bounds = h.Bounds.Grow(bbox.Point{X: p[xi], Y: p[yi], Z: p[zi]})
		}
	}
	if !h.Bounds.Exists() {
		h.Bounds = bbox.BBox{}
	}

	switch h.Compression {
	case "", CompressionNone:
		h.Compression = CompressionNone
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		body = enc.EncodeAll(body, nil)
		_ = enc.Close()
	default:
		return nil, fmt.Errorf("%w: compression %q", ErrInvalidOptions, h.Compression)
	}

	hdr, err := c.Marshal(h)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(rawPrefixSize + len(hdr) + len(body))
	buf.Write(rawMagic[:])
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(hdr)))
	buf.Write(hdr)
	buf.Write(body)
	return buf.Bytes(), nil
}

type rawStage struct {
	opts Options
}

func newRawStage(opts Options) (Stage, error) {
	return &rawStage{opts: opts}, nil
}

func (s *rawStage) Driver() string { return DriverRaw }

func (s *rawStage) header(ctx context.Context, r blobstore.Blob) (RawHeader, int64, error) {
	var prefix [rawPrefixSize]byte
	if _, err := r.ReadAt(ctx, prefix[:], 0); err != nil {
		return RawHeader{}, 0, fmt.Errorf("%w: %s: short prefix: %v", ErrMalformed, s.opts.Filename, err)
	}
	if !bytes.Equal(prefix[:4], rawMagic[:]) {
		return RawHeader{}, 0, fmt.Errorf("%w: %s: bad magic", ErrMalformed, s.opts.Filename)
	}

	n := binary.LittleEndian.Uint32(prefix[4:])
	buf := make([]byte, n)
	if _, err := r.ReadAt(ctx, buf, rawPrefixSize); err != nil {
		return RawHeader{}, 0, fmt.Errorf("%w: %s: short header: %v", ErrMalformed, s.opts.Filename, err)
	}

	var h RawHeader
	if err := s.opts.Codec.Unmarshal(buf, &h); err != nil {
		return RawHeader{}, 0, fmt.Errorf("%w: %s: %v", ErrMalformed, s.opts.Filename, err)
	}
	if h.Schema == nil {
		return RawHeader{}, 0, fmt.Errorf("%w: %s: missing schema", ErrMalformed, s.opts.Filename)
	}
	return h, rawPrefixSize + int64(n), nil
}

func (s *rawStage) Preview(ctx context.Context) (Preview, error) {
	blob, err := s.opts.Arbiter.Open(ctx, s.opts.Filename)
	if err != nil {
		return Preview{}, err
	}
	defer blob.Close()

	h, _, err := s.header(ctx, blob)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		NumPoints: h.NumPoints,
		Schema:    h.Schema,
		Bounds:    h.Bounds,
		SRS:       h.SRS,
	}, nil
}

func (s *rawStage) Read(ctx context.Context, fn PointFunc) error {
	blob, err := s.opts.Arbiter.Open(ctx, s.opts.Filename)
	if err != nil {
		return err
	}
	defer blob.Close()

	h, off, err := s.header(ctx, blob)
	if err != nil {
		return err
	}

	body, err := blob.ReadRange(ctx, off, blob.Size()-off)
	if err != nil {
		return err
	}
	defer body.Close()

	var r io.Reader = bufio.NewReaderSize(body, 64<<10)
	switch h.Compression {
	case "", CompressionNone:
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer dec.Close()
		r = dec
	default:
		return fmt.Errorf("%w: %s: compression %q", ErrMalformed, s.opts.Filename, h.Compression)
	}

	rec := make([]byte, h.Schema.PointSize())
	values := make([]float64, h.Schema.Len())
	for i := uint64(0); i < h.NumPoints; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := io.ReadFull(r, rec); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: %s: truncated at point %d of %d", ErrMalformed, s.opts.Filename, i, h.NumPoints)
			}
			return err
		}
		h.Schema.Decode(values, rec)
		if err := fn(values); err != nil {
			return err
		}
	}
	return nil
}
