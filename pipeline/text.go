package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/schema"
)

// ErrMalformed is returned for input files that cannot be parsed.
var ErrMalformed = errors.New("pipeline: malformed input")

type textStage struct {
	opts Options
}

func newTextStage(opts Options) (Stage, error) {
	return &textStage{opts: opts}, nil
}

func (s *textStage) Driver() string { return DriverText }

func (s *textStage) Preview(ctx context.Context) (Preview, error) {
	var (
		p       Preview
		x, y, z = -1, -1, -1
	)
	p.Bounds = bbox.Empty()

	err := s.scan(ctx, func(sc *schema.Schema) {
		p.Schema = sc
		x, _ = find(sc, "X")
		y, _ = find(sc, "Y")
		z, _ = find(sc, "Z")
	}, func(values []float64) error {
		p.NumPoints++
		if x >= 0 && y >= 0 && z >= 0 {
			p.Bounds = p.Bounds.Grow(bbox.Point{X: values[x], Y: values[y], Z: values[z]})
		}
		return nil
	})
	if err != nil {
		return Preview{}, err
	}
	return p, nil
}

func find(sc *schema.Schema, name string) (int, bool) {
	i, ok := sc.Find(name)
	if !ok {
		return -1, false
	}
	return i, true
}

func (s *textStage) Read(ctx context.Context, fn PointFunc) error {
	return s.scan(ctx, nil, fn)
}

func (s *textStage) scan(ctx context.Context, onHeader func(*schema.Schema), fn PointFunc) error {
	blob, err := s.opts.Arbiter.Open(ctx, s.opts.Filename)
	if err != nil {
		return err
	}
	defer blob.Close()

	r, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return err
	}
	defer r.Close()

	sc := bufio.NewScanner(r)
	var (
		dims   *schema.Schema
		comma  bool
		values []float64
		line   int
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if dims == nil {
			comma = strings.Contains(text, ",")
			dims, err = parseHeader(split(text, comma))
			if err != nil {
				return fmt.Errorf("%s:%d: %w", s.opts.Filename, line, err)
			}
			values = make([]float64, dims.Len())
			if onHeader != nil {
				onHeader(dims)
			}
			continue
		}

		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		fields := split(text, comma)
		if len(fields) != len(values) {
			return fmt.Errorf("%w: %s:%d: want %d fields, got %d", ErrMalformed, s.opts.Filename, line, len(values), len(fields))
		}
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return fmt.Errorf("%w: %s:%d: %v", ErrMalformed, s.opts.Filename, line, err)
			}
			values[i] = v
		}
		if err := fn(values); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if dims == nil {
		return fmt.Errorf("%w: %s: missing header", ErrMalformed, s.opts.Filename)
	}
	return nil
}

func split(line string, comma bool) []string {
	if !comma {
		return strings.Fields(line)
	}
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseHeader(names []string) (*schema.Schema, error) {
	dims := make([]schema.DimInfo, len(names))
	for i, name := range names {
		switch strings.ToLower(name) {
		case "x", "y", "z":
			name = strings.ToUpper(name)
		}
		dims[i] = schema.DimInfo{Name: name, Type: schema.Floating, Size: 8}
	}
	sc, err := schema.New(dims...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return sc, nil
}
