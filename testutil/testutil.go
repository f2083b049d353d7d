package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/pipeline"
	"github.com/hupe1980/greyhound/schema"
)

// RNG encapsulates a seeded random source. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG with the given seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// UniformPoints returns n points uniformly distributed inside b, laid out as
// Schema(): X, Y, Z and an Intensity equal to the point's position.
func (r *RNG) UniformPoints(n int, b bbox.BBox) [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	pts := make([][]float64, n)
	for i := range n {
		pts[i] = []float64{
			b.Min.X + r.rand.Float64()*(b.Max.X-b.Min.X),
			b.Min.Y + r.rand.Float64()*(b.Max.Y-b.Min.Y),
			b.Min.Z + r.rand.Float64()*(b.Max.Z-b.Min.Z),
			float64(i % 65536),
		}
	}
	return pts
}

// Schema is the layout of generated points.
func Schema() *schema.Schema {
	return schema.MustNew(schema.X, schema.Y, schema.Z, schema.Intensity)
}

// Cube returns the box [0, size]^3.
func Cube(size float64) bbox.BBox {
	return bbox.BBox{Max: bbox.Point{X: size, Y: size, Z: size}}
}

// MemRoot returns a mem:// location unique to the test.
func MemRoot(t testing.TB) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return "mem://" + name
}

// WriteRaw writes pts as a .grp source at p.
func WriteRaw(t testing.TB, a *arbiter.Arbiter, p string, pts [][]float64, compression string) {
	t.Helper()

	data, err := pipeline.EncodeRaw(nil, pipeline.RawHeader{
		Schema:      Schema(),
		SRS:         "EPSG:3857",
		Compression: compression,
	}, pts)
	if err != nil {
		t.Fatalf("encode %s: %v", p, err)
	}
	if err := a.Put(context.Background(), p, data); err != nil {
		t.Fatalf("put %s: %v", p, err)
	}
}

// WriteText writes pts as a whitespace separated .txt source at p.
func WriteText(t testing.TB, a *arbiter.Arbiter, p string, pts [][]float64) {
	t.Helper()

	var sb strings.Builder
	sb.WriteString(strings.Join(Schema().Names(), " "))
	sb.WriteByte('\n')
	for _, pt := range pts {
		for i, v := range pt {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		sb.WriteByte('\n')
	}
	if err := a.Put(context.Background(), p, []byte(sb.String())); err != nil {
		t.Fatalf("put %s: %v", p, err)
	}
}

// CountInside returns how many of pts fall inside b.
func CountInside(pts [][]float64, b bbox.BBox) int {
	n := 0
	for _, p := range pts {
		if b.Contains(bbox.Point{X: p[0], Y: p[1], Z: p[2]}) {
			n++
		}
	}
	return n
}

// Name returns a dataset name unique per call index, for stress tests.
func Name(prefix string, i int) string {
	return fmt.Sprintf("%s-%03d", prefix, i)
}
