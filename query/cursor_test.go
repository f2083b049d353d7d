package query

import (
	"errors"
	"io"
	"testing"

	"github.com/hupe1980/greyhound/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slicePoints(pts [][]float64, stopped *bool) Points {
	return func(yield func([]float64, error) bool) {
		buf := make([]float64, 3)
		for _, p := range pts {
			copy(buf, p)
			if !yield(buf, nil) {
				if stopped != nil {
					*stopped = true
				}
				return
			}
		}
	}
}

func grid(n int) [][]float64 {
	pts := make([][]float64, n)
	for i := range n {
		pts[i] = []float64{float64(i), float64(2 * i), float64(3 * i)}
	}
	return pts
}

func TestCursor_Blocks(t *testing.T) {
	src := schema.XYZ()
	out := schema.MustNew(schema.Z, schema.X)
	c := New(src, out, slicePoints(grid(10), nil), WithBatchSize(4))
	defer c.Close()

	var sizes []int
	var got []float64
	for block, err := range c.All() {
		require.NoError(t, err)
		sizes = append(sizes, len(block)/out.PointSize())
		rec := make([]float64, 2)
		for off := 0; off < len(block); off += out.PointSize() {
			out.Decode(rec, block[off:])
			got = append(got, rec...)
		}
	}

	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, uint64(10), c.NumPoints())
	assert.True(t, c.Done())
	assert.Equal(t, []float64{0, 0, 3, 1, 6, 2}, got[:6])

	_, err := c.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCursor_Compressed(t *testing.T) {
	src := schema.XYZ()
	c := New(src, src, slicePoints(grid(100), nil), WithCompression(true))
	defer c.Close()
	assert.True(t, c.Compressed())

	block, err := c.Next()
	require.NoError(t, err)

	raw, err := Decompress(block)
	require.NoError(t, err)
	assert.Len(t, raw, 100*src.PointSize())

	rec := make([]float64, 3)
	src.Decode(rec, raw[99*src.PointSize():])
	assert.Equal(t, []float64{99, 198, 297}, rec)
}

func TestCursor_Empty(t *testing.T) {
	c := Empty(schema.XYZ(), WithCompression(true))
	assert.True(t, c.Done())
	assert.True(t, c.Compressed())

	n, err := Count(c)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, c.Close())
}

func TestCursor_ProducerError(t *testing.T) {
	boom := errors.New("boom")
	points := func(yield func([]float64, error) bool) {
		if !yield([]float64{1, 2, 3}, nil) {
			return
		}
		yield(nil, boom)
	}

	c := New(schema.XYZ(), schema.XYZ(), points)
	_, err := c.Next()
	assert.ErrorIs(t, err, boom)
	_, err = c.Next()
	assert.ErrorIs(t, err, boom)
	assert.True(t, c.Done())
}

func TestCursor_CloseStopsProducer(t *testing.T) {
	var stopped bool
	c := New(schema.XYZ(), schema.XYZ(), slicePoints(grid(10), &stopped), WithBatchSize(2))

	_, err := c.Next()
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.True(t, stopped)

	_, err = c.Next()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCount(t *testing.T) {
	c := New(schema.XYZ(), schema.XYZ(), slicePoints(grid(9000), nil))
	n, err := Count(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), n)
}
