package bbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBBox_Geometry(t *testing.T) {
	b, err := New(0, 0, 0, 10, 10, 10)
	require.NoError(t, err)

	assert.True(t, b.Contains(Point{0, 0, 0}))
	assert.True(t, b.Contains(Point{10, 10, 10}))
	assert.False(t, b.Contains(Point{10.1, 5, 5}))
	assert.Equal(t, Point{5, 5, 5}, b.Mid())
	assert.Equal(t, 1000.0, b.Volume())

	other, _ := New(9, 9, 9, 20, 20, 20)
	assert.True(t, b.Overlaps(other))
	far, _ := New(11, 11, 11, 20, 20, 20)
	assert.False(t, b.Overlaps(far))

	_, err = New(1, 0, 0, 0, 1, 1)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestBBox_Octants(t *testing.T) {
	b, _ := New(0, 0, 0, 8, 8, 8)

	for i := range 8 {
		c := b.Child(i)
		assert.Equal(t, 64.0, c.Volume())
		assert.Equal(t, i, b.Octant(c.Mid()), "octant %d", i)
		assert.True(t, b.ContainsBox(c))
	}
	assert.Equal(t, 7, b.Octant(Point{8, 8, 8}))
	assert.Equal(t, 0, b.Octant(Point{0, 0, 0}))
}

func TestBBox_GrowAndCubify(t *testing.T) {
	b := Empty()
	assert.False(t, b.Exists())
	assert.Equal(t, 0.0, b.Volume())

	b = b.Grow(Point{1, 2, 3}).Grow(Point{5, 4, 3})
	assert.True(t, b.Exists())
	assert.Equal(t, BBox{Min: Point{1, 2, 3}, Max: Point{5, 4, 3}}, b)

	c := b.Cubify()
	assert.Equal(t, BBox{Min: Point{1, 1, 1}, Max: Point{5, 5, 5}}, c)
	assert.True(t, c.ContainsBox(b))
	assert.Equal(t, BBox{Min: Point{0, 0, 0}, Max: Point{6, 6, 6}}, c.Pad(1))

	assert.True(t, Everything().Contains(Point{1e300, -1e300, 0}))
}

func TestBBox_JSON(t *testing.T) {
	b, _ := New(1, 2, 3, 4, 5, 6)
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3,4,5,6]`, string(data))

	var back BBox
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, b, back)

	require.NoError(t, json.Unmarshal([]byte(`[0,0,10,10]`), &back))
	assert.True(t, back.Contains(Point{5, 5, -1e9}))

	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &back))
	assert.ErrorIs(t, json.Unmarshal([]byte(`[5,0,0,1,1,1]`), &back), ErrInvalid)
}
