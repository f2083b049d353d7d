package query

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"sync"

	"github.com/hupe1980/greyhound/schema"
	"github.com/pierrec/lz4/v4"
)

// DefaultBatchSize is the number of points per block.
const DefaultBatchSize = 4096

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("query: cursor closed")

// Points is a push iterator over point values in the producer's schema.
// The yielded slice may be reused after yield returns.
type Points = iter.Seq2[[]float64, error]

// Option configures a Cursor.
type Option func(*Cursor)

// WithCompression makes every block an LZ4 frame.
func WithCompression(compress bool) Option {
	return func(c *Cursor) {
		c.compress = compress
	}
}

// WithBatchSize sets the maximum number of points per block.
func WithBatchSize(n int) Option {
	return func(c *Cursor) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// Cursor is a pull-based read over a set of points. It is safe for
// concurrent use, but blocks are handed out in a single sequence.
type Cursor struct {
	out       *schema.Schema
	proj      *schema.Projection
	compress  bool
	batchSize int

	mu        sync.Mutex
	next      func() ([]float64, error, bool)
	stop      func()
	numPoints uint64
	done      bool
	err       error
}

// New returns a cursor that reads points (laid out as src) and emits them
// laid out as out.
func New(src, out *schema.Schema, points Points, opts ...Option) *Cursor {
	c := &Cursor{
		out:       out,
		proj:      src.Project(out),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.next, c.stop = iter.Pull2(points)
	return c
}

// Empty returns a cursor that is already done.
func Empty(out *schema.Schema, opts ...Option) *Cursor {
	c := &Cursor{out: out, batchSize: DefaultBatchSize, done: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schema returns the output schema.
func (c *Cursor) Schema() *schema.Schema { return c.out }

// Compressed reports whether blocks are LZ4 frames.
func (c *Cursor) Compressed() bool { return c.compress }

// NumPoints returns the number of points emitted so far.
func (c *Cursor) NumPoints() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numPoints
}

// Done reports whether the cursor is exhausted, failed or closed.
func (c *Cursor) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Next returns the next block. It returns io.EOF once every point has been
// emitted. A producer error is sticky.
func (c *Cursor) Next() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	if c.done {
		return nil, io.EOF
	}

	block := make([]byte, 0, c.batchSize*c.out.PointSize())
	n := 0
	for n < c.batchSize {
		values, err, ok := c.next()
		if !ok {
			c.finish(nil)
			break
		}
		if err != nil {
			c.finish(err)
			return nil, err
		}
		block = c.proj.Append(block, values)
		n++
	}

	if n == 0 {
		return nil, io.EOF
	}
	c.numPoints += uint64(n)

	if !c.compress {
		return block, nil
	}
	compressed, err := compressBlock(block)
	if err != nil {
		c.finish(err)
		return nil, err
	}
	return compressed, nil
}

func (c *Cursor) finish(err error) {
	c.done = true
	c.err = err
	if c.stop != nil {
		c.stop()
	}
}

// All iterates over the remaining blocks.
func (c *Cursor) All() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			block, err := c.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(block, err) || err != nil {
				return
			}
		}
	}
}

// Close stops the producer. Further calls to Next return ErrClosed.
func (c *Cursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err == nil {
		c.finish(ErrClosed)
	}
	return nil
}

func compressBlock(block []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(block); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress returns the packed records of a compressed block.
func Decompress(block []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(block)))
}

// Count drains the cursor and returns the total number of points emitted.
func Count(c *Cursor) (uint64, error) {
	for _, err := range c.All() {
		if err != nil {
			return c.NumPoints(), err
		}
	}
	return c.NumPoints(), nil
}
