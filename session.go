package greyhound

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/cache"
	"github.com/hupe1980/greyhound/index"
	"github.com/hupe1980/greyhound/pipeline"
	"github.com/hupe1980/greyhound/query"
	"github.com/hupe1980/greyhound/schema"
	"github.com/hupe1980/greyhound/source"
)

const (
	stateUninitialized uint32 = iota
	stateInitializing
	stateReady
	stateFailed
)

const (
	unresolved uint32 = iota
	resolved
	unresolvable
)

// noCopy may be embedded into structs which must not be copied after first
// use. go vet's copylocks check flags copies.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Session is a per-dataset handle over a raw source and a spatial index.
//
// Both resources are resolved lazily on first use, at most once each, and
// independently of each other. A failed resolution is remembered for the
// lifetime of the Session. All methods are safe for concurrent use.
//
// A Session must not be copied; it is always handled as *Session.
type Session struct {
	noCopy noCopy

	factory *pipeline.Factory
	lock    sync.Locker
	opts    options
	logger  *Logger // used until initialization succeeds

	initOnce  sync.Once
	initState atomic.Uint32
	initErr   error

	// Immutable once initState is stateReady.
	name       string
	paths      Paths
	arb        *arbiter.Arbiter
	cache      cache.BlockCache
	log        *Logger
	indexRoot  string
	sourcePath string

	sourceMu    sync.Mutex
	sourceState atomic.Uint32
	src         atomic.Pointer[source.Manager]
	sourceErr   error

	indexMu    sync.Mutex
	indexState atomic.Uint32
	idx        atomic.Pointer[index.Reader]
	indexErr   error

	closed atomic.Bool
}

// NewSession creates an uninitialized Session. factory is shared with other
// Sessions and is only used while lock is held.
func NewSession(factory *pipeline.Factory, lock sync.Locker, optFns ...Option) *Session {
	o := applyOptions(optFns)
	return &Session{
		factory: factory,
		lock:    lock,
		opts:    o,
		logger:  o.logger,
	}
}

// Initialize binds the Session to a dataset and discovers its backing
// index and source. Only the first call does any work; every caller,
// including concurrent ones, gets the same result. A false result makes the
// Session unusable; InitErr returns the reason.
//
// The arbiter and cache are shared and never closed by the Session.
func (s *Session) Initialize(name string, paths Paths, arb *arbiter.Arbiter, c cache.BlockCache) bool {
	s.initOnce.Do(func() {
		s.initState.Store(stateInitializing)

		ctx := context.Background()
		start := time.Now()
		err := s.setup(ctx, name, paths, arb, c)
		s.opts.metricsCollector.RecordInitialize(time.Since(start), err)
		l := s.logger
		if s.log != nil {
			l = s.log
		}
		l.LogInitialize(ctx, s.indexRoot, s.sourcePath, err)

		if err != nil {
			s.initErr = err
			s.initState.Store(stateFailed)
			return
		}
		s.initState.Store(stateReady)
	})
	return s.initState.Load() == stateReady
}

// InitErr returns why Initialize failed, or nil.
func (s *Session) InitErr() error {
	if s.initState.Load() != stateFailed {
		return nil
	}
	return s.initErr
}

func (s *Session) setup(ctx context.Context, name string, paths Paths, arb *arbiter.Arbiter, c cache.BlockCache) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := paths.Validate(); err != nil {
		return err
	}
	if s.factory == nil || s.lock == nil {
		return fmt.Errorf("%w: factory and lock are required", ErrInvalidArgument)
	}
	if arb == nil || c == nil {
		return fmt.Errorf("%w: arbiter and cache are required", ErrInvalidArgument)
	}

	s.name = name
	s.paths = paths.clone()
	s.arb = arb
	s.cache = c
	s.log = s.logger.WithDataset(name)

	return s.discover(ctx)
}

// discover looks for an index first, then for a source. Either one is
// enough to serve the dataset.
func (s *Session) discover(ctx context.Context) error {
	for _, dir := range s.paths.indexDirs() {
		root := arbiter.Join(dir, s.name)
		ok, err := index.Exists(ctx, s.arb, root)
		if err != nil {
			return translateError(err)
		}
		if ok {
			s.indexRoot = root
			break
		}
	}

	for _, dir := range s.paths.Inputs {
		p, err := s.findSource(ctx, dir)
		if err != nil {
			return translateError(err)
		}
		if p != "" {
			s.sourcePath = p
			break
		}
	}

	if s.indexRoot == "" && s.sourcePath == "" {
		return fmt.Errorf("%w: %q", ErrNotFound, s.name)
	}
	return nil
}

// findSource returns the first file directly in dir whose base name without
// extension is the dataset name and which a registered reader handles.
func (s *Session) findSource(ctx context.Context, dir string) (string, error) {
	prefix := dirPrefix(dir)
	loc, err := arbiter.Parse(prefix)
	if err != nil {
		return "", err
	}

	names, err := s.arb.List(ctx, prefix)
	if err != nil {
		return "", err
	}

	for _, p := range names {
		l, err := arbiter.Parse(p)
		if err != nil {
			continue
		}
		rel := strings.TrimPrefix(l.Key, loc.Key)
		if strings.Contains(rel, "/") {
			continue
		}
		if strings.TrimSuffix(rel, path.Ext(rel)) != s.name {
			continue
		}
		if s.factory.InferReaderDriver(rel) != "" {
			return p, nil
		}
	}
	return "", nil
}

func (s *Session) ready() error {
	if s.closed.Load() {
		return ErrClosed
	}
	switch s.initState.Load() {
	case stateReady:
		return nil
	case stateFailed:
		return fmt.Errorf("%w: %w", ErrNotInitialized, s.initErr)
	default:
		return ErrNotInitialized
	}
}

// sourced returns the source, resolving it on first use.
func (s *Session) sourced() (*source.Manager, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	switch s.sourceState.Load() {
	case resolved:
		return s.loadSource()
	case unresolvable:
		return nil, s.sourceErr
	}
	return s.resolveSource()
}

func (s *Session) resolveSource() (*source.Manager, error) {
	s.sourceMu.Lock()
	defer s.sourceMu.Unlock()

	switch s.sourceState.Load() {
	case resolved:
		return s.loadSource()
	case unresolvable:
		return nil, s.sourceErr
	}

	ctx := context.Background()
	start := time.Now()
	m, err := s.openSource(ctx)
	duration := time.Since(start)
	s.opts.metricsCollector.RecordResolve(ResolveSource, duration, err)
	s.log.LogResolve(ctx, ResolveSource, duration, err)

	if err != nil {
		s.sourceErr = fmt.Errorf("%w: %w", ErrSourceUnavailable, translateError(err))
		s.sourceState.Store(unresolvable)
		return nil, s.sourceErr
	}
	s.src.Store(m)
	s.sourceState.Store(resolved)
	return m, nil
}

func (s *Session) openSource(ctx context.Context) (*source.Manager, error) {
	if s.sourcePath == "" {
		return nil, fmt.Errorf("no source for %q", s.name)
	}

	opts := []source.Option{
		source.WithLogger(s.log.Logger),
		source.WithCodec(s.opts.codec),
	}
	if s.opts.blockSize > 0 {
		opts = append(opts, source.WithBatchSize(s.opts.blockSize))
	}
	return source.New(ctx, s.factory, s.lock, s.arb, s.sourcePath, opts...)
}

func (s *Session) loadSource() (*source.Manager, error) {
	if m := s.src.Load(); m != nil {
		return m, nil
	}
	return nil, ErrClosed
}

// indexed returns the index, resolving it on first use.
func (s *Session) indexed() (*index.Reader, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	switch s.indexState.Load() {
	case resolved:
		return s.loadIndex()
	case unresolvable:
		return nil, s.indexErr
	}
	return s.resolveIndex()
}

func (s *Session) resolveIndex() (*index.Reader, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	switch s.indexState.Load() {
	case resolved:
		return s.loadIndex()
	case unresolvable:
		return nil, s.indexErr
	}

	ctx := context.Background()
	start := time.Now()
	r, err := s.openIndex(ctx)
	duration := time.Since(start)
	s.opts.metricsCollector.RecordResolve(ResolveIndex, duration, err)
	s.log.LogResolve(ctx, ResolveIndex, duration, err)

	if err != nil {
		s.indexErr = fmt.Errorf("%w: %w", ErrIndexUnavailable, translateError(err))
		s.indexState.Store(unresolvable)
		return nil, s.indexErr
	}
	s.idx.Store(r)
	s.indexState.Store(resolved)
	return r, nil
}

func (s *Session) openIndex(ctx context.Context) (*index.Reader, error) {
	if s.indexRoot == "" {
		return nil, fmt.Errorf("no index for %q", s.name)
	}

	opts := []index.Option{
		index.WithLogger(s.log.Logger),
		index.WithCodec(s.opts.codec),
		index.WithResourceController(s.opts.rc),
	}
	if s.opts.indexConcurrency > 0 {
		opts = append(opts, index.WithConcurrency(s.opts.indexConcurrency))
	}
	if s.opts.chunkBatchSize > 0 {
		opts = append(opts, index.WithChunkBatchSize(s.opts.chunkBatchSize))
	}
	if s.opts.blockSize > 0 {
		opts = append(opts, index.WithBatchSize(s.opts.blockSize))
	}
	return index.Open(ctx, s.arb, s.indexRoot, s.cache, opts...)
}

func (s *Session) loadIndex() (*index.Reader, error) {
	if r := s.idx.Load(); r != nil {
		return r, nil
	}
	return nil, ErrClosed
}

// describer is implemented by both *index.Reader and *source.Manager.
type describer interface {
	NumPoints() uint64
	Schema() *schema.Schema
	SRS() string
	Bounds() bbox.BBox
}

// metadata answers from the index when one resolves, otherwise from the
// source.
func (s *Session) metadata() (describer, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var indexErr error
	if s.indexRoot != "" {
		r, err := s.indexed()
		if err == nil {
			return r, nil
		}
		indexErr = err
	} else {
		indexErr = fmt.Errorf("%w: no index for %q", ErrIndexUnavailable, s.name)
	}

	m, err := s.sourced()
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return nil, err
		}
		return nil, &ErrUnavailable{Dataset: s.name, Index: indexErr, Source: err}
	}
	return m, nil
}

// Name returns the dataset name, or "" before initialization.
func (s *Session) Name() string {
	if s.initState.Load() != stateReady {
		return ""
	}
	return s.name
}

// NumPoints returns the number of points in the dataset.
func (s *Session) NumPoints() (uint64, error) {
	m, err := s.metadata()
	if err != nil {
		return 0, err
	}
	return m.NumPoints(), nil
}

// Schema returns the native schema of the dataset.
func (s *Session) Schema() (*schema.Schema, error) {
	m, err := s.metadata()
	if err != nil {
		return nil, err
	}
	return m.Schema(), nil
}

// SRS returns the spatial reference of the dataset.
func (s *Session) SRS() (string, error) {
	m, err := s.metadata()
	if err != nil {
		return "", err
	}
	return m.SRS(), nil
}

// Bounds returns the bounds of the dataset.
func (s *Session) Bounds() (bbox.BBox, error) {
	m, err := s.metadata()
	if err != nil {
		return bbox.Empty(), err
	}
	return m.Bounds(), nil
}

// Stats returns per-dimension statistics as a JSON document. It always
// reads the source.
func (s *Session) Stats(ctx context.Context) (string, error) {
	m, err := s.sourced()
	if err != nil {
		return "", err
	}
	b, err := m.Stats(ctx)
	if err != nil {
		return "", translateError(err)
	}
	return string(b), nil
}

// Query returns a cursor over every point of the source, projected onto
// out. ctx governs reads made while the cursor is consumed.
func (s *Session) Query(ctx context.Context, out *schema.Schema, compress bool) (c *query.Cursor, err error) {
	start := time.Now()
	defer func() { s.recordQuery(ctx, false, start, err) }()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrInvalidSchema
	}

	m, err := s.sourced()
	if err != nil {
		return nil, err
	}
	return m.Query(ctx, out, compress), nil
}

// QueryIndexed returns a cursor over the indexed points inside qb whose
// tree depth lies in [depthBegin, depthEnd). Equal depths yield an empty
// cursor; depthBegin > depthEnd is rejected with ErrInvalidDepthRange.
func (s *Session) QueryIndexed(ctx context.Context, out *schema.Schema, compress bool, qb bbox.BBox, depthBegin, depthEnd int) (c *query.Cursor, err error) {
	start := time.Now()
	defer func() { s.recordQuery(ctx, true, start, err) }()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrInvalidSchema
	}
	if depthBegin > depthEnd {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidDepthRange, depthBegin, depthEnd)
	}

	r, err := s.indexed()
	if err != nil {
		return nil, err
	}
	c, err = r.Query(ctx, out, compress, qb, depthBegin, depthEnd)
	if err != nil {
		return nil, translateError(err)
	}
	return c, nil
}

func (s *Session) recordQuery(ctx context.Context, indexed bool, start time.Time, err error) {
	s.opts.metricsCollector.RecordQuery(indexed, time.Since(start), err)
	l := s.logger
	if s.initState.Load() == stateReady {
		l = s.log
	}
	l.LogQuery(ctx, indexed, err)
}

// Close releases the source and index. Shared collaborators are left
// untouched. Cursors already handed out stay readable.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	s.sourceMu.Lock()
	s.src.Store(nil)
	s.sourceMu.Unlock()

	s.indexMu.Lock()
	s.idx.Store(nil)
	s.indexMu.Unlock()
	return nil
}
