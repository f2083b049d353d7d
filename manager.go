package greyhound

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/cache"
	"github.com/hupe1980/greyhound/pipeline"
	"github.com/hupe1980/greyhound/query"
	"github.com/hupe1980/greyhound/schema"
	"golang.org/x/sync/singleflight"
)

// Manager keeps one Session per dataset name. All Sessions share the
// manager's factory, factory lock, arbiter and cache.
type Manager struct {
	factory *pipeline.Factory
	lock    sync.Mutex
	arb     *arbiter.Arbiter
	cache   cache.BlockCache
	paths   Paths
	optFns  []Option

	mu       sync.RWMutex
	sessions map[string]*Session
	creates  singleflight.Group
}

// NewManager creates a Manager serving datasets found under paths.
func NewManager(factory *pipeline.Factory, arb *arbiter.Arbiter, c cache.BlockCache, paths Paths, optFns ...Option) *Manager {
	return &Manager{
		factory:  factory,
		arb:      arb,
		cache:    c,
		paths:    paths.clone(),
		optFns:   optFns,
		sessions: make(map[string]*Session),
	}
}

// Create returns the Session for name, creating and initializing it on
// first use. Concurrent calls for the same name share one Session. A
// Session that fails to initialize is not kept.
func (m *Manager) Create(name string) (*Session, error) {
	if s, ok := m.lookup(name); ok {
		return s, nil
	}

	v, err, _ := m.creates.Do(name, func() (any, error) {
		if s, ok := m.lookup(name); ok {
			return s, nil
		}

		s := NewSession(m.factory, &m.lock, m.optFns...)
		if !s.Initialize(name, m.paths, m.arb, m.cache) {
			return nil, s.InitErr()
		}

		m.mu.Lock()
		m.sessions[name] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) lookup(name string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[name]
	return s, ok
}

// Get returns an existing Session.
func (m *Manager) Get(name string) (*Session, error) {
	s, ok := m.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: no session %q", ErrNotFound, name)
	}
	return s, nil
}

// IsValid reports whether a usable Session exists for name.
func (m *Manager) IsValid(name string) bool {
	s, ok := m.lookup(name)
	return ok && s.ready() == nil
}

// Destroy closes and forgets the Session for name.
func (m *Manager) Destroy(name string) error {
	m.mu.Lock()
	s, ok := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no session %q", ErrNotFound, name)
	}
	return s.Close()
}

// NumPoints returns the point count of an existing Session.
func (m *Manager) NumPoints(name string) (uint64, error) {
	s, err := m.Get(name)
	if err != nil {
		return 0, err
	}
	return s.NumPoints()
}

// ReadRequest selects the points returned by Read. A nil Bounds reads the
// whole source; otherwise the index is queried over [DepthBegin, DepthEnd).
type ReadRequest struct {
	Schema     *schema.Schema
	Compress   bool
	Bounds     *bbox.BBox
	DepthBegin int
	DepthEnd   int
}

// Read queries an existing Session.
func (m *Manager) Read(ctx context.Context, name string, req ReadRequest) (*query.Cursor, error) {
	s, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	if req.Bounds == nil {
		return s.Query(ctx, req.Schema, req.Compress)
	}
	return s.QueryIndexed(ctx, req.Schema, req.Compress, *req.Bounds, req.DepthBegin, req.DepthEnd)
}

// Len returns the number of live Sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every Session. Shared collaborators are left open.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	return nil
}
