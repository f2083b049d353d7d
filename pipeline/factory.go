package pipeline

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/greyhound/codec"
)

var (
	// ErrUnknownDriver is returned for unregistered driver names.
	ErrUnknownDriver = errors.New("pipeline: unknown driver")

	// ErrConcurrentConstruction is returned when two goroutines construct
	// stages on one Factory at the same time, i.e. the caller's lock was not
	// held.
	ErrConcurrentConstruction = errors.New("pipeline: concurrent stage construction")

	// ErrInvalidOptions is returned for missing stage options.
	ErrInvalidOptions = errors.New("pipeline: invalid options")
)

// Driver names.
const (
	DriverText = "readers.text"
	DriverRaw  = "readers.raw"
)

// Constructor builds a stage from validated options.
type Constructor func(opts Options) (Stage, error)

// Factory is a registry of reader drivers.
//
// Register, Drivers and InferReaderDriver may be called concurrently.
// CreateReader is not safe for concurrent use; callers serialize it with
// their own lock.
type Factory struct {
	mu         sync.RWMutex
	drivers    map[string]Constructor
	extensions map[string]string

	constructing atomic.Bool
	created      atomic.Int64
}

// NewFactory returns a Factory with the built-in drivers registered.
func NewFactory() *Factory {
	f := &Factory{
		drivers:    make(map[string]Constructor),
		extensions: make(map[string]string),
	}
	f.Register(DriverText, newTextStage, ".txt", ".csv", ".xyz")
	f.Register(DriverRaw, newRawStage, ".grp")
	return f
}

// Register adds a driver and the file extensions it handles.
func (f *Factory) Register(name string, ctor Constructor, exts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.drivers[name] = ctor
	for _, ext := range exts {
		f.extensions[strings.ToLower(ext)] = name
	}
}

// Drivers returns the registered driver names, sorted.
func (f *Factory) Drivers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.drivers))
	for name := range f.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InferReaderDriver returns the driver registered for the extension of
// filename, or "" when none is.
func (f *Factory) InferReaderDriver(filename string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.extensions[strings.ToLower(path.Ext(filename))]
}

// CreateReader constructs a reader stage. The caller must hold the lock that
// guards f.
func (f *Factory) CreateReader(driver string, opts Options) (Stage, error) {
	if !f.constructing.CompareAndSwap(false, true) {
		return nil, ErrConcurrentConstruction
	}
	defer f.constructing.Store(false)

	f.mu.RLock()
	ctor, ok := f.drivers[driver]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if opts.Filename == "" || opts.Arbiter == nil {
		return nil, fmt.Errorf("%w: filename and arbiter are required", ErrInvalidOptions)
	}
	opts.Codec = codec.OrDefault(opts.Codec)

	s, err := ctor(opts)
	if err != nil {
		return nil, err
	}
	f.created.Add(1)
	return s, nil
}

// Created returns the number of stages constructed so far.
func (f *Factory) Created() int64 {
	return f.created.Load()
}
