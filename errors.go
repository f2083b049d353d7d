package greyhound

import (
	"errors"
	"fmt"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/blobstore"
	"github.com/hupe1980/greyhound/index"
	"github.com/hupe1980/greyhound/pipeline"
	"github.com/hupe1980/greyhound/source"
)

var (
	// ErrNotInitialized is returned by every Session call when Initialize
	// has not been called or did not succeed.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")

	// ErrInvalidArgument is returned by Initialize for bad inputs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when neither an index nor a source exists for
	// a dataset.
	ErrNotFound = errors.New("dataset not found")

	// ErrSourceUnavailable is returned when the source cannot be resolved.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrIndexUnavailable is returned when the index cannot be resolved.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrInvalidDepthRange is returned for depthBegin > depthEnd.
	ErrInvalidDepthRange = errors.New("invalid depth range")

	// ErrInvalidSchema is returned for a nil output schema.
	ErrInvalidSchema = errors.New("invalid schema")
)

// ErrUnavailable reports that no resource could answer a metadata call.
//
// The source and index causes can be accessed via errors.Is / errors.As.
type ErrUnavailable struct {
	Dataset string
	Index   error
	Source  error
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("dataset %q unavailable: index: %v; source: %v", e.Dataset, e.Index, e.Source)
}

func (e *ErrUnavailable) Unwrap() []error {
	return []error{e.Index, e.Source}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, blobstore.ErrNotFound) || errors.Is(err, index.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, index.ErrInvalidDepthRange) {
		return fmt.Errorf("%w: %w", ErrInvalidDepthRange, err)
	}
	if errors.Is(err, arbiter.ErrInvalidPath) ||
		errors.Is(err, arbiter.ErrUnknownScheme) ||
		errors.Is(err, source.ErrNoDriver) ||
		errors.Is(err, pipeline.ErrUnknownDriver) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return err
}
