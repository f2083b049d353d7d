package index

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no index exists at a root.
	ErrNotFound = errors.New("index: not found")

	// ErrCorrupt is returned for unreadable metadata, hierarchy or chunks.
	ErrCorrupt = errors.New("index: corrupt")

	// ErrInvalidDepthRange is returned when depthBegin > depthEnd.
	ErrInvalidDepthRange = errors.New("index: invalid depth range")
)

// ErrChunk identifies a chunk that failed to load.
type ErrChunk struct {
	Key   Key
	cause error
}

func (e *ErrChunk) Error() string {
	return fmt.Sprintf("index: chunk %s: %v", e.Key, e.cause)
}

func (e *ErrChunk) Unwrap() error { return e.cause }
