// Package resource governs process-wide budgets shared by every Session.
//
// A single Controller is normally created by the host and handed to the
// shared chunk cache and to the storage arbiter:
//
//   - Memory: bytes held by cached index chunks (non-blocking, fail-fast)
//   - Fetch workers: concurrent chunk fetches across all index readers
//   - IO: token bucket over bytes read through the arbiter
//
// All methods are safe for concurrent use, and a nil *Controller is valid:
// every method degrades to a no-op so callers never need nil checks.
package resource
