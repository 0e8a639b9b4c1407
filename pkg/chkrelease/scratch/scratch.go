// Package scratch owns the process-private staging directory used to hold
// one extracted archive member at a time. The area is acquired lazily on
// first use, keyed by a per-run UUID so concurrent invocations never
// collide, and released unconditionally on every exit path unless the
// keep ("messy") mode is set.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// prefix namespaces scratch directories under the system temp dir.
const prefix = "chkrelease-"

// Area is the handle for the run's scratch directory.
type Area struct {
	base string
	keep bool

	mu       sync.Mutex
	path     string
	released bool
}

// Option configures an Area.
type Option func(*Area)

// WithKeep suppresses Release entirely, leaving the area on disk for
// post-mortem inspection.
func WithKeep(keep bool) Option {
	return func(a *Area) { a.keep = keep }
}

// WithBase overrides the parent directory (defaults to os.TempDir).
func WithBase(base string) Option {
	return func(a *Area) { a.base = base }
}

// New returns an unacquired Area. No filesystem state exists until the
// first Acquire call.
func New(opts ...Option) *Area {
	a := &Area{base: os.TempDir()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire creates the scratch directory on first call and returns its
// path. Subsequent calls return the same path. Acquiring a released area
// is an error: the run is already past its cleanup point.
func (a *Area) Acquire() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return "", fmt.Errorf("scratch area already released")
	}
	if a.path != "" {
		return a.path, nil
	}

	dir := filepath.Join(a.base, prefix+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating scratch area: %w", err)
	}

	a.path = dir
	return dir, nil
}

// Path returns the acquired directory, or "" when nothing has been
// staged yet.
func (a *Area) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

// Keep reports whether the area is in keep mode.
func (a *Area) Keep() bool {
	return a.keep
}

// Discard removes one staged file from the area, bounding disk usage to a
// single materialized member. In keep mode staged files are retained so
// there is something to inspect post-mortem.
func (a *Area) Discard(staged string) {
	if a.keep || staged == "" {
		return
	}
	_ = os.Remove(staged)
}

// Release removes the scratch directory and everything under it. It is
// idempotent and safe to call on an area that was never acquired. In keep
// mode it does nothing beyond marking the area released.
func (a *Area) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return nil
	}
	a.released = true

	if a.keep || a.path == "" {
		return nil
	}
	if err := os.RemoveAll(a.path); err != nil {
		return fmt.Errorf("releasing scratch area %s: %w", a.path, err)
	}
	return nil
}
