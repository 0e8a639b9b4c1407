// Package audit implements the comparison engine: it consumes the archive
// entry source one member at a time, fingerprints both sides, classifies
// each entry, and accumulates counters that can be inspected between any
// two iterations.
//
// The loop is strictly sequential. One member is materialized, compared,
// and discarded before the next begins, so at most one extracted file is
// ever resident in the scratch area. Interruption and progress requests
// are honored cooperatively at entry boundaries, never mid-extraction.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fabacab/chkrelease/pkg/chkrelease/archive"
	"github.com/fabacab/chkrelease/pkg/chkrelease/digest"
	"github.com/fabacab/chkrelease/pkg/chkrelease/logging"
	"github.com/fabacab/chkrelease/pkg/chkrelease/scratch"
	"github.com/fabacab/chkrelease/pkg/chkrelease/types"
	"github.com/fabacab/chkrelease/pkg/chkrelease/untracked"
)

// DefaultProgressInterval is how many entries pass between periodic
// progress snapshots.
const DefaultProgressInterval = 10

// Options configures an audit run.
type Options struct {
	// Archive is the path of the reference archive.
	Archive string

	// Root is the comparison root on the live filesystem.
	Root string

	// Swapped is true when the directory was the first positional input:
	// the live tree supplies the reference digests and the archive
	// content is the side being audited. The comparison algorithm is
	// identical; only the result-line wording changes.
	Swapped bool

	// Progress enables periodic progress snapshots on the diagnostic
	// stream, every ProgressInterval entries.
	Progress bool

	// ProgressInterval overrides the snapshot cadence (default 10).
	ProgressInterval int

	// Untracked lists live files under Root that are not archive
	// members. They are reported but never counted as modified.
	Untracked bool

	// ResultWriter receives one line per divergent or skipped entry
	// (default os.Stdout). The first whitespace-delimited column of each
	// line is a valid archive member path.
	ResultWriter io.Writer

	// DiagWriter receives progress snapshots and notices
	// (default os.Stderr). Never mixed with ResultWriter.
	DiagWriter io.Writer

	// Scratch is the staging area for materialized members. Required.
	Scratch *scratch.Area
}

// Result is the outcome of a run, returned even when the run aborted so
// the caller can report counters before exiting.
type Result struct {
	// Counters is the final counter snapshot.
	Counters types.Snapshot

	// Interrupted is true when the loop stopped at an entry boundary
	// because the context was cancelled.
	Interrupted bool

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// ExitStatus returns the capped modified-count exit status for the run.
func (r *Result) ExitStatus() int {
	return ExitStatus(r.Counters.Modified)
}

// Auditor drives one audit run.
type Auditor struct {
	opts     Options
	counters Counters

	// progressReq is set asynchronously by the signal handler and
	// consumed at the next entry boundary.
	progressReq atomic.Bool

	logger *logging.Logger

	// seen records surfaced member paths for the untracked pass.
	seen map[string]struct{}
}

// New creates an Auditor. Defaults are applied to zero-valued options.
func New(opts Options) *Auditor {
	if opts.ResultWriter == nil {
		opts.ResultWriter = os.Stdout
	}
	if opts.DiagWriter == nil {
		opts.DiagWriter = os.Stderr
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.Scratch == nil {
		opts.Scratch = scratch.New()
	}

	return &Auditor{
		opts:   opts,
		logger: logging.Get("audit"),
		seen:   make(map[string]struct{}),
	}
}

// Counters returns the run's counters for asynchronous inspection.
func (a *Auditor) Counters() *Counters {
	return &a.counters
}

// RequestProgress asks the loop to print a progress snapshot at the next
// entry boundary. Safe to call from any goroutine at any time.
func (a *Auditor) RequestProgress() {
	a.progressReq.Store(true)
}

// Run executes the audit. It always returns a non-nil Result so the
// caller can report counters on every exit path; err is non-nil only for
// fatal conditions (unreadable root, unreadable or corrupt archive,
// failed extraction).
func (a *Auditor) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	finish := func() *Result {
		result.Counters = a.counters.Snapshot()
		result.Elapsed = time.Since(start)
		return result
	}

	if err := a.validateRoot(); err != nil {
		return finish(), err
	}

	src, err := archive.Open(a.opts.Archive)
	if err != nil {
		return finish(), err
	}
	defer src.Close()

	a.logger.Info("audit started",
		"archive", a.opts.Archive, "root", a.opts.Root, "swapped", a.opts.Swapped)

	for {
		// Entry boundary: the only safe point for interruption and
		// asynchronous progress.
		if ctx.Err() != nil {
			result.Interrupted = true
			a.logger.Info("audit interrupted", "audited", a.counters.audited.Load())
			return finish(), nil
		}
		if a.progressReq.Swap(false) {
			a.reportProgress()
		}

		entry, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return finish(), err
		}

		a.counters.total.Add(1)
		a.seen[entry.Path] = struct{}{}

		outcome, err := a.auditEntry(src, entry)
		if err != nil {
			return finish(), err
		}

		switch outcome {
		case types.OutcomeMismatch, types.OutcomeMissing:
			a.counters.modified.Add(1)
		case types.OutcomeSkipped:
			a.counters.skipped.Add(1)
		}
		a.logger.Debug("entry audited", "path", entry.Path, "outcome", outcome)

		// Skipped symlinks count as audited: audited measures loop
		// iterations, not comparisons performed.
		audited := a.counters.audited.Add(1)

		if a.opts.Progress && audited%int64(a.opts.ProgressInterval) == 0 {
			a.reportProgress()
		}
	}

	if a.opts.Untracked {
		if err := a.reportUntracked(); err != nil {
			a.logger.Warn("untracked listing failed", "error", err)
			fmt.Fprintf(a.opts.DiagWriter, "chkrelease: untracked listing failed: %v\n", err)
		}
	}

	a.logger.Info("audit finished",
		"total", a.counters.total.Load(),
		"modified", a.counters.modified.Load(),
		"skipped", a.counters.skipped.Load())

	return finish(), nil
}

// auditEntry compares one entry and returns its outcome, emitting the
// result line for anything that is not a match. Counter updates are the
// caller's responsibility.
func (a *Auditor) auditEntry(src *archive.Source, entry *types.Entry) (types.Outcome, error) {
	switch entry.Type {
	case types.TypeSymlink:
		fmt.Fprintf(a.opts.ResultWriter, "%s is a symbolic link, skipping\n", entry.Path)
		return types.OutcomeSkipped, nil

	case types.TypeOther:
		fmt.Fprintf(a.opts.ResultWriter, "%s is not a regular file, skipping\n", entry.Path)
		return types.OutcomeSkipped, nil
	}

	scratchDir, err := a.opts.Scratch.Acquire()
	if err != nil {
		return types.OutcomeMatch, fmt.Errorf("acquiring scratch area: %w", err)
	}

	staged, err := src.Materialize(scratchDir)
	if err != nil {
		return types.OutcomeMatch, err
	}
	defer a.opts.Scratch.Discard(staged)

	ref, n, err := digest.File(staged)
	if err != nil {
		return types.OutcomeMatch, &archive.ExtractError{Member: entry.Path, Err: err}
	}
	a.counters.bytesHashed.Add(n)

	livePath := filepath.Join(a.opts.Root, filepath.FromSlash(entry.Path))
	live, n := digest.FileOrAbsent(livePath)
	a.counters.bytesHashed.Add(n)

	switch {
	case live.IsAbsent():
		fmt.Fprintf(a.opts.ResultWriter, "%s %s\n", entry.Path, a.missingReason())
		return types.OutcomeMissing, nil
	case !ref.Equal(live):
		fmt.Fprintf(a.opts.ResultWriter, "%s %s\n", entry.Path, a.mismatchReason())
		return types.OutcomeMismatch, nil
	}

	return types.OutcomeMatch, nil
}

// mismatchReason words the divergence from the reference side's point of
// view; the comparison itself is symmetric.
func (a *Auditor) mismatchReason() string {
	if a.opts.Swapped {
		return "does not match the copy on disk"
	}
	return "does not match the archived copy"
}

func (a *Auditor) missingReason() string {
	if a.opts.Swapped {
		return "is not in the reference directory"
	}
	return "does not exist"
}

// reportProgress prints a counter snapshot to the diagnostic stream.
// The same operation serves the periodic cadence and the asynchronous
// signal request.
func (a *Auditor) reportProgress() {
	s := a.counters.Snapshot()
	fmt.Fprintf(a.opts.DiagWriter, "progress: total=%d audited=%d modified=%d skipped=%d (%s hashed)\n",
		s.Total, s.Audited, s.Modified, s.Skipped, types.FormatSize(s.BytesHashed))
}

// reportUntracked lists live files under the root that never surfaced as
// archive members. They are informational and never counted as modified:
// the exit-status contract covers archive members only.
func (a *Auditor) reportUntracked() error {
	extras, err := untracked.Find(a.opts.Root, a.seen)
	if err != nil {
		return err
	}
	for _, path := range extras {
		fmt.Fprintf(a.opts.ResultWriter, "%s is not in the archive\n", path)
	}
	return nil
}

// validateRoot verifies the comparison root exists and is a directory.
// This is fatal at startup; per-entry absence later is a comparison
// outcome, not an error.
func (a *Auditor) validateRoot() error {
	info, err := os.Stat(a.opts.Root)
	if err != nil {
		return fmt.Errorf("comparison root %s: %w", a.opts.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("comparison root %s: not a directory", a.opts.Root)
	}
	return nil
}
