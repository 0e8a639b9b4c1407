// Package types provides core data types for the chkrelease audit engine.
// It includes the archive entry model, per-entry comparison outcomes, and
// counter snapshots, along with size formatting helpers shared by the
// progress reporter.
package types

import (
	"time"

	"github.com/dustin/go-humanize"
)

// EntryType classifies an archive member.
type EntryType int

// Entry types in archive storage order of likelihood.
const (
	// TypeRegular is an ordinary file whose content is compared.
	TypeRegular EntryType = iota

	// TypeSymlink is a symbolic link. Link targets are not
	// content-addressable, so these are skipped, never compared.
	TypeSymlink

	// TypeDirectory is a directory. Directories are filtered out of the
	// entry sequence and never reach the audit loop.
	TypeDirectory

	// TypeOther covers devices, FIFOs, and anything else tar can hold.
	TypeOther
)

// String returns a human-readable name for the entry type.
func (t EntryType) String() string {
	switch t {
	case TypeRegular:
		return "regular"
	case TypeSymlink:
		return "symlink"
	case TypeDirectory:
		return "directory"
	default:
		return "other"
	}
}

// Entry describes one archive member surfaced to the audit loop.
type Entry struct {
	// Path is the archive-relative path of the member.
	Path string `json:"path"`

	// Type classifies the member.
	Type EntryType `json:"type"`

	// Size is the member's content size in bytes.
	Size int64 `json:"size"`

	// Linkname is the symlink target, set only for TypeSymlink.
	Linkname string `json:"linkname,omitempty"`
}

// Outcome is the per-entry comparison result. It is consumed immediately
// to update counters and emit result lines; it is never persisted.
type Outcome int

// Comparison outcomes.
const (
	// OutcomeMatch means the live content equals the reference content.
	OutcomeMatch Outcome = iota

	// OutcomeMismatch means the live content differs.
	OutcomeMismatch

	// OutcomeMissing means the live counterpart does not exist or is
	// unreadable. Counted as modified.
	OutcomeMissing

	// OutcomeSkipped means the entry was not compared (symlinks).
	OutcomeSkipped
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeMatch:
		return "match"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeMissing:
		return "missing"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of the audit counters. Snapshots are
// built from fully committed counter values, so one taken between any two
// loop iterations satisfies skipped <= audited <= total.
type Snapshot struct {
	// Total is the number of entries surfaced by the archive so far.
	Total int64 `json:"total"`

	// Audited is the number of loop iterations completed. Skipped
	// symlinks count as audited.
	Audited int64 `json:"audited"`

	// Modified is the number of entries whose content diverged or whose
	// live counterpart was absent.
	Modified int64 `json:"modified"`

	// Skipped is the number of entries never compared by content.
	Skipped int64 `json:"skipped"`

	// BytesHashed is the total bytes fed to the fingerprint function,
	// both sides combined. Diagnostic only.
	BytesHashed int64 `json:"bytes_hashed"`
}

// RunRecord summarizes one completed audit run for the history manifest.
type RunRecord struct {
	// Archive is the archive path that supplied the member listing.
	Archive string `json:"archive"`

	// Root is the comparison root the archive was audited against.
	Root string `json:"root"`

	// Swapped is true when the directory was given first and supplied
	// the reference digests.
	Swapped bool `json:"swapped"`

	// Counters holds the final counter values.
	Counters Snapshot `json:"counters"`

	// ExitStatus is the capped modified-count status the run exited with.
	ExitStatus int `json:"exit_status"`

	// Interrupted is true when the run was terminated by a signal.
	Interrupted bool `json:"interrupted"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units, matching common filesystem tools.
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
