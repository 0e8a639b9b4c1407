package archive

import "fmt"

// AccessError reports that the archive itself is missing, unreadable, or
// corrupt. It is fatal for the run and maps to the archive-fault exit
// status at the CLI boundary.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Path, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// ExtractError reports that a specific member could not be materialized.
// It is fatal: a member that lists but does not extract means the archive
// is malformed, not that the filesystem drifted.
type ExtractError struct {
	Member string
	Err    error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Member, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}
