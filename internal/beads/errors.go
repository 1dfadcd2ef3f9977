package beads

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the tracker client. Higher layers translate
// these into their own domain errors only when the translation carries
// new semantics; most callers just
// propagate them with errors.Is/errors.As.
var (
	// ErrNotFound is returned when an issue does not exist, or is
	// tombstoned (tombstoned issues are never surfaced as Issues).
	ErrNotFound = errors.New("issue not found")
	// ErrParse is returned when bd's stdout is not valid JSON, or does
	// not match the expected schema.
	ErrParse = errors.New("could not parse tracker output")
	// ErrSyncRequired is returned when bd reports its local database
	// is out of sync with the on-disk JSONL.
	ErrSyncRequired = errors.New("tracker database out of sync, run sync --import-only")
)

// TrackerError wraps a non-zero exit from the bd CLI, carrying its
// stderr for diagnostics.
type TrackerError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *TrackerError) Error() string {
	return fmt.Sprintf("bd %v: %v: %s", e.Args, e.Err, e.Stderr)
}

func (e *TrackerError) Unwrap() error { return e.Err }

// NotFoundError carries the issue id that could not be found.
type NotFoundError struct {
	IssueID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("issue %q not found", e.IssueID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ParseError wraps a JSON decode failure together with the raw bytes
// that failed to parse, so callers can log the offending output.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing tracker output: %v", e.Err)
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// SyncRequiredError is the fingerprinted "database out of sync" signal.
// The daemon can emit this as a non-zero exit with stderr text, or
// as an exit 0 with one of the fingerprint phrases
// present in stdout instead — so detection always checks both streams.
type SyncRequiredError struct {
	Stdout string
	Stderr string
}

func (e *SyncRequiredError) Error() string {
	return "tracker database out of sync with " + syncHintFile
}

func (e *SyncRequiredError) Is(target error) bool { return target == ErrSyncRequired }

const syncHintFile = "the JSONL export; run `bd sync --import-only`"

// syncFingerprints are matched against both stdout and stderr of every
// bd invocation, case-sensitively, exactly as the daemon emits them.
var syncFingerprints = []string{
	"Database out of sync",
	"Run 'bd sync --import-only'",
	"bd sync --import-only",
}
