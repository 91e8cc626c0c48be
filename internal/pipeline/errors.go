package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoCompatibleFormat means selection and the uncapped fallback both
// came up empty; the source offers nothing this pipeline can use.
var ErrNoCompatibleFormat = errors.New("no compatible format found")

// ErrFileNotFoundAfterDownload means a subprocess exited cleanly but the
// expected output file could not be located. Kept distinct from
// StageError: the file's presence, not the exit code, is the success
// predicate.
var ErrFileNotFoundAfterDownload = errors.New("expected file not found after download")

// StageError reports a subprocess that exited non-zero, with enough
// captured output to diagnose without re-running.
type StageError struct {
	Stage    string
	ExitCode int
	Output   string
}

func (e *StageError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s failed (exit %d): %s", e.Stage, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("%s failed (exit %d)", e.Stage, e.ExitCode)
}
