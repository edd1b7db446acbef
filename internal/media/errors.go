package media

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput covers missing files, oversize files and bad names.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoValidFiles means every file was dropped by the image type filter.
	ErrNoValidFiles = errors.New("no valid image files")
	// ErrUploadTimeout means the batch deadline expired before every write settled.
	ErrUploadTimeout = errors.New("upload timed out")
)

// PartialUploadFailure reports the first failed write of a batch, in input order.
type PartialUploadFailure struct {
	File string
	Key  string
	Err  error
}

func (e *PartialUploadFailure) Error() string {
	return fmt.Sprintf("upload of %q failed: %v", e.File, e.Err)
}

func (e *PartialUploadFailure) Unwrap() error { return e.Err }

// PersistError is a failed domain write after the images were stored.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return "persisting listing failed: " + e.Err.Error()
}

func (e *PersistError) Unwrap() error { return e.Err }

// RollbackFailure is a compensating delete that did not complete.
// Either Prefix or Keys names what may now be orphaned.
type RollbackFailure struct {
	Prefix string
	Keys   []string
	Err    error
}

func (e *RollbackFailure) Error() string {
	target := e.Prefix
	if target == "" {
		target = strings.Join(e.Keys, ", ")
	}
	return fmt.Sprintf("rollback of %s failed: %v", target, e.Err)
}

func (e *RollbackFailure) Unwrap() error { return e.Err }

// SubmissionError is what the Supervisor returns. Unwrap yields the original
// cause; a failed cleanup is attached but never replaces it.
type SubmissionError struct {
	Stage      State
	Err        error
	Rollback   *RollbackFailure
	RolledBack int // objects removed by the compensating delete
}

func (e *SubmissionError) Error() string {
	if e.Rollback != nil {
		return fmt.Sprintf("%s failed: %v (cleanup failed, orphaned objects may remain: %v)", e.Stage, e.Err, e.Rollback.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// CleanupFailed reports whether stored objects may have been left behind.
func (e *SubmissionError) CleanupFailed() bool { return e.Rollback != nil }
