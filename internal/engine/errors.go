package engine

import (
	"errors"
	"fmt"

	"github.com/mhollis/dedupd/internal/storage"
)

// Deletion planning errors. All are returned as values and checked with
// errors.Is; a rejected plan performs no side effects.
var (
	// ErrEmptyGroup rejects a plan against a group with fewer than two
	// members. Unreachable for groups produced by a scan, but checked.
	ErrEmptyGroup = errors.New("group has fewer than two members")

	// ErrUnsafeDeletion rejects a plan that would delete every member of a
	// group. At least one copy must always remain.
	ErrUnsafeDeletion = errors.New("deletion would remove every copy in the group")

	// ErrUnknownMember rejects a plan naming a file that is not in the group.
	ErrUnknownMember = errors.New("file is not a member of the group")
)

// ErrorKind classifies per-file scan errors.
type ErrorKind string

const (
	// ErrorKindEnumerate marks an entry that could not be listed or stat'd.
	ErrorKindEnumerate ErrorKind = "enumerate"
	// ErrorKindRead marks a file that failed while its content was hashed.
	ErrorKindRead ErrorKind = "read"
)

// FileError records a single file's failure during a scan. File-level errors
// never abort the scan; they accumulate on the ScanResult.
type FileError struct {
	ID   storage.FileID
	Kind ErrorKind
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}
