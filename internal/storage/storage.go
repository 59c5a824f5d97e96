// Package storage defines the capability set a storage backend must satisfy
// for scanning and deletion, and provides the local filesystem implementation.
// Any backend that can enumerate files, stream their bytes, and delete them
// can be plugged into the engine without core changes.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrInvalidRoot indicates a scan root that does not exist or is not a
// readable directory. It is the only enumeration error that is fatal to a
// whole scan.
var ErrInvalidRoot = errors.New("invalid scan root")

// FileID uniquely identifies a file within a backend. For the local
// filesystem backend it is the absolute path. Immutable once created.
type FileID string

// FileRecord holds the stat metadata collected for a regular file during
// enumeration. Read-only after creation.
type FileRecord struct {
	ID      FileID
	Size    int64
	ModTime time.Time
	Ext     string // lowercase extension including the dot, or ""
}

// Entry is a single enumeration result: either a file record, or a
// per-entry error for a path that could not be read. Exactly one of
// Record/Err is meaningful.
type Entry struct {
	Record FileRecord
	Path   string // set when Err != nil
	Err    error
}

// Filters narrows which files an enumeration yields. The zero value scans
// every regular file recursively, skipping hidden files and symlinks.
type Filters struct {
	IncludeHidden   bool
	MinSize         int64
	MaxSize         *int64 // nil = no limit
	IncludePatterns []string
	ExcludePatterns []string
	NoRecurse       bool
}

// Backend is the storage capability set the engine consumes.
type Backend interface {
	// Enumerate walks root and yields every regular file reachable by
	// recursive descent. Per-entry failures are reported on the channel,
	// never aborting the walk; only an invalid root fails the call itself.
	// The channel is closed when enumeration finishes or ctx is cancelled.
	Enumerate(ctx context.Context, root string, filters Filters) (<-chan Entry, error)

	// Open returns a reader over the file's content.
	Open(ctx context.Context, id FileID) (io.ReadCloser, error)

	// Delete removes the file from the backend.
	Delete(ctx context.Context, id FileID) error
}
