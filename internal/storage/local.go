package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local is the local filesystem backend.
type Local struct{}

// NewLocal creates a local filesystem backend.
func NewLocal() *Local {
	return &Local{}
}

// Enumerate walks root recursively and yields a FileRecord for every regular
// file that passes the filters. Directories reached through symlinks are
// followed at most once: each directory's resolved path is tracked so
// circular links cannot loop the walk. Entries that cannot be stat'd are
// reported as per-entry errors and skipped.
func (l *Local) Enumerate(ctx context.Context, root string, filters Filters) (<-chan Entry, error) {
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s: not a directory", ErrInvalidRoot, root)
	}

	out := make(chan Entry)
	go func() {
		defer close(out)
		visited := make(map[string]bool)
		if resolved, err := filepath.EvalSymlinks(root); err == nil {
			visited[resolved] = true
		}
		l.walk(ctx, root, filters, visited, out)
	}()
	return out, nil
}

// walk emits entries for one directory and recurses into subdirectories.
// visited holds resolved directory paths already descended into.
func (l *Local) walk(ctx context.Context, dir string, filters Filters, visited map[string]bool, out chan<- Entry) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		send(ctx, out, Entry{Path: dir, Err: err})
		return
	}

	// os.ReadDir sorts by name, so repeated walks of a static tree are
	// deterministic.
	for _, de := range entries {
		if ctx.Err() != nil {
			return
		}

		name := de.Name()
		path := filepath.Join(dir, name)

		if !filters.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		if de.Type()&os.ModeSymlink != 0 {
			// Symlinked files are shortcuts, never candidates. Symlinked
			// directories are followed unless their target was already seen.
			target, err := os.Stat(path)
			if err != nil {
				// Broken link: not scannable, not an error worth surfacing.
				continue
			}
			if target.IsDir() && !filters.NoRecurse {
				l.descend(ctx, path, filters, visited, out)
			}
			continue
		}

		if de.IsDir() {
			if !filters.NoRecurse {
				l.descend(ctx, path, filters, visited, out)
			}
			continue
		}

		if !de.Type().IsRegular() {
			continue
		}

		info, err := de.Info()
		if err != nil {
			send(ctx, out, Entry{Path: path, Err: err})
			continue
		}

		if !filters.match(name, info.Size()) {
			continue
		}

		send(ctx, out, Entry{Record: FileRecord{
			ID:      FileID(path),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Ext:     strings.ToLower(filepath.Ext(name)),
		}})
	}
}

// descend recurses into dir if its resolved identity has not been walked yet.
func (l *Local) descend(ctx context.Context, dir string, filters Filters, visited map[string]bool, out chan<- Entry) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		send(ctx, out, Entry{Path: dir, Err: err})
		return
	}
	if visited[resolved] {
		return
	}
	visited[resolved] = true
	l.walk(ctx, dir, filters, visited, out)
}

// match reports whether a file passes the size and pattern filters.
func (f Filters) match(name string, size int64) bool {
	if size < f.MinSize {
		return false
	}
	if f.MaxSize != nil && size > *f.MaxSize {
		return false
	}
	for _, p := range f.ExcludePatterns {
		if ok, _ := filepath.Match(p, name); ok {
			return false
		}
	}
	if len(f.IncludePatterns) > 0 {
		for _, p := range f.IncludePatterns {
			if ok, _ := filepath.Match(p, name); ok {
				return true
			}
		}
		return false
	}
	return true
}

func send(ctx context.Context, out chan<- Entry, e Entry) {
	select {
	case out <- e:
	case <-ctx.Done():
	}
}

// Open returns a reader over the file's content.
func (l *Local) Open(ctx context.Context, id FileID) (io.ReadCloser, error) {
	return os.Open(string(id))
}

// Delete removes the file.
func (l *Local) Delete(ctx context.Context, id FileID) error {
	return os.Remove(string(id))
}
