package engine

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mhollis/dedupd/internal/storage"
)

// ScanState is the terminal state of a scan.
type ScanState string

const (
	ScanStateRunning   ScanState = "running"
	ScanStateCompleted ScanState = "completed"
	ScanStateCancelled ScanState = "cancelled"
	ScanStateFailed    ScanState = "failed"
)

// Progress is a monotonically increasing snapshot of scan progress, safe to
// sample from any goroutine. FilesScanned counts enumerated candidates;
// BytesScanned counts content bytes actually hashed.
type Progress struct {
	FilesScanned int64
	BytesScanned int64
}

// Cache supplies previously computed digests. A hit requires the identity,
// size and modification time to all match; anything else is a miss. Both
// methods are best-effort: implementations swallow their own storage errors.
type Cache interface {
	Lookup(id storage.FileID, size int64, modTime time.Time) (digest string, ok bool)
	Store(id storage.FileID, size int64, modTime time.Time, digest string)
}

// Options configures a scan. The zero value scans with one worker per CPU,
// the default chunk size, and no cache.
type Options struct {
	Workers    int
	ChunkSize  int
	QueueDepth int // bound on the fingerprint work queue
	Filters    storage.Filters

	// Cache, when set, is consulted before hashing and updated after.
	Cache Cache

	// Progress, when set, receives cumulative progress updates. Sends never
	// block; a slow receiver just sees fewer intermediate values.
	Progress chan<- Progress
}

// ScanResult is the outcome of a scan. Immutable once returned. Every group
// has at least two members, all bit-identical in content; a cancelled scan
// returns the groups completed so far, never a partial group.
type ScanResult struct {
	State        ScanState
	Groups       []DuplicateGroup
	FilesScanned int64
	BytesScanned int64
	Errors       []FileError
}

// Scan walks the roots, fingerprints candidate files with a bounded worker
// pool, and returns the verified duplicate groups.
//
// Files are first bucketed by size; a file whose size is unique is never
// opened. Grouping is keyed by content, so the result is independent of
// worker count and completion order. Per-file failures accumulate in
// ScanResult.Errors; only an invalid root or a root that fails mid-walk
// fails the scan as a whole, and then the error return is non-nil.
func Scan(ctx context.Context, backend storage.Backend, roots []string, opts Options) (*ScanResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	queueDepth := opts.QueueDepth
	if queueDepth <= 0 {
		queueDepth = workers * 2
	}

	var filesScanned, bytesScanned atomic.Int64
	report := func() {
		if opts.Progress == nil {
			return
		}
		select {
		case opts.Progress <- Progress{
			FilesScanned: filesScanned.Load(),
			BytesScanned: bytesScanned.Load(),
		}:
		default:
		}
	}
	result := func(state ScanState, groups []DuplicateGroup, errs []FileError) *ScanResult {
		return &ScanResult{
			State:        state,
			Groups:       groups,
			FilesScanned: filesScanned.Load(),
			BytesScanned: bytesScanned.Load(),
			Errors:       errs,
		}
	}

	// Phase 1: enumerate every root into size buckets. Only sizes seen more
	// than once become hashing candidates.
	bySize := make(map[int64][]storage.FileRecord)
	var errs []FileError
	for _, root := range roots {
		entries, err := backend.Enumerate(ctx, root, opts.Filters)
		if err != nil {
			return result(ScanStateFailed, nil, errs), err
		}
		rootClean := filepath.Clean(root)
		for e := range entries {
			if e.Err != nil {
				if e.Path == rootClean {
					// The root itself failed mid-walk.
					return result(ScanStateFailed, nil, errs), e.Err
				}
				errs = append(errs, FileError{ID: storage.FileID(e.Path), Kind: ErrorKindEnumerate, Err: e.Err})
				continue
			}
			bySize[e.Record.Size] = append(bySize[e.Record.Size], e.Record)
			filesScanned.Add(1)
			report()
		}
		if ctx.Err() != nil {
			return result(ScanStateCancelled, nil, errs), nil
		}
	}

	// Phase 2: fingerprint candidates with a fixed worker pool fed through a
	// bounded queue, so enumeration backlog can never grow without limit.
	index := NewIndex()
	work := make(chan storage.FileRecord, queueDepth)

	var errMu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				if ctx.Err() != nil {
					continue
				}

				digest, cached := lookupCached(opts.Cache, rec)
				if !cached {
					fp, err := FingerprintFile(ctx, backend, rec, opts.ChunkSize)
					if err != nil {
						if ctx.Err() != nil {
							continue
						}
						errMu.Lock()
						errs = append(errs, FileError{ID: rec.ID, Kind: ErrorKindRead, Err: err})
						errMu.Unlock()
						continue
					}
					digest = fp.Digest
					bytesScanned.Add(rec.Size)
					if opts.Cache != nil {
						opts.Cache.Store(rec.ID, rec.Size, rec.ModTime, digest)
					}
				}

				index.Insert(Fingerprint{Size: rec.Size, Digest: digest}, rec)
				report()
			}
		}()
	}

dispatch:
	for _, recs := range bySize {
		if len(recs) < 2 {
			continue
		}
		for _, rec := range recs {
			select {
			case work <- rec:
			case <-ctx.Done():
				break dispatch
			}
		}
	}
	close(work)
	wg.Wait()
	report()

	state := ScanStateCompleted
	if ctx.Err() != nil {
		state = ScanStateCancelled
	}
	return result(state, index.Groups(), errs), nil
}

func lookupCached(cache Cache, rec storage.FileRecord) (string, bool) {
	if cache == nil {
		return "", false
	}
	return cache.Lookup(rec.ID, rec.Size, rec.ModTime)
}
