// Package services orchestrates scans and deletions on top of the engine,
// the storage backend, and the database.
package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mhollis/dedupd/internal/db"
	"github.com/mhollis/dedupd/internal/engine"
	"github.com/mhollis/dedupd/internal/storage"
	"github.com/mhollis/dedupd/internal/types"
)

// subscriber wraps a channel with safe close handling
type subscriber struct {
	ch        chan *types.ScanProgress
	closeOnce sync.Once
	closed    bool
}

func (sub *subscriber) close() {
	sub.closeOnce.Do(func() {
		sub.closed = true
		close(sub.ch)
	})
}

func (sub *subscriber) send(progress *types.ScanProgress) bool {
	if sub.closed {
		return false
	}
	select {
	case sub.ch <- progress:
		return true
	default:
		return false
	}
}

// ScanConfig holds configuration for a scan
type ScanConfig struct {
	Paths           []string
	MinSize         int64
	MaxSize         *int64
	IncludePatterns []string
	ExcludePatterns []string
	IncludeHidden   bool
}

func (cfg *ScanConfig) filters() storage.Filters {
	return storage.Filters{
		IncludeHidden:   cfg.IncludeHidden,
		MinSize:         cfg.MinSize,
		MaxSize:         cfg.MaxSize,
		IncludePatterns: cfg.IncludePatterns,
		ExcludePatterns: cfg.ExcludePatterns,
	}
}

// Scanner orchestrates scan operations
type Scanner struct {
	db          *db.DB
	backend     storage.Backend
	cache       engine.Cache
	workers     int
	chunkSize   int
	queueDepth  int
	scanTimeout time.Duration

	// Active scans and their cancellation functions
	mu          sync.RWMutex
	activeScans map[int64]context.CancelFunc

	// SSE subscribers
	subMu       sync.RWMutex
	subscribers map[int64][]*subscriber
}

// ScannerOptions configures a Scanner. Zero values fall back to the engine
// defaults.
type ScannerOptions struct {
	Workers     int
	ChunkSize   int
	QueueDepth  int
	ScanTimeout time.Duration
	Cache       engine.Cache
}

// NewScanner creates a new scanner service
func NewScanner(database *db.DB, backend storage.Backend, opts ScannerOptions) *Scanner {
	timeout := opts.ScanTimeout
	if timeout <= 0 {
		timeout = 6 * time.Hour
	}
	return &Scanner{
		db:          database,
		backend:     backend,
		cache:       opts.Cache,
		workers:     opts.Workers,
		chunkSize:   opts.ChunkSize,
		queueDepth:  opts.QueueDepth,
		scanTimeout: timeout,
		activeScans: make(map[int64]context.CancelFunc),
		subscribers: make(map[int64][]*subscriber),
	}
}

// Subscribe subscribes to progress updates for a scan
func (s *Scanner) Subscribe(runID int64) chan *types.ScanProgress {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub := &subscriber{
		ch: make(chan *types.ScanProgress, 10),
	}
	s.subscribers[runID] = append(s.subscribers[runID], sub)
	return sub.ch
}

// Unsubscribe removes a subscriber
func (s *Scanner) Unsubscribe(runID int64, ch chan *types.ScanProgress) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs := s.subscribers[runID]
	for i, sub := range subs {
		if sub.ch == ch {
			// Remove from slice first, then close safely
			s.subscribers[runID] = append(subs[:i], subs[i+1:]...)
			sub.close()
			break
		}
	}

	// Clean up if no more subscribers
	if len(s.subscribers[runID]) == 0 {
		delete(s.subscribers, runID)
	}
}

// broadcast sends progress to all subscribers
func (s *Scanner) broadcast(runID int64, progress *types.ScanProgress) {
	s.subMu.RLock()
	// Make a copy of the slice to avoid holding lock during send
	subs := make([]*subscriber, len(s.subscribers[runID]))
	copy(subs, s.subscribers[runID])
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.send(progress)
	}
}

// closeSubscribers closes all subscriber channels for a scan
func (s *Scanner) closeSubscribers(runID int64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, sub := range s.subscribers[runID] {
		sub.close()
	}
	delete(s.subscribers, runID)
}

// StartScan starts a new scan with full configuration
func (s *Scanner) StartScan(ctx context.Context, cfg *ScanConfig, jobID *int64) (*db.ScanRun, error) {
	// Create scan run record with paths
	run, err := s.db.CreateScanRun(jobID, cfg.Paths)
	if err != nil {
		return nil, err
	}

	// Create context with timeout (can also be cancelled manually)
	scanCtx, cancel := context.WithTimeout(context.Background(), s.scanTimeout)

	s.mu.Lock()
	s.activeScans[run.ID] = cancel
	s.mu.Unlock()

	// Run scan in background
	go s.runScan(scanCtx, run.ID, cfg)

	return run, nil
}

// runScan executes the actual scan
func (s *Scanner) runScan(ctx context.Context, runID int64, cfg *ScanConfig) {
	defer func() {
		s.mu.Lock()
		cancel := s.activeScans[runID]
		delete(s.activeScans, runID)
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.closeSubscribers(runID)
	}()

	// Progress channel, drained into the db and the SSE subscribers
	progressChan := make(chan engine.Progress, 100)
	var progressWG sync.WaitGroup
	progressWG.Add(1)
	go func() {
		defer progressWG.Done()
		for progress := range progressChan {
			s.db.UpdateScanRunProgress(runID,
				progress.FilesScanned,
				progress.BytesScanned,
				0, 0, 0,
			)
			s.broadcast(runID, &types.ScanProgress{
				FilesScanned: progress.FilesScanned,
				BytesScanned: progress.BytesScanned,
				Status:       "running",
			})
		}
	}()

	result, err := engine.Scan(ctx, s.backend, cfg.Paths, engine.Options{
		Workers:    s.workers,
		ChunkSize:  s.chunkSize,
		QueueDepth: s.queueDepth,
		Filters:    cfg.filters(),
		Cache:      s.cache,
		Progress:   progressChan,
	})
	close(progressChan)
	progressWG.Wait()

	// Persist per-file errors regardless of outcome
	if len(result.Errors) > 0 {
		scanErrs := make([]db.ScanError, 0, len(result.Errors))
		for _, fe := range result.Errors {
			scanErrs = append(scanErrs, db.ScanError{
				Path:    string(fe.ID),
				Kind:    string(fe.Kind),
				Message: fe.Err.Error(),
			})
		}
		if dbErr := s.db.CreateScanErrors(runID, scanErrs); dbErr != nil {
			log.Printf("[scanner] failed to store scan errors for run %d: %v", runID, dbErr)
		}
	}

	switch result.State {
	case engine.ScanStateFailed:
		errMsg := "scan failed"
		if err != nil {
			errMsg = err.Error()
		}
		s.db.CompleteScanRun(runID, db.ScanRunStatusFailed, &errMsg)
		s.broadcast(runID, &types.ScanProgress{Status: "failed"})
		log.Printf("[scanner] run %d failed: %s", runID, errMsg)
		return

	case engine.ScanStateCancelled:
		s.persistGroups(runID, result.Groups)
		errMsg := "scan cancelled"
		s.db.CompleteScanRun(runID, db.ScanRunStatusCancelled, &errMsg)
		s.broadcast(runID, &types.ScanProgress{Status: "cancelled"})
		log.Printf("[scanner] run %d cancelled after %d files", runID, result.FilesScanned)
		return
	}

	groups, files, wasted := s.persistGroups(runID, result.Groups)

	// Update final stats
	s.db.UpdateScanRunProgress(runID,
		result.FilesScanned,
		result.BytesScanned,
		groups, files, wasted,
	)

	// Mark complete
	s.db.CompleteScanRun(runID, db.ScanRunStatusCompleted, nil)
	s.broadcast(runID, &types.ScanProgress{
		FilesScanned: result.FilesScanned,
		BytesScanned: result.BytesScanned,
		GroupsFound:  groups,
		WastedBytes:  wasted,
		Status:       "completed",
	})
	log.Printf("[scanner] run %d completed: %d files, %d duplicate groups, %d bytes wasted",
		runID, result.FilesScanned, groups, wasted)
}

// persistGroups stores duplicate groups and returns aggregate counters.
func (s *Scanner) persistGroups(runID int64, groups []engine.DuplicateGroup) (groupCount, fileCount, wasted int64) {
	for _, group := range groups {
		files := make([]string, 0, len(group.Members))
		for _, m := range group.Members {
			files = append(files, string(m.ID))
		}

		dg := &db.DuplicateGroup{
			ScanRunID:   runID,
			FileHash:    group.Fingerprint.Digest,
			FileSize:    group.Fingerprint.Size,
			FileCount:   len(files),
			WastedBytes: group.WastedBytes(),
			Status:      db.DuplicateGroupStatusPending,
			Files:       files,
		}
		if _, err := s.db.CreateDuplicateGroup(dg); err != nil {
			log.Printf("[scanner] failed to store group %s for run %d: %v", group.Fingerprint.Digest, runID, err)
			continue
		}

		groupCount++
		fileCount += int64(len(files) - 1)
		wasted += group.WastedBytes()
	}
	return groupCount, fileCount, wasted
}

// CancelScan cancels an active scan
func (s *Scanner) CancelScan(runID int64) {
	s.mu.RLock()
	cancel, ok := s.activeScans[runID]
	s.mu.RUnlock()

	if ok {
		cancel()
	}
}

// IsActive reports whether a scan run is still executing.
func (s *Scanner) IsActive(runID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.activeScans[runID]
	return ok
}
