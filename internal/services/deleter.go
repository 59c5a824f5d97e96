package services

import (
	"context"
	"fmt"
	"log"

	"github.com/mhollis/dedupd/internal/db"
	"github.com/mhollis/dedupd/internal/engine"
	"github.com/mhollis/dedupd/internal/storage"
)

// Deleter validates and executes deletion requests against stored duplicate
// groups. Validation rejects any request that would remove every copy of a
// file; execution is per-file with no rollback, so a partial failure leaves
// the surviving copies untouched.
type Deleter struct {
	db      *db.DB
	backend storage.Backend
}

// NewDeleter creates a new deleter service
func NewDeleter(database *db.DB, backend storage.Backend) *Deleter {
	return &Deleter{db: database, backend: backend}
}

// DeleteResult is the outcome of one executed deletion request.
type DeleteResult struct {
	GroupID        int64            `json:"group_id"`
	FilesRequested int              `json:"files_requested"`
	FilesDeleted   int              `json:"files_deleted"`
	FilesFailed    int              `json:"files_failed"`
	BytesFreed     int64            `json:"bytes_freed"`
	Results        []db.FileOutcome `json:"results"`
}

// DeleteFromGroup validates paths against the stored group and deletes the
// approved files. Validation errors (engine.ErrEmptyGroup,
// engine.ErrUnknownMember, engine.ErrUnsafeDeletion) are returned before
// anything is removed.
func (d *Deleter) DeleteFromGroup(ctx context.Context, groupID int64, paths []string) (*DeleteResult, error) {
	group, err := d.db.GetDuplicateGroup(groupID)
	if err != nil {
		return nil, fmt.Errorf("group %d: %w", groupID, err)
	}

	// Rebuild the in-memory group so the planner sees current membership.
	members := make([]storage.FileRecord, 0, len(group.Files))
	for _, f := range group.Files {
		members = append(members, storage.FileRecord{
			ID:   storage.FileID(f),
			Size: group.FileSize,
		})
	}
	eg := engine.DuplicateGroup{
		Fingerprint: engine.Fingerprint{Size: group.FileSize, Digest: group.FileHash},
		Members:     members,
	}

	toDelete := make([]storage.FileID, 0, len(paths))
	for _, p := range paths {
		toDelete = append(toDelete, storage.FileID(p))
	}

	approved, err := engine.PlanDeletion(eg, toDelete)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{
		GroupID:        groupID,
		FilesRequested: len(approved),
	}
	deleted := make(map[storage.FileID]bool, len(approved))
	for _, id := range approved {
		outcome := db.FileOutcome{Path: string(id)}
		if err := d.backend.Delete(ctx, id); err != nil {
			outcome.Error = err.Error()
			result.FilesFailed++
			log.Printf("[deleter] group %d: delete %s: %v", groupID, id, err)
		} else {
			outcome.Deleted = true
			deleted[id] = true
			result.FilesDeleted++
			result.BytesFreed += group.FileSize
		}
		result.Results = append(result.Results, outcome)
	}

	// Update the stored group to reflect surviving members.
	var remaining []string
	for _, f := range group.Files {
		if !deleted[storage.FileID(f)] {
			remaining = append(remaining, f)
		}
	}
	status := db.DuplicateGroupStatusPending
	if len(remaining) < 2 {
		status = db.DuplicateGroupStatusResolved
	}
	if err := d.db.UpdateDuplicateGroupFiles(groupID, remaining, group.FileSize, status); err != nil {
		log.Printf("[deleter] group %d: failed to update members: %v", groupID, err)
	}

	// Audit record
	if _, err := d.db.CreateDeletion(&db.Deletion{
		GroupID:        groupID,
		ScanRunID:      group.ScanRunID,
		FilesRequested: result.FilesRequested,
		FilesDeleted:   result.FilesDeleted,
		FilesFailed:    result.FilesFailed,
		BytesFreed:     result.BytesFreed,
		Results:        result.Results,
	}); err != nil {
		log.Printf("[deleter] group %d: failed to record deletion: %v", groupID, err)
	}

	return result, nil
}
