package db

import (
	"database/sql"
	"encoding/json"
	"time"
)

// ScanRun queries

// CreateScanRun creates a new scan run
func (db *DB) CreateScanRun(jobID *int64, paths []string) (*ScanRun, error) {
	pathsJSON, _ := json.Marshal(paths)

	result, err := db.Exec(`
		INSERT INTO scan_runs (scheduled_job_id, paths, status, started_at)
		VALUES (?, ?, ?, ?)`,
		jobID, string(pathsJSON), ScanRunStatusRunning, time.Now(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetScanRun(id)
}

// GetScanRun retrieves a scan run by ID
func (db *DB) GetScanRun(id int64) (*ScanRun, error) {
	row := db.QueryRow(`
		SELECT id, scheduled_job_id, paths, status, started_at, completed_at,
			files_scanned, bytes_scanned, duplicate_groups, duplicate_files, wasted_bytes, error_message
		FROM scan_runs WHERE id = ?`, id)
	return scanScanRun(row.Scan)
}

// ListScanRuns returns scan runs with pagination
func (db *DB) ListScanRuns(limit, offset int) ([]*ScanRun, error) {
	rows, err := db.Query(`
		SELECT id, scheduled_job_id, paths, status, started_at, completed_at,
			files_scanned, bytes_scanned, duplicate_groups, duplicate_files, wasted_bytes, error_message
		FROM scan_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScanRun
	for rows.Next() {
		r, err := scanScanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLastRunForJob returns the most recent scan run for a scheduled job
func (db *DB) GetLastRunForJob(jobID int64) (*ScanRun, error) {
	row := db.QueryRow(`
		SELECT id, scheduled_job_id, paths, status, started_at, completed_at,
			files_scanned, bytes_scanned, duplicate_groups, duplicate_files, wasted_bytes, error_message
		FROM scan_runs WHERE scheduled_job_id = ? ORDER BY started_at DESC LIMIT 1`, jobID)
	return scanScanRun(row.Scan)
}

// UpdateScanRunProgress updates scan progress
func (db *DB) UpdateScanRunProgress(id int64, filesScanned, bytesScanned, groups, files, wasted int64) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET
			files_scanned = ?, bytes_scanned = ?, duplicate_groups = ?,
			duplicate_files = ?, wasted_bytes = ?
		WHERE id = ?`,
		filesScanned, bytesScanned, groups, files, wasted, id,
	)
	return err
}

// CompleteScanRun marks a scan run as completed
func (db *DB) CompleteScanRun(id int64, status ScanRunStatus, errorMsg *string) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?`,
		status, time.Now(), errorMsg, id,
	)
	return err
}

func scanScanRun(scan func(...any) error) (*ScanRun, error) {
	var r ScanRun
	var jobID sql.NullInt64
	var pathsJSON string
	var completedAt sql.NullTime
	var errorMsg sql.NullString

	err := scan(&r.ID, &jobID, &pathsJSON, &r.Status, &r.StartedAt, &completedAt,
		&r.FilesScanned, &r.BytesScanned, &r.DuplicateGroups, &r.DuplicateFiles,
		&r.WastedBytes, &errorMsg)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(pathsJSON), &r.Paths)
	if jobID.Valid {
		r.ScheduledJobID = &jobID.Int64
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		r.ErrorMessage = &errorMsg.String
	}

	return &r, nil
}

// DuplicateGroup queries

// CreateDuplicateGroup creates a new duplicate group
func (db *DB) CreateDuplicateGroup(g *DuplicateGroup) (*DuplicateGroup, error) {
	filesJSON, _ := json.Marshal(g.Files)

	if g.Status == "" {
		g.Status = DuplicateGroupStatusPending
	}

	result, err := db.Exec(`
		INSERT INTO duplicate_groups (scan_run_id, file_hash, file_size, file_count, wasted_bytes, status, files)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ScanRunID, g.FileHash, g.FileSize, g.FileCount, g.WastedBytes, g.Status, string(filesJSON),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	g.ID = id
	return g, nil
}

// GetDuplicateGroup retrieves a duplicate group by ID
func (db *DB) GetDuplicateGroup(id int64) (*DuplicateGroup, error) {
	row := db.QueryRow(`
		SELECT id, scan_run_id, file_hash, file_size, file_count, wasted_bytes, status, files
		FROM duplicate_groups WHERE id = ?`, id)
	return scanDuplicateGroup(row.Scan)
}

// DuplicateGroupQuery holds query parameters for listing duplicate groups
type DuplicateGroupQuery struct {
	ScanRunID int64
	Status    string // filter by status (empty = all)
	SortBy    string // "wasted", "size", "count", "hash"
	SortOrder string // "asc" or "desc"
	Limit     int
	Offset    int
}

// ListDuplicateGroups returns all duplicate groups for a scan run
func (db *DB) ListDuplicateGroups(scanRunID int64, status string) ([]*DuplicateGroup, error) {
	return db.ListDuplicateGroupsPaginated(DuplicateGroupQuery{
		ScanRunID: scanRunID,
		Status:    status,
		SortBy:    "wasted",
		SortOrder: "desc",
		Limit:     0, // no limit
	})
}

// ListDuplicateGroupsPaginated returns duplicate groups with sorting and pagination
func (db *DB) ListDuplicateGroupsPaginated(q DuplicateGroupQuery) ([]*DuplicateGroup, error) {
	query := `
		SELECT id, scan_run_id, file_hash, file_size, file_count, wasted_bytes, status, files
		FROM duplicate_groups WHERE scan_run_id = ?`
	args := []any{q.ScanRunID}

	if q.Status != "" {
		query += " AND status = ?"
		args = append(args, q.Status)
	}

	// Determine sort column
	sortCol := "wasted_bytes"
	switch q.SortBy {
	case "size":
		sortCol = "file_size"
	case "count":
		sortCol = "file_count"
	case "hash":
		sortCol = "file_hash"
	case "status":
		sortCol = "status"
	}

	// Determine sort order
	sortOrder := "DESC"
	if q.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	query += " ORDER BY " + sortCol + " " + sortOrder

	// Add pagination
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*DuplicateGroup
	for rows.Next() {
		g, err := scanDuplicateGroup(rows.Scan)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CountDuplicateGroups returns the total count of duplicate groups for a scan run
func (db *DB) CountDuplicateGroups(scanRunID int64, status string) (int, error) {
	query := "SELECT COUNT(*) FROM duplicate_groups WHERE scan_run_id = ?"
	args := []any{scanRunID}

	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	var count int
	err := db.QueryRow(query, args...).Scan(&count)
	return count, err
}

// UpdateDuplicateGroupStatus updates the status of a duplicate group
func (db *DB) UpdateDuplicateGroupStatus(id int64, status DuplicateGroupStatus) error {
	_, err := db.Exec("UPDATE duplicate_groups SET status = ? WHERE id = ?", status, id)
	return err
}

// UpdateDuplicateGroupFiles replaces a group's member list after deletions
// and recomputes the derived columns.
func (db *DB) UpdateDuplicateGroupFiles(id int64, files []string, fileSize int64, status DuplicateGroupStatus) error {
	filesJSON, _ := json.Marshal(files)
	wasted := int64(0)
	if len(files) > 1 {
		wasted = fileSize * int64(len(files)-1)
	}

	_, err := db.Exec(`
		UPDATE duplicate_groups SET files = ?, file_count = ?, wasted_bytes = ?, status = ?
		WHERE id = ?`,
		string(filesJSON), len(files), wasted, status, id,
	)
	return err
}

func scanDuplicateGroup(scan func(...any) error) (*DuplicateGroup, error) {
	var g DuplicateGroup
	var filesJSON string

	err := scan(&g.ID, &g.ScanRunID, &g.FileHash, &g.FileSize, &g.FileCount,
		&g.WastedBytes, &g.Status, &filesJSON)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(filesJSON), &g.Files)
	return &g, nil
}

// ScanError queries

// CreateScanErrors inserts per-file errors for a scan run
func (db *DB) CreateScanErrors(scanRunID int64, errs []ScanError) error {
	if len(errs) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	for _, e := range errs {
		if _, err := tx.Exec(`
			INSERT INTO scan_errors (scan_run_id, path, kind, message)
			VALUES (?, ?, ?, ?)`,
			scanRunID, e.Path, e.Kind, e.Message,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListScanErrors returns per-file errors for a scan run
func (db *DB) ListScanErrors(scanRunID int64) ([]*ScanError, error) {
	rows, err := db.Query(`
		SELECT id, scan_run_id, path, kind, message
		FROM scan_errors WHERE scan_run_id = ? ORDER BY id`, scanRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errs []*ScanError
	for rows.Next() {
		var e ScanError
		if err := rows.Scan(&e.ID, &e.ScanRunID, &e.Path, &e.Kind, &e.Message); err != nil {
			return nil, err
		}
		errs = append(errs, &e)
	}
	return errs, rows.Err()
}

// ScheduledJob queries

// CreateScheduledJob creates a new scheduled job
func (db *DB) CreateScheduledJob(job *ScheduledJob) (*ScheduledJob, error) {
	pathsJSON, _ := json.Marshal(job.Paths)
	includeJSON, _ := json.Marshal(job.IncludePatterns)
	excludeJSON, _ := json.Marshal(job.ExcludePatterns)

	result, err := db.Exec(`
		INSERT INTO scheduled_jobs (name, paths, min_size, max_size, include_patterns, exclude_patterns,
			include_hidden, cron_expression, enabled, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Name, string(pathsJSON), job.MinSize, job.MaxSize, string(includeJSON), string(excludeJSON),
		job.IncludeHidden, job.CronExpression, job.Enabled, job.NextRunAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetScheduledJob(id)
}

// GetScheduledJob retrieves a scheduled job by ID
func (db *DB) GetScheduledJob(id int64) (*ScheduledJob, error) {
	row := db.QueryRow(`
		SELECT id, name, paths, min_size, max_size, include_patterns, exclude_patterns,
			include_hidden, cron_expression, enabled, last_run_at, next_run_at, created_at
		FROM scheduled_jobs WHERE id = ?`, id)
	return scanScheduledJob(row.Scan)
}

// ListScheduledJobs returns all scheduled jobs
func (db *DB) ListScheduledJobs() ([]*ScheduledJob, error) {
	rows, err := db.Query(`
		SELECT id, name, paths, min_size, max_size, include_patterns, exclude_patterns,
			include_hidden, cron_expression, enabled, last_run_at, next_run_at, created_at
		FROM scheduled_jobs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// GetEnabledJobs returns all enabled scheduled jobs
func (db *DB) GetEnabledJobs() ([]*ScheduledJob, error) {
	rows, err := db.Query(`
		SELECT id, name, paths, min_size, max_size, include_patterns, exclude_patterns,
			include_hidden, cron_expression, enabled, last_run_at, next_run_at, created_at
		FROM scheduled_jobs WHERE enabled = 1 ORDER BY next_run_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateScheduledJob updates a scheduled job
func (db *DB) UpdateScheduledJob(job *ScheduledJob) error {
	pathsJSON, _ := json.Marshal(job.Paths)
	includeJSON, _ := json.Marshal(job.IncludePatterns)
	excludeJSON, _ := json.Marshal(job.ExcludePatterns)

	_, err := db.Exec(`
		UPDATE scheduled_jobs SET
			name = ?, paths = ?, min_size = ?, max_size = ?, include_patterns = ?, exclude_patterns = ?,
			include_hidden = ?, cron_expression = ?, enabled = ?, next_run_at = ?
		WHERE id = ?`,
		job.Name, string(pathsJSON), job.MinSize, job.MaxSize, string(includeJSON), string(excludeJSON),
		job.IncludeHidden, job.CronExpression, job.Enabled, job.NextRunAt, job.ID,
	)
	return err
}

// UpdateJobLastRun updates the last run time and next run time
func (db *DB) UpdateJobLastRun(id int64, lastRun, nextRun time.Time) error {
	_, err := db.Exec(`
		UPDATE scheduled_jobs SET last_run_at = ?, next_run_at = ?
		WHERE id = ?`,
		lastRun, nextRun, id,
	)
	return err
}

// SetJobEnabled enables or disables a job
func (db *DB) SetJobEnabled(id int64, enabled bool) error {
	_, err := db.Exec("UPDATE scheduled_jobs SET enabled = ? WHERE id = ?", enabled, id)
	return err
}

// DeleteScheduledJob deletes a scheduled job
func (db *DB) DeleteScheduledJob(id int64) error {
	_, err := db.Exec("DELETE FROM scheduled_jobs WHERE id = ?", id)
	return err
}

func scanScheduledJob(scan func(...any) error) (*ScheduledJob, error) {
	var j ScheduledJob
	var pathsJSON, includeJSON, excludeJSON string
	var maxSize sql.NullInt64
	var lastRun, nextRun sql.NullTime

	err := scan(&j.ID, &j.Name, &pathsJSON, &j.MinSize, &maxSize, &includeJSON, &excludeJSON,
		&j.IncludeHidden, &j.CronExpression, &j.Enabled, &lastRun, &nextRun, &j.CreatedAt)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(pathsJSON), &j.Paths)
	json.Unmarshal([]byte(includeJSON), &j.IncludePatterns)
	json.Unmarshal([]byte(excludeJSON), &j.ExcludePatterns)
	if maxSize.Valid {
		j.MaxSize = &maxSize.Int64
	}
	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		j.NextRunAt = &nextRun.Time
	}

	return &j, nil
}

// Deletion queries

// CreateDeletion records an executed deletion request
func (db *DB) CreateDeletion(d *Deletion) (*Deletion, error) {
	resultsJSON, _ := json.Marshal(d.Results)

	result, err := db.Exec(`
		INSERT INTO deletions (group_id, scan_run_id, files_requested, files_deleted, files_failed, bytes_freed, results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.GroupID, d.ScanRunID, d.FilesRequested, d.FilesDeleted, d.FilesFailed, d.BytesFreed, string(resultsJSON), time.Now(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	d.ID = id
	return d, nil
}

// ListDeletions returns deletion audit records with pagination
func (db *DB) ListDeletions(limit, offset int) ([]*Deletion, error) {
	rows, err := db.Query(`
		SELECT id, group_id, scan_run_id, files_requested, files_deleted, files_failed, bytes_freed, results, created_at
		FROM deletions ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deletions []*Deletion
	for rows.Next() {
		var d Deletion
		var resultsJSON string
		if err := rows.Scan(&d.ID, &d.GroupID, &d.ScanRunID, &d.FilesRequested, &d.FilesDeleted,
			&d.FilesFailed, &d.BytesFreed, &resultsJSON, &d.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(resultsJSON), &d.Results)
		deletions = append(deletions, &d)
	}
	return deletions, rows.Err()
}

// Settings queries

// GetSetting returns a setting value, or "" if unset
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting stores a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Stats queries

// GetDashboardStats returns aggregate statistics
func (db *DB) GetDashboardStats() (totalFreed int64, pendingGroups int, recentScans int, err error) {
	// Total bytes freed by deletions
	row := db.QueryRow("SELECT COALESCE(SUM(bytes_freed), 0) FROM deletions")
	if err = row.Scan(&totalFreed); err != nil {
		return
	}

	// Pending duplicate groups
	row = db.QueryRow("SELECT COUNT(*) FROM duplicate_groups WHERE status = 'pending'")
	if err = row.Scan(&pendingGroups); err != nil {
		return
	}

	// Scans in last 24 hours
	row = db.QueryRow("SELECT COUNT(*) FROM scan_runs WHERE started_at > datetime('now', '-1 day')")
	err = row.Scan(&recentScans)
	return
}

// CleanupOldData removes data older than the retention period
func (db *DB) CleanupOldData(retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	// Delete old scan runs and their groups and errors
	_, err := db.Exec(`
		DELETE FROM duplicate_groups WHERE scan_run_id IN
			(SELECT id FROM scan_runs WHERE completed_at < ? AND status != 'running')`, cutoff)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		DELETE FROM scan_errors WHERE scan_run_id IN
			(SELECT id FROM scan_runs WHERE completed_at < ? AND status != 'running')`, cutoff)
	if err != nil {
		return err
	}
	_, err = db.Exec("DELETE FROM scan_runs WHERE completed_at < ? AND status != 'running'", cutoff)
	if err != nil {
		return err
	}

	// Delete old deletion audit records
	_, err = db.Exec("DELETE FROM deletions WHERE created_at < ?", cutoff)
	if err != nil {
		return err
	}

	// Drop stale fingerprint cache entries
	_, err = db.Exec("DELETE FROM fingerprint_cache WHERE updated_at < ?", cutoff)
	return err
}
