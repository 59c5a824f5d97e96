package db

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// testDB creates a temporary database for testing
func testDB(t *testing.T) *DB {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// ============================================================================
// ScanRun Tests
// ============================================================================

func TestScanRun_RoundTrip(t *testing.T) {
	db := testDB(t)

	paths := []string{"/tmp/test", "/home/user"}
	created, err := db.CreateScanRun(nil, paths)
	if err != nil {
		t.Fatalf("CreateScanRun failed: %v", err)
	}

	got, err := db.GetScanRun(created.ID)
	if err != nil {
		t.Fatalf("GetScanRun failed: %v", err)
	}

	if got.ID != created.ID {
		t.Errorf("ID mismatch: got %d, want %d", got.ID, created.ID)
	}
	if !reflect.DeepEqual(got.Paths, paths) {
		t.Errorf("Paths mismatch: got %v, want %v", got.Paths, paths)
	}
	if got.Status != ScanRunStatusRunning {
		t.Errorf("Status mismatch: got %s, want %s", got.Status, ScanRunStatusRunning)
	}
	if got.ScheduledJobID != nil {
		t.Errorf("ScheduledJobID should be nil, got %v", *got.ScheduledJobID)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt should be nil for running scan")
	}
}

func TestScanRun_ProgressAndCompletion(t *testing.T) {
	db := testDB(t)

	run, err := db.CreateScanRun(nil, []string{"/data"})
	if err != nil {
		t.Fatalf("CreateScanRun failed: %v", err)
	}

	if err := db.UpdateScanRunProgress(run.ID, 100, 2048, 3, 8, 1500); err != nil {
		t.Fatalf("UpdateScanRunProgress failed: %v", err)
	}

	got, err := db.GetScanRun(run.ID)
	if err != nil {
		t.Fatalf("GetScanRun failed: %v", err)
	}
	if got.FilesScanned != 100 || got.BytesScanned != 2048 {
		t.Errorf("progress = (%d, %d), want (100, 2048)", got.FilesScanned, got.BytesScanned)
	}
	if got.DuplicateGroups != 3 || got.DuplicateFiles != 8 || got.WastedBytes != 1500 {
		t.Errorf("dup counters = (%d, %d, %d), want (3, 8, 1500)",
			got.DuplicateGroups, got.DuplicateFiles, got.WastedBytes)
	}

	if err := db.CompleteScanRun(run.ID, ScanRunStatusCompleted, nil); err != nil {
		t.Fatalf("CompleteScanRun failed: %v", err)
	}

	got, err = db.GetScanRun(run.ID)
	if err != nil {
		t.Fatalf("GetScanRun failed: %v", err)
	}
	if got.Status != ScanRunStatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set after completion")
	}
}

func TestScanRun_FailureMessage(t *testing.T) {
	db := testDB(t)

	run, err := db.CreateScanRun(nil, []string{"/gone"})
	if err != nil {
		t.Fatalf("CreateScanRun failed: %v", err)
	}

	msg := "root is not a directory"
	if err := db.CompleteScanRun(run.ID, ScanRunStatusFailed, &msg); err != nil {
		t.Fatalf("CompleteScanRun failed: %v", err)
	}

	got, err := db.GetScanRun(run.ID)
	if err != nil {
		t.Fatalf("GetScanRun failed: %v", err)
	}
	if got.Status != ScanRunStatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != msg {
		t.Errorf("ErrorMessage = %v, want %q", got.ErrorMessage, msg)
	}
}

func TestListScanRuns_Pagination(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 5; i++ {
		if _, err := db.CreateScanRun(nil, []string{"/data"}); err != nil {
			t.Fatalf("CreateScanRun failed: %v", err)
		}
	}

	runs, err := db.ListScanRuns(3, 0)
	if err != nil {
		t.Fatalf("ListScanRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("got %d runs, want 3", len(runs))
	}

	rest, err := db.ListScanRuns(3, 3)
	if err != nil {
		t.Fatalf("ListScanRuns failed: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("got %d runs at offset 3, want 2", len(rest))
	}
}

// ============================================================================
// DuplicateGroup Tests
// ============================================================================

func TestDuplicateGroup_RoundTrip(t *testing.T) {
	db := testDB(t)

	run, _ := db.CreateScanRun(nil, []string{"/data"})
	files := []string{"/data/a.jpg", "/data/copy of a.jpg", "/backup/a.jpg"}
	created, err := db.CreateDuplicateGroup(&DuplicateGroup{
		ScanRunID:   run.ID,
		FileHash:    "deadbeef",
		FileSize:    1024,
		FileCount:   3,
		WastedBytes: 2048,
		Files:       files,
	})
	if err != nil {
		t.Fatalf("CreateDuplicateGroup failed: %v", err)
	}

	got, err := db.GetDuplicateGroup(created.ID)
	if err != nil {
		t.Fatalf("GetDuplicateGroup failed: %v", err)
	}
	if got.FileHash != "deadbeef" || got.FileSize != 1024 {
		t.Errorf("got hash=%s size=%d", got.FileHash, got.FileSize)
	}
	if !reflect.DeepEqual(got.Files, files) {
		t.Errorf("Files mismatch: got %v, want %v", got.Files, files)
	}
	if got.Status != DuplicateGroupStatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
}

func TestListDuplicateGroups_SortAndFilter(t *testing.T) {
	db := testDB(t)

	run, _ := db.CreateScanRun(nil, []string{"/data"})
	seed := []struct {
		hash   string
		wasted int64
		status DuplicateGroupStatus
	}{
		{"aa", 100, DuplicateGroupStatusPending},
		{"bb", 300, DuplicateGroupStatusPending},
		{"cc", 200, DuplicateGroupStatusIgnored},
	}
	for _, s := range seed {
		_, err := db.CreateDuplicateGroup(&DuplicateGroup{
			ScanRunID:   run.ID,
			FileHash:    s.hash,
			FileSize:    s.wasted,
			FileCount:   2,
			WastedBytes: s.wasted,
			Status:      s.status,
			Files:       []string{"/a", "/b"},
		})
		if err != nil {
			t.Fatalf("CreateDuplicateGroup failed: %v", err)
		}
	}

	// Default sort: wasted bytes descending.
	groups, err := db.ListDuplicateGroups(run.ID, "")
	if err != nil {
		t.Fatalf("ListDuplicateGroups failed: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if groups[0].FileHash != "bb" || groups[1].FileHash != "cc" || groups[2].FileHash != "aa" {
		t.Errorf("wrong order: %s, %s, %s", groups[0].FileHash, groups[1].FileHash, groups[2].FileHash)
	}

	// Status filter.
	pending, err := db.ListDuplicateGroups(run.ID, "pending")
	if err != nil {
		t.Fatalf("ListDuplicateGroups failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("got %d pending groups, want 2", len(pending))
	}

	count, err := db.CountDuplicateGroups(run.ID, "pending")
	if err != nil {
		t.Fatalf("CountDuplicateGroups failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	// Pagination.
	page, err := db.ListDuplicateGroupsPaginated(DuplicateGroupQuery{
		ScanRunID: run.ID,
		SortBy:    "wasted",
		SortOrder: "asc",
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("ListDuplicateGroupsPaginated failed: %v", err)
	}
	if len(page) != 2 || page[0].FileHash != "aa" {
		t.Errorf("ascending page = %v", page)
	}
}

func TestUpdateDuplicateGroupFiles(t *testing.T) {
	db := testDB(t)

	run, _ := db.CreateScanRun(nil, []string{"/data"})
	g, err := db.CreateDuplicateGroup(&DuplicateGroup{
		ScanRunID:   run.ID,
		FileHash:    "ff",
		FileSize:    500,
		FileCount:   3,
		WastedBytes: 1000,
		Files:       []string{"/a", "/b", "/c"},
	})
	if err != nil {
		t.Fatalf("CreateDuplicateGroup failed: %v", err)
	}

	// Two deletions leave one member: the group is resolved, nothing wasted.
	if err := db.UpdateDuplicateGroupFiles(g.ID, []string{"/a"}, 500, DuplicateGroupStatusResolved); err != nil {
		t.Fatalf("UpdateDuplicateGroupFiles failed: %v", err)
	}

	got, err := db.GetDuplicateGroup(g.ID)
	if err != nil {
		t.Fatalf("GetDuplicateGroup failed: %v", err)
	}
	if got.FileCount != 1 || got.WastedBytes != 0 {
		t.Errorf("got count=%d wasted=%d, want 1, 0", got.FileCount, got.WastedBytes)
	}
	if got.Status != DuplicateGroupStatusResolved {
		t.Errorf("Status = %s, want resolved", got.Status)
	}
}

// ============================================================================
// ScanError Tests
// ============================================================================

func TestScanErrors(t *testing.T) {
	db := testDB(t)

	run, _ := db.CreateScanRun(nil, []string{"/data"})
	errs := []ScanError{
		{Path: "/data/locked", Kind: "read", Message: "permission denied"},
		{Path: "/data/gone", Kind: "enumerate", Message: "no such file or directory"},
	}
	if err := db.CreateScanErrors(run.ID, errs); err != nil {
		t.Fatalf("CreateScanErrors failed: %v", err)
	}

	got, err := db.ListScanErrors(run.ID)
	if err != nil {
		t.Fatalf("ListScanErrors failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d errors, want 2", len(got))
	}
	if got[0].Path != "/data/locked" || got[0].Kind != "read" {
		t.Errorf("first error = %+v", got[0])
	}

	// Empty slice is a no-op, not an error.
	if err := db.CreateScanErrors(run.ID, nil); err != nil {
		t.Errorf("CreateScanErrors(nil) failed: %v", err)
	}
}

// ============================================================================
// ScheduledJob Tests
// ============================================================================

func TestScheduledJob_CRUD(t *testing.T) {
	db := testDB(t)

	maxSize := int64(1 << 30)
	job := &ScheduledJob{
		Name:            "nightly photos",
		Paths:           []string{"/photos"},
		MinSize:         4096,
		MaxSize:         &maxSize,
		IncludePatterns: []string{"*.jpg", "*.png"},
		ExcludePatterns: []string{"*.tmp"},
		IncludeHidden:   true,
		CronExpression:  "0 2 * * *",
		Enabled:         true,
	}

	created, err := db.CreateScheduledJob(job)
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}
	if created.Name != job.Name {
		t.Errorf("Name = %s, want %s", created.Name, job.Name)
	}
	if !reflect.DeepEqual(created.IncludePatterns, job.IncludePatterns) {
		t.Errorf("IncludePatterns = %v", created.IncludePatterns)
	}
	if created.MaxSize == nil || *created.MaxSize != maxSize {
		t.Errorf("MaxSize = %v, want %d", created.MaxSize, maxSize)
	}
	if !created.IncludeHidden {
		t.Error("IncludeHidden not persisted")
	}

	// Update
	created.Name = "weekly photos"
	created.CronExpression = "0 3 * * 0"
	created.Enabled = false
	if err := db.UpdateScheduledJob(created); err != nil {
		t.Fatalf("UpdateScheduledJob failed: %v", err)
	}
	got, err := db.GetScheduledJob(created.ID)
	if err != nil {
		t.Fatalf("GetScheduledJob failed: %v", err)
	}
	if got.Name != "weekly photos" || got.Enabled {
		t.Errorf("update not persisted: %+v", got)
	}

	// Enabled filter
	enabled, err := db.GetEnabledJobs()
	if err != nil {
		t.Fatalf("GetEnabledJobs failed: %v", err)
	}
	if len(enabled) != 0 {
		t.Errorf("got %d enabled jobs, want 0", len(enabled))
	}
	if err := db.SetJobEnabled(created.ID, true); err != nil {
		t.Fatalf("SetJobEnabled failed: %v", err)
	}
	enabled, _ = db.GetEnabledJobs()
	if len(enabled) != 1 {
		t.Errorf("got %d enabled jobs, want 1", len(enabled))
	}

	// Last run bookkeeping
	now := time.Now()
	next := now.Add(24 * time.Hour)
	if err := db.UpdateJobLastRun(created.ID, now, next); err != nil {
		t.Fatalf("UpdateJobLastRun failed: %v", err)
	}
	got, _ = db.GetScheduledJob(created.ID)
	if got.LastRunAt == nil || got.NextRunAt == nil {
		t.Fatal("run times not persisted")
	}

	// Delete
	if err := db.DeleteScheduledJob(created.ID); err != nil {
		t.Fatalf("DeleteScheduledJob failed: %v", err)
	}
	jobs, _ := db.ListScheduledJobs()
	if len(jobs) != 0 {
		t.Errorf("got %d jobs after delete, want 0", len(jobs))
	}
}

// ============================================================================
// Deletion Tests
// ============================================================================

func TestDeletions(t *testing.T) {
	db := testDB(t)

	d := &Deletion{
		GroupID:        1,
		ScanRunID:      2,
		FilesRequested: 2,
		FilesDeleted:   1,
		FilesFailed:    1,
		BytesFreed:     1024,
		Results: []FileOutcome{
			{Path: "/a", Deleted: true},
			{Path: "/b", Deleted: false, Error: "permission denied"},
		},
	}
	created, err := db.CreateDeletion(d)
	if err != nil {
		t.Fatalf("CreateDeletion failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("ID not assigned")
	}

	list, err := db.ListDeletions(10, 0)
	if err != nil {
		t.Fatalf("ListDeletions failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d deletions, want 1", len(list))
	}
	if !reflect.DeepEqual(list[0].Results, d.Results) {
		t.Errorf("Results = %v, want %v", list[0].Results, d.Results)
	}
	if list[0].BytesFreed != 1024 {
		t.Errorf("BytesFreed = %d, want 1024", list[0].BytesFreed)
	}
}

// ============================================================================
// Settings Tests
// ============================================================================

func TestSettings(t *testing.T) {
	db := testDB(t)

	// Seeded by migration
	got, err := db.GetSetting("retention_days")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got != "30" {
		t.Errorf("retention_days = %q, want 30", got)
	}

	// Unset key is empty, not an error
	got, err = db.GetSetting("nonexistent")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got != "" {
		t.Errorf("unset key = %q, want empty", got)
	}

	// Upsert
	if err := db.SetSetting("retention_days", "7"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	got, _ = db.GetSetting("retention_days")
	if got != "7" {
		t.Errorf("retention_days = %q after update, want 7", got)
	}
}

// ============================================================================
// Stats and Cleanup Tests
// ============================================================================

func TestGetDashboardStats(t *testing.T) {
	db := testDB(t)

	run, _ := db.CreateScanRun(nil, []string{"/data"})
	db.CreateDuplicateGroup(&DuplicateGroup{
		ScanRunID: run.ID, FileHash: "aa", FileSize: 10, FileCount: 2,
		WastedBytes: 10, Files: []string{"/a", "/b"},
	})
	db.CreateDeletion(&Deletion{GroupID: 1, ScanRunID: run.ID, FilesDeleted: 1, BytesFreed: 512})

	freed, pending, recent, err := db.GetDashboardStats()
	if err != nil {
		t.Fatalf("GetDashboardStats failed: %v", err)
	}
	if freed != 512 {
		t.Errorf("totalFreed = %d, want 512", freed)
	}
	if pending != 1 {
		t.Errorf("pendingGroups = %d, want 1", pending)
	}
	if recent != 1 {
		t.Errorf("recentScans = %d, want 1", recent)
	}
}

func TestCleanupOldData(t *testing.T) {
	db := testDB(t)

	run, _ := db.CreateScanRun(nil, []string{"/data"})
	db.CreateDuplicateGroup(&DuplicateGroup{
		ScanRunID: run.ID, FileHash: "aa", FileSize: 10, FileCount: 2,
		WastedBytes: 10, Files: []string{"/a", "/b"},
	})
	db.CompleteScanRun(run.ID, ScanRunStatusCompleted, nil)

	// Backdate the run beyond the retention window.
	old := time.Now().AddDate(0, 0, -60)
	if _, err := db.Exec("UPDATE scan_runs SET completed_at = ? WHERE id = ?", old, run.ID); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	if err := db.CleanupOldData(30); err != nil {
		t.Fatalf("CleanupOldData failed: %v", err)
	}

	if _, err := db.GetScanRun(run.ID); err == nil {
		t.Error("old scan run should be deleted")
	}
	groups, _ := db.ListDuplicateGroups(run.ID, "")
	if len(groups) != 0 {
		t.Errorf("got %d groups after cleanup, want 0", len(groups))
	}
}

func TestCleanupOldData_KeepsRunningScans(t *testing.T) {
	db := testDB(t)

	run, _ := db.CreateScanRun(nil, []string{"/data"})
	if err := db.CleanupOldData(30); err != nil {
		t.Fatalf("CleanupOldData failed: %v", err)
	}
	if _, err := db.GetScanRun(run.ID); err != nil {
		t.Errorf("running scan should survive cleanup: %v", err)
	}
}
