package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mhollis/dedupd/internal/db"
	"github.com/mhollis/dedupd/internal/services"
	"github.com/mhollis/dedupd/internal/storage"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func testScanner(t *testing.T, database *db.DB) *services.Scanner {
	t.Helper()
	return services.NewScanner(database, storage.NewLocal(), services.ScannerOptions{})
}

func TestNew(t *testing.T) {
	database := testDB(t)
	scanner := testScanner(t, database)

	s := New(database, scanner)

	if s == nil {
		t.Fatal("New returned nil")
	}
	if s.db != database {
		t.Error("scheduler.db not set correctly")
	}
	if s.scanner != scanner {
		t.Error("scheduler.scanner not set correctly")
	}
	if s.running {
		t.Error("scheduler should not be running initially")
	}
}

func TestStartStop(t *testing.T) {
	database := testDB(t)
	s := New(database, testScanner(t, database))

	// Start scheduler
	s.Start()

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running {
		t.Error("scheduler should be running after Start")
	}

	// Double start should be idempotent
	s.Start()

	// Stop scheduler
	s.Stop()

	s.mu.RLock()
	running = s.running
	s.mu.RUnlock()

	if running {
		t.Error("scheduler should not be running after Stop")
	}

	// Double stop should be safe
	s.Stop()
}

func TestUpdateNextRun(t *testing.T) {
	database := testDB(t)
	s := New(database, testScanner(t, database))

	job := &db.ScheduledJob{
		Name:           "Test Job",
		Paths:          []string{"/tmp"},
		Enabled:        true,
		CronExpression: "0 * * * *", // Every hour
	}
	job, err := database.CreateScheduledJob(job)
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}

	err = s.UpdateNextRun(job)
	if err != nil {
		t.Fatalf("UpdateNextRun failed: %v", err)
	}

	if job.NextRunAt == nil {
		t.Fatal("NextRunAt should be set")
	}

	// Should be within the next hour
	now := time.Now()
	if job.NextRunAt.Before(now) {
		t.Error("NextRunAt should be in the future")
	}
	if job.NextRunAt.After(now.Add(time.Hour)) {
		t.Error("NextRunAt should be within the next hour")
	}
}

func TestUpdateNextRunInvalidCron(t *testing.T) {
	database := testDB(t)
	s := New(database, testScanner(t, database))

	job := &db.ScheduledJob{
		Name:           "Invalid Job",
		Paths:          []string{"/tmp"},
		Enabled:        true,
		CronExpression: "invalid cron",
	}
	job, _ = database.CreateScheduledJob(job)

	err := s.UpdateNextRun(job)
	if err == nil {
		t.Error("UpdateNextRun should fail with invalid cron expression")
	}
}

func TestCronExpressionParsing(t *testing.T) {
	database := testDB(t)
	s := New(database, testScanner(t, database))

	tests := []struct {
		name    string
		cron    string
		wantErr bool
	}{
		{"every minute", "* * * * *", false},
		{"every hour", "0 * * * *", false},
		{"daily at midnight", "0 0 * * *", false},
		{"weekly on sunday", "0 0 * * 0", false},
		{"monthly first day", "0 0 1 * *", false},
		{"invalid", "invalid", true},
		{"too few fields", "* * *", true},
		{"too many fields", "* * * * * *", true}, // 6 fields (with seconds) not supported by our parser
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.ValidateCronExpression(tt.cron); (err != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpression(%q) error = %v, wantErr %v", tt.cron, err, tt.wantErr)
			}
		})
	}
}

func TestCheckJobsFiltersCorrectly(t *testing.T) {
	database := testDB(t)
	_ = New(database, testScanner(t, database)) // Scheduler not directly used, just testing DB filtering

	// Create enabled job with past next run time (should trigger)
	pastTime := time.Now().Add(-time.Hour)
	enabledJob := &db.ScheduledJob{
		Name:           "Enabled Job",
		Paths:          []string{"/tmp"},
		Enabled:        true,
		CronExpression: "0 * * * *",
		NextRunAt:      &pastTime,
	}
	enabledJob, _ = database.CreateScheduledJob(enabledJob)

	// Create disabled job (should not trigger)
	disabledJob := &db.ScheduledJob{
		Name:           "Disabled Job",
		Paths:          []string{"/tmp"},
		Enabled:        false,
		CronExpression: "0 * * * *",
		NextRunAt:      &pastTime,
	}
	disabledJob, _ = database.CreateScheduledJob(disabledJob)

	// Create enabled job with future next run time (should not trigger)
	futureTime := time.Now().Add(time.Hour)
	futureJob := &db.ScheduledJob{
		Name:           "Future Job",
		Paths:          []string{"/tmp"},
		Enabled:        true,
		CronExpression: "0 * * * *",
		NextRunAt:      &futureTime,
	}
	futureJob, _ = database.CreateScheduledJob(futureJob)

	// Get enabled jobs (what checkJobs uses)
	jobs, err := database.GetEnabledJobs()
	if err != nil {
		t.Fatalf("GetEnabledJobs failed: %v", err)
	}

	// Should only get enabled jobs
	if len(jobs) != 2 {
		t.Errorf("expected 2 enabled jobs, got %d", len(jobs))
	}

	// Verify disabled job is not included
	for _, j := range jobs {
		if j.ID == disabledJob.ID {
			t.Error("disabled job should not be in enabled jobs list")
		}
	}
}

func TestScheduledJobStartsScan(t *testing.T) {
	database := testDB(t)
	scanner := testScanner(t, database)
	s := New(database, scanner)

	dir := t.TempDir()
	for _, n := range []string{"a", "b"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("dup"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	pastTime := time.Now().Add(-time.Hour)
	job := &db.ScheduledJob{
		Name:           "Due Job",
		Paths:          []string{dir},
		Enabled:        true,
		CronExpression: "0 * * * *",
		NextRunAt:      &pastTime,
	}
	job, err := database.CreateScheduledJob(job)
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}

	s.Start()
	defer s.Stop()

	// Wait for the scan run to appear and finish
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := database.GetLastRunForJob(job.ID)
		if err == nil && run.Status == db.ScanRunStatusCompleted {
			if run.ScheduledJobID == nil || *run.ScheduledJobID != job.ID {
				t.Fatalf("run not linked to job: %+v", run)
			}
			// Next run must have been pushed into the future
			updated, _ := database.GetScheduledJob(job.ID)
			if updated.NextRunAt == nil || !updated.NextRunAt.After(time.Now().Add(-time.Minute)) {
				t.Errorf("NextRunAt not advanced: %v", updated.NextRunAt)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scheduled scan did not complete in time")
}
