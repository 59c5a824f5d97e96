package db

import (
	"time"
)

// ScanRunStatus represents the status of a scan run
type ScanRunStatus string

const (
	ScanRunStatusRunning   ScanRunStatus = "running"
	ScanRunStatusCompleted ScanRunStatus = "completed"
	ScanRunStatusFailed    ScanRunStatus = "failed"
	ScanRunStatusCancelled ScanRunStatus = "cancelled"
)

// ScanRun represents a single execution of a scan
type ScanRun struct {
	ID              int64
	ScheduledJobID  *int64
	Paths           []string
	Status          ScanRunStatus
	StartedAt       time.Time
	CompletedAt     *time.Time
	FilesScanned    int64
	BytesScanned    int64
	DuplicateGroups int64
	DuplicateFiles  int64
	WastedBytes     int64
	ErrorMessage    *string
}

// DuplicateGroupStatus represents the status of a duplicate group
type DuplicateGroupStatus string

const (
	DuplicateGroupStatusPending DuplicateGroupStatus = "pending"
	// Resolved means deletions reduced the group below two members.
	DuplicateGroupStatusResolved DuplicateGroupStatus = "resolved"
	DuplicateGroupStatusIgnored  DuplicateGroupStatus = "ignored"
)

// DuplicateGroup represents a stored group of duplicate files
type DuplicateGroup struct {
	ID          int64
	ScanRunID   int64
	FileHash    string
	FileSize    int64
	FileCount   int
	WastedBytes int64 // (count-1) * size
	Status      DuplicateGroupStatus
	Files       []string // Paths of duplicate files, first-seen order
}

// ScanError is a per-file error recorded during a scan
type ScanError struct {
	ID        int64
	ScanRunID int64
	Path      string
	Kind      string // "enumerate" or "read"
	Message   string
}

// ScheduledJob represents a cron job for recurring scans
type ScheduledJob struct {
	ID              int64
	Name            string
	Paths           []string
	MinSize         int64
	MaxSize         *int64
	IncludePatterns []string
	ExcludePatterns []string
	IncludeHidden   bool
	CronExpression  string
	Enabled         bool
	LastRunAt       *time.Time
	NextRunAt       *time.Time
	CreatedAt       time.Time
}

// FileOutcome is the per-file result of executing a deletion plan
type FileOutcome struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// Deletion is an audit record of one executed deletion request
type Deletion struct {
	ID             int64
	GroupID        int64
	ScanRunID      int64
	FilesRequested int
	FilesDeleted   int
	FilesFailed    int
	BytesFreed     int64
	Results        []FileOutcome
	CreatedAt      time.Time
}
