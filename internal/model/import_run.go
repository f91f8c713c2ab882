package model

import "time"

// RunStatus is the lifecycle state of an import run.
type RunStatus string

// Run status constants.
const (
	RunPending    RunStatus = "pending"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// ImportRun groups staging movements imported for one account range and date range.
type ImportRun struct {
	CreatedAt         time.Time
	DateFrom          *time.Time
	DateTo            *time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	AccountRangeStart string
	AccountRangeEnd   string
	Status            RunStatus
	ID                int64
	TotalCount        int
	ImportedCount     int
	FailedCount       int
}

// RunCounts is the source-of-truth tally of a run's staging movements.
type RunCounts struct {
	Total     int
	Processed int
	Errored   int
}
