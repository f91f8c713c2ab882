package model

import "time"

// AlertPostingFailed is raised when a staging movement cannot be posted.
const AlertPostingFailed = "posting_failed"

// Alert records an anomaly. Alerts are append-only.
type Alert struct {
	CreatedAt         time.Time
	AlertType         string
	Message           string
	ID                int64
	ImportRunID       int64
	StagingMovementID int64
}
