// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

// JobStatus tracks an asynchronous import job
type JobStatus string

// Import job states.
const (
	JobQueued  JobStatus = "QUEUED"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// ImportJob is one batch handed to the import worker pool
type ImportJob struct {
	ID          string
	Rows        []model.RawRow
	SubmittedBy string
	EnqueuedAt  time.Time
}

// JobView is the read shape of an import job
type JobView struct {
	ID          string                   `json:"id"`
	Status      JobStatus                `json:"status"`
	SubmittedBy string                   `json:"submittedBy,omitempty"`
	Rows        int                      `json:"rows"`
	EnqueuedAt  time.Time                `json:"enqueuedAt"`
	StartedAt   *time.Time               `json:"startedAt,omitempty"`
	FinishedAt  *time.Time               `json:"finishedAt,omitempty"`
	Result      *model.BatchImportResult `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
}
