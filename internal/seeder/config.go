// Package seeder generates realistic attendee traffic, duplicates and OCR
// captures included, and submits it to a running intake service.
package seeder

import (
	"runtime"
	"time"
)

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Count          int           // Number of submissions to generate
	DuplicateRatio float64       // Share of submissions that repeat an earlier attendee
	CaptureRatio   float64       // Share of submissions sent as OCR captures
	ReplayRatio    float64       // Share of submissions re-sent with the same Idempotency-Key
	Workers        int           // Number of concurrent workers
	Timeout        time.Duration // HTTP request timeout
	StaffID        string        // X-Staff-ID sent with every submission
	Seed           int64         // Generator seed; 0 picks one from the clock
}

// DefaultConfig returns the settings used when no flags are given.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:9080",
		Count:          500,
		DuplicateRatio: 0.2,
		CaptureRatio:   0.25,
		ReplayRatio:    0.05,
		Workers:        runtime.NumCPU() * 2,
		Timeout:        30 * time.Second,
		StaffID:        "seeder",
	}
}

// Kind is which endpoint a submission goes to.
type Kind string

// Submission kinds.
const (
	KindManual  Kind = "manual"
	KindCapture Kind = "capture"
)

// Submission is one generated request.
type Submission struct {
	Key       string // Idempotency-Key
	Kind      Kind
	Body      any
	Duplicate bool // repeats an earlier attendee
}

// Result classifies one response.
type Result string

// Response classes.
const (
	ResultCommitted Result = "committed"
	ResultQueued    Result = "queued"
	ResultRejected  Result = "rejected"
	ResultReplayed  Result = "replayed"
	ResultFailed    Result = "failed"
)

// Stats holds run statistics.
type Stats struct {
	Generated      int
	Duplicates     int
	Captures       int
	Submitted      int
	Committed      int
	Queued         int
	Rejected       int
	Replayed       int
	Failed         int
	PendingReviews int
	Duration       time.Duration
}

func (s *Stats) add(r Result) {
	s.Submitted++
	switch r {
	case ResultCommitted:
		s.Committed++
	case ResultQueued:
		s.Queued++
	case ResultRejected:
		s.Rejected++
	case ResultReplayed:
		s.Replayed++
	case ResultFailed:
		s.Failed++
	}
}
