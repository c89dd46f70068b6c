package model

import (
	"path/filepath"
	"time"
)

const (
	JobTypeImage = "watermark_image"
	JobTypeVideo = "watermark_video"
)

const (
	StatePending   = "PENDING"
	StateRunning   = "RUNNING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateDelivered = "DELIVERED"
	StateExpired   = "EXPIRED"
)

type Job struct {
	ID           string
	JobType      string
	State        string
	OriginalName string
	InputPath    string
	OutputPath   string
	ExitCode     *int
	Diagnostic   string
	Width        *int
	Height       *int
	DurationSecs *float64
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// WorkDir is the directory holding the job's input and output files.
func (j *Job) WorkDir() string {
	return filepath.Dir(j.InputPath)
}

// Finished reports whether the job has reached a terminal processing state.
func (j *Job) Finished() bool {
	switch j.State {
	case StateCompleted, StateFailed, StateDelivered, StateExpired:
		return true
	}
	return false
}
