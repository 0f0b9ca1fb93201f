// Package jobs implements the durable, file-backed job pipeline: one
// directory per job holding the record, the input payload, the append-only
// stream log, and the finished artifacts.
package jobs

import (
	"errors"
	"time"
)

// ErrNotFound reports an unknown job id or a missing artifact file.
var ErrNotFound = errors.New("jobs: not found")

// Status enumerates job lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is the persisted representation of one job. File reference fields
// are non-nil only once the corresponding artifact exists on disk; the two
// are always written together.
type Record struct {
	ID                string             `json:"id"`
	Provider          string             `json:"provider"`
	Status            Status             `json:"status"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	StartedAt         *time.Time         `json:"started_at"`
	CompletedAt       *time.Time         `json:"completed_at"`
	Error             *string            `json:"error"`
	StreamFilename    string             `json:"stream_filename"`
	InputFilename     string             `json:"input_filename"`
	RawFilename       *string            `json:"raw_filename"`
	ResultFilename    *string            `json:"result_filename"`
	TokenUsage        map[string]float64 `json:"token_usage"`
	BaseImageFilename *string            `json:"base_image_filename"`
	PNGFilename       *string            `json:"png_filename"`
}

// Detail aggregates everything known about a job for presentation.
type Detail struct {
	Meta         *Record `json:"meta"`
	InputText    string  `json:"input_text"`
	StreamText   string  `json:"stream_text"`
	StreamOffset int64   `json:"stream_offset"`
	Result       any     `json:"result"`
	RawOutput    *string `json:"raw_output"`
	PNGAvailable bool    `json:"png_available"`
}

// List partitions job records by terminal-ness, newest first.
type List struct {
	InProgress []*Record `json:"in_progress"`
	Completed  []*Record `json:"completed"`
}

func utcNow() time.Time {
	return time.Now().UTC()
}
