package models

import "time"

// JobStatus is the state machine for a job execution.
// STARTING -> STARTED -> {COMPLETED | FAILED | STOPPED}
type JobStatus string

const (
	JobStarting  JobStatus = "STARTING"
	JobStarted   JobStatus = "STARTED"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobStopped   JobStatus = "STOPPED"
)

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobStopped
}

// JobParameters is the explicit contract of inputs consumed by the bulk conversion job.
// The payload itself lives in the content store; only its key travels here.
type JobParameters struct {
	ContentKey        string `json:"contentKey"`
	OriginalFilename  string `json:"originalFilename"`
	FileSizeBytes     int64  `json:"fileSizeBytes"`
	SubmittedAtMillis int64  `json:"submittedAtEpochMillis"`
}

// StepCounts are cumulative per-step counters, updated as chunks commit.
type StepCounts struct {
	ReadCount     int `json:"readCount"`
	WriteCount    int `json:"writeCount"`
	CommitCount   int `json:"commitCount"`
	SkipCount     int `json:"skipCount"`
	ReadSkips     int `json:"readSkips"`
	ProcessSkips  int `json:"processSkips"`
	DuplicateHits int `json:"duplicateHits"`
	RetryCount    int `json:"retryCount"`
}

// JobExecution is the persisted execution metadata for one job run.
type JobExecution struct {
	JobID         string        `json:"jobId"`
	JobInstanceID string        `json:"jobInstanceId"`
	JobName       string        `json:"jobName"`
	Status        JobStatus     `json:"status"`
	ExitMessage   string        `json:"exitMessage,omitempty"`
	Parameters    JobParameters `json:"parameters"`
	Counts        StepCounts    `json:"counts"`
	CreateTime    time.Time     `json:"createTime"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	CheckpointPos int           `json:"checkpointPos"`
}
