package cron

import (
	"context"
	"time"
)

// JobFunc runs a job and returns a short result line for the run log.
type JobFunc func(ctx context.Context) (string, error)

// Job is a named recurring job with a standard 5-field cron expression.
type Job struct {
	Name     string
	Schedule string
	Run      JobFunc
}

// JobState is the persisted outcome of a job's runs.
type JobState struct {
	Name        string `json:"name"`
	Schedule    string `json:"schedule"`
	Runs        int    `json:"runs"`
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	LastResult  string `json:"lastResult,omitempty"`
}

func (s JobState) LastRun() time.Time {
	if s.LastRunAtMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.LastRunAtMs)
}

// JobStatus is a job's persisted state together with its next fire time.
type JobStatus struct {
	JobState
	Next time.Time `json:"next"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)
