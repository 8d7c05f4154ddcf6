/*
Copyright 2024 Skylane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"encoding/json"
	"time"
)

// JobStatus is the closed set of scheduler job states.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	// JobFailed marks a job whose last execution failed with retry budget
	// left; it is claimed again once its backoff due time passes.
	JobFailed JobStatus = "FAILED"
	JobDead   JobStatus = "DEAD"
)

// Job is a durable unit of deferred work. Attempts is incremented at claim
// time, so a RUNNING job's attempt count already includes the in-flight
// execution. DEAD jobs are retained for manual inspection and replay.
type Job struct {
	ID          int64           `json:"-"`
	JobID       string          `json:"job_id"`
	Kind        string          `json:"kind"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	DueAt       time.Time       `json:"due_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Status      JobStatus       `json:"status"`
	CronSpec    string          `json:"cron_spec,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	LockedAt    *time.Time      `json:"locked_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Repeating reports whether the job re-queues itself on completion.
func (j *Job) Repeating() bool {
	return j.CronSpec != ""
}

// ExhaustedAttempts reports whether the current attempt was the job's last.
func (j *Job) ExhaustedAttempts() bool {
	return j.Attempts >= j.MaxAttempts
}
