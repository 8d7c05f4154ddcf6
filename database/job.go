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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/model"
)

const jobColumns = `id, job_id, kind, queue, payload, priority, due_at, attempts, max_attempts,
	status, COALESCE(cron_spec, ''), COALESCE(last_error, ''), locked_at, created_at, updated_at`

func scanJob(scan func(dest ...interface{}) error) (*model.Job, error) {
	j := &model.Job{}
	err := scan(&j.ID, &j.JobID, &j.Kind, &j.Queue, &j.Payload, &j.Priority, &j.DueAt,
		&j.Attempts, &j.MaxAttempts, &j.Status, &j.CronSpec, &j.LastError, &j.LockedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// CreateJob persists a new PENDING job.
func (d Datasource) CreateJob(ctx context.Context, j *model.Job) (*model.Job, error) {
	now := time.Now()
	j.Status = model.JobPending
	j.CreatedAt = now
	j.UpdatedAt = now

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO jobs (job_id, kind, queue, payload, priority, due_at, attempts, max_attempts, status, cron_spec, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, NULLIF($9, ''), $10, $11)
	`, j.JobID, j.Kind, j.Queue, []byte(j.Payload), j.Priority, j.DueAt, j.MaxAttempts, j.Status, j.CronSpec, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to create job", err)
	}
	return j, nil
}

// GetJob retrieves a job by its job_id.
func (d Datasource) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM jobs WHERE job_id = $1`, jobColumns), jobID)
	j, err := scanJob(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Job with ID '%s' not found", jobID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job", err)
	}
	return j, nil
}

// HasPendingJob reports whether any live (not yet terminal) job of the given
// kind exists. Used to make repeating-job registration idempotent across
// restarts.
func (d Datasource) HasPendingJob(ctx context.Context, kind string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM jobs WHERE kind = $1 AND status IN ('PENDING', 'RUNNING', 'FAILED'))
	`, kind).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to check for pending jobs", err)
	}
	return exists, nil
}

// ClaimNextJob atomically claims the earliest due claimable job on a queue,
// moving it to RUNNING and incrementing its attempt counter. Fresh PENDING
// jobs and FAILED jobs whose retry came due compete on the same ordering.
// The inner select takes a row lock with SKIP LOCKED so two workers never
// claim the same job; the status condition makes the claim a
// compare-and-swap. Returns nil, nil when nothing is due.
func (d Datasource) ClaimNextJob(ctx context.Context, queue string, now time.Time) (*model.Job, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE jobs SET status = 'RUNNING', attempts = attempts + 1, locked_at = $1, updated_at = $1
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = $2 AND status IN ('PENDING', 'FAILED') AND due_at <= $1
			ORDER BY priority ASC, due_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, jobColumns), now, queue)
	j, err := scanJob(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to claim job", err)
	}
	return j, nil
}

// MarkJobDone finishes a RUNNING job.
func (d Datasource) MarkJobDone(ctx context.Context, jobID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'DONE', locked_at = NULL, updated_at = NOW()
		WHERE job_id = $1 AND status = 'RUNNING'
	`, jobID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrTransientStore, "Failed to mark job done", err)
	}
	return nil
}

// RescheduleJob puts a failed RUNNING job back on the queue at a later due
// time, recording the failure. The job sits in FAILED until a worker claims
// it for the next attempt.
func (d Datasource) RescheduleJob(ctx context.Context, jobID string, dueAt time.Time, lastError string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'FAILED', due_at = $1, last_error = $2, locked_at = NULL, updated_at = NOW()
		WHERE job_id = $3 AND status = 'RUNNING'
	`, dueAt, lastError, jobID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrTransientStore, "Failed to reschedule job", err)
	}
	return nil
}

// ReleaseJob hands a claimed job back untouched: the attempt the claim
// consumed is returned and the job becomes claimable again at dueAt. Used
// when a worker claims a job it cannot run, so the job's retry budget only
// counts executions.
func (d Datasource) ReleaseJob(ctx context.Context, jobID string, dueAt time.Time) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'PENDING', attempts = attempts - 1, due_at = $1, locked_at = NULL, updated_at = NOW()
		WHERE job_id = $2 AND status = 'RUNNING'
	`, dueAt, jobID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrTransientStore, "Failed to release job", err)
	}
	return nil
}

// MarkJobDead dead-letters a job that exhausted its retry budget. The status
// condition makes this exactly-once: only the call that performs the
// RUNNING -> DEAD transition reports true, so the operator alert fires once.
func (d Datasource) MarkJobDead(ctx context.Context, jobID string, lastError string) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'DEAD', last_error = $1, locked_at = NULL, updated_at = NOW()
		WHERE job_id = $2 AND status = 'RUNNING'
	`, lastError, jobID)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to dead-letter job", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	return affected > 0, nil
}

// RequeueStaleJobs returns RUNNING jobs whose claim outlived the worker to
// PENDING. A worker that crashed between claim and completion loses its
// claim here; handler idempotence absorbs the re-execution.
func (d Datasource) RequeueStaleJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'PENDING', locked_at = NULL, updated_at = NOW()
		WHERE status = 'RUNNING' AND locked_at < $1
	`, olderThan)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to requeue stale jobs", err)
	}
	return result.RowsAffected()
}

// ListDeadJobs pages through dead-lettered jobs for manual inspection.
func (d Datasource) ListDeadJobs(ctx context.Context, limit, offset int) ([]model.Job, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status = 'DEAD'
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, jobColumns), limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list dead jobs", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan job", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ReplayDeadJob puts a dead-lettered job back on its queue with a fresh
// retry budget. Manual operator action; reports false if the job is not
// DEAD.
func (d Datasource) ReplayDeadJob(ctx context.Context, jobID string, dueAt time.Time) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE jobs SET status = 'PENDING', attempts = 0, due_at = $1, last_error = NULL, updated_at = NOW()
		WHERE job_id = $2 AND status = 'DEAD'
	`, dueAt, jobID)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to replay job", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	return affected > 0, nil
}
