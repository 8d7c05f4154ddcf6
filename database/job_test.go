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
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/model"
)

var jobRowColumns = []string{
	"id", "job_id", "kind", "queue", "payload", "priority", "due_at",
	"attempts", "max_attempts", "status", "cron_spec", "last_error",
	"locked_at", "created_at", "updated_at",
}

func TestCreateJob(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &model.Job{
		JobID:       "job_1",
		Kind:        "booking.expire",
		Queue:       "default",
		Payload:     []byte(`{"booking_id":"bkg_1"}`),
		MaxAttempts: 3,
		DueAt:       time.Now().Add(15 * time.Minute),
	}
	created, err := ds.CreateJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextJob(t *testing.T) {
	ds, mock := newTestDataSource(t)

	now := time.Now()
	rows := sqlmock.NewRows(jobRowColumns).AddRow(
		1, "job_1", "booking.expire", "default", []byte(`{"booking_id":"bkg_1"}`),
		100, now, 1, 3, "RUNNING", "", "", now, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE jobs SET status = 'RUNNING', attempts = attempts + 1")).
		WithArgs(sqlmock.AnyArg(), "default").
		WillReturnRows(rows)

	job, err := ds.ClaimNextJob(context.Background(), "default", now)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job_1", job.JobID)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, model.JobRunning, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextJobNothingDue(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE jobs SET status = 'RUNNING'")).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	job, err := ds.ClaimNextJob(context.Background(), "default", time.Now())
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNextJobTransientError(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE jobs SET status = 'RUNNING'")).
		WillReturnError(errors.New("connection reset"))

	_, err := ds.ClaimNextJob(context.Background(), "default", time.Now())
	require.Error(t, err)
	assert.True(t, apierror.IsTransient(err))
}

func TestHasPendingJob(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM jobs WHERE kind = $1")).
		WithArgs("holds.sweep").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := ds.HasPendingJob(context.Background(), "holds.sweep")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRescheduleJobParksFailed(t *testing.T) {
	ds, mock := newTestDataSource(t)

	// A failed execution with budget left lands in FAILED, not PENDING, so
	// the status reflects the last outcome until the retry is claimed.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = 'FAILED', due_at = $1, last_error = $2")).
		WithArgs(sqlmock.AnyArg(), "boom", "job_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.RescheduleJob(context.Background(), "job_1", time.Now().Add(2*time.Second), "boom")
	require.NoError(t, err)
}

func TestReleaseJob(t *testing.T) {
	ds, mock := newTestDataSource(t)

	// Handing a claim back refunds the attempt the claim consumed.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = 'PENDING', attempts = attempts - 1")).
		WithArgs(sqlmock.AnyArg(), "job_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.ReleaseJob(context.Background(), "job_1", time.Now())
	require.NoError(t, err)
}

func TestMarkJobDead(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = 'DEAD'")).
		WithArgs("boom", "job_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	parked, err := ds.MarkJobDead(context.Background(), "job_1", "boom")
	require.NoError(t, err)
	assert.True(t, parked)
}

func TestMarkJobDeadAlreadyResolved(t *testing.T) {
	ds, mock := newTestDataSource(t)

	// The job left RUNNING before we got here, so the CAS affects no rows and
	// the caller must not alert.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = 'DEAD'")).
		WithArgs("boom", "job_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	parked, err := ds.MarkJobDead(context.Background(), "job_1", "boom")
	require.NoError(t, err)
	assert.False(t, parked)
}

func TestRequeueStaleJobs(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = 'PENDING', locked_at = NULL")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	requeued, err := ds.RequeueStaleJobs(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), requeued)
}

func TestReplayDeadJob(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = 'PENDING', attempts = 0")).
		WithArgs(sqlmock.AnyArg(), "job_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	replayed, err := ds.ReplayDeadJob(context.Background(), "job_1", time.Now())
	require.NoError(t, err)
	assert.True(t, replayed)
}

func TestReplayDeadJobNotDead(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = 'PENDING', attempts = 0")).
		WithArgs(sqlmock.AnyArg(), "job_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	replayed, err := ds.ReplayDeadJob(context.Background(), "job_1", time.Now())
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestListDeadJobs(t *testing.T) {
	ds, mock := newTestDataSource(t)

	now := time.Now()
	rows := sqlmock.NewRows(jobRowColumns).
		AddRow(1, "job_1", "booking.expire", "default", []byte(`{}`), 100, now, 3, 3, "DEAD", "", "boom", nil, now, now).
		AddRow(2, "job_2", "flight.transition", "default", []byte(`{}`), 100, now, 3, 3, "DEAD", "", "stale", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'DEAD'")).
		WithArgs(50, 0).
		WillReturnRows(rows)

	jobs, err := ds.ListDeadJobs(context.Background(), 50, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job_1", jobs[0].JobID)
	assert.Equal(t, "boom", jobs[0].LastError)
}
