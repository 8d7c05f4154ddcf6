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

package skylane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/skylane/skylane/config"
	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/internal/notification"
	"github.com/skylane/skylane/model"
)

// Job kinds handled by the scheduler. Every kind maps to one registered
// handler; an unknown kind dead-letters immediately.
const (
	KindBookingExpiry    = "booking.expire"
	KindFlightTransition = "flight.transition"
	KindWaitlistExpiry   = "waitlist.confirmation_expire"
	KindSweepHolds       = "holds.sweep"
	KindArchiveFlights   = "flights.archive"
)

// DefaultJobQueue is the queue domain timers land on.
const DefaultJobQueue = "default"

type bookingExpiryPayload struct {
	BookingID string `json:"booking_id"`
}

type flightTransitionPayload struct {
	FlightID string             `json:"flight_id"`
	From     model.FlightStatus `json:"from"`
	To       model.FlightStatus `json:"to"`
}

type waitlistExpiryPayload struct {
	WaitlistID string `json:"waitlist_id"`
	HoldID     string `json:"hold_id"`
}

// ScheduleJob records a durable job. Queue and retry budget default from
// configuration. The job survives process restarts; execution is at or after
// DueAt, never before.
func (l *Skylane) ScheduleJob(ctx context.Context, job *model.Job) (*model.Job, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	if job.JobID == "" {
		job.JobID = model.GenerateUUIDWithSuffix("job")
	}
	if job.Queue == "" {
		job.Queue = DefaultJobQueue
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = cfg.Scheduler.MaxAttempts
	}
	if job.DueAt.IsZero() {
		job.DueAt = time.Now()
	}
	return l.datasource.CreateJob(ctx, job)
}

func (l *Skylane) queueBookingExpiry(ctx context.Context, bookingID string, dueAt time.Time) error {
	payload, err := json.Marshal(bookingExpiryPayload{BookingID: bookingID})
	if err != nil {
		return err
	}
	_, err = l.ScheduleJob(ctx, &model.Job{Kind: KindBookingExpiry, Payload: payload, DueAt: dueAt})
	return err
}

func (l *Skylane) queueFlightTransition(ctx context.Context, flightID string, from, to model.FlightStatus, dueAt time.Time) error {
	payload, err := json.Marshal(flightTransitionPayload{FlightID: flightID, From: from, To: to})
	if err != nil {
		return err
	}
	_, err = l.ScheduleJob(ctx, &model.Job{Kind: KindFlightTransition, Payload: payload, DueAt: dueAt})
	return err
}

func (l *Skylane) queueWaitlistExpiry(ctx context.Context, waitlistID, holdID string, dueAt time.Time) error {
	payload, err := json.Marshal(waitlistExpiryPayload{WaitlistID: waitlistID, HoldID: holdID})
	if err != nil {
		return err
	}
	_, err = l.ScheduleJob(ctx, &model.Job{Kind: KindWaitlistExpiry, Payload: payload, DueAt: dueAt})
	return err
}

// JobHandler executes one claimed job. Handlers must be idempotent: the
// watchdog can hand a crashed worker's job to another worker, so the same job
// may run more than once.
type JobHandler func(ctx context.Context, job *model.Job) error

// Scheduler is the durable job engine. Workers poll the store for due jobs,
// claim them with a conditional write and run the handler registered for the
// job's kind. Failed jobs retry with exponential backoff until the attempt
// budget runs out, then dead-letter with an operator alert.
type Scheduler struct {
	lane     *Skylane
	handlers map[string]JobHandler
	queues   []string

	workers      int
	pollInterval time.Duration
	claimTimeout time.Duration
	backoffBase  time.Duration
	backoffCap   time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler builds a scheduler over the Skylane instance with the built-in
// handlers registered.
//
// Parameters:
// - lane *Skylane: The service instance whose operations the handlers drive.
//
// Returns:
// - *Scheduler: The configured scheduler, not yet started.
// - error: An error if the configuration is unavailable.
func NewScheduler(lane *Skylane) (*Scheduler, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		lane:         lane,
		handlers:     make(map[string]JobHandler),
		queues:       []string{DefaultJobQueue},
		workers:      cfg.Scheduler.Workers,
		pollInterval: time.Duration(cfg.Scheduler.PollIntervalMs) * time.Millisecond,
		claimTimeout: time.Duration(cfg.Scheduler.ClaimTimeoutSec) * time.Second,
		backoffBase:  time.Duration(cfg.Scheduler.BackoffBaseMs) * time.Millisecond,
		backoffCap:   time.Duration(cfg.Scheduler.BackoffCapMs) * time.Millisecond,
		breakers:     make(map[string]*gobreaker.CircuitBreaker),
		stop:         make(chan struct{}),
	}

	s.Register(KindBookingExpiry, func(ctx context.Context, job *model.Job) error {
		var p bookingExpiryPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return backoff.Permanent(err)
		}
		return lane.ExpireBooking(ctx, p.BookingID)
	})
	s.Register(KindFlightTransition, func(ctx context.Context, job *model.Job) error {
		var p flightTransitionPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return backoff.Permanent(err)
		}
		return s.runFlightTransition(ctx, p)
	})
	s.Register(KindWaitlistExpiry, func(ctx context.Context, job *model.Job) error {
		var p waitlistExpiryPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return backoff.Permanent(err)
		}
		return lane.ExpireWaitlistEntry(ctx, p.WaitlistID, p.HoldID)
	})
	s.Register(KindSweepHolds, func(ctx context.Context, _ *model.Job) error {
		_, err := lane.SweepExpiredHolds(ctx)
		return err
	})
	s.Register(KindArchiveFlights, func(ctx context.Context, _ *model.Job) error {
		_, err := lane.ArchiveFinishedFlights(ctx)
		return err
	})

	return s, nil
}

// Register binds a handler to a job kind, replacing any previous binding.
func (s *Scheduler) Register(kind string, handler JobHandler) {
	s.handlers[kind] = handler
}

// runFlightTransition applies a timed flight transition. The flight's state
// is re-read at execution time: a flight no longer in the expected source
// status means an operator already moved it (delay, cancellation, manual
// progression) and the timer is stale, so the job completes as a no-op.
func (s *Scheduler) runFlightTransition(ctx context.Context, p flightTransitionPayload) error {
	flight, err := s.lane.datasource.GetFlightByID(ctx, p.FlightID)
	if err != nil {
		if apierror.IsNotFound(err) {
			return nil
		}
		return err
	}
	if flight.Status != p.From {
		logrus.Infof("flight %s is %s, timed transition to %s is stale", p.FlightID, flight.Status, p.To)
		return nil
	}
	_, err = s.lane.TransitionFlight(ctx, p.FlightID, p.To)
	if err != nil && (apierror.IsConflict(err) || apierror.IsInvalidTransition(err)) {
		// Someone moved the flight between our read and our write.
		return nil
	}
	return err
}

// Start launches the worker pool, the stale-claim watchdog and the repeating
// maintenance jobs. It returns immediately; Stop drains the workers.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.ensureRepeatingJobs(ctx); err != nil {
		return err
	}

	for _, queue := range s.queues {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.runWorker(ctx, queue)
		}
	}

	s.wg.Add(1)
	go s.runWatchdog(ctx)

	logrus.Infof("scheduler started: %d workers per queue, poll interval %s", s.workers, s.pollInterval)
	return nil
}

// Stop signals all workers to finish their current job and exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// DeadJobs pages through dead-lettered jobs.
func (s *Scheduler) DeadJobs(ctx context.Context, limit, offset int) ([]model.Job, error) {
	return s.lane.datasource.ListDeadJobs(ctx, limit, offset)
}

// ReplayDeadJob puts a dead-lettered job back on its queue with a fresh
// retry budget.
func (s *Scheduler) ReplayDeadJob(ctx context.Context, jobID string) error {
	replayed, err := s.lane.datasource.ReplayDeadJob(ctx, jobID, time.Now())
	if err != nil {
		return err
	}
	if !replayed {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Job '%s' is not dead-lettered", jobID), nil)
	}
	return nil
}

// ensureRepeatingJobs seeds the maintenance jobs if no live instance exists.
func (s *Scheduler) ensureRepeatingJobs(ctx context.Context) error {
	repeating := []struct {
		kind string
		spec string
	}{
		{KindSweepHolds, "@every 5m"},
		{KindArchiveFlights, "@daily"},
	}
	for _, r := range repeating {
		exists, err := s.lane.datasource.HasPendingJob(ctx, r.kind)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		due, err := nextCronTime(r.spec, time.Now())
		if err != nil {
			return err
		}
		_, err = s.lane.ScheduleJob(ctx, &model.Job{Kind: r.kind, CronSpec: r.spec, DueAt: due})
		if err != nil {
			return err
		}
	}
	return nil
}

func nextCronTime(spec string, after time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return schedule.Next(after), nil
}

func (s *Scheduler) runWorker(ctx context.Context, queue string) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		// An open breaker means this queue's handlers are failing
		// systematically. Claiming anyway would move jobs to RUNNING and
		// spend attempts on work that cannot run, so hold off until the
		// cooldown lets a probe through.
		if s.breakerFor(queue).State() == gobreaker.StateOpen {
			s.sleep(s.pollInterval)
			continue
		}

		job, err := s.claimWithRetry(ctx, queue)
		if err != nil {
			logrus.Errorf("failed to claim job on queue %s: %v", queue, err)
			s.sleep(s.pollInterval)
			continue
		}
		if job == nil {
			s.sleep(s.pollInterval)
			continue
		}
		s.execute(ctx, job)
	}
}

// claimWithRetry wraps the claim in exponential backoff so a transient store
// hiccup does not surface as a failed poll cycle.
func (s *Scheduler) claimWithRetry(ctx context.Context, queue string) (*model.Job, error) {
	var job *model.Job
	operation := func() error {
		claimed, err := s.lane.datasource.ClaimNextJob(ctx, queue, time.Now())
		if err != nil {
			if apierror.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		job = claimed
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return job, nil
}

// execute runs one claimed job to a terminal outcome: DONE, rescheduled with
// backoff, or DEAD. A panicking handler is treated as a failed attempt, not a
// crashed worker.
func (s *Scheduler) execute(ctx context.Context, job *model.Job) {
	handler, ok := s.handlers[job.Kind]
	if !ok {
		s.deadLetter(ctx, job, fmt.Errorf("no handler registered for kind %q", job.Kind))
		return
	}

	breaker := s.breakerFor(job.Queue)
	_, err := breaker.Execute(func() (result interface{}, execErr error) {
		defer func() {
			if r := recover(); r != nil {
				execErr = fmt.Errorf("handler for %s panicked: %v", job.Kind, r)
			}
		}()
		return nil, handler(ctx, job)
	})
	if err != nil {
		s.handleFailure(ctx, job, err)
		return
	}

	if err := s.lane.datasource.MarkJobDone(ctx, job.JobID); err != nil {
		logrus.Errorf("failed to mark job %s done: %v", job.JobID, err)
		return
	}
	if job.Repeating() {
		s.scheduleNextOccurrence(ctx, job)
	}
}

func (s *Scheduler) handleFailure(ctx context.Context, job *model.Job, jobErr error) {
	if errors.Is(jobErr, gobreaker.ErrOpenState) || errors.Is(jobErr, gobreaker.ErrTooManyRequests) {
		// The breaker tripped between the claim and the execution. The
		// handler never ran, so the job gets its attempt back instead of
		// having its retry budget drained by the cooldown.
		if err := s.lane.datasource.ReleaseJob(ctx, job.JobID, time.Now().Add(s.pollInterval)); err != nil {
			logrus.Errorf("failed to release claim on job %s: %v", job.JobID, err)
		}
		return
	}

	var permanent *backoff.PermanentError
	if job.ExhaustedAttempts() || errors.As(jobErr, &permanent) {
		s.deadLetter(ctx, job, jobErr)
		return
	}

	delay := s.retryDelay(job.Attempts)
	logrus.Warnf("job %s (%s) attempt %d/%d failed: %v; retrying in %s",
		job.JobID, job.Kind, job.Attempts, job.MaxAttempts, jobErr, delay)
	if err := s.lane.datasource.RescheduleJob(ctx, job.JobID, time.Now().Add(delay), jobErr.Error()); err != nil {
		logrus.Errorf("failed to reschedule job %s: %v", job.JobID, err)
	}
}

// deadLetter parks the job and alerts the operator. The conditional store
// write guarantees the alert fires exactly once even if two workers somehow
// hold the same claim.
func (s *Scheduler) deadLetter(ctx context.Context, job *model.Job, jobErr error) {
	parked, err := s.lane.datasource.MarkJobDead(ctx, job.JobID, jobErr.Error())
	if err != nil {
		logrus.Errorf("failed to dead-letter job %s: %v", job.JobID, err)
		return
	}
	if !parked {
		return
	}

	notification.NotifyError(fmt.Errorf("job %s (%s) dead-lettered after %d attempts: %w",
		job.JobID, job.Kind, job.Attempts, jobErr))
	go func() {
		err := s.lane.queue.DispatchEvent(context.Background(), model.NotificationEvent{
			EventType: model.EventJobDeadLettered,
			Payload: map[string]interface{}{
				"job_id":     job.JobID,
				"kind":       job.Kind,
				"attempts":   job.Attempts,
				"last_error": jobErr.Error(),
			},
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}

// scheduleNextOccurrence creates a fresh job for the next cron firing of a
// repeating job. Completed occurrences stay behind as DONE rows.
func (s *Scheduler) scheduleNextOccurrence(ctx context.Context, job *model.Job) {
	due, err := nextCronTime(job.CronSpec, time.Now())
	if err != nil {
		notification.NotifyError(fmt.Errorf("repeating job %s has unparseable cron spec: %w", job.JobID, err))
		return
	}
	_, err = s.lane.ScheduleJob(ctx, &model.Job{
		Kind:        job.Kind,
		Queue:       job.Queue,
		Payload:     job.Payload,
		Priority:    job.Priority,
		MaxAttempts: job.MaxAttempts,
		CronSpec:    job.CronSpec,
		DueAt:       due,
	})
	if err != nil {
		notification.NotifyError(fmt.Errorf("failed to schedule next occurrence of %s: %w", job.Kind, err))
	}
}

// retryDelay is base * 2^attempts capped at the configured ceiling. Attempts
// is already incremented for the failed execution, so the first retry waits
// base * 2.
func (s *Scheduler) retryDelay(attempts int) time.Duration {
	delay := s.backoffBase
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= s.backoffCap {
			return s.backoffCap
		}
	}
	return delay
}

func (s *Scheduler) breakerFor(queue string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if breaker, ok := s.breakers[queue]; ok {
		return breaker
	}

	cfg, err := config.Fetch()
	threshold := uint32(5)
	cooldown := 30 * time.Second
	if err == nil {
		threshold = uint32(cfg.Scheduler.BreakerThreshold)
		cooldown = time.Duration(cfg.Scheduler.BreakerCooldownSec) * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "scheduler-" + queue,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		Timeout: cooldown,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.Warnf("circuit breaker %s moved from %s to %s", name, from, to)
		},
	})
	s.breakers[queue] = breaker
	return breaker
}

// runWatchdog periodically returns jobs stuck in RUNNING longer than the
// claim timeout to PENDING. Covers workers that died between claim and
// completion.
func (s *Scheduler) runWatchdog(ctx context.Context) {
	defer s.wg.Done()
	interval := s.claimTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			requeued, err := s.lane.datasource.RequeueStaleJobs(ctx, time.Now().Add(-s.claimTimeout))
			if err != nil {
				logrus.Errorf("stale job sweep failed: %v", err)
				continue
			}
			if requeued > 0 {
				logrus.Warnf("requeued %d stale jobs", requeued)
			}
		}
	}
}

func (s *Scheduler) sleep(d time.Duration) {
	select {
	case <-s.stop:
	case <-time.After(d):
	}
}
