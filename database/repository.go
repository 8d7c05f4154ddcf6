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
	"time"

	"github.com/skylane/skylane/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	flight   // Flight records and status transitions
	seat     // Seat inventory and the seat-to-ticket assignment relation
	booking  // Booking lifecycle, including multi-entity transactions
	ticket   // Ticket and baggage lifecycles
	waitlist // Waitlist entries and promotion ordering
	job      // Durable scheduler jobs
	history  // Append-only transition audit records
}

// flight defines methods for handling flights. TransitionFlight is
// conditional on the expected current status: zero rows affected means the
// caller lost the race or the flight has already moved on.
type flight interface {
	CreateFlight(ctx context.Context, flight model.Flight) (model.Flight, error)
	GetFlightByID(ctx context.Context, flightID string) (*model.Flight, error)
	TransitionFlight(ctx context.Context, flightID string, from, to model.FlightStatus, at time.Time) (bool, error)
	GetLiveBookingIDsByFlight(ctx context.Context, flightID string) ([]string, error)
	ArchiveFinishedFlights(ctx context.Context) (int64, error)
}

// seat defines methods for the seat inventory. HoldSeat is the single
// contention primitive for seat allocation: an insert that either wins the
// (flight, seat) pair or affects zero rows.
type seat interface {
	CreateSeat(ctx context.Context, seat model.Seat) (model.Seat, error)
	GetSeatByID(ctx context.Context, seatID string) (*model.Seat, error)
	GetAvailableSeats(ctx context.Context, flightID string, class model.SeatClass) ([]model.Seat, error)
	HoldSeat(ctx context.Context, flightID, seatID, holdID string, expiresAt time.Time) (bool, error)
	GetHoldAssignment(ctx context.Context, holdID string) (*model.SeatAssignment, error)
	ReleaseHold(ctx context.Context, holdID string) error
	ReleaseSeatByTicket(ctx context.Context, ticketID string) (bool, error)
	SweepExpiredHolds(ctx context.Context, now time.Time) (int64, error)
}

// booking defines methods for the booking lifecycle. The multi-entity
// methods commit booking, ticket and seat mutations in one transaction so no
// intermediate state is externally observable.
type booking interface {
	CreateBookingWithTicket(ctx context.Context, bkg *model.Booking, tkt *model.Ticket, holdID string) error
	GetBooking(ctx context.Context, bookingID string) (*model.Booking, error)
	GetBookingByPNR(ctx context.Context, pnr string) (*model.Booking, error)
	GetConfirmedBookingsByFlight(ctx context.Context, flightID string) ([]model.Booking, error)
	TransitionBooking(ctx context.Context, bookingID string, from, to model.BookingStatus, version int64) (bool, error)
	CancelBookingCascade(ctx context.Context, bookingID string, from model.BookingStatus, to model.BookingStatus, version int64) (map[string]int, error)
}

// ticket defines methods for tickets and their baggage.
type ticket interface {
	GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error)
	GetTicketsByBooking(ctx context.Context, bookingID string) ([]model.Ticket, error)
	TransitionTicket(ctx context.Context, ticketID string, from, to model.TicketStatus) (bool, error)
	CreateBaggage(ctx context.Context, bag model.Baggage) (model.Baggage, error)
	GetBaggage(ctx context.Context, baggageID string) (*model.Baggage, error)
	TransitionBaggage(ctx context.Context, baggageID string, from, to model.BaggageStatus) (bool, error)
}

// waitlist defines methods for waitlist entries. GetActiveWaitlist returns
// entries strictly ordered by (rank ASC, created_at ASC); promotion
// correctness depends on that ordering.
type waitlist interface {
	CreateWaitlistEntry(ctx context.Context, entry model.WaitlistEntry) (model.WaitlistEntry, error)
	GetWaitlistEntry(ctx context.Context, waitlistID string) (*model.WaitlistEntry, error)
	GetActiveWaitlist(ctx context.Context, flightID string, limit int) ([]model.WaitlistEntry, error)
	TransitionWaitlist(ctx context.Context, waitlistID string, from, to model.WaitlistStatus) (bool, error)
}

// job defines methods for the durable job queue. ClaimNextJob performs the
// compare-and-swap that prevents two workers from claiming the same job;
// MarkJobDead reports whether this call performed the transition so a job is
// dead-lettered exactly once.
type job interface {
	CreateJob(ctx context.Context, j *model.Job) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	HasPendingJob(ctx context.Context, kind string) (bool, error)
	ClaimNextJob(ctx context.Context, queue string, now time.Time) (*model.Job, error)
	MarkJobDone(ctx context.Context, jobID string) error
	RescheduleJob(ctx context.Context, jobID string, dueAt time.Time, lastError string) error
	ReleaseJob(ctx context.Context, jobID string, dueAt time.Time) error
	MarkJobDead(ctx context.Context, jobID string, lastError string) (bool, error)
	RequeueStaleJobs(ctx context.Context, olderThan time.Time) (int64, error)
	ListDeadJobs(ctx context.Context, limit, offset int) ([]model.Job, error)
	ReplayDeadJob(ctx context.Context, jobID string, dueAt time.Time) (bool, error)
}

// history defines read access to the transition audit trail. Writes happen
// inside the same transaction as the transition they record.
type history interface {
	GetStatusHistory(ctx context.Context, entityID string, limit, offset int) ([]model.StatusHistory, error)
}
