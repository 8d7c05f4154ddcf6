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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/skylane/skylane/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Flight methods

func (m *MockDataSource) CreateFlight(ctx context.Context, flight model.Flight) (model.Flight, error) {
	args := m.Called(ctx, flight)
	return args.Get(0).(model.Flight), args.Error(1)
}

func (m *MockDataSource) GetFlightByID(ctx context.Context, flightID string) (*model.Flight, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Flight), args.Error(1)
}

func (m *MockDataSource) TransitionFlight(ctx context.Context, flightID string, from, to model.FlightStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, flightID, from, to, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetLiveBookingIDsByFlight(ctx context.Context, flightID string) ([]string, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDataSource) ArchiveFinishedFlights(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Seat methods

func (m *MockDataSource) CreateSeat(ctx context.Context, seat model.Seat) (model.Seat, error) {
	args := m.Called(ctx, seat)
	return args.Get(0).(model.Seat), args.Error(1)
}

func (m *MockDataSource) GetSeatByID(ctx context.Context, seatID string) (*model.Seat, error) {
	args := m.Called(ctx, seatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Seat), args.Error(1)
}

func (m *MockDataSource) GetAvailableSeats(ctx context.Context, flightID string, class model.SeatClass) ([]model.Seat, error) {
	args := m.Called(ctx, flightID, class)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Seat), args.Error(1)
}

func (m *MockDataSource) HoldSeat(ctx context.Context, flightID, seatID, holdID string, expiresAt time.Time) (bool, error) {
	args := m.Called(ctx, flightID, seatID, holdID, expiresAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetHoldAssignment(ctx context.Context, holdID string) (*model.SeatAssignment, error) {
	args := m.Called(ctx, holdID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SeatAssignment), args.Error(1)
}

func (m *MockDataSource) ReleaseHold(ctx context.Context, holdID string) error {
	args := m.Called(ctx, holdID)
	return args.Error(0)
}

func (m *MockDataSource) ReleaseSeatByTicket(ctx context.Context, ticketID string) (bool, error) {
	args := m.Called(ctx, ticketID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) SweepExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// Booking methods

func (m *MockDataSource) CreateBookingWithTicket(ctx context.Context, bkg *model.Booking, tkt *model.Ticket, holdID string) error {
	args := m.Called(ctx, bkg, tkt, holdID)
	return args.Error(0)
}

func (m *MockDataSource) GetBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *MockDataSource) GetBookingByPNR(ctx context.Context, pnr string) (*model.Booking, error) {
	args := m.Called(ctx, pnr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *MockDataSource) GetConfirmedBookingsByFlight(ctx context.Context, flightID string) ([]model.Booking, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (m *MockDataSource) TransitionBooking(ctx context.Context, bookingID string, from, to model.BookingStatus, version int64) (bool, error) {
	args := m.Called(ctx, bookingID, from, to, version)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) CancelBookingCascade(ctx context.Context, bookingID string, from, to model.BookingStatus, version int64) (map[string]int, error) {
	args := m.Called(ctx, bookingID, from, to, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

// Ticket methods

func (m *MockDataSource) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ticket), args.Error(1)
}

func (m *MockDataSource) GetTicketsByBooking(ctx context.Context, bookingID string) ([]model.Ticket, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Ticket), args.Error(1)
}

func (m *MockDataSource) TransitionTicket(ctx context.Context, ticketID string, from, to model.TicketStatus) (bool, error) {
	args := m.Called(ctx, ticketID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) CreateBaggage(ctx context.Context, bag model.Baggage) (model.Baggage, error) {
	args := m.Called(ctx, bag)
	return args.Get(0).(model.Baggage), args.Error(1)
}

func (m *MockDataSource) GetBaggage(ctx context.Context, baggageID string) (*model.Baggage, error) {
	args := m.Called(ctx, baggageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Baggage), args.Error(1)
}

func (m *MockDataSource) TransitionBaggage(ctx context.Context, baggageID string, from, to model.BaggageStatus) (bool, error) {
	args := m.Called(ctx, baggageID, from, to)
	return args.Bool(0), args.Error(1)
}

// Waitlist methods

func (m *MockDataSource) CreateWaitlistEntry(ctx context.Context, entry model.WaitlistEntry) (model.WaitlistEntry, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(model.WaitlistEntry), args.Error(1)
}

func (m *MockDataSource) GetWaitlistEntry(ctx context.Context, waitlistID string) (*model.WaitlistEntry, error) {
	args := m.Called(ctx, waitlistID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WaitlistEntry), args.Error(1)
}

func (m *MockDataSource) GetActiveWaitlist(ctx context.Context, flightID string, limit int) ([]model.WaitlistEntry, error) {
	args := m.Called(ctx, flightID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.WaitlistEntry), args.Error(1)
}

func (m *MockDataSource) TransitionWaitlist(ctx context.Context, waitlistID string, from, to model.WaitlistStatus) (bool, error) {
	args := m.Called(ctx, waitlistID, from, to)
	return args.Bool(0), args.Error(1)
}

// Job methods

func (m *MockDataSource) CreateJob(ctx context.Context, j *model.Job) (*model.Job, error) {
	args := m.Called(ctx, j)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) HasPendingJob(ctx context.Context, kind string) (bool, error) {
	args := m.Called(ctx, kind)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) ClaimNextJob(ctx context.Context, queue string, now time.Time) (*model.Job, error) {
	args := m.Called(ctx, queue, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

func (m *MockDataSource) MarkJobDone(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockDataSource) RescheduleJob(ctx context.Context, jobID string, dueAt time.Time, lastError string) error {
	args := m.Called(ctx, jobID, dueAt, lastError)
	return args.Error(0)
}

func (m *MockDataSource) ReleaseJob(ctx context.Context, jobID string, dueAt time.Time) error {
	args := m.Called(ctx, jobID, dueAt)
	return args.Error(0)
}

func (m *MockDataSource) MarkJobDead(ctx context.Context, jobID string, lastError string) (bool, error) {
	args := m.Called(ctx, jobID, lastError)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) RequeueStaleJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ListDeadJobs(ctx context.Context, limit, offset int) ([]model.Job, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Job), args.Error(1)
}

func (m *MockDataSource) ReplayDeadJob(ctx context.Context, jobID string, dueAt time.Time) (bool, error) {
	args := m.Called(ctx, jobID, dueAt)
	return args.Bool(0), args.Error(1)
}

// History methods

func (m *MockDataSource) GetStatusHistory(ctx context.Context, entityID string, limit, offset int) ([]model.StatusHistory, error) {
	args := m.Called(ctx, entityID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StatusHistory), args.Error(1)
}
