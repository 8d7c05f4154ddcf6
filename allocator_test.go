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
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/model"
)

func TestReserveSeat(t *testing.T) {
	lane, repo := newTestSkylane(t)

	seat := economySeat("seat_1", 300)
	repo.On("GetFlightByID", mock.Anything, "flt_1").Return(scheduledFlight("flt_1"), nil)
	repo.On("GetAvailableSeats", mock.Anything, "flt_1", model.SeatClassEconomy).Return([]model.Seat{seat}, nil)
	repo.On("HoldSeat", mock.Anything, "flt_1", "seat_1", mock.Anything, mock.Anything).Return(true, nil)

	hold, err := lane.ReserveSeat(context.Background(), "flt_1", model.SeatCriteria{Class: model.SeatClassEconomy})
	assert.NoError(t, err)
	assert.Equal(t, "seat_1", hold.Seat.SeatID)
	assert.True(t, hold.Fare.Equal(seat.Price))
	assert.NotEmpty(t, hold.HoldID)
	assert.True(t, hold.ExpiresAt.After(time.Now()))
}

func TestReserveSeatMovesToNextCandidateOnLostRace(t *testing.T) {
	lane, repo := newTestSkylane(t)

	first := economySeat("seat_1", 300)
	second := economySeat("seat_2", 320)
	second.SeatNumber = "14D"

	repo.On("GetFlightByID", mock.Anything, "flt_1").Return(scheduledFlight("flt_1"), nil)
	repo.On("GetAvailableSeats", mock.Anything, "flt_1", model.SeatClassEconomy).Return([]model.Seat{first, second}, nil)
	// Another passenger wins seat_1; the allocator must fall through to seat_2.
	repo.On("HoldSeat", mock.Anything, "flt_1", "seat_1", mock.Anything, mock.Anything).Return(false, nil)
	repo.On("HoldSeat", mock.Anything, "flt_1", "seat_2", mock.Anything, mock.Anything).Return(true, nil)

	hold, err := lane.ReserveSeat(context.Background(), "flt_1", model.SeatCriteria{Class: model.SeatClassEconomy})
	assert.NoError(t, err)
	assert.Equal(t, "seat_2", hold.Seat.SeatID)
	repo.AssertExpectations(t)
}

func TestReserveSeatAllCandidatesTaken(t *testing.T) {
	lane, repo := newTestSkylane(t)

	seat := economySeat("seat_1", 300)
	repo.On("GetFlightByID", mock.Anything, "flt_1").Return(scheduledFlight("flt_1"), nil)
	repo.On("GetAvailableSeats", mock.Anything, "flt_1", model.SeatClassEconomy).Return([]model.Seat{seat}, nil)
	repo.On("HoldSeat", mock.Anything, "flt_1", "seat_1", mock.Anything, mock.Anything).Return(false, nil)

	_, err := lane.ReserveSeat(context.Background(), "flt_1", model.SeatCriteria{Class: model.SeatClassEconomy})
	assert.Error(t, err)
	assert.True(t, apierror.IsConflict(err))
}

func TestReserveSeatFlightNotSellable(t *testing.T) {
	lane, repo := newTestSkylane(t)

	flight := scheduledFlight("flt_1")
	flight.Status = model.FlightDeparted
	repo.On("GetFlightByID", mock.Anything, "flt_1").Return(flight, nil)

	_, err := lane.ReserveSeat(context.Background(), "flt_1", model.SeatCriteria{})
	assert.Error(t, err)
	assert.True(t, apierror.IsConflict(err))
	repo.AssertNotCalled(t, "GetAvailableSeats", mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveSeatDelayedFlightStillSellable(t *testing.T) {
	lane, repo := newTestSkylane(t)

	flight := scheduledFlight("flt_1")
	flight.Status = model.FlightDelayed
	seat := economySeat("seat_1", 300)

	repo.On("GetFlightByID", mock.Anything, "flt_1").Return(flight, nil)
	repo.On("GetAvailableSeats", mock.Anything, "flt_1", model.SeatClass("")).Return([]model.Seat{seat}, nil)
	repo.On("HoldSeat", mock.Anything, "flt_1", "seat_1", mock.Anything, mock.Anything).Return(true, nil)

	hold, err := lane.ReserveSeat(context.Background(), "flt_1", model.SeatCriteria{})
	assert.NoError(t, err)
	assert.Equal(t, "seat_1", hold.Seat.SeatID)
}

func TestReserveSeatHonorsCriteria(t *testing.T) {
	lane, repo := newTestSkylane(t)

	cheap := economySeat("seat_1", 150)
	pricey := economySeat("seat_2", 900)
	pricey.SeatNumber = "14D"

	repo.On("GetFlightByID", mock.Anything, "flt_1").Return(scheduledFlight("flt_1"), nil)
	repo.On("GetAvailableSeats", mock.Anything, "flt_1", model.SeatClassEconomy).Return([]model.Seat{pricey, cheap}, nil)
	repo.On("HoldSeat", mock.Anything, "flt_1", "seat_1", mock.Anything, mock.Anything).Return(true, nil)

	hold, err := lane.ReserveSeat(context.Background(), "flt_1", model.SeatCriteria{
		Class:    model.SeatClassEconomy,
		MaxPrice: decimal.NewFromInt(200),
	})
	assert.NoError(t, err)
	assert.Equal(t, "seat_1", hold.Seat.SeatID)
	repo.AssertNotCalled(t, "HoldSeat", mock.Anything, "flt_1", "seat_2", mock.Anything, mock.Anything)
}

func TestListAvailableSeats(t *testing.T) {
	lane, repo := newTestSkylane(t)

	seats := []model.Seat{economySeat("seat_1", 300)}
	repo.On("GetAvailableSeats", mock.Anything, "flt_1", model.SeatClassEconomy).Return(seats, nil).Once()

	got, err := lane.ListAvailableSeats(context.Background(), "flt_1", model.SeatClassEconomy)
	assert.NoError(t, err)
	assert.Len(t, got, 1)

	// Second read is served from the availability cache.
	got, err = lane.ListAvailableSeats(context.Background(), "flt_1", model.SeatClassEconomy)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	repo.AssertExpectations(t)
}

func TestSweepExpiredHolds(t *testing.T) {
	lane, repo := newTestSkylane(t)

	repo.On("SweepExpiredHolds", mock.Anything, mock.Anything).Return(int64(3), nil)

	swept, err := lane.SweepExpiredHolds(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(3), swept)
}
