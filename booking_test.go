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

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/model"
)

func scheduledFlight(flightID string) *model.Flight {
	return &model.Flight{
		FlightID:     flightID,
		FlightNumber: "SK" + gofakeit.DigitN(3),
		Origin:       "LOS",
		Destination:  "AMS",
		Status:       model.FlightScheduled,
		AircraftID:   "acf_" + gofakeit.UUID(),
	}
}

func economySeat(seatID string, price int64) model.Seat {
	return model.Seat{
		SeatID:     seatID,
		AircraftID: "acf_1",
		SeatNumber: "14C",
		Class:      model.SeatClassEconomy,
		Price:      decimal.NewFromInt(price),
	}
}

func TestCreateBooking(t *testing.T) {
	lane, repo := newTestSkylane(t)
	ctx := context.Background()

	flightID := "flt_" + gofakeit.UUID()
	seat := economySeat("seat_1", 250)

	repo.On("GetFlightByID", mock.Anything, flightID).Return(scheduledFlight(flightID), nil)
	repo.On("GetAvailableSeats", mock.Anything, flightID, model.SeatClassEconomy).Return([]model.Seat{seat}, nil)
	repo.On("HoldSeat", mock.Anything, flightID, "seat_1", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("CreateBookingWithTicket", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo.On("CreateJob", mock.Anything, mock.Anything).Return(&model.Job{}, nil)

	booking, err := lane.CreateBooking(ctx, &BookingRequest{
		FlightID:    flightID,
		PassengerID: "pax_1",
		Seat:        model.SeatCriteria{Class: model.SeatClassEconomy},
	})
	assert.NoError(t, err)
	assert.Equal(t, model.BookingPending, booking.Status)
	assert.Len(t, booking.PNR, 6)
	assert.True(t, booking.TotalFare.Equal(seat.Price))
	// Payer defaults to the passenger when not provided.
	assert.Equal(t, "pax_1", booking.PayerID)

	repo.AssertExpectations(t)
}

func TestCreateBookingNoSeatAvailable(t *testing.T) {
	lane, repo := newTestSkylane(t)

	flightID := "flt_" + gofakeit.UUID()
	repo.On("GetFlightByID", mock.Anything, flightID).Return(scheduledFlight(flightID), nil)
	repo.On("GetAvailableSeats", mock.Anything, flightID, model.SeatClassEconomy).Return([]model.Seat{}, nil)

	_, err := lane.CreateBooking(context.Background(), &BookingRequest{
		FlightID:    flightID,
		PassengerID: "pax_1",
		Seat:        model.SeatCriteria{Class: model.SeatClassEconomy},
	})
	assert.Error(t, err)
	assert.True(t, apierror.IsConflict(err))
	repo.AssertNotCalled(t, "CreateBookingWithTicket", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateBookingValidation(t *testing.T) {
	lane, _ := newTestSkylane(t)

	_, err := lane.CreateBooking(context.Background(), &BookingRequest{PassengerID: "pax_1"})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	_, err = lane.CreateBooking(context.Background(), &BookingRequest{FlightID: "flt_1"})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
}

func TestCreateBookingReleasesHoldOnFailure(t *testing.T) {
	lane, repo := newTestSkylane(t)

	flightID := "flt_" + gofakeit.UUID()
	seat := economySeat("seat_1", 180)

	repo.On("GetFlightByID", mock.Anything, flightID).Return(scheduledFlight(flightID), nil)
	repo.On("GetAvailableSeats", mock.Anything, flightID, model.SeatClassEconomy).Return([]model.Seat{seat}, nil)
	repo.On("HoldSeat", mock.Anything, flightID, "seat_1", mock.Anything, mock.Anything).Return(true, nil)
	repo.On("CreateBookingWithTicket", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apierror.NewAPIError(apierror.ErrConflict, "Seat hold 'hld_x' is no longer available", nil))
	repo.On("ReleaseHold", mock.Anything, mock.Anything).Return(nil)

	_, err := lane.CreateBooking(context.Background(), &BookingRequest{
		FlightID:    flightID,
		PassengerID: "pax_1",
		Seat:        model.SeatCriteria{Class: model.SeatClassEconomy},
	})
	assert.Error(t, err)
	repo.AssertCalled(t, "ReleaseHold", mock.Anything, mock.Anything)
}

func TestConfirmPayment(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{
		BookingID:   "bkg_1",
		PNR:         "ABC234",
		PassengerID: "pax_1",
		PayerID:     "pax_1",
		Status:      model.BookingPending,
		Version:     2,
		TotalFare:   decimal.NewFromInt(250),
	}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)
	repo.On("TransitionBooking", mock.Anything, "bkg_1", model.BookingPending, model.BookingConfirmed, int64(2)).Return(true, nil)

	confirmed, err := lane.ConfirmPayment(context.Background(), "bkg_1", model.PaymentResult{Succeeded: true, Reference: "pay_123"})
	assert.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, confirmed.Status)
	assert.Equal(t, int64(3), confirmed.Version)
	repo.AssertExpectations(t)
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{BookingID: "bkg_1", Status: model.BookingConfirmed, Version: 3}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)

	confirmed, err := lane.ConfirmPayment(context.Background(), "bkg_1", model.PaymentResult{Succeeded: true})
	assert.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, confirmed.Status)
	repo.AssertNotCalled(t, "TransitionBooking", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmPaymentAfterCancellation(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{BookingID: "bkg_1", Status: model.BookingCancelled}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)

	_, err := lane.ConfirmPayment(context.Background(), "bkg_1", model.PaymentResult{Succeeded: true})
	assert.Error(t, err)
	assert.True(t, apierror.IsInvalidTransition(err))
}

func TestConfirmPaymentLostRaceToConfirmation(t *testing.T) {
	lane, repo := newTestSkylane(t)

	pending := &model.Booking{BookingID: "bkg_1", Status: model.BookingPending, Version: 1}
	confirmed := &model.Booking{BookingID: "bkg_1", Status: model.BookingConfirmed, Version: 2}

	repo.On("GetBooking", mock.Anything, "bkg_1").Return(pending, nil).Once()
	repo.On("TransitionBooking", mock.Anything, "bkg_1", model.BookingPending, model.BookingConfirmed, int64(1)).Return(false, nil)
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(confirmed, nil).Once()

	result, err := lane.ConfirmPayment(context.Background(), "bkg_1", model.PaymentResult{Succeeded: true})
	assert.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, result.Status)
}

func TestConfirmPaymentLostRaceToExpiry(t *testing.T) {
	lane, repo := newTestSkylane(t)

	pending := &model.Booking{BookingID: "bkg_1", Status: model.BookingPending, Version: 1}
	cancelled := &model.Booking{BookingID: "bkg_1", Status: model.BookingCancelled, Version: 2}

	repo.On("GetBooking", mock.Anything, "bkg_1").Return(pending, nil).Once()
	repo.On("TransitionBooking", mock.Anything, "bkg_1", model.BookingPending, model.BookingConfirmed, int64(1)).Return(false, nil)
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(cancelled, nil).Once()

	_, err := lane.ConfirmPayment(context.Background(), "bkg_1", model.PaymentResult{Succeeded: true})
	assert.Error(t, err)
	assert.True(t, apierror.IsConflict(err))
}

func TestConfirmPaymentFailureCancels(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{BookingID: "bkg_1", PassengerID: "pax_1", Status: model.BookingPending, Version: 1}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)
	repo.On("CancelBookingCascade", mock.Anything, "bkg_1", model.BookingPending, model.BookingCancelled, int64(1)).
		Return(map[string]int{}, nil)

	result, err := lane.ConfirmPayment(context.Background(), "bkg_1", model.PaymentResult{Succeeded: false, Reason: "card declined"})
	assert.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, result.Status)
	repo.AssertExpectations(t)
}

func TestExpireBooking(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{BookingID: "bkg_1", PassengerID: "pax_1", Status: model.BookingPending, Version: 1}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)
	repo.On("CancelBookingCascade", mock.Anything, "bkg_1", model.BookingPending, model.BookingCancelled, int64(1)).
		Return(map[string]int{"flt_1": 1}, nil)
	// The freed seat triggers a promotion attempt for its flight.
	repo.On("GetActiveWaitlist", mock.Anything, "flt_1", 1).Return([]model.WaitlistEntry{}, nil)

	err := lane.ExpireBooking(context.Background(), "bkg_1")
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestExpireBookingStaleTimer(t *testing.T) {
	lane, repo := newTestSkylane(t)

	// The passenger paid before the deadline; the timer must lose.
	booking := &model.Booking{BookingID: "bkg_1", Status: model.BookingConfirmed, Version: 2}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)

	err := lane.ExpireBooking(context.Background(), "bkg_1")
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "CancelBookingCascade", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExpireBookingMissing(t *testing.T) {
	lane, repo := newTestSkylane(t)

	repo.On("GetBooking", mock.Anything, "bkg_missing").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Booking with ID 'bkg_missing' not found", nil))

	err := lane.ExpireBooking(context.Background(), "bkg_missing")
	assert.NoError(t, err)
}

func TestExpireBookingLostRace(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{BookingID: "bkg_1", Status: model.BookingPending, Version: 1}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)
	// nil map means a concurrent confirmation or cancellation won the CAS.
	repo.On("CancelBookingCascade", mock.Anything, "bkg_1", model.BookingPending, model.BookingCancelled, int64(1)).
		Return(nil, nil)

	err := lane.ExpireBooking(context.Background(), "bkg_1")
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "GetActiveWaitlist", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelConfirmedBooking(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{
		BookingID:   "bkg_1",
		PayerID:     "payer_1",
		PassengerID: "pax_1",
		Status:      model.BookingConfirmed,
		Version:     2,
		TotalFare:   decimal.NewFromInt(420),
	}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)
	repo.On("CancelBookingCascade", mock.Anything, "bkg_1", model.BookingConfirmed, model.BookingCancelled, int64(2)).
		Return(map[string]int{"flt_1": 1}, nil)
	repo.On("GetActiveWaitlist", mock.Anything, "flt_1", 1).Return([]model.WaitlistEntry{}, nil)

	cancelled, err := lane.CancelBooking(context.Background(), "bkg_1", "change of plans")
	assert.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	repo.AssertExpectations(t)
}

func TestCancelBookingTerminal(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{BookingID: "bkg_1", Status: model.BookingCompleted}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)

	_, err := lane.CancelBooking(context.Background(), "bkg_1", "too late")
	assert.Error(t, err)
	assert.True(t, apierror.IsInvalidTransition(err))
	repo.AssertNotCalled(t, "CancelBookingCascade", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelBookingConcurrentChange(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{BookingID: "bkg_1", Status: model.BookingPending, Version: 1}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)
	repo.On("CancelBookingCascade", mock.Anything, "bkg_1", model.BookingPending, model.BookingCancelled, int64(1)).
		Return(nil, nil)

	_, err := lane.CancelBooking(context.Background(), "bkg_1", "race")
	assert.Error(t, err)
	assert.True(t, apierror.IsConflict(err))
}

func TestCompleteBooking(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{BookingID: "bkg_1", Status: model.BookingConfirmed, Version: 2}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)
	repo.On("TransitionBooking", mock.Anything, "bkg_1", model.BookingConfirmed, model.BookingCompleted, int64(2)).Return(true, nil)

	err := lane.CompleteBooking(context.Background(), "bkg_1")
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCompleteBookingSkipsUnconfirmed(t *testing.T) {
	lane, repo := newTestSkylane(t)

	booking := &model.Booking{BookingID: "bkg_1", Status: model.BookingCancelled}
	repo.On("GetBooking", mock.Anything, "bkg_1").Return(booking, nil)

	err := lane.CompleteBooking(context.Background(), "bkg_1")
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "TransitionBooking", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
