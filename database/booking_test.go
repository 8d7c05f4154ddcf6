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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/model"
)

func testBookingAndTicket() (*model.Booking, *model.Ticket) {
	seatID := "seat_1"
	booking := &model.Booking{
		BookingID:   "bkg_1",
		PNR:         "ABC234",
		PayerID:     "pax_1",
		PassengerID: "pax_1",
		TotalFare:   decimal.NewFromInt(300),
		Status:      model.BookingPending,
	}
	ticket := &model.Ticket{
		TicketID:     "tkt_1",
		TicketNumber: "0791234567890",
		BookingID:    "bkg_1",
		PassengerID:  "pax_1",
		FlightID:     "flt_1",
		SeatID:       &seatID,
		FareClass:    model.SeatClassEconomy,
		Status:       model.TicketIssued,
	}
	return booking, ticket
}

func TestCreateBookingWithTicket(t *testing.T) {
	ds, mock := newTestDataSource(t)
	booking, ticket := testBookingAndTicket()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_assignments SET ticket_id = $1, expires_at = NULL")).
		WithArgs("tkt_1", "hld_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tickets")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO status_history")).
		WithArgs(model.EntityBooking, "bkg_1", "", "PENDING", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO status_history")).
		WithArgs(model.EntityTicket, "tkt_1", "", "ISSUED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := ds.CreateBookingWithTicket(context.Background(), booking, ticket, "hld_1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBookingWithTicketHoldLost(t *testing.T) {
	ds, mock := newTestDataSource(t)
	booking, ticket := testBookingAndTicket()

	// The sweeper reaped the hold first; nothing past the seat confirmation
	// may run.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE seat_assignments SET ticket_id = $1, expires_at = NULL")).
		WithArgs("tkt_1", "hld_1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := ds.CreateBookingWithTicket(context.Background(), booking, ticket, "hld_1")
	require.Error(t, err)
	assert.True(t, apierror.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBooking(t *testing.T) {
	ds, mock := newTestDataSource(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "booking_id", "pnr", "payer_id", "passenger_id", "total_fare", "status", "version", "created_at", "meta_data"}).
		AddRow(1, "bkg_1", "ABC234", "pax_1", "pax_1", "300.00", "CONFIRMED", 2, now, []byte(`{"payment_reference":"pay_1"}`))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE booking_id = $1")).
		WithArgs("bkg_1").
		WillReturnRows(rows)

	booking, err := ds.GetBooking(context.Background(), "bkg_1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, booking.Status)
	assert.Equal(t, int64(2), booking.Version)
	assert.Equal(t, "pay_1", booking.MetaData["payment_reference"])
}

func TestGetBookingNotFound(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE booking_id = $1")).
		WithArgs("bkg_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := ds.GetBooking(context.Background(), "bkg_missing")
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}

func TestTransitionBooking(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $1, version = version + 1")).
		WithArgs(model.BookingConfirmed, "bkg_1", model.BookingPending, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO status_history")).
		WithArgs(model.EntityBooking, "bkg_1", "PENDING", "CONFIRMED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	moved, err := ds.TransitionBooking(context.Background(), "bkg_1", model.BookingPending, model.BookingConfirmed, 2)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionBookingLostRace(t *testing.T) {
	ds, mock := newTestDataSource(t)

	// Version moved under us; no history row is written for the losing writer.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $1, version = version + 1")).
		WithArgs(model.BookingConfirmed, "bkg_1", model.BookingPending, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	moved, err := ds.TransitionBooking(context.Background(), "bkg_1", model.BookingPending, model.BookingConfirmed, 2)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelBookingCascade(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $1, version = version + 1")).
		WithArgs(model.BookingCancelled, "bkg_1", model.BookingConfirmed, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO status_history")).
		WithArgs(model.EntityBooking, "bkg_1", "CONFIRMED", "CANCELLED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE tickets t SET status = 'CANCELLED'")).
		WithArgs("bkg_1").
		WillReturnRows(sqlmock.NewRows([]string{"ticket_id", "flight_id", "status"}).
			AddRow("tkt_1", "flt_1", "CHECKED_IN"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM seat_assignments WHERE ticket_id = $1")).
		WithArgs("tkt_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO status_history")).
		WithArgs(model.EntityTicket, "tkt_1", "CHECKED_IN", "CANCELLED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	freed, err := ds.CancelBookingCascade(context.Background(), "bkg_1", model.BookingConfirmed, model.BookingCancelled, 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"flt_1": 1}, freed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelBookingCascadeLostRace(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $1, version = version + 1")).
		WithArgs(model.BookingCancelled, "bkg_1", model.BookingPending, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	freed, err := ds.CancelBookingCascade(context.Background(), "bkg_1", model.BookingPending, model.BookingCancelled, 2)
	require.NoError(t, err)
	assert.Nil(t, freed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
