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
	"encoding/json"
	"fmt"
	"time"

	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/model"
)

// CreateBookingWithTicket commits a new booking, its ticket and the seat
// confirmation in one transaction. The hold is confirmed with a conditional
// update; if another path already consumed or reaped it, the whole
// transaction rolls back with a CONFLICT and nothing is observable.
func (d Datasource) CreateBookingWithTicket(ctx context.Context, bkg *model.Booking, tkt *model.Ticket, holdID string) error {
	metaDataJSON, err := json.Marshal(bkg.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrTransientStore, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()

	// Confirm the hold against the ticket. Zero rows means the hold was lost
	// to the sweeper or another writer.
	result, err := tx.ExecContext(ctx, `
		UPDATE seat_assignments SET ticket_id = $1, expires_at = NULL
		WHERE hold_id = $2 AND ticket_id IS NULL
	`, tkt.TicketID, holdID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to confirm seat hold", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Seat hold '%s' is no longer available", holdID), nil)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (booking_id, pnr, payer_id, passenger_id, total_fare, status, version, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
	`, bkg.BookingID, bkg.PNR, bkg.PayerID, bkg.PassengerID, bkg.TotalFare, bkg.Status, now, metaDataJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create booking", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (ticket_id, ticket_number, booking_id, passenger_id, flight_id, seat_id, fare_class, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tkt.TicketID, tkt.TicketNumber, tkt.BookingID, tkt.PassengerID, tkt.FlightID, tkt.SeatID, tkt.FareClass, tkt.Status, now)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create ticket", err)
	}

	if err := insertStatusHistoryTx(tx, model.EntityBooking, bkg.BookingID, "", string(bkg.Status), now); err != nil {
		return err
	}
	if err := insertStatusHistoryTx(tx, model.EntityTicket, tkt.TicketID, "", string(tkt.Status), now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrTransientStore, "Failed to commit booking", err)
	}
	bkg.CreatedAt = now
	tkt.CreatedAt = now
	return nil
}

func (d Datasource) scanBooking(row *sql.Row) (*model.Booking, error) {
	booking := &model.Booking{}
	var metaDataJSON []byte
	err := row.Scan(&booking.ID, &booking.BookingID, &booking.PNR, &booking.PayerID,
		&booking.PassengerID, &booking.TotalFare, &booking.Status, &booking.Version,
		&booking.CreatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &booking.MetaData); err != nil {
			return nil, err
		}
	}
	return booking, nil
}

// GetBooking retrieves a booking by its booking_id, including the version
// used for optimistic concurrency.
func (d Datasource) GetBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, booking_id, pnr, payer_id, passenger_id, total_fare, status, version, created_at, meta_data
		FROM bookings
		WHERE booking_id = $1
	`, bookingID)
	booking, err := d.scanBooking(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Booking with ID '%s' not found", bookingID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve booking", err)
	}
	return booking, nil
}

// GetBookingByPNR retrieves a booking by its passenger name record.
func (d Datasource) GetBookingByPNR(ctx context.Context, pnr string) (*model.Booking, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, booking_id, pnr, payer_id, passenger_id, total_fare, status, version, created_at, meta_data
		FROM bookings
		WHERE pnr = $1
	`, pnr)
	booking, err := d.scanBooking(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Booking with PNR '%s' not found", pnr), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve booking", err)
	}
	return booking, nil
}

// GetConfirmedBookingsByFlight lists CONFIRMED bookings holding a live ticket
// on the flight. Used by the arrival completion sweep.
func (d Datasource) GetConfirmedBookingsByFlight(ctx context.Context, flightID string) ([]model.Booking, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT DISTINCT b.id, b.booking_id, b.pnr, b.payer_id, b.passenger_id, b.total_fare, b.status, b.version, b.created_at, b.meta_data
		FROM bookings b
		JOIN tickets t ON t.booking_id = b.booking_id
		WHERE t.flight_id = $1
			AND b.status = 'CONFIRMED'
			AND t.status NOT IN ('CANCELLED', 'REFUNDED')
	`, flightID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list confirmed bookings", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var booking model.Booking
		var metaDataJSON []byte
		if err := rows.Scan(&booking.ID, &booking.BookingID, &booking.PNR, &booking.PayerID,
			&booking.PassengerID, &booking.TotalFare, &booking.Status, &booking.Version,
			&booking.CreatedAt, &metaDataJSON); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan booking", err)
		}
		if len(metaDataJSON) > 0 {
			if err := json.Unmarshal(metaDataJSON, &booking.MetaData); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
			}
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

// TransitionBooking moves a booking between statuses conditional on both the
// expected current status and the version the caller read. Exactly one of
// two concurrent writers wins; the loser sees false.
func (d Datasource) TransitionBooking(ctx context.Context, bookingID string, from, to model.BookingStatus, version int64) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings SET status = $1, version = version + 1
		WHERE booking_id = $2 AND status = $3 AND version = $4
	`, to, bookingID, from, version)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to transition booking", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := insertStatusHistoryTx(tx, model.EntityBooking, bookingID, string(from), string(to), time.Now()); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to commit booking transition", err)
	}
	return true, nil
}

// CancelBookingCascade cancels a booking together with its live tickets and
// their seat assignments in one transaction. It returns the number of seats
// freed per flight so the caller can drive waitlist promotion. A failed
// precondition (status or version moved) returns nil, nil: the booking was
// already resolved by a concurrent writer and there is nothing to cascade.
func (d Datasource) CancelBookingCascade(ctx context.Context, bookingID string, from, to model.BookingStatus, version int64) (map[string]int, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings SET status = $1, version = version + 1
		WHERE booking_id = $2 AND status = $3 AND version = $4
	`, to, bookingID, from, version)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to cancel booking", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return nil, nil
	}
	if err := insertStatusHistoryTx(tx, model.EntityBooking, bookingID, string(from), string(to), now); err != nil {
		return nil, err
	}

	// The subselect snapshots each ticket's pre-update status so the audit
	// row records the real transition, not CANCELLED -> CANCELLED.
	rows, err := tx.QueryContext(ctx, `
		UPDATE tickets t SET status = 'CANCELLED'
		FROM (
			SELECT ticket_id, status FROM tickets
			WHERE booking_id = $1 AND status NOT IN ('CANCELLED', 'REFUNDED')
			FOR UPDATE
		) old
		WHERE t.ticket_id = old.ticket_id
		RETURNING t.ticket_id, t.flight_id, old.status
	`, bookingID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to cancel tickets", err)
	}

	type cancelledTicket struct {
		ticketID  string
		flightID  string
		oldStatus string
	}
	var cancelled []cancelledTicket
	for rows.Next() {
		var ct cancelledTicket
		if err := rows.Scan(&ct.ticketID, &ct.flightID, &ct.oldStatus); err != nil {
			rows.Close()
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan cancelled ticket", err)
		}
		cancelled = append(cancelled, ct)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to cancel tickets", err)
	}

	freed := make(map[string]int)
	for _, ct := range cancelled {
		result, err := tx.ExecContext(ctx, `DELETE FROM seat_assignments WHERE ticket_id = $1`, ct.ticketID)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release seat", err)
		}
		released, err := result.RowsAffected()
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
		}
		if released > 0 {
			freed[ct.flightID] += int(released)
		}
		if err := insertStatusHistoryTx(tx, model.EntityTicket, ct.ticketID, ct.oldStatus, string(model.TicketCancelled), now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to commit booking cancellation", err)
	}
	return freed, nil
}
