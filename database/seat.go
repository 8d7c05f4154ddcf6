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

// CreateSeat inserts a seat for an aircraft.
func (d Datasource) CreateSeat(ctx context.Context, seat model.Seat) (model.Seat, error) {
	seat.SeatID = model.GenerateUUIDWithSuffix("seat")
	seat.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO seats (seat_id, aircraft_id, seat_number, class, price, is_blocked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, seat.SeatID, seat.AircraftID, seat.SeatNumber, seat.Class, seat.Price, seat.IsBlocked, seat.CreatedAt)
	if err != nil {
		return model.Seat{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create seat", err)
	}
	return seat, nil
}

// GetSeatByID retrieves a seat by its seat_id.
func (d Datasource) GetSeatByID(ctx context.Context, seatID string) (*model.Seat, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, seat_id, aircraft_id, seat_number, class, price, is_blocked, created_at
		FROM seats
		WHERE seat_id = $1
	`, seatID)

	seat := &model.Seat{}
	err := row.Scan(&seat.ID, &seat.SeatID, &seat.AircraftID, &seat.SeatNumber, &seat.Class,
		&seat.Price, &seat.IsBlocked, &seat.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Seat with ID '%s' not found", seatID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve seat", err)
	}
	return seat, nil
}

// GetAvailableSeats lists the unblocked seats of the flight's aircraft that
// carry no live assignment: neither a confirmed ticket nor an unexpired hold.
// Only committed holds are visible, so the result never contains phantom
// in-flight reservations. Pass an empty class to list every cabin.
func (d Datasource) GetAvailableSeats(ctx context.Context, flightID string, class model.SeatClass) ([]model.Seat, error) {
	query := `
		SELECT s.id, s.seat_id, s.aircraft_id, s.seat_number, s.class, s.price, s.is_blocked, s.created_at
		FROM seats s
		JOIN flights f ON f.aircraft_id = s.aircraft_id
		WHERE f.flight_id = $1
			AND s.is_blocked = FALSE
			AND NOT EXISTS (
				SELECT 1 FROM seat_assignments sa
				WHERE sa.flight_id = f.flight_id
					AND sa.seat_id = s.seat_id
					AND (sa.ticket_id IS NOT NULL OR sa.expires_at > NOW())
			)
	`
	args := []interface{}{flightID}
	if class != "" {
		query += ` AND s.class = $2`
		args = append(args, class)
	}
	query += ` ORDER BY s.seat_number ASC`

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list available seats", err)
	}
	defer rows.Close()

	var seats []model.Seat
	for rows.Next() {
		var seat model.Seat
		if err := rows.Scan(&seat.ID, &seat.SeatID, &seat.AircraftID, &seat.SeatNumber,
			&seat.Class, &seat.Price, &seat.IsBlocked, &seat.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan seat", err)
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

// HoldSeat attempts to claim the (flight, seat) pair with a provisional hold.
// The insert is conditional on the pair being free; a lost race affects zero
// rows and returns false, never an error. Reclaiming a seat whose previous
// hold expired unconfirmed takes the upsert path.
func (d Datasource) HoldSeat(ctx context.Context, flightID, seatID, holdID string, expiresAt time.Time) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		INSERT INTO seat_assignments (flight_id, seat_id, hold_id, ticket_id, expires_at)
		VALUES ($1, $2, $3, NULL, $4)
		ON CONFLICT (flight_id, seat_id) DO UPDATE
			SET hold_id = EXCLUDED.hold_id, expires_at = EXCLUDED.expires_at, created_at = NOW()
			WHERE seat_assignments.ticket_id IS NULL AND seat_assignments.expires_at <= NOW()
	`, flightID, seatID, holdID, expiresAt)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to hold seat", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	return affected > 0, nil
}

// GetHoldAssignment retrieves the seat assignment created by a hold. A
// non-nil TicketID means the hold was converted into a ticket and is no
// longer provisional.
func (d Datasource) GetHoldAssignment(ctx context.Context, holdID string) (*model.SeatAssignment, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT flight_id, seat_id, hold_id, ticket_id, expires_at, created_at
		FROM seat_assignments
		WHERE hold_id = $1
	`, holdID)

	assignment := &model.SeatAssignment{}
	err := row.Scan(&assignment.FlightID, &assignment.SeatID, &assignment.HoldID,
		&assignment.TicketID, &assignment.ExpiresAt, &assignment.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Hold '%s' not found", holdID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve hold", err)
	}
	return assignment, nil
}

// ReleaseHold drops an unconfirmed hold. Confirmed assignments are untouched;
// those are released through the ticket.
func (d Datasource) ReleaseHold(ctx context.Context, holdID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		DELETE FROM seat_assignments WHERE hold_id = $1 AND ticket_id IS NULL
	`, holdID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release hold", err)
	}
	return nil
}

// ReleaseSeatByTicket frees whatever seat the ticket occupies. Releasing an
// already-free seat affects zero rows and reports false; it is a no-op, not
// an error, because expiry and cancellation paths may race.
func (d Datasource) ReleaseSeatByTicket(ctx context.Context, ticketID string) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		DELETE FROM seat_assignments WHERE ticket_id = $1
	`, ticketID)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release seat", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	return affected > 0, nil
}

// SweepExpiredHolds reaps unconfirmed holds whose expiry has passed.
func (d Datasource) SweepExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		DELETE FROM seat_assignments WHERE ticket_id IS NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sweep expired holds", err)
	}
	return result.RowsAffected()
}
