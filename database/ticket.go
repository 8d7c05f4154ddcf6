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

// GetTicket retrieves a ticket by its ticket_id.
func (d Datasource) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, ticket_id, ticket_number, booking_id, passenger_id, flight_id, seat_id, fare_class, status, created_at
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)

	ticket := &model.Ticket{}
	err := row.Scan(&ticket.ID, &ticket.TicketID, &ticket.TicketNumber, &ticket.BookingID,
		&ticket.PassengerID, &ticket.FlightID, &ticket.SeatID, &ticket.FareClass,
		&ticket.Status, &ticket.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Ticket with ID '%s' not found", ticketID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ticket", err)
	}
	return ticket, nil
}

// GetTicketsByBooking lists every ticket on a booking.
func (d Datasource) GetTicketsByBooking(ctx context.Context, bookingID string) ([]model.Ticket, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, ticket_id, ticket_number, booking_id, passenger_id, flight_id, seat_id, fare_class, status, created_at
		FROM tickets
		WHERE booking_id = $1
		ORDER BY created_at ASC
	`, bookingID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list tickets", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var ticket model.Ticket
		if err := rows.Scan(&ticket.ID, &ticket.TicketID, &ticket.TicketNumber, &ticket.BookingID,
			&ticket.PassengerID, &ticket.FlightID, &ticket.SeatID, &ticket.FareClass,
			&ticket.Status, &ticket.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ticket", err)
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

// TransitionTicket moves a ticket between statuses conditional on its
// expected current status, writing the audit row in the same transaction.
func (d Datasource) TransitionTicket(ctx context.Context, ticketID string, from, to model.TicketStatus) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE tickets SET status = $1 WHERE ticket_id = $2 AND status = $3
	`, to, ticketID, from)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to transition ticket", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := insertStatusHistoryTx(tx, model.EntityTicket, ticketID, string(from), string(to), time.Now()); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to commit ticket transition", err)
	}
	return true, nil
}

// CreateBaggage checks a bag against a ticket.
func (d Datasource) CreateBaggage(ctx context.Context, bag model.Baggage) (model.Baggage, error) {
	bag.BaggageID = model.GenerateUUIDWithSuffix("bag")
	bag.Status = model.BaggageChecked
	bag.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO baggage (baggage_id, ticket_id, tag_number, weight_kg, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, bag.BaggageID, bag.TicketID, bag.TagNumber, bag.WeightKG, bag.Status, bag.CreatedAt)
	if err != nil {
		return model.Baggage{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create baggage", err)
	}
	return bag, nil
}

// GetBaggage retrieves a bag by its baggage_id.
func (d Datasource) GetBaggage(ctx context.Context, baggageID string) (*model.Baggage, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, baggage_id, ticket_id, tag_number, weight_kg, status, created_at
		FROM baggage
		WHERE baggage_id = $1
	`, baggageID)

	bag := &model.Baggage{}
	err := row.Scan(&bag.ID, &bag.BaggageID, &bag.TicketID, &bag.TagNumber, &bag.WeightKG, &bag.Status, &bag.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Baggage with ID '%s' not found", baggageID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve baggage", err)
	}
	return bag, nil
}

// TransitionBaggage moves a bag between handling states conditional on its
// expected current status.
func (d Datasource) TransitionBaggage(ctx context.Context, baggageID string, from, to model.BaggageStatus) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE baggage SET status = $1 WHERE baggage_id = $2 AND status = $3
	`, to, baggageID, from)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to transition baggage", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := insertStatusHistoryTx(tx, model.EntityBaggage, baggageID, string(from), string(to), time.Now()); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to commit baggage transition", err)
	}
	return true, nil
}
