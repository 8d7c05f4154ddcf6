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

// CreateFlight inserts a new flight in SCHEDULED status.
func (d Datasource) CreateFlight(ctx context.Context, flight model.Flight) (model.Flight, error) {
	metaDataJSON, err := json.Marshal(flight.MetaData)
	if err != nil {
		return model.Flight{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	flight.FlightID = model.GenerateUUIDWithSuffix("flt")
	flight.Status = model.FlightScheduled
	flight.CreatedAt = time.Now()

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO flights (flight_id, flight_number, origin, destination, scheduled_departure,
			scheduled_arrival, status, gate, aircraft_id, crew_id, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, flight.FlightID, flight.FlightNumber, flight.Origin, flight.Destination,
		flight.ScheduledDeparture, flight.ScheduledArrival, flight.Status, flight.Gate,
		flight.AircraftID, flight.CrewID, flight.CreatedAt, metaDataJSON)
	if err != nil {
		return model.Flight{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create flight", err)
	}
	return flight, nil
}

// GetFlightByID retrieves a flight by its flight_id.
func (d Datasource) GetFlightByID(ctx context.Context, flightID string) (*model.Flight, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, flight_id, flight_number, origin, destination, scheduled_departure,
			scheduled_arrival, actual_departure, actual_arrival, status, COALESCE(gate, ''),
			aircraft_id, COALESCE(crew_id, ''), archived, version, created_at, meta_data
		FROM flights
		WHERE flight_id = $1
	`, flightID)

	flight := &model.Flight{}
	var metaDataJSON []byte
	err := row.Scan(&flight.ID, &flight.FlightID, &flight.FlightNumber, &flight.Origin,
		&flight.Destination, &flight.ScheduledDeparture, &flight.ScheduledArrival,
		&flight.ActualDeparture, &flight.ActualArrival, &flight.Status, &flight.Gate,
		&flight.AircraftID, &flight.CrewID, &flight.Archived, &flight.Version,
		&flight.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Flight with ID '%s' not found", flightID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve flight", err)
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &flight.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return flight, nil
}

// TransitionFlight moves a flight from one status to another, conditional on
// the flight still being in the expected current status. It returns false
// without error when the condition fails: the flight was concurrently moved,
// and the caller decides whether that is a conflict or a benign no-op.
// DEPARTED stamps the actual departure time, ARRIVED the actual arrival.
func (d Datasource) TransitionFlight(ctx context.Context, flightID string, from, to model.FlightStatus, at time.Time) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE flights SET status = $1, version = version + 1`
	switch to {
	case model.FlightDeparted:
		query += `, actual_departure = $4`
	case model.FlightArrived:
		query += `, actual_arrival = $4`
	}
	query += ` WHERE flight_id = $2 AND status = $3`

	args := []interface{}{to, flightID, from}
	if to == model.FlightDeparted || to == model.FlightArrived {
		args = append(args, at)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to transition flight", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := insertStatusHistoryTx(tx, model.EntityFlight, flightID, string(from), string(to), at); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to commit flight transition", err)
	}
	return true, nil
}

// GetLiveBookingIDsByFlight returns the distinct bookings that still hold a
// live ticket on the flight. Used by the cancellation cascade and the
// arrival completion sweep.
func (d Datasource) GetLiveBookingIDsByFlight(ctx context.Context, flightID string) ([]string, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT DISTINCT booking_id
		FROM tickets
		WHERE flight_id = $1 AND status NOT IN ('CANCELLED', 'REFUNDED')
	`, flightID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list bookings for flight", err)
	}
	defer rows.Close()

	var bookingIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan booking id", err)
		}
		bookingIDs = append(bookingIDs, id)
	}
	return bookingIDs, rows.Err()
}

// ArchiveFinishedFlights flags ARRIVED and CANCELLED flights as archived.
// Flights are never hard-deleted.
func (d Datasource) ArchiveFinishedFlights(ctx context.Context) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE flights SET archived = TRUE
		WHERE archived = FALSE AND status IN ('ARRIVED', 'CANCELLED')
	`)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to archive flights", err)
	}
	return result.RowsAffected()
}
