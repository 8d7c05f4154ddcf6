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

// CreateWaitlistEntry enrolls a passenger on a flight's waitlist in ACTIVE
// status. When no rank is supplied the entry takes the next rank for the
// flight, computed in the insert itself so enrollment order survives
// concurrent joins.
func (d Datasource) CreateWaitlistEntry(ctx context.Context, entry model.WaitlistEntry) (model.WaitlistEntry, error) {
	entry.WaitlistID = model.GenerateUUIDWithSuffix("wtl")
	entry.Status = model.WaitlistActive
	entry.CreatedAt = time.Now()
	if entry.Class == "" {
		entry.Class = model.SeatClassEconomy
	}

	row := d.Conn.QueryRowContext(ctx, `
		INSERT INTO waitlist (waitlist_id, passenger_id, flight_id, rank, status, class, created_at)
		VALUES ($1, $2, $3,
			CASE WHEN $4 > 0 THEN $4
			     ELSE (SELECT COALESCE(MAX(rank), 0) + 1 FROM waitlist WHERE flight_id = $3)
			END,
			$5, $6, $7)
		RETURNING rank
	`, entry.WaitlistID, entry.PassengerID, entry.FlightID, entry.Rank, entry.Status, entry.Class, entry.CreatedAt)
	if err := row.Scan(&entry.Rank); err != nil {
		return model.WaitlistEntry{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create waitlist entry", err)
	}
	return entry, nil
}

// GetWaitlistEntry retrieves a waitlist entry by its waitlist_id.
func (d Datasource) GetWaitlistEntry(ctx context.Context, waitlistID string) (*model.WaitlistEntry, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, waitlist_id, passenger_id, flight_id, rank, status, class, created_at
		FROM waitlist
		WHERE waitlist_id = $1
	`, waitlistID)

	entry := &model.WaitlistEntry{}
	err := row.Scan(&entry.ID, &entry.WaitlistID, &entry.PassengerID, &entry.FlightID,
		&entry.Rank, &entry.Status, &entry.Class, &entry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Waitlist entry with ID '%s' not found", waitlistID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve waitlist entry", err)
	}
	return entry, nil
}

// GetActiveWaitlist lists ACTIVE entries for a flight strictly ordered by
// (rank ASC, created_at ASC). The serial id is the final tiebreak so the
// ordering is total even for entries created in the same instant.
func (d Datasource) GetActiveWaitlist(ctx context.Context, flightID string, limit int) ([]model.WaitlistEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, waitlist_id, passenger_id, flight_id, rank, status, class, created_at
		FROM waitlist
		WHERE flight_id = $1 AND status = 'ACTIVE'
		ORDER BY rank ASC, created_at ASC, id ASC
		LIMIT $2
	`, flightID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list waitlist", err)
	}
	defer rows.Close()

	var entries []model.WaitlistEntry
	for rows.Next() {
		var entry model.WaitlistEntry
		if err := rows.Scan(&entry.ID, &entry.WaitlistID, &entry.PassengerID, &entry.FlightID,
			&entry.Rank, &entry.Status, &entry.Class, &entry.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan waitlist entry", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// TransitionWaitlist moves a waitlist entry between statuses conditional on
// its expected current status.
func (d Datasource) TransitionWaitlist(ctx context.Context, waitlistID string, from, to model.WaitlistStatus) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE waitlist SET status = $1 WHERE waitlist_id = $2 AND status = $3
	`, to, waitlistID, from)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to transition waitlist entry", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := insertStatusHistoryTx(tx, model.EntityWaitlist, waitlistID, string(from), string(to), time.Now()); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrTransientStore, "Failed to commit waitlist transition", err)
	}
	return true, nil
}
