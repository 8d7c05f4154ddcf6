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
	"time"

	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/model"
)

// insertStatusHistoryTx appends one audit record inside the caller's
// transaction, so the audit trail commits or rolls back with the transition
// it describes.
func insertStatusHistoryTx(tx *sql.Tx, entityType model.EntityType, entityID, oldStatus, newStatus string, changedAt time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO status_history (entity_type, entity_id, old_status, new_status, changed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entityType, entityID, oldStatus, newStatus, changedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record status history", err)
	}
	return nil
}

// GetStatusHistory retrieves the transition audit trail for an entity, most
// recent first.
func (d Datasource) GetStatusHistory(ctx context.Context, entityID string, limit, offset int) ([]model.StatusHistory, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, old_status, new_status, changed_at
		FROM status_history
		WHERE entity_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, entityID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve status history", err)
	}
	defer rows.Close()

	var records []model.StatusHistory
	for rows.Next() {
		var rec model.StatusHistory
		if err := rows.Scan(&rec.ID, &rec.EntityType, &rec.EntityID, &rec.OldStatus, &rec.NewStatus, &rec.ChangedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan status history", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
