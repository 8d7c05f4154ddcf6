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

package model

import "time"

// EntityType identifies which lifecycle a history row belongs to.
type EntityType string

const (
	EntityFlight   EntityType = "flight"
	EntityBooking  EntityType = "booking"
	EntityTicket   EntityType = "ticket"
	EntityBaggage  EntityType = "baggage"
	EntityWaitlist EntityType = "waitlist"
)

// StatusHistory is one immutable audit record. A row is appended inside the
// same store transaction as the transition it describes, so the audit trail
// never disagrees with entity state.
type StatusHistory struct {
	ID         int64      `json:"-"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	OldStatus  string     `json:"old_status"`
	NewStatus  string     `json:"new_status"`
	ChangedAt  time.Time  `json:"changed_at"`
}
