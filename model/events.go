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

// Notification event types emitted by the lifecycle state machines. Delivery
// is fire-and-forget with at-least-once semantics; consumers must tolerate
// duplicates.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingExpired   = "booking.expired"
	EventBookingCompleted = "booking.completed"
	EventRefundRequested  = "booking.refund_requested"
	EventFlightStatus     = "flight.status_changed"
	EventWaitlistPromoted = "waitlist.promoted"
	EventWaitlistExpired  = "waitlist.expired"
	EventTicketCheckedIn  = "ticket.checked_in"
	EventJobDeadLettered  = "scheduler.job_dead_lettered"
)

// NotificationEvent is the unit handed to the outbound dispatch queue. The
// payload is opaque to the dispatcher.
type NotificationEvent struct {
	EventType   string                 `json:"event_type"`
	RecipientID string                 `json:"recipient_id"`
	Payload     map[string]interface{} `json:"payload"`
	EmittedAt   time.Time              `json:"emitted_at"`
}
