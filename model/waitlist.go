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

// WaitlistStatus is the closed set of waitlist entry states.
type WaitlistStatus string

const (
	WaitlistActive    WaitlistStatus = "ACTIVE"
	WaitlistConfirmed WaitlistStatus = "CONFIRMED"
	WaitlistExpired   WaitlistStatus = "EXPIRED"
	WaitlistCancelled WaitlistStatus = "CANCELLED"
)

var waitlistTransitions = map[WaitlistStatus][]WaitlistStatus{
	WaitlistActive:    {WaitlistConfirmed, WaitlistCancelled},
	WaitlistConfirmed: {WaitlistExpired, WaitlistCancelled},
	WaitlistExpired:   {},
	WaitlistCancelled: {},
}

// CanTransitionTo reports whether next is a valid successor of the current
// status.
func (s WaitlistStatus) CanTransitionTo(next WaitlistStatus) bool {
	for _, allowed := range waitlistTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WaitlistEntry queues a passenger for a fully booked flight. Promotion order
// is strictly (Rank ASC, CreatedAt ASC); Rank is an externally assigned
// priority such as a loyalty tier, lower promotes first.
type WaitlistEntry struct {
	ID          int64          `json:"-"`
	WaitlistID  string         `json:"waitlist_id"`
	PassengerID string         `json:"passenger_id"`
	FlightID    string         `json:"flight_id"`
	Rank        int            `json:"rank"`
	Status      WaitlistStatus `json:"status"`
	Class       SeatClass      `json:"class"`
	CreatedAt   time.Time      `json:"created_at"`
}
