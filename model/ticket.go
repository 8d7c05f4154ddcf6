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

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus is the closed set of ticket lifecycle states.
type TicketStatus string

const (
	TicketIssued    TicketStatus = "ISSUED"
	TicketCheckedIn TicketStatus = "CHECKED_IN"
	TicketBoarded   TicketStatus = "BOARDED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketRefunded  TicketStatus = "REFUNDED"
)

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketIssued:    {TicketCheckedIn, TicketCancelled},
	TicketCheckedIn: {TicketBoarded, TicketCancelled},
	TicketBoarded:   {},
	TicketCancelled: {TicketRefunded},
	TicketRefunded:  {},
}

// CanTransitionTo reports whether next is a valid successor of the current
// status.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range ticketTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Live reports whether the ticket still occupies a seat. Cancelled and
// refunded tickets release their claim on the (flight, seat) pair.
func (s TicketStatus) Live() bool {
	return s != TicketCancelled && s != TicketRefunded
}

// Ticket is one passenger on one flight leg. SeatID is nil until the
// allocator confirms an assignment.
type Ticket struct {
	ID           int64        `json:"-"`
	TicketID     string       `json:"ticket_id"`
	TicketNumber string       `json:"ticket_number"`
	BookingID    string       `json:"booking_id"`
	PassengerID  string       `json:"passenger_id"`
	FlightID     string       `json:"flight_id"`
	SeatID       *string      `json:"seat_id,omitempty"`
	FareClass    SeatClass    `json:"fare_class"`
	Status       TicketStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// BaggageStatus is the closed set of baggage handling states.
type BaggageStatus string

const (
	BaggageChecked  BaggageStatus = "CHECKED"
	BaggageLoaded   BaggageStatus = "LOADED"
	BaggageUnloaded BaggageStatus = "UNLOADED"
	BaggageClaimed  BaggageStatus = "CLAIMED"
	BaggageLost     BaggageStatus = "LOST"
)

var baggageTransitions = map[BaggageStatus][]BaggageStatus{
	BaggageChecked:  {BaggageLoaded, BaggageLost},
	BaggageLoaded:   {BaggageUnloaded, BaggageLost},
	BaggageUnloaded: {BaggageClaimed, BaggageLost},
	BaggageClaimed:  {},
	BaggageLost:     {},
}

// CanTransitionTo reports whether next is a valid successor of the current
// status.
func (s BaggageStatus) CanTransitionTo(next BaggageStatus) bool {
	for _, allowed := range baggageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Baggage is a checked bag attached to a ticket.
type Baggage struct {
	ID        int64           `json:"-"`
	BaggageID string          `json:"baggage_id"`
	TicketID  string          `json:"ticket_id"`
	TagNumber string          `json:"tag_number"`
	WeightKG  decimal.Decimal `json:"weight_kg"`
	Status    BaggageStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}
