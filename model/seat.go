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

// SeatClass is the cabin class of a seat.
type SeatClass string

const (
	SeatClassEconomy  SeatClass = "ECONOMY"
	SeatClassBusiness SeatClass = "BUSINESS"
	SeatClassFirst    SeatClass = "FIRST"
)

// Seat is a physical seat on an aircraft. Unique per (aircraft, seat number).
// Blocked seats are excluded from allocation.
type Seat struct {
	ID         int64           `json:"-"`
	SeatID     string          `json:"seat_id"`
	AircraftID string          `json:"aircraft_id"`
	SeatNumber string          `json:"seat_number"`
	Class      SeatClass       `json:"class"`
	Price      decimal.Decimal `json:"price"`
	IsBlocked  bool            `json:"is_blocked"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SeatCriteria narrows the candidate seats considered by the allocator.
type SeatCriteria struct {
	Class      SeatClass       `json:"class"`
	SeatNumber string          `json:"seat_number,omitempty"`
	MaxPrice   decimal.Decimal `json:"max_price,omitempty"`
}

// Matches reports whether the seat satisfies the criteria. Blocked seats
// never match.
func (c SeatCriteria) Matches(seat Seat) bool {
	if seat.IsBlocked {
		return false
	}
	if c.Class != "" && seat.Class != c.Class {
		return false
	}
	if c.SeatNumber != "" && seat.SeatNumber != c.SeatNumber {
		return false
	}
	if !c.MaxPrice.IsZero() && seat.Price.GreaterThan(c.MaxPrice) {
		return false
	}
	return true
}

// SeatHold is a provisional exclusive claim on a seat for a flight, pending
// confirmation against a ticket. An unconfirmed hold is reaped once ExpiresAt
// passes.
type SeatHold struct {
	HoldID    string          `json:"hold_id"`
	FlightID  string          `json:"flight_id"`
	Seat      Seat            `json:"seat"`
	Fare      decimal.Decimal `json:"fare"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// SeatAssignment is the committed seat-to-ticket relation for a flight. It is
// owned exclusively by the allocator; at most one live ticket may reference a
// (flight, seat) pair.
type SeatAssignment struct {
	FlightID  string     `json:"flight_id"`
	SeatID    string     `json:"seat_id"`
	HoldID    string     `json:"hold_id"`
	TicketID  *string    `json:"ticket_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
