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

// BookingStatus is the closed set of booking lifecycle states.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingCancelled},
	BookingCancelled: {},
	BookingCompleted: {},
}

// CanTransitionTo reports whether next is a valid successor of the current
// status.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0
}

// Booking ties a payer to one or more tickets. A PENDING booking must resolve
// to CONFIRMED or CANCELLED within the configured expiry window. Version is
// the optimistic concurrency counter; every status transition must carry the
// version it read.
type Booking struct {
	ID          int64                  `json:"-"`
	BookingID   string                 `json:"booking_id"`
	PNR         string                 `json:"pnr"`
	PayerID     string                 `json:"payer_id"`
	PassengerID string                 `json:"passenger_id"`
	TotalFare   decimal.Decimal        `json:"total_fare"`
	Status      BookingStatus          `json:"status"`
	Version     int64                  `json:"version"`
	CreatedAt   time.Time              `json:"created_at"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

// PaymentResult is the signal consumed from the external payment gateway.
// The core only inspects Succeeded; Reference and Reason travel into the
// booking metadata.
type PaymentResult struct {
	Succeeded bool   `json:"succeeded"`
	Reference string `json:"reference"`
	Reason    string `json:"reason,omitempty"`
}
