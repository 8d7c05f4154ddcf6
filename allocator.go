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

package skylane

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skylane/skylane/config"
	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/model"
)

const availableSeatsCacheTTL = 30 * time.Second

func availableSeatsCacheKey(flightID string, class model.SeatClass) string {
	return fmt.Sprintf("seats:available:%s:%s", flightID, class)
}

// ReserveSeat places a hold on one seat of the flight matching the given
// criteria. Candidates are attempted in order; each attempt is a conditional
// write that either wins the (flight, seat) pair or affects nothing, so two
// passengers racing for the same seat can never both succeed. Losing a
// candidate moves on to the next one; running out of candidates is a
// CONFLICT.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - flightID string: The flight to reserve on.
// - criteria model.SeatCriteria: Class, seat number and fare constraints.
//
// Returns:
// - *model.SeatHold: The hold placed on the winning seat.
// - error: A CONFLICT error when no matching seat could be held.
func (l *Skylane) ReserveSeat(ctx context.Context, flightID string, criteria model.SeatCriteria) (*model.SeatHold, error) {
	ctx, span := tracer.Start(ctx, "Reserving seat")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return l.reserveSeatUntil(ctx, flightID, criteria, time.Now().Add(cfg.HoldTTL()))
}

// reserveSeatUntil is ReserveSeat with an explicit hold expiry. Waitlist
// promotion holds seats for the confirmation window rather than the short
// booking hold TTL.
func (l *Skylane) reserveSeatUntil(ctx context.Context, flightID string, criteria model.SeatCriteria, expiresAt time.Time) (*model.SeatHold, error) {
	flight, err := l.datasource.GetFlightByID(ctx, flightID)
	if err != nil {
		return nil, err
	}
	if flight.Status != model.FlightScheduled && flight.Status != model.FlightDelayed {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Flight '%s' is %s and no longer accepts reservations", flightID, flight.Status), nil)
	}

	seats, err := l.datasource.GetAvailableSeats(ctx, flightID, criteria.Class)
	if err != nil {
		return nil, err
	}

	for _, seat := range seats {
		if !criteria.Matches(seat) {
			continue
		}
		holdID := model.GenerateUUIDWithSuffix("hld")
		won, err := l.datasource.HoldSeat(ctx, flightID, seat.SeatID, holdID, expiresAt)
		if err != nil {
			return nil, err
		}
		if !won {
			// Lost the race for this seat, try the next candidate.
			continue
		}
		l.invalidateAvailability(ctx, flightID, seat.Class)
		return &model.SeatHold{
			HoldID:    holdID,
			FlightID:  flightID,
			Seat:      seat,
			Fare:      seat.Price,
			ExpiresAt: expiresAt,
		}, nil
	}

	return nil, apierror.NewAPIError(apierror.ErrConflict,
		fmt.Sprintf("No available seat on flight '%s' matches the request", flightID), nil)
}

// ReleaseSeat drops an unconfirmed hold. Releasing a hold that was already
// confirmed, swept or never existed is a no-op.
func (l *Skylane) ReleaseSeat(ctx context.Context, holdID string) error {
	return l.datasource.ReleaseHold(ctx, holdID)
}

// ListAvailableSeats returns the seats currently open on a flight, optionally
// filtered by class. Results are served from the availability cache when
// fresh; the snapshot can be a few seconds stale, which is acceptable because
// reservation itself never trusts it.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - flightID string: The flight to inspect.
// - class model.SeatClass: Optional class filter; empty means all classes.
//
// Returns:
// - []model.Seat: The open seats.
// - error: An error if the lookup fails.
func (l *Skylane) ListAvailableSeats(ctx context.Context, flightID string, class model.SeatClass) ([]model.Seat, error) {
	key := availableSeatsCacheKey(flightID, class)

	var cached []model.Seat
	if err := l.cache.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
		return cached, nil
	}

	seats, err := l.datasource.GetAvailableSeats(ctx, flightID, class)
	if err != nil {
		return nil, err
	}
	if err := l.cache.Set(ctx, key, seats, availableSeatsCacheTTL); err != nil {
		logrus.Warnf("failed to cache seat availability for %s: %v", flightID, err)
	}
	return seats, nil
}

// SweepExpiredHolds reaps seat holds whose TTL elapsed without confirmation.
// Runs as a repeating scheduler job.
func (l *Skylane) SweepExpiredHolds(ctx context.Context) (int64, error) {
	swept, err := l.datasource.SweepExpiredHolds(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		logrus.Infof("swept %d expired seat holds", swept)
	}
	return swept, nil
}

func (l *Skylane) invalidateAvailability(ctx context.Context, flightID string, class model.SeatClass) {
	for _, key := range []string{
		availableSeatsCacheKey(flightID, class),
		availableSeatsCacheKey(flightID, ""),
	} {
		if err := l.cache.Delete(ctx, key); err != nil {
			logrus.Warnf("failed to invalidate seat availability cache %s: %v", key, err)
		}
	}
}
