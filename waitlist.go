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
	"github.com/skylane/skylane/internal/notification"
	"github.com/skylane/skylane/model"
)

// JoinWaitlist enrolls a passenger on a flight's waitlist. The entry takes
// the next rank for the flight; promotion later walks entries in rank order.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - flightID string: The full flight to wait on.
// - passengerID string: The passenger enrolling.
// - class model.SeatClass: The cabin the passenger wants; defaults to economy.
//
// Returns:
// - model.WaitlistEntry: The created ACTIVE entry.
// - error: An error if the flight is unknown or no longer sellable.
func (l *Skylane) JoinWaitlist(ctx context.Context, flightID, passengerID string, class model.SeatClass) (model.WaitlistEntry, error) {
	flight, err := l.datasource.GetFlightByID(ctx, flightID)
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	if flight.Status != model.FlightScheduled && flight.Status != model.FlightDelayed {
		return model.WaitlistEntry{}, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Flight '%s' is %s and no longer accepts waitlist entries", flightID, flight.Status), nil)
	}

	entry, err := l.datasource.CreateWaitlistEntry(ctx, model.WaitlistEntry{
		PassengerID: passengerID,
		FlightID:    flightID,
		Class:       class,
	})
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	return entry, nil
}

// PromoteWaitlist offers freed seats to the flight's waitlist in strict
// (rank, enrollment time) order. Each promoted entry gets a seat held for the
// confirmation window and a confirmation-expiry job; an entry whose cabin has
// no free seat is skipped, not failed, so a freed economy seat never blocks
// on a business-class head of line.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - flightID string: The flight whose waitlist to promote.
// - seats int: How many freed seats to offer.
//
// Returns:
// - error: An error if the waitlist could not be read or the store failed.
func (l *Skylane) PromoteWaitlist(ctx context.Context, flightID string, seats int) error {
	ctx, span := tracer.Start(ctx, "Promoting waitlist")
	defer span.End()

	if seats <= 0 {
		return nil
	}
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	entries, err := l.datasource.GetActiveWaitlist(ctx, flightID, seats)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(cfg.WaitlistConfirmationExpiry())
	for _, entry := range entries {
		hold, err := l.reserveSeatUntil(ctx, flightID, model.SeatCriteria{Class: entry.Class}, expiresAt)
		if err != nil {
			if apierror.IsConflict(err) {
				// No free seat in this entry's cabin; the freed seat belongs
				// to a different class.
				continue
			}
			return err
		}

		promoted, err := l.datasource.TransitionWaitlist(ctx, entry.WaitlistID, model.WaitlistActive, model.WaitlistConfirmed)
		if err != nil {
			return err
		}
		if !promoted {
			// Entry was cancelled while we were holding its seat.
			if releaseErr := l.ReleaseSeat(ctx, hold.HoldID); releaseErr != nil {
				logrus.Errorf("failed to release hold %s for stale waitlist entry %s: %v", hold.HoldID, entry.WaitlistID, releaseErr)
			}
			continue
		}

		if err := l.queueWaitlistExpiry(ctx, entry.WaitlistID, hold.HoldID, expiresAt); err != nil {
			notification.NotifyError(fmt.Errorf("failed to schedule confirmation expiry for waitlist entry %s: %w", entry.WaitlistID, err))
		}

		l.postWaitlistActions(ctx, model.EventWaitlistPromoted, &entry, map[string]interface{}{
			"hold_id":     hold.HoldID,
			"seat_id":     hold.Seat.SeatID,
			"seat_number": hold.Seat.SeatNumber,
			"fare":        hold.Fare,
			"expires_at":  expiresAt,
		})
	}
	return nil
}

// ConfirmPromotion converts a promoted waitlist entry into a PENDING booking
// on the held seat. The booking then follows the normal payment flow,
// including its own expiry window.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - waitlistID string: The promoted entry.
// - holdID string: The seat hold issued at promotion time.
// - payerID string: Optional payer; defaults to the waitlisted passenger.
//
// Returns:
// - *model.Booking: The created PENDING booking.
// - error: A CONFLICT error when the hold already lapsed or was converted.
func (l *Skylane) ConfirmPromotion(ctx context.Context, waitlistID, holdID, payerID string) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "Confirming waitlist promotion")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	entry, err := l.datasource.GetWaitlistEntry(ctx, waitlistID)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.WaitlistConfirmed {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Waitlist entry '%s' is %s, not awaiting confirmation", waitlistID, entry.Status), nil)
	}

	assignment, err := l.datasource.GetHoldAssignment(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if assignment.TicketID != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Hold '%s' was already converted", holdID), nil)
	}
	seat, err := l.datasource.GetSeatByID(ctx, assignment.SeatID)
	if err != nil {
		return nil, err
	}

	if payerID == "" {
		payerID = entry.PassengerID
	}
	booking := &model.Booking{
		BookingID:   model.GenerateUUIDWithSuffix("bkg"),
		PNR:         model.GeneratePNR(),
		PayerID:     payerID,
		PassengerID: entry.PassengerID,
		TotalFare:   seat.Price,
		Status:      model.BookingPending,
		MetaData:    map[string]interface{}{"waitlist_id": waitlistID},
	}
	ticket := &model.Ticket{
		TicketID:     model.GenerateUUIDWithSuffix("tkt"),
		TicketNumber: model.GenerateTicketNumber(cfg.Booking.AirlinePrefix),
		BookingID:    booking.BookingID,
		PassengerID:  entry.PassengerID,
		FlightID:     entry.FlightID,
		SeatID:       &assignment.SeatID,
		FareClass:    seat.Class,
		Status:       model.TicketIssued,
	}

	if err := l.datasource.CreateBookingWithTicket(ctx, booking, ticket, holdID); err != nil {
		return nil, err
	}

	if err := l.queueBookingExpiry(ctx, booking.BookingID, time.Now().Add(cfg.BookingExpiry())); err != nil {
		notification.NotifyError(fmt.Errorf("failed to schedule expiry for booking %s: %w", booking.BookingID, err))
	}

	l.postBookingActions(ctx, model.EventBookingCreated, booking, map[string]interface{}{
		"flight_id":   entry.FlightID,
		"seat_id":     assignment.SeatID,
		"waitlist_id": waitlistID,
	})
	return booking, nil
}

// ExpireWaitlistEntry resolves a promoted entry whose confirmation window
// elapsed. The hold's current state is re-read at execution time: a hold
// already converted into a ticket means the passenger confirmed in time and
// the timer is stale. An expired entry frees its held seat back to the next
// passenger in line.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - waitlistID string: The promoted entry to expire.
// - holdID string: The seat hold issued at promotion time.
//
// Returns:
// - error: An error if the expiry could not be applied.
func (l *Skylane) ExpireWaitlistEntry(ctx context.Context, waitlistID, holdID string) error {
	ctx, span := tracer.Start(ctx, "Expiring waitlist promotion")
	defer span.End()

	entry, err := l.datasource.GetWaitlistEntry(ctx, waitlistID)
	if err != nil {
		if apierror.IsNotFound(err) {
			return nil
		}
		return err
	}
	if entry.Status != model.WaitlistConfirmed {
		return nil
	}

	assignment, err := l.datasource.GetHoldAssignment(ctx, holdID)
	if err != nil && !apierror.IsNotFound(err) {
		return err
	}
	if assignment != nil && assignment.TicketID != nil {
		logrus.Infof("waitlist entry %s converted its hold, skipping expiry", waitlistID)
		return nil
	}

	expired, err := l.datasource.TransitionWaitlist(ctx, waitlistID, model.WaitlistConfirmed, model.WaitlistExpired)
	if err != nil {
		return err
	}
	if !expired {
		return nil
	}

	if err := l.ReleaseSeat(ctx, holdID); err != nil {
		return err
	}

	l.postWaitlistActions(ctx, model.EventWaitlistExpired, entry, nil)

	// The freed seat goes to the next passenger in line.
	if err := l.PromoteWaitlist(ctx, entry.FlightID, 1); err != nil {
		notification.NotifyError(fmt.Errorf("failed to promote waitlist for flight %s: %w", entry.FlightID, err))
	}
	return nil
}

// CancelWaitlistEntry withdraws a passenger from the waitlist. A promoted
// entry releases its held seat back to the line.
func (l *Skylane) CancelWaitlistEntry(ctx context.Context, waitlistID string) error {
	entry, err := l.datasource.GetWaitlistEntry(ctx, waitlistID)
	if err != nil {
		return err
	}
	if !entry.Status.CanTransitionTo(model.WaitlistCancelled) {
		return apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Waitlist entry '%s' is %s and cannot be cancelled", waitlistID, entry.Status), nil)
	}
	cancelled, err := l.datasource.TransitionWaitlist(ctx, waitlistID, entry.Status, model.WaitlistCancelled)
	if err != nil {
		return err
	}
	if !cancelled {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Waitlist entry '%s' changed concurrently, retry the cancellation", waitlistID), nil)
	}
	return nil
}

// GetWaitlistEntry retrieves a waitlist entry by its ID.
func (l *Skylane) GetWaitlistEntry(ctx context.Context, waitlistID string) (*model.WaitlistEntry, error) {
	return l.datasource.GetWaitlistEntry(ctx, waitlistID)
}

func (l *Skylane) postWaitlistActions(_ context.Context, eventType string, entry *model.WaitlistEntry, extra map[string]interface{}) {
	go func() {
		payload := map[string]interface{}{
			"waitlist_id": entry.WaitlistID,
			"flight_id":   entry.FlightID,
			"rank":        entry.Rank,
		}
		for k, v := range extra {
			payload[k] = v
		}
		err := l.queue.DispatchEvent(context.Background(), model.NotificationEvent{
			EventType:   eventType,
			RecipientID: entry.PassengerID,
			Payload:     payload,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}
