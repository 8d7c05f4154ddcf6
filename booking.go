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

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/skylane/skylane/config"
	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/internal/notification"
	"github.com/skylane/skylane/model"
)

var (
	tracer = otel.Tracer("skylane.bookings")
)

// BookingRequest is the input for creating a booking. PayerID defaults to the
// passenger when the payer is not a separate party.
type BookingRequest struct {
	FlightID    string                 `json:"flight_id"`
	PassengerID string                 `json:"passenger_id"`
	PayerID     string                 `json:"payer_id,omitempty"`
	Seat        model.SeatCriteria     `json:"seat"`
	MetaData    map[string]interface{} `json:"meta_data,omitempty"`
}

func (r *BookingRequest) ValidateBookingRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.FlightID, validation.Required),
		validation.Field(&r.PassengerID, validation.Required),
	)
}

func (l *Skylane) postBookingActions(_ context.Context, eventType string, booking *model.Booking, extra map[string]interface{}) {
	go func() {
		payload := map[string]interface{}{
			"booking_id": booking.BookingID,
			"pnr":        booking.PNR,
			"status":     booking.Status,
			"total_fare": booking.TotalFare,
		}
		for k, v := range extra {
			payload[k] = v
		}
		err := l.queue.DispatchEvent(context.Background(), model.NotificationEvent{
			EventType:   eventType,
			RecipientID: booking.PassengerID,
			Payload:     payload,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}

// CreateBooking reserves a seat matching the request and records a PENDING
// booking with one ISSUED ticket, all externally visible as a single step.
// The seat hold and the booking records commit together; a failure after the
// hold releases it. A booking.expire job is scheduled so an unpaid booking
// resolves on its own.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - req *BookingRequest: The booking request.
//
// Returns:
// - *model.Booking: The created PENDING booking.
// - error: A CONFLICT error when no seat is available, or a store error.
func (l *Skylane) CreateBooking(ctx context.Context, req *BookingRequest) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "Creating booking")
	defer span.End()

	if err := req.ValidateBookingRequest(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid booking request", err)
	}
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	hold, err := l.ReserveSeat(ctx, req.FlightID, req.Seat)
	if err != nil {
		return nil, err
	}

	payerID := req.PayerID
	if payerID == "" {
		payerID = req.PassengerID
	}
	booking := &model.Booking{
		BookingID:   model.GenerateUUIDWithSuffix("bkg"),
		PNR:         model.GeneratePNR(),
		PayerID:     payerID,
		PassengerID: req.PassengerID,
		TotalFare:   hold.Fare,
		Status:      model.BookingPending,
		MetaData:    req.MetaData,
	}
	seatID := hold.Seat.SeatID
	ticket := &model.Ticket{
		TicketID:     model.GenerateUUIDWithSuffix("tkt"),
		TicketNumber: model.GenerateTicketNumber(cfg.Booking.AirlinePrefix),
		BookingID:    booking.BookingID,
		PassengerID:  req.PassengerID,
		FlightID:     req.FlightID,
		SeatID:       &seatID,
		FareClass:    hold.Seat.Class,
		Status:       model.TicketIssued,
	}

	if err := l.datasource.CreateBookingWithTicket(ctx, booking, ticket, hold.HoldID); err != nil {
		if releaseErr := l.ReleaseSeat(ctx, hold.HoldID); releaseErr != nil {
			logrus.Errorf("failed to release hold %s after booking failure: %v", hold.HoldID, releaseErr)
		}
		return nil, err
	}

	if err := l.queueBookingExpiry(ctx, booking.BookingID, time.Now().Add(cfg.BookingExpiry())); err != nil {
		// The booking stands; an unexpirable booking is an operator problem,
		// not a passenger one.
		notification.NotifyError(fmt.Errorf("failed to schedule expiry for booking %s: %w", booking.BookingID, err))
	}

	l.postBookingActions(ctx, model.EventBookingCreated, booking, map[string]interface{}{
		"flight_id": req.FlightID,
		"seat_id":   seatID,
	})
	return booking, nil
}

// ConfirmPayment resolves a PENDING booking with the outcome of its payment.
// A successful payment confirms the booking; a failed one cancels it and
// frees the seat. Confirming an already CONFIRMED booking is idempotent;
// confirming after expiry or cancellation is an INVALID_TRANSITION.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - bookingID string: The booking to resolve.
// - result model.PaymentResult: The payment outcome.
//
// Returns:
// - *model.Booking: The booking in its resolved state.
// - error: An error if the booking cannot be resolved.
func (l *Skylane) ConfirmPayment(ctx context.Context, bookingID string, result model.PaymentResult) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "Confirming booking payment")
	defer span.End()

	booking, err := l.datasource.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if !result.Succeeded {
		reason := result.Reason
		if reason == "" {
			reason = "payment failed"
		}
		return l.CancelBooking(ctx, bookingID, reason)
	}

	if booking.Status == model.BookingConfirmed {
		return booking, nil
	}
	if booking.Status != model.BookingPending {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Booking '%s' is %s and can no longer be confirmed", bookingID, booking.Status), nil)
	}

	ok, err := l.datasource.TransitionBooking(ctx, bookingID, model.BookingPending, model.BookingConfirmed, booking.Version)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race; the expiry or a cancellation got there first.
		current, err := l.datasource.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if current.Status == model.BookingConfirmed {
			return current, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Booking '%s' moved to %s before payment confirmation landed", bookingID, current.Status), nil)
	}

	booking.Status = model.BookingConfirmed
	booking.Version++
	l.postBookingActions(ctx, model.EventBookingConfirmed, booking, map[string]interface{}{
		"payment_reference": result.Reference,
	})
	return booking, nil
}

// ExpireBooking resolves a PENDING booking whose payment window elapsed. The
// booking's current state is re-read at execution time: anything other than
// PENDING means the timer is stale and the call is a no-op, so confirming one
// second before the deadline always wins over the timer.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - bookingID string: The booking to expire.
//
// Returns:
// - error: An error if the expiry could not be applied.
func (l *Skylane) ExpireBooking(ctx context.Context, bookingID string) error {
	ctx, span := tracer.Start(ctx, "Expiring booking")
	defer span.End()

	booking, err := l.datasource.GetBooking(ctx, bookingID)
	if err != nil {
		if apierror.IsNotFound(err) {
			return nil
		}
		return err
	}
	if booking.Status != model.BookingPending {
		logrus.Infof("expiry timer for booking %s is stale (status %s), skipping", bookingID, booking.Status)
		return nil
	}

	freed, err := l.datasource.CancelBookingCascade(ctx, bookingID, model.BookingPending, model.BookingCancelled, booking.Version)
	if err != nil {
		return err
	}
	if freed == nil {
		// Concurrent confirmation or cancellation won.
		return nil
	}

	l.promoteAfterRelease(ctx, freed)

	booking.Status = model.BookingCancelled
	booking.Version++
	l.postBookingActions(ctx, model.EventBookingExpired, booking, nil)
	return nil
}

// CancelBooking cancels a PENDING or CONFIRMED booking, cancels its live
// tickets, frees their seats and promotes waitlisted passengers into the
// freed capacity. Cancelling a CONFIRMED booking additionally emits a refund
// request for the payer.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - bookingID string: The booking to cancel.
// - reason string: Why the booking is being cancelled.
//
// Returns:
// - *model.Booking: The cancelled booking.
// - error: An INVALID_TRANSITION error when the booking is already terminal.
func (l *Skylane) CancelBooking(ctx context.Context, bookingID string, reason string) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "Cancelling booking")
	defer span.End()

	booking, err := l.datasource.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(model.BookingCancelled) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Booking '%s' is %s and cannot be cancelled", bookingID, booking.Status), nil)
	}
	wasConfirmed := booking.Status == model.BookingConfirmed

	freed, err := l.datasource.CancelBookingCascade(ctx, bookingID, booking.Status, model.BookingCancelled, booking.Version)
	if err != nil {
		return nil, err
	}
	if freed == nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Booking '%s' changed concurrently, retry the cancellation", bookingID), nil)
	}

	l.promoteAfterRelease(ctx, freed)

	booking.Status = model.BookingCancelled
	booking.Version++
	if wasConfirmed {
		l.postBookingActions(ctx, model.EventRefundRequested, booking, map[string]interface{}{
			"payer_id":      booking.PayerID,
			"refund_amount": booking.TotalFare,
		})
	}
	l.postBookingActions(ctx, model.EventBookingCancelled, booking, map[string]interface{}{
		"reason": reason,
	})
	return booking, nil
}

// CompleteBooking moves a CONFIRMED booking to COMPLETED once its flight has
// arrived. Driven by the arrival sweep rather than called directly.
func (l *Skylane) CompleteBooking(ctx context.Context, bookingID string) error {
	booking, err := l.datasource.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != model.BookingConfirmed {
		return nil
	}
	ok, err := l.datasource.TransitionBooking(ctx, bookingID, model.BookingConfirmed, model.BookingCompleted, booking.Version)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	booking.Status = model.BookingCompleted
	booking.Version++
	l.postBookingActions(ctx, model.EventBookingCompleted, booking, nil)
	return nil
}

// GetBooking retrieves a booking by its ID.
func (l *Skylane) GetBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	return l.datasource.GetBooking(ctx, bookingID)
}

// GetBookingByPNR retrieves a booking by its passenger name record.
func (l *Skylane) GetBookingByPNR(ctx context.Context, pnr string) (*model.Booking, error) {
	return l.datasource.GetBookingByPNR(ctx, pnr)
}

// GetStatusHistory returns the recorded transitions for any lifecycle entity,
// newest first.
func (l *Skylane) GetStatusHistory(ctx context.Context, entityID string, limit, offset int) ([]model.StatusHistory, error) {
	return l.datasource.GetStatusHistory(ctx, entityID, limit, offset)
}

// promoteAfterRelease feeds seats freed by a cancellation back to the
// waitlists of the affected flights. Promotion failures are reported but do
// not undo the cancellation.
func (l *Skylane) promoteAfterRelease(ctx context.Context, freed map[string]int) {
	for flightID, count := range freed {
		if count <= 0 {
			continue
		}
		if err := l.PromoteWaitlist(ctx, flightID, count); err != nil {
			notification.NotifyError(fmt.Errorf("failed to promote waitlist for flight %s: %w", flightID, err))
		}
	}
}
