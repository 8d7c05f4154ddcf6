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

	"github.com/shopspring/decimal"

	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/internal/notification"
	"github.com/skylane/skylane/model"
)

// CheckInTicket checks a passenger in on an ISSUED ticket. Check-in requires
// a CONFIRMED booking and a flight that has not yet departed.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - ticketID string: The ticket to check in.
//
// Returns:
// - *model.Ticket: The ticket in CHECKED_IN status.
// - error: An INVALID_TRANSITION or CONFLICT error when check-in is not allowed.
func (l *Skylane) CheckInTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	ctx, span := tracer.Start(ctx, "Checking in ticket")
	defer span.End()

	ticket, err := l.datasource.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.CanTransitionTo(model.TicketCheckedIn) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Ticket '%s' is %s and cannot be checked in", ticketID, ticket.Status), nil)
	}

	booking, err := l.datasource.GetBooking(ctx, ticket.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != model.BookingConfirmed {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Booking '%s' is %s; only confirmed bookings can check in", booking.BookingID, booking.Status), nil)
	}

	flight, err := l.datasource.GetFlightByID(ctx, ticket.FlightID)
	if err != nil {
		return nil, err
	}
	switch flight.Status {
	case model.FlightScheduled, model.FlightBoarding, model.FlightDelayed:
	default:
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Flight '%s' is %s; check-in is closed", flight.FlightID, flight.Status), nil)
	}

	ok, err := l.datasource.TransitionTicket(ctx, ticketID, model.TicketIssued, model.TicketCheckedIn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Ticket '%s' changed concurrently, retry check-in", ticketID), nil)
	}

	ticket.Status = model.TicketCheckedIn
	go func() {
		err := l.queue.DispatchEvent(context.Background(), model.NotificationEvent{
			EventType:   model.EventTicketCheckedIn,
			RecipientID: ticket.PassengerID,
			Payload: map[string]interface{}{
				"ticket_id":     ticket.TicketID,
				"ticket_number": ticket.TicketNumber,
				"flight_id":     ticket.FlightID,
				"seat_id":       ticket.SeatID,
			},
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
	return ticket, nil
}

// BoardTicket records a checked-in passenger boarding. The flight must
// actually be boarding.
func (l *Skylane) BoardTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	ticket, err := l.datasource.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.CanTransitionTo(model.TicketBoarded) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Ticket '%s' is %s and cannot board", ticketID, ticket.Status), nil)
	}

	flight, err := l.datasource.GetFlightByID(ctx, ticket.FlightID)
	if err != nil {
		return nil, err
	}
	if flight.Status != model.FlightBoarding {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Flight '%s' is %s, not boarding", flight.FlightID, flight.Status), nil)
	}

	ok, err := l.datasource.TransitionTicket(ctx, ticketID, model.TicketCheckedIn, model.TicketBoarded)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Ticket '%s' changed concurrently, retry boarding", ticketID), nil)
	}
	ticket.Status = model.TicketBoarded
	return ticket, nil
}

// RefundTicket records the refund of a cancelled ticket after the payment
// side has processed it.
func (l *Skylane) RefundTicket(ctx context.Context, ticketID string) error {
	ticket, err := l.datasource.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if !ticket.Status.CanTransitionTo(model.TicketRefunded) {
		return apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Ticket '%s' is %s and cannot be refunded", ticketID, ticket.Status), nil)
	}
	ok, err := l.datasource.TransitionTicket(ctx, ticketID, model.TicketCancelled, model.TicketRefunded)
	if err != nil {
		return err
	}
	if !ok {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Ticket '%s' changed concurrently, retry the refund", ticketID), nil)
	}
	return nil
}

// GetTicket retrieves a ticket by its ID.
func (l *Skylane) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return l.datasource.GetTicket(ctx, ticketID)
}

// GetTicketsByBooking lists a booking's tickets.
func (l *Skylane) GetTicketsByBooking(ctx context.Context, bookingID string) ([]model.Ticket, error) {
	return l.datasource.GetTicketsByBooking(ctx, bookingID)
}

// CheckBaggage checks a bag against a checked-in ticket and issues a tag.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - ticketID string: The ticket the bag travels on.
// - weightKG decimal.Decimal: The bag's weight in kilograms.
//
// Returns:
// - model.Baggage: The checked bag with its tag number.
// - error: A CONFLICT error when the ticket is not checked in.
func (l *Skylane) CheckBaggage(ctx context.Context, ticketID string, weightKG decimal.Decimal) (model.Baggage, error) {
	ticket, err := l.datasource.GetTicket(ctx, ticketID)
	if err != nil {
		return model.Baggage{}, err
	}
	if ticket.Status != model.TicketCheckedIn && ticket.Status != model.TicketBoarded {
		return model.Baggage{}, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Ticket '%s' is %s; baggage requires a checked-in passenger", ticketID, ticket.Status), nil)
	}
	if weightKG.LessThanOrEqual(decimal.Zero) {
		return model.Baggage{}, apierror.NewAPIError(apierror.ErrInvalidInput, "baggage weight must be positive", nil)
	}

	return l.datasource.CreateBaggage(ctx, model.Baggage{
		TicketID:  ticketID,
		TagNumber: model.GenerateBagTag(),
		WeightKG:  weightKG,
	})
}

// TransitionBaggage moves a bag through its handling lifecycle.
func (l *Skylane) TransitionBaggage(ctx context.Context, baggageID string, to model.BaggageStatus) (*model.Baggage, error) {
	bag, err := l.datasource.GetBaggage(ctx, baggageID)
	if err != nil {
		return nil, err
	}
	if !bag.Status.CanTransitionTo(to) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Bag '%s' cannot move from %s to %s", baggageID, bag.Status, to), nil)
	}
	ok, err := l.datasource.TransitionBaggage(ctx, baggageID, bag.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Bag '%s' changed concurrently, retry the transition", baggageID), nil)
	}
	bag.Status = to
	return bag, nil
}

// GetBaggage retrieves a bag by its ID.
func (l *Skylane) GetBaggage(ctx context.Context, baggageID string) (*model.Baggage, error) {
	return l.datasource.GetBaggage(ctx, baggageID)
}
