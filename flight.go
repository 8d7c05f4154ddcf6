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

	"github.com/skylane/skylane/config"
	"github.com/skylane/skylane/internal/apierror"
	"github.com/skylane/skylane/internal/notification"
	"github.com/skylane/skylane/model"
)

// FlightRequest is the input for scheduling a new flight.
type FlightRequest struct {
	FlightNumber       string                 `json:"flight_number"`
	Origin             string                 `json:"origin"`
	Destination        string                 `json:"destination"`
	ScheduledDeparture time.Time              `json:"scheduled_departure"`
	ScheduledArrival   time.Time              `json:"scheduled_arrival"`
	Gate               string                 `json:"gate,omitempty"`
	AircraftID         string                 `json:"aircraft_id"`
	CrewID             string                 `json:"crew_id,omitempty"`
	MetaData           map[string]interface{} `json:"meta_data,omitempty"`
}

func (r *FlightRequest) ValidateFlightRequest() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.FlightNumber, validation.Required),
		validation.Field(&r.Origin, validation.Required),
		validation.Field(&r.Destination, validation.Required),
		validation.Field(&r.ScheduledDeparture, validation.Required),
		validation.Field(&r.ScheduledArrival, validation.Required),
		validation.Field(&r.AircraftID, validation.Required),
	)
	if err != nil {
		return err
	}
	if !r.ScheduledArrival.After(r.ScheduledDeparture) {
		return fmt.Errorf("scheduled arrival must be after scheduled departure")
	}
	return nil
}

// CreateFlight schedules a new flight and queues its whole status timeline:
// boarding for the configured lead window before departure, departure at the
// scheduled time, in-flight after the climb-out window, landing and arrival
// at the scheduled arrival. Each timer re-checks the flight's status when it
// fires, so a delay, cancellation or manual progression turns the remaining
// timers into no-ops.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - req *FlightRequest: The flight to schedule.
//
// Returns:
// - model.Flight: The created SCHEDULED flight.
// - error: An error if validation or persistence fails.
func (l *Skylane) CreateFlight(ctx context.Context, req *FlightRequest) (model.Flight, error) {
	ctx, span := tracer.Start(ctx, "Creating flight")
	defer span.End()

	if err := req.ValidateFlightRequest(); err != nil {
		return model.Flight{}, apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid flight request", err)
	}
	cfg, err := config.Fetch()
	if err != nil {
		return model.Flight{}, err
	}

	flight, err := l.datasource.CreateFlight(ctx, model.Flight{
		FlightNumber:       req.FlightNumber,
		Origin:             req.Origin,
		Destination:        req.Destination,
		ScheduledDeparture: req.ScheduledDeparture,
		ScheduledArrival:   req.ScheduledArrival,
		Gate:               req.Gate,
		AircraftID:         req.AircraftID,
		CrewID:             req.CrewID,
		MetaData:           req.MetaData,
	})
	if err != nil {
		return model.Flight{}, err
	}

	boardingAt := req.ScheduledDeparture.Add(-time.Duration(cfg.Flight.BoardingLeadMinutes) * time.Minute)
	inFlightAt := req.ScheduledDeparture.Add(time.Duration(cfg.Flight.ClimbOutMinutes) * time.Minute)
	timeline := []struct {
		from, to model.FlightStatus
		at       time.Time
	}{
		{model.FlightScheduled, model.FlightBoarding, boardingAt},
		{model.FlightBoarding, model.FlightDeparted, req.ScheduledDeparture},
		{model.FlightDeparted, model.FlightInFlight, inFlightAt},
		{model.FlightInFlight, model.FlightLanded, req.ScheduledArrival},
		{model.FlightLanded, model.FlightArrived, req.ScheduledArrival},
	}
	for _, step := range timeline {
		if err := l.queueFlightTransition(ctx, flight.FlightID, step.from, step.to, step.at); err != nil {
			notification.NotifyError(fmt.Errorf("failed to schedule %s timer for flight %s: %w", step.to, flight.FlightID, err))
		}
	}

	return flight, nil
}

// TransitionFlight moves a flight to the requested status. The target must be
// reachable from the flight's current status in the state machine; the write
// itself is conditional on that current status, so two operators racing the
// same transition cannot both win. Side effects follow the landing state:
// departure arms the climb-out timer, arrival completes the flight's
// bookings, cancellation cascades to them.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - flightID string: The flight to transition.
// - to model.FlightStatus: The target status.
//
// Returns:
// - *model.Flight: The flight in its new status.
// - error: An INVALID_TRANSITION or CONFLICT error when the move is not allowed.
func (l *Skylane) TransitionFlight(ctx context.Context, flightID string, to model.FlightStatus) (*model.Flight, error) {
	ctx, span := tracer.Start(ctx, "Transitioning flight")
	defer span.End()

	flight, err := l.datasource.GetFlightByID(ctx, flightID)
	if err != nil {
		return nil, err
	}
	from := flight.Status
	if !from.CanTransitionTo(to) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Flight '%s' cannot move from %s to %s", flightID, from, to), nil)
	}

	now := time.Now()
	ok, err := l.datasource.TransitionFlight(ctx, flightID, from, to, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Flight '%s' changed concurrently, retry the transition", flightID), nil)
	}

	flight.Status = to
	flight.Version++
	switch to {
	case model.FlightDeparted:
		flight.ActualDeparture = &now
		l.armClimbOut(ctx, flightID, now)
	case model.FlightArrived:
		flight.ActualArrival = &now
		l.completeArrivedFlight(ctx, flightID)
	case model.FlightCancelled:
		l.cancelFlightFallout(ctx, flightID)
	}

	l.postFlightActions(ctx, flight, from)
	return flight, nil
}

// GetFlight retrieves a flight by its ID.
func (l *Skylane) GetFlight(ctx context.Context, flightID string) (*model.Flight, error) {
	return l.datasource.GetFlightByID(ctx, flightID)
}

// AddSeat registers a seat on an aircraft. Seat inventory is per aircraft and
// shared by every flight the aircraft operates.
func (l *Skylane) AddSeat(ctx context.Context, seat model.Seat) (model.Seat, error) {
	if seat.AircraftID == "" || seat.SeatNumber == "" || seat.Class == "" {
		return model.Seat{}, apierror.NewAPIError(apierror.ErrInvalidInput, "aircraft_id, seat_number and class are required", nil)
	}
	return l.datasource.CreateSeat(ctx, seat)
}

// ArchiveFinishedFlights marks terminal flights as archived. Runs as a
// repeating scheduler job.
func (l *Skylane) ArchiveFinishedFlights(ctx context.Context) (int64, error) {
	archived, err := l.datasource.ArchiveFinishedFlights(ctx)
	if err != nil {
		return 0, err
	}
	if archived > 0 {
		logrus.Infof("archived %d finished flights", archived)
	}
	return archived, nil
}

// armClimbOut queues the DEPARTED to IN_FLIGHT transition for the configured
// climb-out window after actual departure. A late departure re-arms the
// timer from real time; the creation-time timer for the scheduled slot then
// fires as a stale no-op.
func (l *Skylane) armClimbOut(ctx context.Context, flightID string, departedAt time.Time) {
	cfg, err := config.Fetch()
	if err != nil {
		notification.NotifyError(err)
		return
	}
	inFlightAt := departedAt.Add(time.Duration(cfg.Flight.ClimbOutMinutes) * time.Minute)
	if err := l.queueFlightTransition(ctx, flightID, model.FlightDeparted, model.FlightInFlight, inFlightAt); err != nil {
		notification.NotifyError(fmt.Errorf("failed to schedule climb-out for flight %s: %w", flightID, err))
	}
}

// completeArrivedFlight moves the flight's CONFIRMED bookings to COMPLETED.
// Failures on individual bookings are reported and skipped; the arrival
// itself already committed.
func (l *Skylane) completeArrivedFlight(ctx context.Context, flightID string) {
	bookings, err := l.datasource.GetConfirmedBookingsByFlight(ctx, flightID)
	if err != nil {
		notification.NotifyError(fmt.Errorf("failed to list bookings for arrived flight %s: %w", flightID, err))
		return
	}
	for _, booking := range bookings {
		if err := l.CompleteBooking(ctx, booking.BookingID); err != nil {
			notification.NotifyError(fmt.Errorf("failed to complete booking %s on arrival: %w", booking.BookingID, err))
		}
	}
}

// cancelFlightFallout cancels every live booking on a cancelled flight and
// withdraws its remaining waitlist. Confirmed bookings get refund requests
// through the normal cancellation path.
func (l *Skylane) cancelFlightFallout(ctx context.Context, flightID string) {
	bookingIDs, err := l.datasource.GetLiveBookingIDsByFlight(ctx, flightID)
	if err != nil {
		notification.NotifyError(fmt.Errorf("failed to list bookings for cancelled flight %s: %w", flightID, err))
		return
	}
	for _, bookingID := range bookingIDs {
		if _, err := l.CancelBooking(ctx, bookingID, "flight cancelled"); err != nil && !apierror.IsInvalidTransition(err) {
			notification.NotifyError(fmt.Errorf("failed to cancel booking %s for cancelled flight: %w", bookingID, err))
		}
	}

	entries, err := l.datasource.GetActiveWaitlist(ctx, flightID, 1000)
	if err != nil {
		notification.NotifyError(fmt.Errorf("failed to list waitlist for cancelled flight %s: %w", flightID, err))
		return
	}
	for _, entry := range entries {
		if _, err := l.datasource.TransitionWaitlist(ctx, entry.WaitlistID, model.WaitlistActive, model.WaitlistCancelled); err != nil {
			notification.NotifyError(fmt.Errorf("failed to cancel waitlist entry %s: %w", entry.WaitlistID, err))
		}
	}
}

func (l *Skylane) postFlightActions(_ context.Context, flight *model.Flight, from model.FlightStatus) {
	go func() {
		err := l.queue.DispatchEvent(context.Background(), model.NotificationEvent{
			EventType: model.EventFlightStatus,
			Payload: map[string]interface{}{
				"flight_id":     flight.FlightID,
				"flight_number": flight.FlightNumber,
				"old_status":    from,
				"new_status":    flight.Status,
				"gate":          flight.Gate,
			},
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}
