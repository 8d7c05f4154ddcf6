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

// FlightStatus is the closed set of flight lifecycle states.
type FlightStatus string

const (
	FlightScheduled FlightStatus = "SCHEDULED"
	FlightBoarding  FlightStatus = "BOARDING"
	FlightDeparted  FlightStatus = "DEPARTED"
	FlightInFlight  FlightStatus = "IN_FLIGHT"
	FlightLanded    FlightStatus = "LANDED"
	FlightArrived   FlightStatus = "ARRIVED"
	FlightDelayed   FlightStatus = "DELAYED"
	FlightCancelled FlightStatus = "CANCELLED"
)

// flightTransitions is the allowed-next-states table for the flight state
// machine. Progression is strictly forward; DELAYED and CANCELLED are escape
// hatches reachable from any pre-ARRIVED state, and DELAYED resumes the
// normal progression.
var flightTransitions = map[FlightStatus][]FlightStatus{
	FlightScheduled: {FlightBoarding, FlightDelayed, FlightCancelled},
	FlightBoarding:  {FlightDeparted, FlightDelayed, FlightCancelled},
	FlightDeparted:  {FlightInFlight, FlightDelayed, FlightCancelled},
	FlightInFlight:  {FlightLanded, FlightDelayed, FlightCancelled},
	FlightLanded:    {FlightArrived, FlightDelayed, FlightCancelled},
	FlightDelayed:   {FlightBoarding, FlightDeparted, FlightInFlight, FlightLanded, FlightCancelled},
	FlightArrived:   {},
	FlightCancelled: {},
}

// CanTransitionTo reports whether next is a valid successor of the current
// status.
func (s FlightStatus) CanTransitionTo(next FlightStatus) bool {
	for _, allowed := range flightTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s FlightStatus) Terminal() bool {
	return len(flightTransitions[s]) == 0
}

// Flight represents a scheduled flight leg. Mutated only through the flight
// state machine; never hard-deleted, archived after ARRIVED or CANCELLED.
type Flight struct {
	ID                 int64                  `json:"-"`
	FlightID           string                 `json:"flight_id"`
	FlightNumber       string                 `json:"flight_number"`
	Origin             string                 `json:"origin"`
	Destination        string                 `json:"destination"`
	ScheduledDeparture time.Time              `json:"scheduled_departure"`
	ScheduledArrival   time.Time              `json:"scheduled_arrival"`
	ActualDeparture    *time.Time             `json:"actual_departure,omitempty"`
	ActualArrival      *time.Time             `json:"actual_arrival,omitempty"`
	Status             FlightStatus           `json:"status"`
	Gate               string                 `json:"gate"`
	AircraftID         string                 `json:"aircraft_id"`
	CrewID             string                 `json:"crew_id"`
	Archived           bool                   `json:"archived"`
	Version            int64                  `json:"version"`
	CreatedAt          time.Time              `json:"created_at"`
	MetaData           map[string]interface{} `json:"meta_data"`
}
