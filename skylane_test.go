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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/skylane/skylane/config"
	"github.com/skylane/skylane/database/mocks"
)

// newTestSkylane builds a Skylane instance over a mocked datasource and an
// in-process Redis.
func newTestSkylane(t *testing.T) (*Skylane, *mocks.MockDataSource) {
	t.Helper()
	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		ProjectName: "Skylane Test",
		Redis:       config.RedisConfig{Dns: mr.Addr()},
		Scheduler: config.SchedulerConfig{
			Workers:            1,
			PollIntervalMs:     10,
			MaxAttempts:        3,
			BackoffBaseMs:      1000,
			BackoffCapMs:       8000,
			ClaimTimeoutSec:    60,
			BreakerThreshold:   5,
			BreakerCooldownSec: 30,
		},
		Booking:  config.BookingConfig{ExpiryMinutes: 15, HoldTTLMinutes: 10, AirlinePrefix: "079"},
		Waitlist: config.WaitlistConfig{ConfirmationExpiryHours: 24},
		Flight:   config.FlightConfig{BoardingLeadMinutes: 45, ClimbOutMinutes: 10},
		Queue:    config.QueueConfig{DispatchQueue: "new:dispatch"},
	})

	mockRepo := new(mocks.MockDataSource)
	lane, err := NewSkylane(mockRepo)
	require.NoError(t, err)
	return lane, mockRepo
}
