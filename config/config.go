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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SKYLANE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"SKYLANE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"SKYLANE_REDIS_SKIP_TLS_VERIFY"`
}

// SchedulerConfig tunes the durable job scheduler. Backoff for a failed job
// is BackoffBase * 2^attempts, capped at BackoffCap.
type SchedulerConfig struct {
	Workers            int `json:"workers" envconfig:"SKYLANE_SCHEDULER_WORKERS"`
	PollIntervalMs     int `json:"poll_interval_ms" envconfig:"SKYLANE_SCHEDULER_POLL_INTERVAL_MS"`
	MaxAttempts        int `json:"max_attempts" envconfig:"SKYLANE_SCHEDULER_MAX_ATTEMPTS"`
	BackoffBaseMs      int `json:"backoff_base_ms" envconfig:"SKYLANE_SCHEDULER_BACKOFF_BASE_MS"`
	BackoffCapMs       int `json:"backoff_cap_ms" envconfig:"SKYLANE_SCHEDULER_BACKOFF_CAP_MS"`
	ClaimTimeoutSec    int `json:"claim_timeout_sec" envconfig:"SKYLANE_SCHEDULER_CLAIM_TIMEOUT_SEC"`
	BreakerThreshold   int `json:"breaker_threshold" envconfig:"SKYLANE_SCHEDULER_BREAKER_THRESHOLD"`
	BreakerCooldownSec int `json:"breaker_cooldown_sec" envconfig:"SKYLANE_SCHEDULER_BREAKER_COOLDOWN_SEC"`
}

// BookingConfig carries booking product policy. The expiry window is a policy
// constant, not derived from load; treat the default as a starting point.
type BookingConfig struct {
	ExpiryMinutes  int    `json:"expiry_minutes" envconfig:"SKYLANE_BOOKING_EXPIRY_MINUTES"`
	HoldTTLMinutes int    `json:"hold_ttl_minutes" envconfig:"SKYLANE_BOOKING_HOLD_TTL_MINUTES"`
	AirlinePrefix  string `json:"airline_prefix" envconfig:"SKYLANE_BOOKING_AIRLINE_PREFIX"`
}

type WaitlistConfig struct {
	ConfirmationExpiryHours int `json:"confirmation_expiry_hours" envconfig:"SKYLANE_WAITLIST_CONFIRMATION_EXPIRY_HOURS"`
}

type FlightConfig struct {
	BoardingLeadMinutes int `json:"boarding_lead_minutes" envconfig:"SKYLANE_FLIGHT_BOARDING_LEAD_MINUTES"`
	ClimbOutMinutes     int `json:"climb_out_minutes" envconfig:"SKYLANE_FLIGHT_CLIMB_OUT_MINUTES"`
}

type QueueConfig struct {
	DispatchQueue  string `json:"dispatch_queue" envconfig:"SKYLANE_QUEUE_DISPATCH_QUEUE"`
	MonitoringPort string `json:"monitoring_port" envconfig:"SKYLANE_QUEUE_MONITORING_PORT"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"SKYLANE_PROJECT_NAME"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Scheduler    SchedulerConfig  `json:"scheduler"`
	Booking      BookingConfig    `json:"booking"`
	Waitlist     WaitlistConfig   `json:"waitlist"`
	Flight       FlightConfig     `json:"flight"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("skylane", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called skylane.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Skylane Core"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Scheduler.Workers <= 0 {
		cnf.Scheduler.Workers = 4
	}
	if cnf.Scheduler.PollIntervalMs <= 0 {
		cnf.Scheduler.PollIntervalMs = 500
	}
	if cnf.Scheduler.MaxAttempts <= 0 {
		cnf.Scheduler.MaxAttempts = 5
	}
	if cnf.Scheduler.BackoffBaseMs <= 0 {
		cnf.Scheduler.BackoffBaseMs = 1000
	}
	if cnf.Scheduler.BackoffCapMs <= 0 {
		cnf.Scheduler.BackoffCapMs = 5 * 60 * 1000
	}
	if cnf.Scheduler.ClaimTimeoutSec <= 0 {
		cnf.Scheduler.ClaimTimeoutSec = 120
	}
	if cnf.Scheduler.BreakerThreshold <= 0 {
		cnf.Scheduler.BreakerThreshold = 5
	}
	if cnf.Scheduler.BreakerCooldownSec <= 0 {
		cnf.Scheduler.BreakerCooldownSec = 30
	}

	if cnf.Booking.ExpiryMinutes <= 0 {
		cnf.Booking.ExpiryMinutes = 15
	}
	if cnf.Booking.HoldTTLMinutes <= 0 {
		cnf.Booking.HoldTTLMinutes = 10
	}
	if cnf.Booking.AirlinePrefix == "" {
		cnf.Booking.AirlinePrefix = "079"
	}

	if cnf.Waitlist.ConfirmationExpiryHours <= 0 {
		cnf.Waitlist.ConfirmationExpiryHours = 24
	}

	if cnf.Flight.BoardingLeadMinutes <= 0 {
		cnf.Flight.BoardingLeadMinutes = 45
	}
	if cnf.Flight.ClimbOutMinutes <= 0 {
		cnf.Flight.ClimbOutMinutes = 10
	}

	if cnf.Queue.DispatchQueue == "" {
		cnf.Queue.DispatchQueue = "new:dispatch"
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5003"
	}

	return nil
}

// BookingExpiry returns the window a PENDING booking has to resolve.
func (cnf *Configuration) BookingExpiry() time.Duration {
	return time.Duration(cnf.Booking.ExpiryMinutes) * time.Minute
}

// HoldTTL returns how long an unconfirmed seat hold survives before the
// sweeper reaps it.
func (cnf *Configuration) HoldTTL() time.Duration {
	return time.Duration(cnf.Booking.HoldTTLMinutes) * time.Minute
}

// WaitlistConfirmationExpiry returns the window a promoted waitlist entry has
// to convert into a booking.
func (cnf *Configuration) WaitlistConfirmationExpiry() time.Duration {
	return time.Duration(cnf.Waitlist.ConfirmationExpiryHours) * time.Hour
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
