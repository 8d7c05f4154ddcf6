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

package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/skylane/skylane/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, errors.Wrap(err, "open data source")
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, errors.Wrap(err, "ping data source")
	}
	for _, create := range []func(*sql.DB) error{
		createFlightTable,
		createSeatTable,
		createSeatAssignmentTable,
		createBookingTable,
		createTicketTable,
		createBaggageTable,
		createWaitlistTable,
		createJobTable,
		createStatusHistoryTable,
	} {
		if err := create(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// createFlightTable creates a PostgreSQL table for the Flight struct
func createFlightTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flights (
			id SERIAL PRIMARY KEY,
			flight_id TEXT NOT NULL UNIQUE,
			flight_number TEXT NOT NULL,
			origin TEXT NOT NULL,
			destination TEXT NOT NULL,
			scheduled_departure TIMESTAMP NOT NULL,
			scheduled_arrival TIMESTAMP NOT NULL,
			actual_departure TIMESTAMP,
			actual_arrival TIMESTAMP,
			status TEXT NOT NULL,
			gate TEXT,
			aircraft_id TEXT NOT NULL,
			crew_id TEXT,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

func createSeatTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS seats (
			id SERIAL PRIMARY KEY,
			seat_id TEXT NOT NULL UNIQUE,
			aircraft_id TEXT NOT NULL,
			seat_number TEXT NOT NULL,
			class TEXT NOT NULL,
			price NUMERIC(12,2) NOT NULL DEFAULT 0,
			is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (aircraft_id, seat_number)
		)
	`)
	return err
}

// createSeatAssignmentTable creates the seat-to-ticket relation. The primary
// key on (flight_id, seat_id) is the contention primitive: a conditional
// insert either wins the seat or affects zero rows.
func createSeatAssignmentTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS seat_assignments (
			flight_id TEXT NOT NULL,
			seat_id TEXT NOT NULL,
			hold_id TEXT NOT NULL UNIQUE,
			ticket_id TEXT,
			expires_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (flight_id, seat_id)
		)
	`)
	return err
}

func createBookingTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bookings (
			id SERIAL PRIMARY KEY,
			booking_id TEXT NOT NULL UNIQUE,
			pnr TEXT NOT NULL UNIQUE,
			payer_id TEXT NOT NULL,
			passenger_id TEXT NOT NULL,
			total_fare NUMERIC(12,2) NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

func createTicketTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id SERIAL PRIMARY KEY,
			ticket_id TEXT NOT NULL UNIQUE,
			ticket_number TEXT NOT NULL UNIQUE,
			booking_id TEXT NOT NULL REFERENCES bookings(booking_id),
			passenger_id TEXT NOT NULL,
			flight_id TEXT NOT NULL REFERENCES flights(flight_id),
			seat_id TEXT,
			fare_class TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createBaggageTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS baggage (
			id SERIAL PRIMARY KEY,
			baggage_id TEXT NOT NULL UNIQUE,
			ticket_id TEXT NOT NULL REFERENCES tickets(ticket_id),
			tag_number TEXT NOT NULL UNIQUE,
			weight_kg NUMERIC(6,2) NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createWaitlistTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS waitlist (
			id SERIAL PRIMARY KEY,
			waitlist_id TEXT NOT NULL UNIQUE,
			passenger_id TEXT NOT NULL,
			flight_id TEXT NOT NULL REFERENCES flights(flight_id),
			rank INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			class TEXT NOT NULL DEFAULT 'ECONOMY',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createJobTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id SERIAL PRIMARY KEY,
			job_id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			queue TEXT NOT NULL DEFAULT 'default',
			payload JSONB,
			priority INT NOT NULL DEFAULT 100,
			due_at TIMESTAMP NOT NULL DEFAULT NOW(),
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 5,
			status TEXT NOT NULL DEFAULT 'PENDING',
			cron_spec TEXT,
			last_error TEXT,
			locked_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createStatusHistoryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS status_history (
			id SERIAL PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			old_status TEXT NOT NULL,
			new_status TEXT NOT NULL,
			changed_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
