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

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skylane/skylane"
	"github.com/skylane/skylane/config"
	"github.com/skylane/skylane/database"
	"github.com/skylane/skylane/internal/notification"
)

// Skylane represents the CLI application, encapsulating the root Cobra command.
type Skylane struct {
	cmd *cobra.Command
}

// skylaneInstance holds the Skylane instance and its configuration.
// This is used to store the runtime instance and configuration globally within the application.
type skylaneInstance struct {
	lane *skylane.Skylane
	cnf  *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the Skylane instance before running any command.
func preRun(app *skylaneInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("skylane.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newLane, err := setupSkylane(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.lane = newLane
		app.cnf = cnf

		return nil
	}
}

// setupSkylane creates and initializes a new Skylane instance based on the provided configuration.
func setupSkylane(cfg *config.Configuration) (*skylane.Skylane, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newLane, err := skylane.NewSkylane(db)
	if err != nil {
		return nil, fmt.Errorf("error creating skylane: %v", err)
	}
	return newLane, nil
}

// NewCLI creates the command-line interface for the Skylane application.
func NewCLI() *Skylane {
	var configFile string
	b := &skylaneInstance{}

	var rootCmd = &cobra.Command{
		Use:   "skylane",
		Short: "Flight and booking lifecycle engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./skylane.json", "Configuration file for skylane")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(jobsCommands(b))
	rootCmd.AddCommand(configCommands())

	return &Skylane{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Skylane) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
