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
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/skylane/skylane/config"
)

// configCommands prints the fully resolved configuration, with defaults and
// environment overrides applied. Useful when debugging deployments.
func configCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "show the resolved skylane configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cnf, err := config.Fetch()
			if err != nil {
				log.Printf("Error fetching config: %v", err)
				return
			}

			out, err := json.MarshalIndent(cnf, "", "  ")
			if err != nil {
				log.Printf("Error encoding config: %v", err)
				return
			}

			fmt.Println(string(out))
		},
	}

	return cmd
}
