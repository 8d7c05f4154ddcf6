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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skylane/skylane"
)

// jobsCommands groups operator commands for inspecting and replaying
// dead-lettered scheduler jobs.
func jobsCommands(b *skylaneInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "inspect and replay scheduler jobs",
	}

	cmd.AddCommand(jobsDeadCommand(b))
	cmd.AddCommand(jobsReplayCommand(b))

	return cmd
}

func jobsDeadCommand(b *skylaneInstance) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "dead",
		Short: "list dead-lettered jobs",
		Run: func(cmd *cobra.Command, args []string) {
			scheduler, err := skylane.NewScheduler(b.lane)
			if err != nil {
				log.Printf("Error creating scheduler: %v", err)
				return
			}
			jobs, err := scheduler.DeadJobs(cmd.Context(), limit, offset)
			if err != nil {
				log.Printf("Error listing dead jobs: %v", err)
				return
			}
			if len(jobs) == 0 {
				fmt.Println("No dead-lettered jobs.")
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB ID\tKIND\tATTEMPTS\tDUE AT\tLAST ERROR")
			for _, job := range jobs {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
					job.JobID, job.Kind, job.Attempts, job.MaxAttempts,
					job.DueAt.Format("2006-01-02 15:04:05"), job.LastError)
			}
			w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")

	return cmd
}

func jobsReplayCommand(b *skylaneInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <job_id>",
		Short: "requeue a dead-lettered job with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			scheduler, err := skylane.NewScheduler(b.lane)
			if err != nil {
				log.Printf("Error creating scheduler: %v", err)
				return
			}
			if err := scheduler.ReplayDeadJob(cmd.Context(), args[0]); err != nil {
				log.Printf("Error replaying job: %v", err)
				return
			}
			fmt.Printf("Job '%s' requeued.\n", args[0])
		},
	}

	return cmd
}
