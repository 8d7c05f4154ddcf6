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
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/skylane/skylane"
	"github.com/skylane/skylane/config"
	redis_db "github.com/skylane/skylane/internal/redis-db"
)

func initializeQueues(conf *config.Configuration) map[string]int {
	queues := make(map[string]int)
	queues[conf.Queue.DispatchQueue] = 3
	return queues
}

func initializeDispatchServer(conf *config.Configuration) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      initializeQueues(conf),
		},
	), nil
}

// workerCommands defines the "workers" command. It runs two engines side by
// side: the durable job scheduler polling Postgres for domain timers, and the
// asynq server draining the outbound notification dispatch queue.
func workerCommands(b *skylaneInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start skylane workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			scheduler, err := skylane.NewScheduler(b.lane)
			if err != nil {
				log.Fatal("Error creating scheduler:", err)
			}
			if err := scheduler.Start(ctx); err != nil {
				log.Fatal("Error starting scheduler:", err)
			}

			srv, err := initializeDispatchServer(conf)
			if err != nil {
				log.Fatal(err)
			}
			mux := asynq.NewServeMux()
			mux.HandleFunc(conf.Queue.DispatchQueue, skylane.ProcessDispatch)

			go func() {
				if err := srv.Run(mux); err != nil {
					log.Fatalf("could not run dispatch server: %v", err)
				}
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			log.Println("shutting down workers")
			srv.Shutdown()
			scheduler.Stop()
		},
	}

	return cmd
}
