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
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/skylane/skylane/config"
	redis_db "github.com/skylane/skylane/internal/redis-db"
	"github.com/skylane/skylane/internal/request"
	"github.com/skylane/skylane/model"
)

// Queue wraps the Redis-backed queue used for outbound notification
// dispatch. Domain state never depends on it; a lost dispatch loses a
// notification, not a booking.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// DispatchEvent enqueues a notification event on the dispatch queue. Dispatch
// is fire-and-forget from the caller's perspective: failures are logged and
// reported, never propagated into the state transition that emitted the
// event.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - event model.NotificationEvent: The event to dispatch.
//
// Returns:
// - error: An error if the event could not be enqueued.
func (q *Queue) DispatchEvent(ctx context.Context, event model.NotificationEvent) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.Queue(cfg.Queue.DispatchQueue),
		asynq.MaxRetry(5),
	}
	task := asynq.NewTask(cfg.Queue.DispatchQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued %s event", event.EventType)
	return nil
}

// dispatchBreaker guards the downstream notification endpoint. Consecutive
// delivery failures open the breaker and further deliveries fail fast until
// the cooldown elapses.
var dispatchBreaker = newDispatchBreaker()

func newDispatchBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "notification-dispatch",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.Warnf("circuit breaker %s moved from %s to %s", name, from, to)
		},
	})
}

// deliverHTTP posts a notification event to the configured webhook endpoint.
//
// Parameters:
// - event model.NotificationEvent: The event to deliver.
//
// Returns:
// - error: An error if the request fails or the endpoint rejects it.
func deliverHTTP(event model.NotificationEvent) error {
	conf, err := config.Fetch()
	if err != nil {
		log.Println("Error fetching config:", err)
		return err
	}

	payload, err := request.ToJsonReq(&event)
	if err != nil {
		log.Println("Error marshaling event:", err)
		return err
	}

	req, err := http.NewRequest("POST", conf.Notification.Webhook.Url, payload)
	if err != nil {
		log.Println("Error creating request:", err)
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	var response map[string]interface{}
	resp, err := request.Call(req, &response)
	if err != nil {
		log.Println("Error sending request:", err)
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery of %s rejected with status code %d", event.EventType, resp.StatusCode)
	}

	log.Printf("Notification delivered: %s", event.EventType)
	return nil
}

// ProcessDispatch consumes a notification task from the dispatch queue and
// delivers it through the circuit breaker. Returning an error hands the task
// back to asynq for retry.
//
// Parameters:
// - _ context.Context: The context for the operation.
// - task *asynq.Task: The task containing the notification event.
//
// Returns:
// - error: An error if delivery fails.
func ProcessDispatch(_ context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}
	var event model.NotificationEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		log.Printf("Error unmarshaling task payload: %v", err)
		return err
	}
	log.Printf("Processing notification: %s", event.EventType)
	_, err = dispatchBreaker.Execute(func() (interface{}, error) {
		return nil, deliverHTTP(event)
	})
	return err
}
