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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/skylane/skylane/config"
	"github.com/skylane/skylane/database"
	"github.com/skylane/skylane/internal/cache"
	"github.com/skylane/skylane/internal/notification"
	redis_db "github.com/skylane/skylane/internal/redis-db"
	"github.com/skylane/skylane/model"
)

// Skylane is the main entry point for flight and booking operations. All
// lifecycle services hang off this struct.
type Skylane struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	cache      cache.Cache
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewSkylane initializes a new instance of Skylane with the provided database
// datasource. It fetches the configuration and initializes the Redis client,
// the outbound dispatch queue and the availability cache.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Skylane: A pointer to the newly created Skylane instance.
// - error: An error if any of the initialization steps fail.
func NewSkylane(db database.IDataSource) (*Skylane, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	newSkylane := &Skylane{datasource: db, queue: newQueue, redis: redisClient.Client(), cache: newCache}
	notification.RegisterWebhookSender(func(event string, payload interface{}) error {
		return newQueue.DispatchEvent(context.Background(), model.NotificationEvent{
			EventType: event,
			Payload:   map[string]interface{}{"data": payload},
		})
	})
	return newSkylane, nil
}

// Datasource exposes the underlying store, mainly for the CLI commands that
// need direct repository access.
func (l *Skylane) Datasource() database.IDataSource {
	return l.datasource
}
