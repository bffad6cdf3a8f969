package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskpilot/taskpilot/internal/core/domain"
	"github.com/taskpilot/taskpilot/internal/core/port"
	"go.uber.org/zap"
)

// registrationTTL bounds how long a worker stays visible without a fresh
// announce; the scheduler re-announces on its heartbeat cadence.
const registrationTTL = 30 * time.Second

type workerDirectory struct {
	client *redis.Client
	log    *zap.Logger
}

// NewWorkerDirectory creates a Redis adapter that mirrors worker
// registrations under TTL keys so other processes can observe the live set.
func NewWorkerDirectory(client *redis.Client, log *zap.Logger) port.WorkerDirectory {
	return &workerDirectory{
		client: client,
		log:    log,
	}
}

// Announce saves the worker state with a 30s TTL (heartbeat refresh).
func (d *workerDirectory) Announce(ctx context.Context, worker *domain.Worker) error {
	data, err := json.Marshal(worker)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("worker:%s", worker.ID)
	return d.client.Set(ctx, key, data, registrationTTL).Err()
}

func (d *workerDirectory) ListActive(ctx context.Context) ([]*domain.Worker, error) {
	keys, err := d.client.Keys(ctx, "worker:*").Result()
	if err != nil {
		return nil, err
	}

	var workers []*domain.Worker
	for _, key := range keys {
		val, err := d.client.Get(ctx, key).Result()
		if err != nil {
			continue // Skip expired/deleted keys race condition
		}

		var w domain.Worker
		if err := json.Unmarshal([]byte(val), &w); err == nil {
			workers = append(workers, &w)
		} else {
			d.log.Debug("Skipping malformed worker entry", zap.String("key", key), zap.Error(err))
		}
	}
	return workers, nil
}
