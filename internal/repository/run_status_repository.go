package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
)

const runStatusKeyPrefix = "transicao:run:"

type localRun struct {
	payload   []byte
	expiresAt time.Time
}

// RunStatusRepository stores background run snapshots in Redis, or in memory when Redis is not configured.
type RunStatusRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]localRun
	now   func() time.Time
}

// NewRunStatusRepository constructs the repository. A nil client keeps snapshots in process.
func NewRunStatusRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunStatusRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunStatusRepository{
		client: client,
		ttl:    ttl,
		logger: logger,
		local:  make(map[string]localRun),
		now:    time.Now,
	}
}

// Save stores the snapshot, replacing any previous one with the same id.
func (r *RunStatusRepository) Save(ctx context.Context, run *models.TransitionRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id required")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	key := runStatusKeyPrefix + run.ID

	if r.client == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.evictExpiredLocked()
		r.local[key] = localRun{payload: payload, expiresAt: r.now().Add(r.ttl)}
		return nil
	}
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get loads a snapshot. appErrors.ErrNotFound is returned when it is unknown or expired.
func (r *RunStatusRepository) Get(ctx context.Context, id string) (*models.TransitionRun, error) {
	key := runStatusKeyPrefix + id
	var raw []byte

	if r.client == nil {
		r.mu.Lock()
		entry, ok := r.local[key]
		if ok && !r.now().Before(entry.expiresAt) {
			delete(r.local, key)
			ok = false
		}
		r.mu.Unlock()
		if !ok {
			return nil, appErrors.ErrNotFound
		}
		raw = entry.payload
	} else {
		b, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, appErrors.ErrNotFound
			}
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}
		raw = b
	}

	var run models.TransitionRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	return &run, nil
}

func (r *RunStatusRepository) evictExpiredLocked() {
	now := r.now()
	for key, entry := range r.local {
		if !now.Before(entry.expiresAt) {
			delete(r.local, key)
		}
	}
}
