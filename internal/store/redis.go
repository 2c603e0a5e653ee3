package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/open-format/rewarder/internal/model"
)

// pendingMarker is the value stored by Reserve before a record exists.
const pendingMarker = "pending"

// DefaultPendingTTL bounds how long an abandoned reservation (process died
// between Reserve and Finalize/Release) blocks retries.
const DefaultPendingTTL = 10 * time.Minute

// Redis implements Store on a Redis-compatible backend. Reservation is a
// single SET NX, which is atomic server-side, so the guard's per-key mutex
// is not needed for correctness here.
type Redis struct {
	client     goredis.UniversalClient
	keyPrefix  string
	pendingTTL time.Duration
}

// NewRedis creates a Redis store. pendingTTL <= 0 selects DefaultPendingTTL.
func NewRedis(client goredis.UniversalClient, keyPrefix string, pendingTTL time.Duration) *Redis {
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	if keyPrefix == "" {
		keyPrefix = "rewarder"
	}
	return &Redis{client: client, keyPrefix: keyPrefix, pendingTTL: pendingTTL}
}

// NewRedisFromURL creates a Redis store from a redis:// connection URL.
func NewRedisFromURL(url string, pendingTTL time.Duration) (*Redis, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	return NewRedis(goredis.NewClient(opts), "", pendingTTL), nil
}

func (r *Redis) key(key uuid.UUID) string {
	return fmt.Sprintf("%s:processed:%s", r.keyPrefix, key)
}

func (r *Redis) Reserve(ctx context.Context, key uuid.UUID) error {
	ok, err := r.client.SetNX(ctx, r.key(key), pendingMarker, r.pendingTTL).Result()
	if err != nil {
		return fmt.Errorf("store: redis reserve: %w", err)
	}
	if !ok {
		return ErrAlreadyProcessed
	}
	return nil
}

func (r *Redis) Finalize(ctx context.Context, key uuid.UUID, rec model.ProcessedReward) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal record: %w", err)
	}
	// Finalized records keep no TTL: "processed" is permanent state.
	if err := r.client.Set(ctx, r.key(key), payload, 0).Err(); err != nil {
		return fmt.Errorf("store: redis finalize: %w", err)
	}
	return nil
}

// Release deletes the key only while it still holds the pending marker, so
// a concurrent Finalize is never undone. The check-and-delete runs as a Lua
// script to keep it atomic.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *Redis) Release(ctx context.Context, key uuid.UUID) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key(key)}, pendingMarker).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("store: redis release: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key uuid.UUID) (model.ProcessedReward, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.ProcessedReward{}, ErrNotFound
	}
	if err != nil {
		return model.ProcessedReward{}, fmt.Errorf("store: redis get: %w", err)
	}
	if string(raw) == pendingMarker {
		return model.ProcessedReward{}, ErrNotFound
	}
	var rec model.ProcessedReward
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ProcessedReward{}, fmt.Errorf("store: unmarshal record: %w", err)
	}
	return rec, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close(context.Context) error {
	return r.client.Close()
}
