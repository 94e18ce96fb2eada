package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

const (
	defaultLockKey  = "sync:run:lock"
	defaultStateKey = "sync:run:state"
)

// releaseScript deletes the lock only if the stored run ID matches, so
// a slow finisher cannot release a slot a later run has taken over.
var releaseScript = redis.NewScript(`
local payload = redis.call("GET", KEYS[1])
if payload and string.find(payload, ARGV[1], 1, true) then
	redis.call("DEL", KEYS[1])
	redis.call("SET", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

type lockPayload struct {
	RunID      uuid.UUID `json:"run_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// RedisRunLock is a run lock shared across instances. The slot is one
// Redis key written with SETNX; the key TTL doubles as the stuck-run
// watchdog since an expired holder's key simply vanishes.
type RedisRunLock struct {
	client   *redis.Client
	lockKey  string
	stateKey string
}

// NewRedisRunLock creates a Redis-backed run lock on an existing client.
func NewRedisRunLock(client *redis.Client, keyPrefix string) *RedisRunLock {
	lockKey, stateKey := defaultLockKey, defaultStateKey
	if keyPrefix != "" {
		lockKey = keyPrefix + ":lock"
		stateKey = keyPrefix + ":state"
	}
	return &RedisRunLock{client: client, lockKey: lockKey, stateKey: stateKey}
}

// TryAcquire takes the slot with SETNX. Exactly one of N racing callers
// sees true; Redis expires the key after ttl if the holder never
// releases.
func (l *RedisRunLock) TryAcquire(ctx context.Context, runID uuid.UUID, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(lockPayload{RunID: runID, AcquiredAt: time.Now().UTC()})
	if err != nil {
		return false, err
	}

	ok, err := l.client.SetNX(ctx, l.lockKey, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

// Release frees the slot if runID still holds it and records the
// terminal state.
func (l *RedisRunLock) Release(ctx context.Context, runID uuid.UUID, terminal syncdomain.RunState) error {
	err := releaseScript.Run(ctx, l.client,
		[]string{l.lockKey, l.stateKey},
		runID.String(), string(terminal),
	).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

// ForceRelease clears the slot unconditionally.
func (l *RedisRunLock) ForceRelease(ctx context.Context) error {
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, l.lockKey)
	pipe.Set(ctx, l.stateKey, string(syncdomain.RunStateFailed), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("force release run lock: %w", err)
	}
	return nil
}

// Snapshot returns the slot state: running while the lock key exists,
// otherwise the last recorded terminal state.
func (l *RedisRunLock) Snapshot(ctx context.Context) (syncdomain.LockSnapshot, error) {
	raw, err := l.client.Get(ctx, l.lockKey).Result()
	switch {
	case err == nil:
		var payload lockPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return syncdomain.LockSnapshot{}, fmt.Errorf("decode run lock: %w", err)
		}
		return syncdomain.LockSnapshot{
			State:      syncdomain.RunStateRunning,
			RunID:      payload.RunID,
			AcquiredAt: payload.AcquiredAt,
		}, nil
	case err != redis.Nil:
		return syncdomain.LockSnapshot{}, fmt.Errorf("read run lock: %w", err)
	}

	state, err := l.client.Get(ctx, l.stateKey).Result()
	if err == redis.Nil {
		return syncdomain.LockSnapshot{State: syncdomain.RunStateIdle}, nil
	}
	if err != nil {
		return syncdomain.LockSnapshot{}, fmt.Errorf("read run state: %w", err)
	}
	return syncdomain.LockSnapshot{State: syncdomain.RunState(state)}, nil
}

var _ syncdomain.RunLock = (*RedisRunLock)(nil)
