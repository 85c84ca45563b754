package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tour-inventory/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/extend_lock.lua
var extendLockScript string

//go:embed scripts/fill_slot.lua
var fillSlotScript string

//go:embed scripts/invalidate_slot.lua
var invalidateSlotScript string

// slotGenerationTTL keeps generation counters well past any snapshot TTL.
const slotGenerationTTL = 24 * time.Hour

type Client struct {
	rdb           *redis.Client
	releaseScript    *redis.Script
	extendScript     *redis.Script
	fillScript       *redis.Script
	invalidateScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript:    redis.NewScript(releaseLockScript),
		extendScript:     redis.NewScript(extendLockScript),
		fillScript:       redis.NewScript(fillSlotScript),
		invalidateScript: redis.NewScript(invalidateSlotScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection is usable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

func slotKey(tourID string, date models.Date) string {
	return fmt.Sprintf("slot:%s:%s", tourID, date)
}

func slotGenerationKey(tourID string, date models.Date) string {
	return fmt.Sprintf("slotgen:%s:%s", tourID, date)
}

// AcquireLock takes a named lock for ttl. It returns the owner token needed
// to release or extend it, and false when someone else holds the lock.
func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, name, token string) error {
	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey(name)}, token).Result(); err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// ExtendLock pushes the expiry of a lock still owned by token
func (c *Client) ExtendLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	result, err := c.extendScript.Run(ctx, c.rdb, []string{lockKey(name)}, token, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("extend lock script failed: %w", err)
	}

	extended, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return extended == 1, nil
}

// SlotCache keeps short-lived snapshots of inventory slots for read paths.
type SlotCache struct {
	client *Client
	ttl    time.Duration
}

// NewSlotCache creates a slot cache whose entries live for ttl
func NewSlotCache(client *Client, ttl time.Duration) *SlotCache {
	return &SlotCache{client: client, ttl: ttl}
}

// GetSlot returns the cached slot and whether it was present
func (sc *SlotCache) GetSlot(ctx context.Context, tourID string, date models.Date) (*models.InventorySlot, bool, error) {
	raw, err := sc.client.rdb.Get(ctx, slotKey(tourID, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var slot models.InventorySlot
	if err := json.Unmarshal(raw, &slot); err != nil {
		return nil, false, fmt.Errorf("decode cached slot: %w", err)
	}
	return &slot, true, nil
}

// Generation returns the slot's invalidation counter, zero when unset
func (sc *SlotCache) Generation(ctx context.Context, tourID string, date models.Date) (int64, error) {
	gen, err := sc.client.rdb.Get(ctx, slotGenerationKey(tourID, date)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read slot generation: %w", err)
	}
	return gen, nil
}

// SetSlot stores a slot snapshot unless the slot was invalidated after
// generation was read. It reports whether the snapshot was stored.
func (sc *SlotCache) SetSlot(ctx context.Context, slot *models.InventorySlot, generation int64) (bool, error) {
	raw, err := json.Marshal(slot)
	if err != nil {
		return false, err
	}

	keys := []string{slotKey(slot.TourID, slot.Date), slotGenerationKey(slot.TourID, slot.Date)}
	result, err := sc.client.fillScript.Run(ctx, sc.client.rdb, keys, generation, raw, sc.ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("fill slot script failed: %w", err)
	}
	stored, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return stored == 1, nil
}

// InvalidateSlot drops a slot snapshot after a mutation and bumps its generation
func (sc *SlotCache) InvalidateSlot(ctx context.Context, tourID string, date models.Date) error {
	keys := []string{slotKey(tourID, date), slotGenerationKey(tourID, date)}
	if err := sc.client.invalidateScript.Run(ctx, sc.client.rdb, keys, slotGenerationTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("invalidate slot script failed: %w", err)
	}
	return nil
}
