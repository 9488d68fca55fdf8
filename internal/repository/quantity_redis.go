package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"stockledger-api/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// createIfAbsentScript seeds a zero record and its index entry unless the hash exists.
var createIfAbsentScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		redis.call("HSET", KEYS[1], "quantity", "0", "version", "0", "created_at", ARGV[1], "updated_at", ARGV[1])
		redis.call("ZADD", KEYS[2], 0, ARGV[2])
	end
	return redis.call("HMGET", KEYS[1], "quantity", "version", "created_at", "updated_at")
`)

// compareAndSwapScript returns {status, quantity, version, created_at, updated_at}.
// status: 1 swapped, 0 version mismatch, -1 missing.
var compareAndSwapScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 0 then
		return {"-1"}
	end
	local v = tonumber(redis.call("HGET", KEYS[1], "version"))
	if v ~= tonumber(ARGV[1]) then
		return {"0"}
	end
	local nextVersion = tostring(v + 1)
	redis.call("HSET", KEYS[1], "quantity", ARGV[2], "version", nextVersion, "updated_at", ARGV[3])
	redis.call("ZADD", KEYS[2], ARGV[2], ARGV[4])
	local created = redis.call("HGET", KEYS[1], "created_at")
	return {"1", ARGV[2], nextVersion, created, ARGV[3]}
`)

// RedisQuantityStore keeps one hash per product plus a sorted set indexed by quantity.
type RedisQuantityStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// RedisStoreConfig holds configuration for the Redis quantity store.
type RedisStoreConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisQuantityStore connects to Redis and returns a quantity store.
func NewRedisQuantityStore(cfg RedisStoreConfig) (*RedisQuantityStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "stockledger:inventory"
	}

	log.Info().Str("component", "RedisQuantityStore").Int("db", cfg.DB).Str("prefix", keyPrefix).Msg("initialized")
	return newRedisQuantityStore(client, keyPrefix), nil
}

func newRedisQuantityStore(client *redis.Client, keyPrefix string) *RedisQuantityStore {
	return &RedisQuantityStore{
		client:    client,
		keyPrefix: keyPrefix,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *RedisQuantityStore) recordKey(productID int64) string {
	return r.keyPrefix + ":record:" + strconv.FormatInt(productID, 10)
}

func (r *RedisQuantityStore) indexKey() string {
	return r.keyPrefix + ":by_quantity"
}

// Get returns the record for productID.
func (r *RedisQuantityStore) Get(ctx context.Context, productID int64) (*model.QuantityRecord, error) {
	vals, err := r.client.HMGet(ctx, r.recordKey(productID), "quantity", "version", "created_at", "updated_at").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get quantity record %d: %w", productID, err)
	}
	return decodeRedisRecord(productID, vals)
}

// CreateIfAbsent seeds a zero record atomically.
func (r *RedisQuantityStore) CreateIfAbsent(ctx context.Context, productID int64) (*model.QuantityRecord, error) {
	now := strconv.FormatInt(r.now().UnixNano(), 10)
	keys := []string{r.recordKey(productID), r.indexKey()}

	vals, err := createIfAbsentScript.Run(ctx, r.client, keys, now, productID).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to create quantity record %d: %w", productID, err)
	}
	return decodeRedisRecord(productID, vals)
}

// CompareAndSwap runs the version check and write in a single Lua script.
func (r *RedisQuantityStore) CompareAndSwap(ctx context.Context, productID, expectedVersion, newQuantity int64) (*model.QuantityRecord, error) {
	if newQuantity < 0 {
		return nil, ErrNegativeQuantity
	}

	now := strconv.FormatInt(r.now().UnixNano(), 10)
	keys := []string{r.recordKey(productID), r.indexKey()}

	vals, err := compareAndSwapScript.Run(ctx, r.client, keys, expectedVersion, newQuantity, now, productID).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to update quantity record %d: %w", productID, err)
	}

	switch fmt.Sprint(vals[0]) {
	case "-1":
		return nil, ErrNotFound
	case "0":
		return nil, ErrConflict
	}
	return decodeRedisRecord(productID, vals[1:])
}

// Stats walks the quantity index.
func (r *RedisQuantityStore) Stats(ctx context.Context, lowStockThreshold int64) (*model.InventoryStats, error) {
	entries, err := r.client.ZRangeWithScores(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read quantity index: %w", err)
	}

	stats := &model.InventoryStats{LowStockThreshold: lowStockThreshold}
	for _, z := range entries {
		q := int64(z.Score)
		stats.TotalRecords++
		stats.TotalQuantity += q
		if q == 0 {
			stats.OutOfStock++
		}
		if q < lowStockThreshold {
			stats.LowStock++
		}
	}
	return stats, nil
}

// ListBelow returns records whose quantity is strictly below threshold.
func (r *RedisQuantityStore) ListBelow(ctx context.Context, threshold int64) ([]model.QuantityRecord, error) {
	return r.listByScore(ctx, "-inf", "("+strconv.FormatInt(threshold, 10))
}

// ListOutOfStock returns records whose quantity is zero.
func (r *RedisQuantityStore) ListOutOfStock(ctx context.Context) ([]model.QuantityRecord, error) {
	return r.listByScore(ctx, "0", "0")
}

func (r *RedisQuantityStore) listByScore(ctx context.Context, lo, hi string) ([]model.QuantityRecord, error) {
	members, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{Min: lo, Max: hi}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan quantity index: %w", err)
	}

	pipe := r.client.Pipeline()
	ids := make([]int64, 0, len(members))
	cmds := make([]*redis.SliceCmd, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		cmds = append(cmds, pipe.HMGet(ctx, r.recordKey(id), "quantity", "version", "created_at", "updated_at"))
	}
	if len(cmds) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to load quantity records: %w", err)
		}
	}

	records := make([]model.QuantityRecord, 0, len(cmds))
	for i, cmd := range cmds {
		rec, err := decodeRedisRecord(ids[i], cmd.Val())
		if err != nil {
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Ping checks Redis is reachable.
func (r *RedisQuantityStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisQuantityStore) Close() error {
	return r.client.Close()
}

// decodeRedisRecord parses {quantity, version, created_at, updated_at}.
func decodeRedisRecord(productID int64, vals []interface{}) (*model.QuantityRecord, error) {
	if len(vals) < 4 || vals[0] == nil {
		return nil, ErrNotFound
	}

	nums := make([]int64, 4)
	for i := 0; i < 4; i++ {
		n, err := strconv.ParseInt(fmt.Sprint(vals[i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt quantity record %d: %w", productID, err)
		}
		nums[i] = n
	}

	return &model.QuantityRecord{
		ProductID: productID,
		Quantity:  nums[0],
		Version:   nums[1],
		CreatedAt: time.Unix(0, nums[2]).UTC(),
		UpdatedAt: time.Unix(0, nums[3]).UTC(),
	}, nil
}

var _ QuantityStore = (*RedisQuantityStore)(nil)
