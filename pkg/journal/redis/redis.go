package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taji-labs/signing-service/pkg/journal"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixReceipt     = "journal:receipt:"
	keyPrefixSender      = "journal:sender:"
	keySchemaVersion     = "journal:metadata:schema_version"
	currentSchemaVersion = "v1"

	connectTimeout = 5 * time.Second
)

// RedisJournal stores each receipt as a JSON string and indexes senders with sorted
// sets scored by signing time in milliseconds.
type RedisJournal struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ journal.IReceiptJournal = (*RedisJournal)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "signer:" gives
	// "signer:journal:receipt:<id>".
	KeyPrefix string
}

func NewRedisJournal(cfg *RedisConfig, logger *zap.Logger) (*RedisJournal, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rj := &RedisJournal{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rj.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis receipt journal initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)
	return rj, nil
}

func (r *RedisJournal) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisJournal) receiptKey(id string) string {
	return r.prefixKey(keyPrefixReceipt + id)
}

func (r *RedisJournal) senderKey(from string) string {
	return r.prefixKey(keyPrefixSender + journal.SenderKey(from))
}

func (r *RedisJournal) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

func (r *RedisJournal) Record(ctx context.Context, receipt *journal.Receipt) error {
	if err := receipt.Validate(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return journal.ErrClosed
	}

	data, err := journal.MarshalReceipt(receipt)
	if err != nil {
		return err
	}

	previous, err := r.load(ctx, receipt.ID)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	if previous != nil && journal.SenderKey(previous.From) != journal.SenderKey(receipt.From) {
		pipe.ZRem(ctx, r.senderKey(previous.From), previous.ID)
	}
	pipe.Set(ctx, r.receiptKey(receipt.ID), data, 0)
	pipe.ZAdd(ctx, r.senderKey(receipt.From), redis.Z{
		Score:  float64(receipt.SignedAt.UnixMilli()),
		Member: receipt.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record receipt: %w", err)
	}
	return nil
}

func (r *RedisJournal) Get(ctx context.Context, id string) (*journal.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, journal.ErrClosed
	}
	return r.load(ctx, id)
}

func (r *RedisJournal) load(ctx context.Context, id string) (*journal.Receipt, error) {
	data, err := r.client.Get(ctx, r.receiptKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt: %w", err)
	}
	return journal.UnmarshalReceipt(data)
}

func (r *RedisJournal) ListBySender(ctx context.Context, from string, limit int) ([]*journal.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, journal.ErrClosed
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	indexKey := r.senderKey(from)
	ids, err := r.client.ZRevRange(ctx, indexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list receipt ids: %w", err)
	}
	if len(ids) == 0 {
		return []*journal.Receipt{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.receiptKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipts: %w", err)
	}

	receipts := make([]*journal.Receipt, 0, len(values))
	for i, val := range values {
		if val == nil {
			// indexed but missing, clean up the index
			r.client.ZRem(ctx, indexKey, ids[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for receipt", "key", keys[i])
			continue
		}

		receipt, err := journal.UnmarshalReceipt([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal receipt, skipping", "key", keys[i], "error", err)
			continue
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func (r *RedisJournal) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis receipt journal closed")
	return nil
}

func (r *RedisJournal) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return journal.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}
