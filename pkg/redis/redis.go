package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lgu-bplo/bizpermit-backend/config"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// PermitEventsChannel is the pub/sub channel lifecycle events are published on.
const PermitEventsChannel = "permit-events"

var client *redis.Client

// Init initializes Redis connection
func Init(cfg *config.RedisConfig) error {
	logger.Info("Initializing Redis connection", map[string]interface{}{
		"host": cfg.Host,
		"port": cfg.Port,
		"db":   cfg.DB,
	})

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", err, map[string]interface{}{
			"host": cfg.Host,
			"port": cfg.Port,
		})
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established successfully")
	return nil
}

// GetClient returns the Redis client instance, nil when Redis is not configured.
func GetClient() *redis.Client {
	return client
}

// Close closes the Redis connection
func Close() error {
	if client != nil {
		logger.Info("Closing Redis connection")
		return client.Close()
	}
	return nil
}

// Publisher publishes payloads on a channel.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if p == nil || p.rdb == nil {
		return nil
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		logger.Error("Failed to publish to Redis", err, map[string]interface{}{
			"channel": channel,
		})
		return err
	}
	return nil
}

// Locker hands out best-effort mutual exclusion across service instances.
type Locker struct {
	rdb *redis.Client
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

var ErrLockHeld = errors.New("lock is held by another instance")

// releaseScript deletes the lock only while it still holds the caller's
// token, so a run that outlived its TTL cannot free a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire sets key if absent for ttl. A nil Locker (no Redis) always succeeds.
// The returned release func deletes the key if this caller still owns it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.rdb == nil {
		return func() {}, nil
	}

	lockKey := "lock:" + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		logger.Error("Failed to acquire Redis lock", err, map[string]interface{}{
			"key": key,
		})
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func() {
		deleted, err := releaseScript.Run(context.Background(), l.rdb, []string{lockKey}, token).Int()
		if err != nil {
			logger.Warn("Failed to release Redis lock", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			return
		}
		if deleted == 0 {
			logger.Warn("Redis lock expired before release", map[string]interface{}{
				"key": key,
				"ttl": ttl.String(),
			})
		}
	}, nil
}
