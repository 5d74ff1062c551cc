package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"aviator/models"
)

const (
	currentRoundKey    = "round:current"
	recentCrashesKey   = "rounds:recent"
	recentCrashesLimit = 20

	// The running round overwrites this key every tick; the TTL only
	// clears it when the engine is down.
	currentRoundTTL = time.Minute
)

// RedisLive is the live state store read by transports: the current
// round snapshot and the recent crash history. The engine only writes
// here; recovery works from Postgres alone.
type RedisLive struct {
	client *redis.Client
}

// NewRedisLive connects to Redis and verifies the connection
func NewRedisLive(ctx context.Context, addr, password string, db int) (*RedisLive, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.WithField("addr", addr).Info("Connected to Redis")
	return &RedisLive{client: client}, nil
}

// SetCurrentRound stores the latest round snapshot under round:current
func (r *RedisLive) SetCurrentRound(ctx context.Context, snapshot models.RoundSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal round snapshot: %w", err)
	}

	if err := r.client.Set(ctx, currentRoundKey, data, currentRoundTTL).Err(); err != nil {
		return fmt.Errorf("failed to store current round: %w", err)
	}
	return nil
}

// PushRecentCrash prepends a crash point to rounds:recent, keeping the
// newest entries only
func (r *RedisLive) PushRecentCrash(ctx context.Context, crashPoint string) error {
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, recentCrashesKey, crashPoint)
	pipe.LTrim(ctx, recentCrashesKey, 0, recentCrashesLimit-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record recent crash: %w", err)
	}
	return nil
}

// Close releases the Redis connection
func (r *RedisLive) Close() error {
	return r.client.Close()
}
