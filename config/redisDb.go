package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

// GetRedisDB is nil until ConnectRedisWithRetry succeeds; helpers below are no-ops until then.
func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

func GetRedisObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, exp).Err()
}

// AddRedisSet adds member to a set and refreshes the set's expiry.
func AddRedisSet(ctx context.Context, setKey string, member string, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	pipe := rdb.TxPipeline()
	pipe.SAdd(ctx, setKey, member)
	if exp > 0 {
		pipe.Expire(ctx, setKey, exp)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func GetRedisSetMembers(ctx context.Context, setKey string) ([]string, error) {
	if rdb == nil {
		return nil, nil
	}
	return rdb.SMembers(ctx, setKey).Result()
}

func RemoveRedisSetMember(ctx context.Context, setKey string, member string) error {
	if rdb == nil {
		return nil
	}
	return rdb.SRem(ctx, setKey, member).Err()
}

func RemoveRedisKey(ctx context.Context, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
// Call this from main() AFTER the HTTP server is listening.
//
// Env:
// - REDIS_ADDRESS (default localhost:6379)
// - REDIS_PASSWORD
// - REDIS_DB (default 0)
// - REDIS_POOL_SIZE (default 50)
func ConnectRedisWithRetry() {
	logger := GetLogger()
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
		logger.WithField("addr", addr).Warn("REDIS_ADDRESS not set; using default")
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       intFromEnv("REDIS_DB", 0),
		PoolSize: intFromEnv("REDIS_POOL_SIZE", 50),
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			rdb = client
			locker = redislock.New(client)
			logger.WithFields(logrus.Fields{"attempt": attempt, "addr": addr}).Info("connected to redis")
			return
		}
		_ = client.Close()

		sleep := backoff(attempt)
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"addr":    addr,
			"retryIn": sleep.String(),
		}).WithError(err).Warn("failed to connect redis")
		time.Sleep(sleep)
	}
}

// CloseRedis is called on shutdown.
func CloseRedis() error {
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}
