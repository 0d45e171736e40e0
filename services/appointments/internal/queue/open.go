package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sytefy/backend/libs/db"
)

type Config struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// Opened is a broker plus the hooks the process needs around it.
type Opened struct {
	Broker Broker
	Ready  func(context.Context) error
	Close  func() error
}

// Open builds the broker selected by cfg.Backend. The Postgres broker shares q
// with the rest of the service; the Redis broker owns its client.
func Open(ctx context.Context, cfg Config, q db.Querier) (Opened, error) {
	switch cfg.Backend {
	case "", "postgres":
		return Opened{
			Broker: NewPostgresBroker(q),
			Ready:  func(context.Context) error { return nil },
			Close:  func() error { return nil },
		}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return Opened{}, fmt.Errorf("redis ping: %w", err)
		}
		return Opened{
			Broker: NewRedisBroker(rdb, cfg.Prefix),
			Ready:  ReadyCheck(rdb),
			Close:  rdb.Close,
		}, nil
	default:
		return Opened{}, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}
