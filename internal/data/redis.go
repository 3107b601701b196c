package data

import (
    "time"

    "github.com/go-redsync/redsync/v4"
    "github.com/go-redsync/redsync/v4/redis/goredis/v9"
    "github.com/redis/go-redis/v9"

    "github.com/example/partition-keeper/internal/keepercfg"
)

// Redis provides the maintenance run lease. Holding the lease guarantees at
// most one active maintenance/reap run across all keeper replicas.
type Redis struct {
    cfg keepercfg.RedisConfig
    c   *redis.Client
    rs  *redsync.Redsync
}

func NewRedis(cfg keepercfg.RedisConfig) (*Redis, error) {
    if !cfg.Enabled {
        return &Redis{cfg: cfg}, nil
    }
    client := redis.NewClient(&redis.Options{
        Addr: cfg.Addr,
        Username: cfg.Username,
        Password: cfg.Password,
        DB: cfg.DB,
        ReadTimeout: 3 * time.Second,
        WriteTimeout: 3 * time.Second,
        DialTimeout: 3 * time.Second,
    })
    return &Redis{cfg: cfg, c: client, rs: redsync.New(goredis.NewPool(client))}, nil
}

// MaintenanceLease returns a single-attempt mutex for the aggregate run.
// Nil when Redis is disabled; the caller falls back to an in-process lock.
func (r *Redis) MaintenanceLease(ttl time.Duration) *redsync.Mutex {
    if r.rs == nil {
        return nil
    }
    name := prefixed(r.cfg.KeyPrefix, "keeper:maintain")
    return r.rs.NewMutex(name, redsync.WithExpiry(ttl), redsync.WithTries(1))
}

func (r *Redis) C() *redis.Client { return r.c }

func (r *Redis) Close() error {
    if r.c != nil {
        return r.c.Close()
    }
    return nil
}

func prefixed(prefix, key string) string {
    if prefix == "" { return key }
    return prefix + ":" + key
}
