package data

import (
    "context"
    "errors"
    "os"
    "strconv"
    "time"

    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/example/partition-keeper/internal/keepercfg"
)

type Postgres struct {
    cfg  keepercfg.PostgresConfig
    pool *pgxpool.Pool
}

// poolConfig translates the YAML pool settings onto pgx. The statement
// timeout is a server-side runtime param so it also covers DDL issued by
// the partition creator.
func poolConfig(cfg keepercfg.PostgresConfig) (*pgxpool.Config, error) {
    pconf, err := pgxpool.ParseConfig(cfg.DSN)
    if err != nil {
        return nil, err
    }
    if cfg.MaxConns > 0 {
        pconf.MaxConns = int32(cfg.MaxConns)
    }
    if cfg.ConnMaxLifetimeMs > 0 {
        pconf.MaxConnLifetime = time.Duration(cfg.ConnMaxLifetimeMs) * time.Millisecond
    }
    if cfg.StatementTimeoutMs > 0 {
        pconf.ConnConfig.RuntimeParams["statement_timeout"] = strconv.Itoa(cfg.StatementTimeoutMs)
    }
    return pconf, nil
}

func NewPostgres(ctx context.Context, cfg keepercfg.PostgresConfig) (*Postgres, error) {
    pconf, err := poolConfig(cfg)
    if err != nil {
        return nil, err
    }
    pool, err := pgxpool.NewWithConfig(ctx, pconf)
    if err != nil {
        return nil, err
    }
    pg := &Postgres{cfg: cfg, pool: pool}
    if cfg.ApplyMigrations {
        if err := pg.ApplyMigrations(ctx); err != nil {
            pool.Close()
            return nil, err
        }
    }
    return pg, nil
}

func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// ApplyMigrations runs the idempotent schema migration (parents, catalog,
// views). Safe to run on every start.
func (p *Postgres) ApplyMigrations(ctx context.Context) error {
    if p.pool == nil {
        return errors.New("pg pool nil")
    }
    b, err := os.ReadFile("migrations/0001_init.sql")
    if err != nil {
        return err
    }
    cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
    defer cancel()
    _, err = p.pool.Exec(cctx, string(b))
    return err
}

func (p *Postgres) Close() {
    if p.pool != nil {
        p.pool.Close()
    }
}
