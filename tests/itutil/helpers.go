//go:build integration

package itutil

import (
    "context"
    "fmt"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/testcontainers/testcontainers-go"
    psqlmod "github.com/testcontainers/testcontainers-go/modules/postgres"
    redismod "github.com/testcontainers/testcontainers-go/modules/redis"
    "github.com/testcontainers/testcontainers-go/wait"

    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/example/partition-keeper/internal/data"
    "github.com/example/partition-keeper/internal/keepercfg"
)

// StartPostgres launches a Postgres container and returns the container handle and DSN.
func StartPostgres(t *testing.T) (*psqlmod.PostgresContainer, string) {
    t.Helper()
    ctx := context.Background()
    pg, err := psqlmod.RunContainer(ctx,
        psqlmod.WithDatabase("testdb"), psqlmod.WithUsername("test"), psqlmod.WithPassword("test"),
        testcontainers.WithWaitStrategy(
            wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60*time.Second)))
    if err != nil { t.Fatalf("pg up: %v", err) }
    dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
    if err != nil { t.Fatalf("pg dsn: %v", err) }
    return pg, dsn
}

// StartRedis launches a Redis container and returns the container handle and address.
func StartRedis(t *testing.T) (*redismod.RedisContainer, string) {
    t.Helper()
    ctx := context.Background()
    r, err := redismod.RunContainer(ctx)
    if err != nil { t.Fatalf("redis up: %v", err) }
    host, err := r.Host(ctx)
    if err != nil { t.Fatalf("redis host: %v", err) }
    port, err := r.MappedPort(ctx, "6379")
    if err != nil { t.Fatalf("redis port: %v", err) }
    return r, fmt.Sprintf("%s:%s", host, port.Port())
}

// ChdirRepoRoot changes the working directory to the repository root (where go.mod is located).
// This ensures relative paths like "migrations/*.sql" resolve correctly during integration tests.
func ChdirRepoRoot(t *testing.T) {
    t.Helper()
    cwd, _ := os.Getwd()
    dir := cwd
    for i := 0; i < 10; i++ {
        if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
            if chErr := os.Chdir(dir); chErr != nil { t.Fatalf("chdir repo root: %v", chErr) }
            return
        }
        parent := filepath.Dir(dir)
        if parent == dir { break }
        dir = parent
    }
    t.Fatalf("could not find go.mod from %s", cwd)
}

// WaitPostgresReady attempts to connect to Postgres and run a trivial query until success.
func WaitPostgresReady(t *testing.T, dsn string, deadline time.Duration) {
    t.Helper()
    end := time.Now().Add(deadline)
    for time.Now().Before(end) {
        pool, err := pgxpool.New(context.Background(), dsn)
        if err == nil {
            ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
            var one int
            e := pool.QueryRow(ctx, "SELECT 1").Scan(&one)
            cancel()
            pool.Close()
            if e == nil && one == 1 {
                return
            }
        }
        time.Sleep(150 * time.Millisecond)
    }
    t.Fatalf("postgres not ready: %s", dsn)
}

// NewPostgres connects the keeper's pool to dsn and applies migrations.
func NewPostgres(t *testing.T, dsn string) *data.Postgres {
    t.Helper()
    ChdirRepoRoot(t)
    WaitPostgresReady(t, dsn, 20*time.Second)
    pg, err := data.NewPostgres(context.Background(), keepercfg.PostgresConfig{DSN: dsn, MaxConns: 10, ApplyMigrations: true})
    if err != nil { t.Fatalf("pg connect: %v", err) }
    return pg
}

// CountPartitions returns the number of catalog rows for a table.
func CountPartitions(t *testing.T, pg *data.Postgres, table string) int {
    t.Helper()
    var n int
    err := pg.Pool().QueryRow(context.Background(),
        `SELECT count(*) FROM partition_catalog WHERE table_name = $1`, table).Scan(&n)
    if err != nil { t.Fatalf("count partitions: %v", err) }
    return n
}

// CountRows counts rows in the stable view of a table.
func CountRows(t *testing.T, pg *data.Postgres, view string) int {
    t.Helper()
    var n int
    err := pg.Pool().QueryRow(context.Background(), `SELECT count(*) FROM `+view).Scan(&n)
    if err != nil { t.Fatalf("count rows in %s: %v", view, err) }
    return n
}
