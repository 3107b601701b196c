package partition

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
)

// Partition is one physical child of a managed table, as recorded in the
// durable catalog.
type Partition struct {
    Table string
    Name string
    Range Range
    TemplateVersion int
}

// Telemetry carries per-partition statistics sampled from the storage engine.
type Telemetry struct {
    LiveRows int64
    DeadRows int64
    SizeBytes int64
    Inserts int64
    Updates int64
    Deletes int64
    SeqScans int64
    IdxScans int64
    LastAnalyze time.Time // zero when never analyzed
    LastVacuum time.Time
}

// Stats pairs a partition with its current telemetry.
type Stats struct {
    Partition Partition
    Telemetry Telemetry
}

// Reader is the read surface the lifecycle components need: durable
// partition metadata plus a storage telemetry provider. The Postgres-backed
// Catalog implements it; tests substitute fakes.
type Reader interface {
    List(ctx context.Context, table string) ([]Partition, error)
    ListStats(ctx context.Context, table string) ([]Stats, error)
    Get(ctx context.Context, table string, start time.Time) (Partition, bool, error)
}

// Catalog is the read-only view over the partition metadata table, joined at
// read time with live engine statistics.
type Catalog struct {
    pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
    return &Catalog{pool: pool}
}

const listSQL = `
SELECT table_name, partition_name, range_start, range_end, template_version
FROM partition_catalog
WHERE table_name = $1
ORDER BY range_start`

// List returns the recorded partitions of a table ordered by range start.
func (c *Catalog) List(ctx context.Context, table string) ([]Partition, error) {
    if c.pool == nil { return nil, fmt.Errorf("pg pool nil") }
    rows, err := c.pool.Query(ctx, listSQL, table)
    if err != nil { return nil, fmt.Errorf("list partitions: %w", err) }
    defer rows.Close()
    var out []Partition
    for rows.Next() {
        var p Partition
        if err := rows.Scan(&p.Table, &p.Name, &p.Range.Start, &p.Range.End, &p.TemplateVersion); err != nil {
            return nil, err
        }
        out = append(out, p)
    }
    return out, rows.Err()
}

// Get returns the recorded partition covering the month starting at start.
func (c *Catalog) Get(ctx context.Context, table string, start time.Time) (Partition, bool, error) {
    if c.pool == nil { return Partition{}, false, fmt.Errorf("pg pool nil") }
    var p Partition
    err := c.pool.QueryRow(ctx, `
SELECT table_name, partition_name, range_start, range_end, template_version
FROM partition_catalog
WHERE table_name = $1 AND range_start = $2`, table, MonthStart(start)).
        Scan(&p.Table, &p.Name, &p.Range.Start, &p.Range.End, &p.TemplateVersion)
    if err != nil {
        if errors.Is(err, pgx.ErrNoRows) { return Partition{}, false, nil }
        return Partition{}, false, err
    }
    return p, true, nil
}

const statsSQL = `
SELECT pc.table_name, pc.partition_name, pc.range_start, pc.range_end, pc.template_version,
       COALESCE(s.n_live_tup, 0), COALESCE(s.n_dead_tup, 0),
       COALESCE(pg_total_relation_size(s.relid), 0),
       COALESCE(s.n_tup_ins, 0), COALESCE(s.n_tup_upd, 0), COALESCE(s.n_tup_del, 0),
       COALESCE(s.seq_scan, 0), COALESCE(s.idx_scan, 0),
       GREATEST(s.last_analyze, s.last_autoanalyze),
       GREATEST(s.last_vacuum, s.last_autovacuum)
FROM partition_catalog pc
LEFT JOIN pg_stat_user_tables s ON s.relname = pc.partition_name
WHERE pc.table_name = $1
ORDER BY pc.range_start`

// ListStats returns partitions with live telemetry for health evaluation.
// Telemetry is always sampled fresh; nothing is cached between runs.
func (c *Catalog) ListStats(ctx context.Context, table string) ([]Stats, error) {
    if c.pool == nil { return nil, fmt.Errorf("pg pool nil") }
    rows, err := c.pool.Query(ctx, statsSQL, table)
    if err != nil { return nil, fmt.Errorf("list partition stats: %w", err) }
    defer rows.Close()
    var out []Stats
    for rows.Next() {
        var st Stats
        var lastAnalyze, lastVacuum *time.Time
        err := rows.Scan(
            &st.Partition.Table, &st.Partition.Name,
            &st.Partition.Range.Start, &st.Partition.Range.End, &st.Partition.TemplateVersion,
            &st.Telemetry.LiveRows, &st.Telemetry.DeadRows, &st.Telemetry.SizeBytes,
            &st.Telemetry.Inserts, &st.Telemetry.Updates, &st.Telemetry.Deletes,
            &st.Telemetry.SeqScans, &st.Telemetry.IdxScans,
            &lastAnalyze, &lastVacuum,
        )
        if err != nil { return nil, err }
        if lastAnalyze != nil { st.Telemetry.LastAnalyze = *lastAnalyze }
        if lastVacuum != nil { st.Telemetry.LastVacuum = *lastVacuum }
        out = append(out, st)
    }
    return out, rows.Err()
}
