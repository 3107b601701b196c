package partition

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/example/partition-keeper/internal/logging"
    "github.com/example/partition-keeper/internal/metrics"
)

// templateVersion is recorded per catalog row so index drift between
// fast-created ahead partitions and the template is detectable.
const templateVersion = 1

type indexSpec struct {
    suffix string
    def string
}

// Index templates are fixed per table type and applied in the same
// transaction that creates the partition.
var indexTemplates = map[string][]indexSpec{
    "alerts": {
        {suffix: "customer_created", def: "(customer_document, created_at DESC)"},
        {suffix: "status_created", def: "(status, created_at DESC)"},
        {suffix: "severity_created", def: "(severity, created_at DESC)"},
    },
    "transactions": {
        {suffix: "customer_occurred", def: "(customer_document, occurred_at DESC)"},
        {suffix: "type_amount", def: "(tx_type, amount)"},
        {suffix: "counterparty_amount", def: "(counterparty_document, amount)"},
        {suffix: "kpi_cover", def: "(customer_document, occurred_at) INCLUDE (amount, tx_type, counterparty_document)"},
    },
}

// Creator provisions partitions idempotently: ahead of need on the
// maintenance cycle and on demand from the write path.
type Creator struct {
    pool *pgxpool.Pool
    catalog Reader
    now func() time.Time
    ev *logging.EventLogger
}

func NewCreator(pool *pgxpool.Pool, catalog Reader) *Creator {
    return &Creator{pool: pool, catalog: catalog, now: time.Now, ev: logging.NewEventLogger()}
}

// WithClock overrides the time source; tests use it to pin "now".
func (c *Creator) WithClock(now func() time.Time) *Creator {
    c.now = now
    return c
}

// EnsureAheadPartitions creates any missing partitions from the current
// month through monthsAhead months out, index set included. It is called at
// startup and on every maintenance cycle to keep the ahead window full.
func (c *Creator) EnsureAheadPartitions(ctx context.Context, t Table, monthsAhead int) (int, error) {
    created := 0
    start := MonthStart(c.now())
    for i := 0; i <= monthsAhead; i++ {
        r := Range{Start: start.AddDate(0, i, 0), End: start.AddDate(0, i+1, 0)}
        _, madeNew, err := c.createIfAbsent(ctx, t, r)
        if err != nil { return created, err }
        if madeNew {
            created++
            c.ev.Partition("create_ahead", t.Name, Name(t.Name, r.Start), true, "")
        }
    }
    return created, nil
}

// EnsurePartitionForTimestamp guarantees the partition covering ts exists
// before the caller's insert proceeds. Timestamps whose month is already at
// or before the retention cutoff are rejected with ErrOutOfRetention; the
// partition was (or would immediately be) reaped and must not come back.
func (c *Creator) EnsurePartitionForTimestamp(ctx context.Context, t Table, ts time.Time) (Partition, error) {
    r := MonthRange(ts)
    cutoff := Cutoff(c.now(), t.RetentionMonths)
    if !r.End.After(cutoff) {
        metrics.OutOfRetentionWrites.Inc()
        return Partition{}, fmt.Errorf("%s %s for %s: %w", t.Name, r, ts.UTC().Format(time.RFC3339), ErrOutOfRetention)
    }
    p, madeNew, err := c.createIfAbsent(ctx, t, r)
    if err != nil { return Partition{}, err }
    if madeNew {
        c.ev.Partition("create", t.Name, p.Name, true, "on-demand")
    }
    return p, nil
}

// createIfAbsent is the single creation primitive. Concurrent callers for
// the same month serialize on a per-(table, month) advisory transaction
// lock; whoever loses the race sees the partition already present and
// returns it as success.
func (c *Creator) createIfAbsent(ctx context.Context, t Table, r Range) (Partition, bool, error) {
    name := Name(t.Name, r.Start)
    p := Partition{Table: t.Name, Name: name, Range: r, TemplateVersion: templateVersion}

    // Fast path: already in the catalog.
    if existing, ok, err := c.catalog.Get(ctx, t.Name, r.Start); err == nil && ok {
        return existing, false, nil
    }

    if c.pool == nil { return Partition{}, false, fmt.Errorf("pg pool nil") }
    tx, err := c.pool.Begin(ctx)
    if err != nil { return Partition{}, false, fmt.Errorf("begin: %w", err) }
    defer tx.Rollback(ctx)

    if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1)::int, $2)`, t.Name, monthKey(r.Start)); err != nil {
        return Partition{}, false, fmt.Errorf("advisory lock: %w", err)
    }

    ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
        pgx.Identifier{name}.Sanitize(), pgx.Identifier{t.Name}.Sanitize(),
        r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
    if _, err := tx.Exec(ctx, ddl); err != nil {
        if err = asDuplicate(err); !errors.Is(err, ErrAlreadyExists) {
            c.ev.Partition("create", t.Name, name, false, err.Error())
            return Partition{}, false, fmt.Errorf("create partition %s: %w", name, err)
        }
        // Race loser: the table is there, carry on to indexes and catalog.
    }

    for _, ix := range indexTemplates[t.Template] {
        ixName := fmt.Sprintf("idx_%s_%s", name, ix.suffix)
        ixDDL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s %s`,
            pgx.Identifier{ixName}.Sanitize(), pgx.Identifier{name}.Sanitize(), ix.def)
        if _, err := tx.Exec(ctx, ixDDL); err != nil && !errors.Is(asDuplicate(err), ErrAlreadyExists) {
            return Partition{}, false, fmt.Errorf("create index %s: %w", ixName, err)
        }
    }

    tag, err := tx.Exec(ctx, `
INSERT INTO partition_catalog (table_name, partition_name, range_start, range_end, template_version)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (partition_name) DO NOTHING`,
        t.Name, name, r.Start, r.End, templateVersion)
    if err != nil { return Partition{}, false, fmt.Errorf("register partition %s: %w", name, err) }

    if err := tx.Commit(ctx); err != nil {
        return Partition{}, false, fmt.Errorf("commit partition %s: %w", name, err)
    }

    madeNew := tag.RowsAffected() == 1
    if madeNew {
        metrics.PartitionsCreated.WithLabelValues(t.Name).Inc()
    }
    return p, madeNew, nil
}
