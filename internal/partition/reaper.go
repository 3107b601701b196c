package partition

import (
    "context"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/example/partition-keeper/internal/logging"
    "github.com/example/partition-keeper/internal/metrics"
)

// Reaper drops partitions whose entire range has aged out of the table's
// retention horizon. Each run is self-contained: the scan derives everything
// from the catalog, and already-dropped partitions simply no longer appear,
// so running twice is naturally idempotent.
type Reaper struct {
    pool *pgxpool.Pool
    catalog Reader
    now func() time.Time
    ev *logging.EventLogger
}

func NewReaper(pool *pgxpool.Pool, catalog Reader) *Reaper {
    return &Reaper{pool: pool, catalog: catalog, now: time.Now, ev: logging.NewEventLogger()}
}

func (r *Reaper) WithClock(now func() time.Time) *Reaper {
    r.now = now
    return r
}

// Scan lists the partitions of t that are fully at or before the cutoff.
// Exposed on its own so operators can preview a reap without dropping.
func (r *Reaper) Scan(ctx context.Context, t Table) ([]Partition, error) {
    parts, err := r.catalog.List(ctx, t.Name)
    if err != nil { return nil, err }
    return expired(parts, Cutoff(r.now(), t.RetentionMonths)), nil
}

// expired filters to partitions with range.end <= cutoff. The boundary is
// inclusive of drop: a partition ending exactly at the cutoff goes.
func expired(parts []Partition, cutoff time.Time) []Partition {
    var out []Partition
    for _, p := range parts {
        if !p.Range.End.After(cutoff) {
            out = append(out, p)
        }
    }
    return out
}

// Reap drops every expired partition of t and returns the count dropped.
// Before each drop the cutoff invariant is re-asserted; a partition still
// inside the horizon reaching this point is a bug and aborts the table's
// reap with an InvariantViolation.
func (r *Reaper) Reap(ctx context.Context, t Table) (int, error) {
    cutoff := Cutoff(r.now(), t.RetentionMonths)
    victims, err := r.Scan(ctx, t)
    if err != nil { return 0, err }
    return r.reap(ctx, t, victims, cutoff)
}

func (r *Reaper) reap(ctx context.Context, t Table, victims []Partition, cutoff time.Time) (int, error) {
    dropped := 0
    for _, p := range victims {
        if p.Range.End.After(cutoff) {
            return dropped, &InvariantViolation{Partition: p.Name, End: p.Range.End, CutoffAt: cutoff}
        }
        if err := r.drop(ctx, p); err != nil {
            // Isolated per partition: log, keep going, retry next cycle.
            r.ev.Partition("drop", t.Name, p.Name, false, err.Error())
            continue
        }
        dropped++
        metrics.PartitionsDropped.WithLabelValues(t.Name).Inc()
        r.ev.Partition("drop", t.Name, p.Name, true, fmt.Sprintf("cutoff=%s", cutoff.Format(time.RFC3339)))
    }
    return dropped, nil
}

func (r *Reaper) drop(ctx context.Context, p Partition) error {
    if r.pool == nil { return fmt.Errorf("pg pool nil") }
    tx, err := r.pool.Begin(ctx)
    if err != nil { return fmt.Errorf("begin: %w", err) }
    defer tx.Rollback(ctx)
    if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pgx.Identifier{p.Name}.Sanitize())); err != nil {
        return fmt.Errorf("drop %s: %w", p.Name, err)
    }
    if _, err := tx.Exec(ctx, `DELETE FROM partition_catalog WHERE partition_name = $1`, p.Name); err != nil {
        return fmt.Errorf("deregister %s: %w", p.Name, err)
    }
    return tx.Commit(ctx)
}
