package partition

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/oklog/ulid/v2"
    "golang.org/x/sync/errgroup"

    "github.com/example/partition-keeper/internal/logging"
    "github.com/example/partition-keeper/internal/metrics"
)

// Issue classifies a partition's health from its telemetry.
type Issue int

const (
    IssueOK Issue = iota
    IssueIndexUsage
    IssueVacuumNeeded
    IssueAnalyzeNeeded
)

func (i Issue) String() string {
    switch i {
    case IssueIndexUsage:
        return "INDEX_USAGE"
    case IssueVacuumNeeded:
        return "VACUUM_NEEDED"
    case IssueAnalyzeNeeded:
        return "ANALYZE_NEEDED"
    default:
        return "OK"
    }
}

// Finding is one partition flagged by a health check.
type Finding struct {
    Stats Stats
    Issue Issue
}

// classify applies the health rules in priority order; the first match wins
// for reporting. Remediation still looks at the underlying telemetry and
// performs every applicable action.
func classify(t Telemetry, now time.Time, analyzeAfter time.Duration) Issue {
    if seqScanHeavy(t) {
        return IssueIndexUsage
    }
    if vacuumNeeded(t) {
        return IssueVacuumNeeded
    }
    if analyzeNeeded(t, now, analyzeAfter) {
        return IssueAnalyzeNeeded
    }
    return IssueOK
}

// seqScanHeavy: sequential scans outnumber index scans 2:1. Only reported;
// fixing it means a schema change.
func seqScanHeavy(t Telemetry) bool {
    return t.SeqScans > 2*t.IdxScans && t.SeqScans > 0
}

// vacuumNeeded: dead rows exceed 10% of total write operations.
func vacuumNeeded(t Telemetry) bool {
    ops := t.Inserts + t.Updates + t.Deletes
    return ops > 0 && t.DeadRows*10 > ops
}

func analyzeNeeded(t Telemetry, now time.Time, analyzeAfter time.Duration) bool {
    return t.LastAnalyze.IsZero() || now.Sub(t.LastAnalyze) > analyzeAfter
}

// Summary is the result of one aggregate maintenance run.
type Summary struct {
    RunID string `json:"run_id"`
    Created int `json:"created"`
    Analyzed int `json:"analyzed"`
    Compacted int `json:"compacted"`
    Dropped int `json:"dropped"`
}

// Maintainer owns the aggregate maintenance entry point: keep the ahead
// window full, remediate flagged partitions under a worker cap, then reap.
type Maintainer struct {
    pool *pgxpool.Pool
    catalog Reader
    creator *Creator
    reaper *Reaper
    tables []Table
    workers int
    analyzeAfter time.Duration
    now func() time.Time
    ev *logging.EventLogger

    mu sync.Mutex
    analyzed int
    compacted int
}

func NewMaintainer(pool *pgxpool.Pool, catalog Reader, creator *Creator, reaper *Reaper, tables []Table, workers int, analyzeAfter time.Duration) *Maintainer {
    if workers <= 0 { workers = 4 }
    if analyzeAfter <= 0 { analyzeAfter = 7 * 24 * time.Hour }
    return &Maintainer{
        pool: pool, catalog: catalog, creator: creator, reaper: reaper,
        tables: tables, workers: workers, analyzeAfter: analyzeAfter,
        now: time.Now, ev: logging.NewEventLogger(),
    }
}

func (m *Maintainer) WithClock(now func() time.Time) *Maintainer {
    m.now = now
    return m
}

// HealthCheck evaluates every partition of t and returns only flagged ones.
// Always derived fresh from telemetry; a run cut short leaves no state
// behind and the next run simply re-evaluates.
func (m *Maintainer) HealthCheck(ctx context.Context, t Table) ([]Finding, error) {
    stats, err := m.catalog.ListStats(ctx, t.Name)
    if err != nil { return nil, err }
    now := m.now()
    var findings []Finding
    for _, st := range stats {
        if issue := classify(st.Telemetry, now, m.analyzeAfter); issue != IssueOK {
            findings = append(findings, Finding{Stats: st, Issue: issue})
        }
    }
    return findings, nil
}

// Remediate performs every storage action the finding's telemetry calls for.
// IssueIndexUsage is report-only. Each VACUUM/ANALYZE call is atomic and
// non-resumable; an interrupted one is re-issued next cycle.
func (m *Maintainer) Remediate(ctx context.Context, t Table, f Finding) error {
    p := f.Stats.Partition
    if f.Issue == IssueIndexUsage {
        m.ev.Maintenance("report_index_usage", t.Name, p.Name, true,
            fmt.Sprintf("seq=%d idx=%d", f.Stats.Telemetry.SeqScans, f.Stats.Telemetry.IdxScans))
        return nil
    }
    if m.pool == nil { return &MaintenanceError{Table: t.Name, Partition: p.Name, Op: "remediate", Err: fmt.Errorf("pg pool nil")} }
    if vacuumNeeded(f.Stats.Telemetry) {
        if _, err := m.pool.Exec(ctx, fmt.Sprintf(`VACUUM %s`, pgx.Identifier{p.Name}.Sanitize())); err != nil {
            return &MaintenanceError{Table: t.Name, Partition: p.Name, Op: "vacuum", Err: err}
        }
        m.count(&m.compacted)
        metrics.PartitionsVacuumed.WithLabelValues(t.Name).Inc()
        m.ev.Maintenance("vacuum", t.Name, p.Name, true, "")
    }
    if analyzeNeeded(f.Stats.Telemetry, m.now(), m.analyzeAfter) {
        if _, err := m.pool.Exec(ctx, fmt.Sprintf(`ANALYZE %s`, pgx.Identifier{p.Name}.Sanitize())); err != nil {
            return &MaintenanceError{Table: t.Name, Partition: p.Name, Op: "analyze", Err: err}
        }
        m.count(&m.analyzed)
        metrics.PartitionsAnalyzed.WithLabelValues(t.Name).Inc()
        m.ev.Maintenance("analyze", t.Name, p.Name, true, "")
    }
    return nil
}

func (m *Maintainer) count(c *int) {
    m.mu.Lock()
    *c++
    m.mu.Unlock()
}

// Run is the aggregate, externally triggered entry point: ensure-ahead for
// every table, health check and remediate flagged partitions with at most
// `workers` concurrent actions, then reap. Idempotent; side effects are
// bounded to partition creation, remediation, and expired drops.
func (m *Maintainer) Run(ctx context.Context) (Summary, error) {
    runID := ulid.Make().String()
    started := m.now()
    m.ev.Run("start", runID, 0, 0, 0)
    defer func() { metrics.RunDuration.Observe(time.Since(started).Seconds()) }()

    m.mu.Lock()
    m.analyzed, m.compacted = 0, 0
    m.mu.Unlock()

    sum := Summary{RunID: runID}
    for _, t := range m.tables {
        created, err := m.creator.EnsureAheadPartitions(ctx, t, t.AheadMonths)
        sum.Created += created
        if err != nil {
            logging.Error("ensure_ahead_failed", logging.F("table", t.Name), logging.Err(err))
            continue
        }
    }

    for _, t := range m.tables {
        findings, err := m.HealthCheck(ctx, t)
        if err != nil {
            logging.Error("health_check_failed", logging.F("table", t.Name), logging.Err(err))
            continue
        }
        g, gctx := errgroup.WithContext(ctx)
        g.SetLimit(m.workers)
        for _, f := range findings {
            f := f
            g.Go(func() error {
                if err := m.Remediate(gctx, t, f); err != nil {
                    // Per-partition failure: recorded, retried next cycle.
                    metrics.MaintenanceFailures.WithLabelValues(t.Name).Inc()
                    m.ev.Maintenance("remediate", t.Name, f.Stats.Partition.Name, false, err.Error())
                }
                return gctx.Err()
            })
        }
        if err := g.Wait(); err != nil {
            m.ev.Run("timeout", runID, 0, 0, 0)
            break
        }
    }

    for _, t := range m.tables {
        dropped, err := m.reaper.Reap(ctx, t)
        sum.Dropped += dropped
        if err != nil {
            if iv, ok := err.(*InvariantViolation); ok {
                logging.Error("retention_invariant_violation", logging.F("partition", iv.Partition), logging.Err(iv))
                return sum, iv
            }
            logging.Error("reap_failed", logging.F("table", t.Name), logging.Err(err))
        }
    }

    m.mu.Lock()
    sum.Analyzed, sum.Compacted = m.analyzed, m.compacted
    m.mu.Unlock()
    m.ev.Run("finish", runID, sum.Analyzed, sum.Compacted, sum.Dropped)
    return sum, nil
}
