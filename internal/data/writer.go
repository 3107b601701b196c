package data

import (
    "context"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/example/partition-keeper/internal/partition"
)

// Writer is the partition-safe write path: every insert first ensures the
// destination partition exists (creation happens-before insert), then lets
// the engine route the row through the parent table. Backdated rows whose
// month was already reaped fail with partition.ErrOutOfRetention.
type Writer struct {
    pool    *pgxpool.Pool
    creator *partition.Creator
    alerts  partition.Table
    txs     partition.Table
}

func NewWriter(pool *pgxpool.Pool, creator *partition.Creator, alerts, txs partition.Table) *Writer {
    return &Writer{pool: pool, creator: creator, alerts: alerts, txs: txs}
}

type AlertRow struct {
    ID string
    CustomerDocument string
    Rule string
    Severity string
    Status string
    Details []byte
    CreatedAt time.Time
}

type TransactionRow struct {
    ID string
    CustomerDocument string
    CounterpartyDocument string
    Amount float64
    Type string
    Status string
    Channel string
    OccurredAt time.Time
}

func (w *Writer) InsertAlert(ctx context.Context, row AlertRow) error {
    if _, err := w.creator.EnsurePartitionForTimestamp(ctx, w.alerts, row.CreatedAt); err != nil {
        return err
    }
    cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    _, err := w.pool.Exec(cctx,
        `INSERT INTO alerts (id, customer_document, rule, severity, status, details, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
        row.ID, row.CustomerDocument, row.Rule, row.Severity, row.Status, row.Details, row.CreatedAt)
    return err
}

func (w *Writer) InsertTransaction(ctx context.Context, row TransactionRow) error {
    if _, err := w.creator.EnsurePartitionForTimestamp(ctx, w.txs, row.OccurredAt); err != nil {
        return err
    }
    cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    _, err := w.pool.Exec(cctx,
        `INSERT INTO transactions (id, customer_document, counterparty_document, amount, tx_type, status, channel, occurred_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
        row.ID, row.CustomerDocument, row.CounterpartyDocument, row.Amount, row.Type, row.Status, row.Channel, row.OccurredAt)
    return err
}

// InsertTransactionsBatch inserts many rows efficiently with CopyFrom. The
// destination months are ensured once up front; a single out-of-retention
// row fails the whole batch before anything is written.
func (w *Writer) InsertTransactionsBatch(ctx context.Context, rows []TransactionRow) error {
    if len(rows) == 0 { return nil }
    seen := map[time.Time]bool{}
    for _, r := range rows {
        start := partition.MonthStart(r.OccurredAt)
        if seen[start] { continue }
        if _, err := w.creator.EnsurePartitionForTimestamp(ctx, w.txs, r.OccurredAt); err != nil {
            return fmt.Errorf("batch month %s: %w", start.Format("2006-01"), err)
        }
        seen[start] = true
    }
    cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
    defer cancel()
    conn, err := w.pool.Acquire(cctx)
    if err != nil { return err }
    defer conn.Release()
    input := make([][]any, 0, len(rows))
    for _, r := range rows {
        input = append(input, []any{r.ID, r.CustomerDocument, r.CounterpartyDocument, r.Amount, r.Type, r.Status, r.Channel, r.OccurredAt})
    }
    _, err = conn.Conn().CopyFrom(cctx, pgx.Identifier{"transactions"},
        []string{"id", "customer_document", "counterparty_document", "amount", "tx_type", "status", "channel", "occurred_at"},
        pgx.CopyFromRows(input))
    return err
}
