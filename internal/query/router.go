package query

import (
    "context"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5/pgxpool"
)

// Transaction direction classes: amounts are stored as positive magnitudes,
// tx_type carries the direction.
var (
    incomingTypes = []string{"CREDIT", "PIX_IN", "TRANSFER_IN", "DEPOSIT"}
    outgoingTypes = []string{"DEBIT", "PIX_OUT", "TRANSFER_OUT", "WITHDRAWAL"}
)

// Router serves parameterized reads over the stable transactions view. Every
// query bounds the partition key with a closed-open range so the engine
// prunes to the partitions overlapping the period; an unbounded or
// equality-only predicate on the key never leaves this package.
type Router struct {
    pool *pgxpool.Pool
}

func NewRouter(pool *pgxpool.Pool) *Router {
    return &Router{pool: pool}
}

// periodBounds converts an inclusive [start, end] date pair into the
// closed-open instant range [start 00:00, end+1d 00:00) in UTC.
func periodBounds(start, end time.Time) (time.Time, time.Time) {
    s := start.UTC()
    e := end.UTC()
    lo := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
    hi := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
    return lo, hi
}

type Transaction struct {
    ID string
    CustomerDocument string
    CounterpartyDocument string
    Amount float64
    Type string
    Status string
    Channel string
    OccurredAt time.Time
}

const txColumns = `id, customer_document, COALESCE(counterparty_document, ''), amount, tx_type, status, COALESCE(channel, ''), occurred_at`

func (r *Router) scanTransactions(ctx context.Context, sql string, args ...any) ([]Transaction, error) {
    if r.pool == nil { return nil, fmt.Errorf("pg pool nil") }
    rows, err := r.pool.Query(ctx, sql, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []Transaction
    for rows.Next() {
        var t Transaction
        if err := rows.Scan(&t.ID, &t.CustomerDocument, &t.CounterpartyDocument, &t.Amount, &t.Type, &t.Status, &t.Channel, &t.OccurredAt); err != nil {
            return nil, err
        }
        out = append(out, t)
    }
    return out, rows.Err()
}

// ByCustomerAndPeriod returns the customer's transactions in the period,
// newest first.
func (r *Router) ByCustomerAndPeriod(ctx context.Context, doc string, start, end time.Time) ([]Transaction, error) {
    lo, hi := periodBounds(start, end)
    return r.scanTransactions(ctx, `
SELECT `+txColumns+`
FROM transactions_view
WHERE customer_document = $1 AND occurred_at >= $2 AND occurred_at < $3
ORDER BY occurred_at DESC`, doc, lo, hi)
}

// ByStatusAndPeriod returns transactions with the given status in the
// period, newest first.
func (r *Router) ByStatusAndPeriod(ctx context.Context, status string, start, end time.Time) ([]Transaction, error) {
    lo, hi := periodBounds(start, end)
    return r.scanTransactions(ctx, `
SELECT `+txColumns+`
FROM transactions_view
WHERE status = $1 AND occurred_at >= $2 AND occurred_at < $3
ORDER BY occurred_at DESC`, status, lo, hi)
}

// KPIReport aggregates a customer's activity over a period. All fields are
// zero, never null, when no rows match.
type KPIReport struct {
    TotalVolume float64 `json:"total_volume"`
    TransactionCount int64 `json:"transaction_count"`
    AverageAmount float64 `json:"average_amount"`
    MaxAmount float64 `json:"max_amount"`
    IncomingVolume float64 `json:"incoming_volume"`
    OutgoingVolume float64 `json:"outgoing_volume"`
    UniqueCounterparties int64 `json:"unique_counterparties"`
}

// KPIs computes the period aggregate. total_volume sums magnitudes across
// both directions; the incoming/outgoing split derives from the tx_type
// class.
func (r *Router) KPIs(ctx context.Context, doc string, start, end time.Time) (KPIReport, error) {
    if r.pool == nil { return KPIReport{}, fmt.Errorf("pg pool nil") }
    lo, hi := periodBounds(start, end)
    var rep KPIReport
    err := r.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(amount), 0),
       COUNT(*),
       COALESCE(AVG(amount), 0),
       COALESCE(MAX(amount), 0),
       COALESCE(SUM(amount) FILTER (WHERE tx_type = ANY($4)), 0),
       COALESCE(SUM(amount) FILTER (WHERE tx_type = ANY($5)), 0),
       COUNT(DISTINCT counterparty_document)
FROM transactions_view
WHERE customer_document = $1 AND occurred_at >= $2 AND occurred_at < $3`,
        doc, lo, hi, incomingTypes, outgoingTypes).
        Scan(&rep.TotalVolume, &rep.TransactionCount, &rep.AverageAmount, &rep.MaxAmount,
            &rep.IncomingVolume, &rep.OutgoingVolume, &rep.UniqueCounterparties)
    if err != nil { return KPIReport{}, err }
    return rep, nil
}

// CounterpartyTotal is one row of the top-counterparties ranking.
type CounterpartyTotal struct {
    Document string
    Total float64
    Count int64
    LastAt time.Time
}

// TopCounterparties ranks counterparties by total amount, ties broken by
// most recent transaction.
func (r *Router) TopCounterparties(ctx context.Context, doc string, start, end time.Time, limit int) ([]CounterpartyTotal, error) {
    if r.pool == nil { return nil, fmt.Errorf("pg pool nil") }
    lo, hi := periodBounds(start, end)
    rows, err := r.pool.Query(ctx, `
SELECT counterparty_document, SUM(amount), COUNT(*), MAX(occurred_at)
FROM transactions_view
WHERE customer_document = $1 AND occurred_at >= $2 AND occurred_at < $3
  AND counterparty_document IS NOT NULL
GROUP BY counterparty_document
ORDER BY SUM(amount) DESC, MAX(occurred_at) DESC
LIMIT $4`, doc, lo, hi, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []CounterpartyTotal
    for rows.Next() {
        var c CounterpartyTotal
        if err := rows.Scan(&c.Document, &c.Total, &c.Count, &c.LastAt); err != nil {
            return nil, err
        }
        out = append(out, c)
    }
    return out, rows.Err()
}

// MainTransactions returns the largest transactions of the period, ties
// broken by transaction time descending.
func (r *Router) MainTransactions(ctx context.Context, doc string, start, end time.Time, limit int) ([]Transaction, error) {
    lo, hi := periodBounds(start, end)
    return r.scanTransactions(ctx, `
SELECT `+txColumns+`
FROM transactions_view
WHERE customer_document = $1 AND occurred_at >= $2 AND occurred_at < $3
ORDER BY amount DESC, occurred_at DESC
LIMIT $4`, doc, lo, hi, limit)
}

// ChannelPattern aggregates a customer's activity per channel. PeakHour is
// the mode of hour-of-day across the channel's transactions.
type ChannelPattern struct {
    Channel string
    Count int64
    Volume float64
    Average float64
    PeakHour int
}

func (r *Router) PatternsByChannel(ctx context.Context, doc string, start, end time.Time) ([]ChannelPattern, error) {
    if r.pool == nil { return nil, fmt.Errorf("pg pool nil") }
    lo, hi := periodBounds(start, end)
    rows, err := r.pool.Query(ctx, `
SELECT COALESCE(channel, ''), COUNT(*), COALESCE(SUM(amount), 0), COALESCE(AVG(amount), 0),
       MODE() WITHIN GROUP (ORDER BY EXTRACT(HOUR FROM occurred_at AT TIME ZONE 'UTC'))::int
FROM transactions_view
WHERE customer_document = $1 AND occurred_at >= $2 AND occurred_at < $3
GROUP BY channel
ORDER BY SUM(amount) DESC`, doc, lo, hi)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []ChannelPattern
    for rows.Next() {
        var p ChannelPattern
        if err := rows.Scan(&p.Channel, &p.Count, &p.Volume, &p.Average, &p.PeakHour); err != nil {
            return nil, err
        }
        out = append(out, p)
    }
    return out, rows.Err()
}
