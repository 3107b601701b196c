package partition

import (
    "errors"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5/pgconn"
)

// ErrAlreadyExists marks the benign outcome of a creation race. It never
// escapes the creator; the loser observes the existing partition as success.
var ErrAlreadyExists = errors.New("partition already exists")

// ErrOutOfRetention is returned when a write's timestamp maps to a range
// already at or before the retention cutoff. The caller must decide whether
// to extend the policy or discard the row; the keeper never recreates a
// reaped partition.
var ErrOutOfRetention = errors.New("partition range is outside the retention horizon")

// MaintenanceError wraps a single partition's failed analyze/vacuum. It does
// not abort the run; the next cycle re-evaluates telemetry and retries.
type MaintenanceError struct {
    Table string
    Partition string
    Op string
    Err error
}

func (e *MaintenanceError) Error() string {
    return fmt.Sprintf("maintenance %s on %s.%s: %v", e.Op, e.Table, e.Partition, e.Err)
}

func (e *MaintenanceError) Unwrap() error { return e.Err }

// InvariantViolation reports an attempted drop of a partition whose range is
// still inside the horizon. The scan only returns expired partitions, so this
// is a bug, not an operational condition; the reap of that table aborts.
type InvariantViolation struct {
    Partition string
    End time.Time
    CutoffAt time.Time
}

func (e *InvariantViolation) Error() string {
    return fmt.Sprintf("refusing to drop %s: range end %s is after cutoff %s",
        e.Partition, e.End.Format(time.RFC3339), e.CutoffAt.Format(time.RFC3339))
}

// asDuplicate maps Postgres duplicate-object errors (duplicate_table from
// DDL, unique_violation from the catalog upsert) onto ErrAlreadyExists so
// creation callers match the race outcome with errors.Is. Anything else
// passes through unchanged.
func asDuplicate(err error) error {
    var pgErr *pgconn.PgError
    if errors.As(err, &pgErr) && (pgErr.Code == "42P07" || pgErr.Code == "23505") {
        return fmt.Errorf("%w (sqlstate %s)", ErrAlreadyExists, pgErr.Code)
    }
    return err
}
