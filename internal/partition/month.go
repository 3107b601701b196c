package partition

import (
    "fmt"
    "time"
)

// Table describes one managed logical table.
type Table struct {
    Name string
    Column string
    RetentionMonths int
    AheadMonths int
    Template string
}

// Range is a half-open [Start, End) window aligned to calendar months in UTC.
type Range struct {
    Start time.Time
    End   time.Time
}

func (r Range) Contains(ts time.Time) bool {
    return !ts.Before(r.Start) && ts.Before(r.End)
}

func (r Range) String() string {
    return fmt.Sprintf("[%s, %s)", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
}

// MonthStart truncates ts to the first instant of its calendar month in UTC.
func MonthStart(ts time.Time) time.Time {
    u := ts.UTC()
    return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthRange returns the calendar-month range containing ts.
func MonthRange(ts time.Time) Range {
    start := MonthStart(ts)
    return Range{Start: start, End: start.AddDate(0, 1, 0)}
}

// Cutoff is the retention boundary: partitions fully at or before it may be
// dropped, timestamps at or before it may no longer be written.
func Cutoff(now time.Time, retentionMonths int) time.Time {
    return now.UTC().AddDate(0, -retentionMonths, 0)
}

// Name returns the physical partition name for the month starting at start,
// e.g. transactions_y2026m08.
func Name(table string, start time.Time) string {
    s := start.UTC()
    return fmt.Sprintf("%s_y%04dm%02d", table, s.Year(), int(s.Month()))
}

// monthKey packs a month into a stable int32 for advisory locking.
func monthKey(start time.Time) int32 {
    s := start.UTC()
    return int32(s.Year()*12 + int(s.Month()) - 1)
}
