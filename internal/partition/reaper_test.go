package partition

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeReader serves canned catalog contents for unit tests and records the
// order of calls it receives.
type fakeReader struct {
	parts []Partition
	stats []Stats
	err   error
	calls []string
}

func (f *fakeReader) List(ctx context.Context, table string) ([]Partition, error) {
	f.calls = append(f.calls, "List")
	if f.err != nil { return nil, f.err }
	var out []Partition
	for _, p := range f.parts {
		if p.Table == table { out = append(out, p) }
	}
	return out, nil
}

func (f *fakeReader) ListStats(ctx context.Context, table string) ([]Stats, error) {
	f.calls = append(f.calls, "ListStats")
	if f.err != nil { return nil, f.err }
	var out []Stats
	for _, s := range f.stats {
		if s.Partition.Table == table { out = append(out, s) }
	}
	return out, nil
}

func (f *fakeReader) Get(ctx context.Context, table string, start time.Time) (Partition, bool, error) {
	f.calls = append(f.calls, "Get")
	if f.err != nil { return Partition{}, false, f.err }
	for _, p := range f.parts {
		if p.Table == table && p.Range.Start.Equal(MonthStart(start)) {
			return p, true, nil
		}
	}
	return Partition{}, false, nil
}

func monthPartition(table string, year int, month time.Month) Partition {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Partition{
		Table: table,
		Name:  Name(table, start),
		Range: Range{Start: start, End: start.AddDate(0, 1, 0)},
	}
}

func TestExpired_BoundaryInclusiveOfDrop(t *testing.T) {
	// Scenario: 24-month horizon evaluated on day D. A partition whose end
	// equals exactly D-24mo is dropped; anything ending later stays.
	d := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	cutoff := Cutoff(d, 24) // 2024-09-01
	parts := []Partition{
		monthPartition("alerts", 2024, time.July),      // ends 2024-08-01, expired
		monthPartition("alerts", 2024, time.August),    // ends exactly at cutoff, expired
		monthPartition("alerts", 2024, time.September), // ends 2024-10-01, retained
		monthPartition("alerts", 2026, time.August),
	}
	got := expired(parts, cutoff)
	if len(got) != 2 {
		t.Fatalf("expected 2 expired partitions, got %d: %+v", len(got), got)
	}
	if got[0].Name != "alerts_y2024m07" || got[1].Name != "alerts_y2024m08" {
		t.Fatalf("wrong victims: %+v", got)
	}
}

func TestExpired_MidMonthCutoffRetainsStraddler(t *testing.T) {
	// A partition is never dropped while any part of its range is past the
	// cutoff, so the month the cutoff falls inside survives.
	cutoff := time.Date(2024, 8, 15, 10, 0, 0, 0, time.UTC)
	parts := []Partition{
		monthPartition("transactions", 2024, time.July),
		monthPartition("transactions", 2024, time.August), // straddles cutoff
	}
	got := expired(parts, cutoff)
	if len(got) != 1 || got[0].Name != "transactions_y2024m07" {
		t.Fatalf("straddling partition must be retained: %+v", got)
	}
}

func TestScan_OnlyExpiredReturned(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeReader{parts: []Partition{
		monthPartition("alerts", 2024, time.June),
		monthPartition("alerts", 2026, time.August),
	}}
	r := NewReaper(nil, fake).WithClock(func() time.Time { return now })
	got, err := r.Scan(context.Background(), Table{Name: "alerts", RetentionMonths: 24})
	if err != nil { t.Fatal(err) }
	if len(got) != 1 || got[0].Name != "alerts_y2024m06" {
		t.Fatalf("scan returned wrong set: %+v", got)
	}
}

func TestReap_InvariantViolationIsFatal(t *testing.T) {
	// Feed reap a victim list containing a partition still inside the
	// horizon, as a buggy scan would. The assertion must fire before any
	// drop is attempted (the nil pool would error otherwise) and abort.
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	cutoff := Cutoff(now, 24)
	r := NewReaper(nil, &fakeReader{}).WithClock(func() time.Time { return now })
	victims := []Partition{monthPartition("alerts", 2026, time.July)}
	_, err := r.reap(context.Background(), Table{Name: "alerts", RetentionMonths: 24}, victims, cutoff)
	var iv *InvariantViolation
	if !errors.As(err, &iv) {
		t.Fatalf("expected InvariantViolation, got %v", err)
	}
	if iv.Partition != "alerts_y2026m07" || !iv.End.After(iv.CutoffAt) {
		t.Fatalf("violation details wrong: %+v", iv)
	}
}

func TestReap_EmptyScanIsNoop(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	r := NewReaper(nil, &fakeReader{parts: []Partition{
		monthPartition("alerts", 2026, time.August),
	}}).WithClock(func() time.Time { return now })
	dropped, err := r.Reap(context.Background(), Table{Name: "alerts", RetentionMonths: 24})
	if err != nil || dropped != 0 {
		t.Fatalf("expected clean noop, got dropped=%d err=%v", dropped, err)
	}
}

func TestScan_NilPoolErrors(t *testing.T) {
	r := NewReaper(nil, NewCatalog(nil))
	if _, err := r.Scan(context.Background(), Table{Name: "alerts", RetentionMonths: 24}); err == nil {
		t.Fatalf("expected error with nil pool")
	}
}
