package partition

import (
	"context"
	"errors"
	"testing"
	"time"
)

var creatorNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func txTable() Table {
	return Table{Name: "transactions", Column: "occurred_at", RetentionMonths: 36, AheadMonths: 12, Template: "transactions"}
}

func TestEnsurePartitionForTimestamp_OutOfRetention(t *testing.T) {
	c := NewCreator(nil, &fakeReader{}).WithClock(func() time.Time { return creatorNow })
	tbl := txTable()
	// 37 months back: the whole month is below the cutoff, already reaped.
	backdated := creatorNow.AddDate(0, -38, 0)
	_, err := c.EnsurePartitionForTimestamp(context.Background(), tbl, backdated)
	if !errors.Is(err, ErrOutOfRetention) {
		t.Fatalf("expected ErrOutOfRetention, got %v", err)
	}
}

func TestEnsurePartitionForTimestamp_StraddlingMonthAllowed(t *testing.T) {
	// The month containing the cutoff still has retained range, so writes
	// into it are allowed; only fully-expired months are rejected.
	tbl := txTable()
	cutoff := Cutoff(creatorNow, tbl.RetentionMonths)
	ts := MonthStart(cutoff) // inside the straddling month, before the cutoff instant
	existing := Partition{Table: tbl.Name, Name: Name(tbl.Name, MonthStart(ts)), Range: MonthRange(ts), TemplateVersion: 1}
	c := NewCreator(nil, &fakeReader{parts: []Partition{existing}}).WithClock(func() time.Time { return creatorNow })
	p, err := c.EnsurePartitionForTimestamp(context.Background(), tbl, ts)
	if err != nil { t.Fatalf("straddling month rejected: %v", err) }
	if p.Name != existing.Name {
		t.Fatalf("got %s, want %s", p.Name, existing.Name)
	}
}

func TestEnsurePartitionForTimestamp_ExistingIsFastPath(t *testing.T) {
	// With the partition already in the catalog no pool access happens at
	// all (pool is nil); the second ensure call for the same month returns
	// the same partition and no error.
	tbl := txTable()
	ts := creatorNow
	existing := Partition{Table: tbl.Name, Name: Name(tbl.Name, MonthStart(ts)), Range: MonthRange(ts), TemplateVersion: 1}
	c := NewCreator(nil, &fakeReader{parts: []Partition{existing}}).WithClock(func() time.Time { return creatorNow })
	for i := 0; i < 2; i++ {
		p, err := c.EnsurePartitionForTimestamp(context.Background(), tbl, ts)
		if err != nil { t.Fatalf("call %d: %v", i, err) }
		if !p.Range.Contains(ts) {
			t.Fatalf("call %d: returned range %v does not contain %v", i, p.Range, ts)
		}
	}
}

func TestEnsureAheadPartitions_AllPresentIsNoop(t *testing.T) {
	tbl := txTable()
	var parts []Partition
	start := MonthStart(creatorNow)
	for i := 0; i <= tbl.AheadMonths; i++ {
		s := start.AddDate(0, i, 0)
		parts = append(parts, Partition{
			Table: tbl.Name, Name: Name(tbl.Name, s),
			Range: Range{Start: s, End: s.AddDate(0, 1, 0)}, TemplateVersion: 1,
		})
	}
	c := NewCreator(nil, &fakeReader{parts: parts}).WithClock(func() time.Time { return creatorNow })
	created, err := c.EnsureAheadPartitions(context.Background(), tbl, tbl.AheadMonths)
	if err != nil { t.Fatal(err) }
	if created != 0 {
		t.Fatalf("ahead window already full, created=%d", created)
	}
}

func TestEnsureAheadPartitions_MissingMonthNeedsPool(t *testing.T) {
	// A hole in the ahead window forces the creation path, which requires
	// the pool; with a nil pool that surfaces as an error, proving the
	// fast path did not silently skip the gap.
	tbl := txTable()
	c := NewCreator(nil, &fakeReader{}).WithClock(func() time.Time { return creatorNow })
	if _, err := c.EnsureAheadPartitions(context.Background(), tbl, 1); err == nil {
		t.Fatalf("expected creation attempt to fail with nil pool")
	}
}

func TestIndexTemplates_CoverManagedTables(t *testing.T) {
	for _, name := range []string{"alerts", "transactions"} {
		if len(indexTemplates[name]) == 0 {
			t.Fatalf("no index template for %s", name)
		}
	}
	// The covering KPI index is part of the transactions template.
	found := false
	for _, ix := range indexTemplates["transactions"] {
		if ix.suffix == "kpi_cover" { found = true }
	}
	if !found {
		t.Fatalf("transactions template missing covering index")
	}
}
