package query

import (
	"context"
	"testing"
	"time"
)

func TestPeriodBounds_EndDateInclusive(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	lo, hi := periodBounds(start, end)
	if !lo.Equal(start) {
		t.Fatalf("lower bound moved: %v", lo)
	}
	// End-date inclusive semantics: upper bound is the day after, exclusive.
	if !hi.Equal(time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("upper bound wrong: %v", hi)
	}
	// A transaction late on the end date falls inside the range.
	lastMoment := time.Date(2026, 3, 20, 23, 59, 59, 0, time.UTC)
	if !(lastMoment.After(lo) && lastMoment.Before(hi)) {
		t.Fatalf("end-of-day transaction excluded: %v not in [%v, %v)", lastMoment, lo, hi)
	}
}

func TestPeriodBounds_DropsTimeOfDay(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	lo, hi := periodBounds(start, end)
	if lo.Hour() != 0 || hi.Hour() != 0 {
		t.Fatalf("bounds must be day-aligned: %v %v", lo, hi)
	}
	if !hi.Equal(lo.AddDate(0, 0, 1)) {
		t.Fatalf("single-day period must span exactly one day: %v %v", lo, hi)
	}
}

func TestPeriodBounds_CrossMonth(t *testing.T) {
	// The closed-open range can span partitions; pruning is the engine's
	// job, the bounds just have to be right.
	lo, hi := periodBounds(
		time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
	)
	if lo.Month() != time.January || hi.Month() != time.February || hi.Day() != 6 {
		t.Fatalf("cross-month bounds wrong: %v %v", lo, hi)
	}
}

func TestDirectionClasses_Disjoint(t *testing.T) {
	out := map[string]bool{}
	for _, s := range outgoingTypes { out[s] = true }
	for _, s := range incomingTypes {
		if out[s] {
			t.Fatalf("type %s in both direction classes", s)
		}
	}
}

func TestRouter_NilPoolErrors(t *testing.T) {
	r := NewRouter(nil)
	now := time.Now()
	if _, err := r.KPIs(context.Background(), "doc", now, now); err == nil {
		t.Fatalf("expected error with nil pool")
	}
	if _, err := r.ByCustomerAndPeriod(context.Background(), "doc", now, now); err == nil {
		t.Fatalf("expected error with nil pool")
	}
}
