package plan

import (
	"testing"
	"time"
)

func TestParseDefaultsToFree(t *testing.T) {
	cases := map[string]Type{
		"Free":     Free,
		"Standard": Standard,
		"Premium":  Premium,
		"Ultimate": Ultimate,
		"":         Free,
		"standard": Free, // stored plans are case-sensitive
		"Platinum": Free,
	}
	for in, want := range cases {
		if got := Parse(in); got != want {
			t.Errorf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestQuotaCeiling(t *testing.T) {
	cases := map[Type]float64{
		Free:     180,
		Standard: 3600,
		Premium:  10800,
		Ultimate: 28800,
	}
	for p, want := range cases {
		if got := p.QuotaCeiling(); got != want {
			t.Errorf("%v.QuotaCeiling() = %v, want %v", p, got, want)
		}
	}

	if got := Type("bogus").QuotaCeiling(); got != 180 {
		t.Errorf("unknown plan ceiling = %v, want Free ceiling 180", got)
	}
}

func TestEntitlements(t *testing.T) {
	if Free.CanAutoRecord() || Standard.CanAutoRecord() {
		t.Error("Free and Standard must not allow auto-record")
	}
	if !Premium.CanAutoRecord() || !Ultimate.CanAutoRecord() {
		t.Error("Premium and Ultimate must allow auto-record")
	}

	if Ultimate.LogOptOut() != true {
		t.Error("Ultimate must opt out of recognizer logging")
	}
	if Premium.LogOptOut() {
		t.Error("Premium must not opt out of recognizer logging")
	}
}

func TestHistoryWindow(t *testing.T) {
	if got := Free.HistoryMonths(); got != 0 {
		t.Errorf("Free history = %d, want 0", got)
	}
	if got := Standard.HistoryMonths(); got != 6 {
		t.Errorf("Standard history = %d, want 6", got)
	}
	if got := Ultimate.HistoryMonths(); got != -1 {
		t.Errorf("Ultimate history = %d, want -1", got)
	}
}

func TestCanAccessMonth(t *testing.T) {
	current := "2026-08"

	// Current month is always visible.
	for _, p := range []Type{Free, Standard, Premium, Ultimate} {
		if !p.CanAccessMonth(current, current) {
			t.Errorf("%v cannot access current month", p)
		}
	}

	// Free sees only the current month.
	if Free.CanAccessMonth("2026-07", current) {
		t.Error("Free must not access past months")
	}

	// Standard sees six months back, inclusive.
	if !Standard.CanAccessMonth("2026-02", current) {
		t.Error("Standard must access a month six back")
	}
	if Standard.CanAccessMonth("2026-01", current) {
		t.Error("Standard must not access a month seven back")
	}

	// Year boundary.
	if !Standard.CanAccessMonth("2025-12", "2026-01") {
		t.Error("Standard must access the previous month across a year boundary")
	}

	// Unlimited tiers see everything past.
	if !Ultimate.CanAccessMonth("2020-01", current) {
		t.Error("Ultimate must access arbitrarily old months")
	}

	// Future months are never visible.
	if Ultimate.CanAccessMonth("2026-09", current) {
		t.Error("future months must not be accessible")
	}

	// Garbage keys fail closed.
	if Ultimate.CanAccessMonth("not-a-month", current) {
		t.Error("malformed month keys must not be accessible")
	}
}

func TestYearMonth(t *testing.T) {
	ts := time.Date(2026, time.March, 31, 23, 59, 0, 0, time.UTC)
	if got := YearMonth(ts); got != "2026-03" {
		t.Errorf("YearMonth = %q, want 2026-03", got)
	}
}
