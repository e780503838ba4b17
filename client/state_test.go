package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestQuotaStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.json")
	store := NewQuotaStore(path)
	now := time.Date(2026, time.August, 10, 0, 0, 0, 0, time.UTC)

	state, err := store.Load(now)
	if err != nil {
		t.Fatalf("Load fresh: %v", err)
	}
	if state.UsedSeconds != 0 || state.Year != 2026 || state.Month != 8 {
		t.Fatalf("fresh state = %+v", state)
	}

	state.AddUsage(42.5)
	if err := store.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := store.Load(now)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.UsedSeconds != 42.5 {
		t.Fatalf("used = %v, want 42.5", reloaded.UsedSeconds)
	}
}

func TestQuotaStoreResetsOnNewMonth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.json")
	store := NewQuotaStore(path)

	august := time.Date(2026, time.August, 31, 23, 0, 0, 0, time.UTC)
	state, _ := store.Load(august)
	state.AddUsage(170)
	if err := store.Save(state); err != nil {
		t.Fatal(err)
	}

	september := time.Date(2026, time.September, 1, 0, 30, 0, 0, time.UTC)
	rolled, err := store.Load(september)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rolled.UsedSeconds != 0 {
		t.Fatalf("used after rollover = %v, want 0", rolled.UsedSeconds)
	}
	if rolled.Month != 9 {
		t.Fatalf("month = %d, want 9", rolled.Month)
	}
}

func TestQuotaStoreSurvivesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quota.json")
	if err := os.WriteFile(path, []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewQuotaStore(path)
	state, err := store.Load(time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.UsedSeconds != 0 {
		t.Fatalf("corrupt file must read as fresh, got %+v", state)
	}
}

func TestMergeIsMonotonicUpward(t *testing.T) {
	state := &QuotaState{UsedSeconds: 120}

	// Server ahead: adopt the server figure.
	state.Merge(150)
	if state.UsedSeconds != 150 {
		t.Fatalf("used = %v, want 150", state.UsedSeconds)
	}

	// Server behind (its Consume ack was lost): keep the local figure.
	state.Merge(100)
	if state.UsedSeconds != 150 {
		t.Fatalf("used = %v, want 150 after stale merge", state.UsedSeconds)
	}
}

func TestAddUsageIgnoresNonPositive(t *testing.T) {
	state := &QuotaState{UsedSeconds: 10}
	state.AddUsage(-5)
	state.AddUsage(0)
	if state.UsedSeconds != 10 {
		t.Fatalf("used = %v, want 10", state.UsedSeconds)
	}
}
