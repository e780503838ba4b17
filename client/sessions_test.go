package client

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSessionLedgerPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	l, err := NewSessionLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"s-2", "s-1", "s-3"} {
		if err := l.Add(id); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}

	// Simulate an app restart.
	reopened, err := NewSessionLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"s-1", "s-2", "s-3"}
	if got := reopened.ListPending(); !reflect.DeepEqual(got, want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
}

func TestSessionLedgerAddIsIdempotent(t *testing.T) {
	l, err := NewSessionLedger(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := l.Add("s-1"); err != nil {
			t.Fatal(err)
		}
	}
	if got := l.ListPending(); len(got) != 1 {
		t.Fatalf("pending = %v, want single entry", got)
	}
}

func TestSessionLedgerRemoveIsIdempotent(t *testing.T) {
	l, err := NewSessionLedger(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatal(err)
	}

	if err := l.Add("s-1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Remove("s-1"); err != nil {
		t.Fatal(err)
	}
	// Removing again, or removing something never added, is a no-op.
	if err := l.Remove("s-1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Remove("never-added"); err != nil {
		t.Fatal(err)
	}
	if got := l.ListPending(); len(got) != 0 {
		t.Fatalf("pending = %v, want empty", got)
	}
}

func TestSessionLedgerRejectsEmptyID(t *testing.T) {
	l, err := NewSessionLedger(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Add(""); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestSessionLedgerSurvivesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := NewSessionLedger(path)
	if err != nil {
		t.Fatalf("NewSessionLedger: %v", err)
	}
	if got := l.ListPending(); len(got) != 0 {
		t.Fatalf("pending = %v, want empty after corrupt load", got)
	}
}
