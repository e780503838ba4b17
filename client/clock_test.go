package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestClockSourceSync(t *testing.T) {
	// Server clock runs one hour ahead of the local clock.
	serverNow := time.Now().Add(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/time" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"unix_ms": ` + timeMillis(serverNow) + `}`))
	}))
	defer srv.Close()

	c := NewClockSource(srv.URL)
	if !c.Degraded() {
		t.Fatal("unsynced clock must report degraded")
	}

	if err := c.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if c.Degraded() {
		t.Fatal("synced clock must not report degraded")
	}

	drift := c.Now().Sub(serverNow)
	if drift < -time.Second || drift > time.Second {
		t.Fatalf("clock drift %v, want within a second of server time", drift)
	}
}

func TestClockSourceDegradedOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClockSource(srv.URL)
	if err := c.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
	if !c.Degraded() {
		t.Fatal("failed sync must leave the clock degraded")
	}
}

func TestClockSourceRecoversFromDegraded(t *testing.T) {
	healthy := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"unix_ms": ` + timeMillis(time.Now()) + `}`))
	}))
	defer srv.Close()

	c := NewClockSource(srv.URL)
	_ = c.Sync(context.Background())
	if !c.Degraded() {
		t.Fatal("expected degraded after failed sync")
	}

	healthy = true
	if err := c.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if c.Degraded() {
		t.Fatal("successful sync must clear degraded")
	}
}

func timeMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
