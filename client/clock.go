// Package client implements the device-side companion for the quota and
// subscription API: trusted clock sync, a local usage cache, a durable
// recovery ledger, and the recording orchestrator that ties them together.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ClockSource provides trusted wall time. The device clock is only used for
// its monotonic progression; the absolute time comes from the server so that
// users cannot move month boundaries by changing device settings.
type ClockSource struct {
	baseURL string
	http    *http.Client

	offset   time.Duration
	synced   bool
	degraded bool
}

func NewClockSource(baseURL string) *ClockSource {
	return &ClockSource{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Sync fetches server time and records the offset from the local clock.
// On failure the source enters degraded mode and Now falls back to local
// time; callers treat degraded time as untrusted for quota decisions.
func (c *ClockSource) Sync(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/time", nil)
	if err != nil {
		c.degraded = true
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.degraded = true
		return fmt.Errorf("time sync failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.degraded = true
		return fmt.Errorf("time sync failed: status %d", resp.StatusCode)
	}

	var body struct {
		UnixMilli int64 `json:"unix_ms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.degraded = true
		return fmt.Errorf("time sync failed: %w", err)
	}

	serverNow := time.UnixMilli(body.UnixMilli)
	c.offset = serverNow.Sub(time.Now())
	c.synced = true
	c.degraded = false
	return nil
}

// Now returns trusted wall time when synced, local time otherwise.
func (c *ClockSource) Now() time.Time {
	return time.Now().Add(c.offset).UTC()
}

// Degraded reports whether the last sync attempt failed or never happened.
func (c *ClockSource) Degraded() bool {
	return c.degraded || !c.synced
}
