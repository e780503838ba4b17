package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

var (
	// ErrQuotaExhausted means the server refused to grant any recording time.
	ErrQuotaExhausted = errors.New("monthly quota exhausted")

	// ErrSyncFailed means server state could not be read. Recording is not
	// allowed on stale local state.
	ErrSyncFailed = errors.New("quota sync failed")

	// ErrAutoRecordNotAllowed means the current plan lacks auto-record.
	ErrAutoRecordNotAllowed = errors.New("plan does not include auto-record")

	errAnalysisPending = errors.New("analysis still processing")
)

// Capturer records audio for at most maxSeconds and returns the captured
// stream along with the actual duration recorded.
type Capturer interface {
	Capture(ctx context.Context, maxSeconds float64) (audio io.Reader, actualSeconds float64, err error)
}

// RecordingSession is the outcome of one orchestrated recording.
type RecordingSession struct {
	SessionID       string
	GrantedSeconds  float64
	RecordedSeconds float64
	Result          *AnalysisResult
}

// Orchestrator drives the full recording flow: reserve quota, capture,
// submit for analysis, settle the reservation, and recover sessions that
// were interrupted mid-flight.
type Orchestrator struct {
	api        *APIClient
	clock      *ClockSource
	store      *QuotaStore
	ledger     *SessionLedger
	recognizer Recognizer
	capturer   Capturer

	pollInterval    time.Duration
	maxPollAttempts int
}

func NewOrchestrator(api *APIClient, clock *ClockSource, store *QuotaStore, ledger *SessionLedger, recognizer Recognizer, capturer Capturer) *Orchestrator {
	return &Orchestrator{
		api:             api,
		clock:           clock,
		store:           store,
		ledger:          ledger,
		recognizer:      recognizer,
		capturer:        capturer,
		pollInterval:    2 * time.Second,
		maxPollAttempts: 30,
	}
}

// Sync refreshes the trusted clock and reconciles the local usage cache
// with the server ledger. It fails closed: if either step fails, the error
// propagates and callers must not start a recording on the stale cache.
func (o *Orchestrator) Sync(ctx context.Context) (*QuotaState, error) {
	if err := o.clock.Sync(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	now := o.clock.Now()
	state, err := o.store.Load(now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	status, err := o.api.QuotaStatus(ctx, monthKey(now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	state.Merge(status.UsedSeconds)
	if err := o.store.Save(state); err != nil {
		slog.Warn("failed to persist quota state", "error", err)
	}
	return state, nil
}

// Record runs one recording session end to end. The server reservation
// bounds the capture duration; a grant smaller than requested shortens the
// recording rather than refusing it.
func (o *Orchestrator) Record(ctx context.Context, requestedSeconds float64) (*RecordingSession, error) {
	state, err := o.Sync(ctx)
	if err != nil {
		return nil, err
	}

	now := o.clock.Now()
	key := monthKey(now)

	grant, err := o.api.Reserve(ctx, key, requestedSeconds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	if !grant.Success || grant.Reserved <= 0 {
		return nil, ErrQuotaExhausted
	}

	audio, actual, err := o.capturer.Capture(ctx, grant.Reserved)
	if err != nil {
		// Nothing was recorded. Release the whole reservation.
		o.settle(ctx, key, 0, grant.Reserved)
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	if actual > grant.Reserved {
		actual = grant.Reserved
	}

	sessionID, err := o.recognizer.Submit(ctx, audio)
	if err != nil {
		// The audio was captured, so the quota was genuinely spent even
		// though analysis never started.
		o.settle(ctx, key, actual, grant.Reserved)
		return nil, fmt.Errorf("analysis submit failed: %w", err)
	}

	if err := o.ledger.Add(sessionID); err != nil {
		slog.Warn("failed to persist pending session", "session_id", sessionID, "error", err)
	}

	o.settle(ctx, key, actual, grant.Reserved)

	state.AddUsage(actual)
	if err := o.store.Save(state); err != nil {
		slog.Warn("failed to persist quota state", "error", err)
	}

	session := &RecordingSession{
		SessionID:       sessionID,
		GrantedSeconds:  grant.Reserved,
		RecordedSeconds: actual,
	}

	result, err := o.awaitResult(ctx, sessionID)
	if err != nil {
		// The ledger still holds the session; recovery will retry later.
		return session, nil
	}

	session.Result = result
	if err := o.ledger.Remove(sessionID); err != nil {
		slog.Warn("failed to clear completed session", "session_id", sessionID, "error", err)
	}
	return session, nil
}

// RecordAuto gates automatic background recording on the plan entitlement
// before running the normal flow.
func (o *Orchestrator) RecordAuto(ctx context.Context, requestedSeconds float64) (*RecordingSession, error) {
	ent, err := o.api.Entitlements(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	if !ent.CanAutoRecord {
		return nil, ErrAutoRecordNotAllowed
	}
	return o.Record(ctx, requestedSeconds)
}

// RecoverPendingSessions polls every ledgered session once. Finished
// sessions are returned and cleared; sessions the service no longer knows
// are cleared without a result; still-processing sessions stay in the
// ledger for the next recovery pass.
func (o *Orchestrator) RecoverPendingSessions(ctx context.Context) ([]*AnalysisResult, error) {
	var recovered []*AnalysisResult

	for _, id := range o.ledger.ListPending() {
		result, err := o.recognizer.Poll(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			slog.Info("pending session expired server-side", "session_id", id)
			if err := o.ledger.Remove(id); err != nil {
				slog.Warn("failed to clear expired session", "session_id", id, "error", err)
			}
			continue
		}
		if err != nil {
			// Transient. Keep the session for the next pass.
			slog.Warn("session recovery poll failed", "session_id", id, "error", err)
			continue
		}

		if result.Status != "done" {
			continue
		}

		recovered = append(recovered, result)
		if err := o.ledger.Remove(id); err != nil {
			slog.Warn("failed to clear recovered session", "session_id", id, "error", err)
		}
	}

	return recovered, nil
}

// settle reports actual usage and releases the unused remainder of a
// reservation. Best effort: the server sweeper reclaims the reservation
// eventually even if this call is lost.
func (o *Orchestrator) settle(ctx context.Context, yearMonth string, actual, reserved float64) {
	released := reserved
	if err := o.api.Consume(ctx, yearMonth, actual, &released); err != nil {
		slog.Warn("failed to settle reservation",
			"year_month", yearMonth, "actual", actual, "error", err)
	}
}

// awaitResult polls at a fixed interval up to maxPollAttempts. A session
// still processing after the last attempt stays in the ledger and is picked
// up by the next recovery pass.
func (o *Orchestrator) awaitResult(ctx context.Context, sessionID string) (*AnalysisResult, error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < o.maxPollAttempts; attempt++ {
		result, err := o.recognizer.Poll(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if result.Status == "done" {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, errAnalysisPending
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
