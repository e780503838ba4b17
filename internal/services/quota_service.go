package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hourglass-app/kotonoiro-backend/internal/models"
	"github.com/hourglass-app/kotonoiro-backend/internal/plan"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidMonthKey = errors.New("yearMonth must be formatted as YYYY-MM")

// ReserveResult is the outcome of a reservation attempt. A refused
// reservation (limit reached) is a normal outcome, not an error.
type ReserveResult struct {
	Granted   bool
	Reserved  float64
	Remaining float64
	Reason    string
}

// QuotaService owns the per-user monthly ledger. Every mutation runs inside
// a transaction holding a row lock on the ledger entry, so concurrent
// reservations from multiple devices serialize instead of both observing
// stale headroom.
type QuotaService struct {
	db *gorm.DB
}

func NewQuotaService(db *gorm.DB) *QuotaService {
	return &QuotaService{db: db}
}

// Reserve provisionally holds up to requestedSeconds against the caller's
// remaining monthly quota. Grants are partial: if less than the requested
// amount remains, the remainder is granted and the recording is expected to
// cap itself accordingly.
func (s *QuotaService) Reserve(ctx context.Context, userID uuid.UUID, yearMonth string, requestedSeconds float64) (*ReserveResult, error) {
	if err := validateMonthKey(yearMonth); err != nil {
		return nil, err
	}
	if requestedSeconds <= 0 {
		return nil, errors.New("requestedSeconds must be positive")
	}

	var result ReserveResult
	err := s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ceiling := s.ceilingFor(tx, userID)

			entry, err := lockLedgerEntry(tx, userID, yearMonth)
			if err != nil {
				return err
			}

			result = applyReservation(entry, requestedSeconds, ceiling, time.Now().UTC())
			if !result.Granted {
				return nil
			}
			return tx.Save(entry).Error
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Granted {
		slog.Info("quota reserved",
			"user_id", userID.String(), "year_month", yearMonth,
			"reserved", result.Reserved, "remaining", result.Remaining)
	}
	return &result, nil
}

// Consume converts a prior reservation into billed usage. It operates
// against the month key the caller passes, not the server's current month,
// so consumption that arrives after a window rollover still credits the
// month the recording happened in. releasedSeconds nil releases the entire
// outstanding reservation.
func (s *QuotaService) Consume(ctx context.Context, userID uuid.UUID, yearMonth string, actualSeconds float64, releasedSeconds *float64) error {
	if err := validateMonthKey(yearMonth); err != nil {
		return err
	}
	if actualSeconds < 0 {
		return errors.New("actualSeconds must not be negative")
	}

	err := s.withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			entry, err := lockLedgerEntry(tx, userID, yearMonth)
			if err != nil {
				return err
			}
			applyConsumption(entry, actualSeconds, releasedSeconds, time.Now().UTC())
			return tx.Save(entry).Error
		})
	})
	if err != nil {
		return err
	}

	slog.Info("quota consumed",
		"user_id", userID.String(), "year_month", yearMonth, "actual", actualSeconds)
	return nil
}

// Status reports the ledger state for one month. A month with no entry
// reads as zero usage.
func (s *QuotaService) Status(ctx context.Context, userID uuid.UUID, yearMonth string) (*models.QuotaLedger, plan.Type, error) {
	if err := validateMonthKey(yearMonth); err != nil {
		return nil, plan.Free, err
	}

	p := s.ceilingPlan(s.db.WithContext(ctx), userID)

	var entry models.QuotaLedger
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND year_month = ?", userID, yearMonth).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.QuotaLedger{UserID: userID, YearMonth: yearMonth}, p, nil
	}
	if err != nil {
		return nil, plan.Free, err
	}
	return &entry, p, nil
}

// History lists all ledger months for a user, newest first. Past months are
// retained indefinitely for audit and history display.
func (s *QuotaService) History(ctx context.Context, userID uuid.UUID) ([]models.QuotaLedger, error) {
	var entries []models.QuotaLedger
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("year_month DESC").
		Find(&entries).Error
	return entries, err
}

// ReleaseStaleReservations zeroes reservations that have not been touched
// within the TTL. A client that crashed between Reserve and Consume would
// otherwise hold that capacity for the rest of the month.
func (s *QuotaService) ReleaseStaleReservations(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	result := s.db.WithContext(ctx).
		Model(&models.QuotaLedger{}).
		Where("reserved_seconds > 0 AND reserved_updated_at < ?", cutoff).
		Updates(map[string]interface{}{
			"reserved_seconds":    0,
			"reserved_updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

// StartSweeper launches the periodic stale-reservation release.
func (s *QuotaService) StartSweeper(ttl time.Duration, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				released, err := s.ReleaseStaleReservations(context.Background(), ttl)
				if err != nil {
					slog.Error("reservation sweep failed", "error", err)
				} else if released > 0 {
					slog.Info("stale reservations released", "entries", released)
				}
			case <-done:
				return
			}
		}
	}()
}

func (s *QuotaService) ceilingFor(tx *gorm.DB, userID uuid.UUID) float64 {
	return s.ceilingPlan(tx, userID).QuotaCeiling()
}

func (s *QuotaService) ceilingPlan(tx *gorm.DB, userID uuid.UUID) plan.Type {
	var status models.SubscriptionStatus
	if err := tx.Where("user_id = ?", userID).First(&status).Error; err != nil {
		return plan.Free
	}
	return plan.Parse(status.Plan)
}

// lockLedgerEntry loads the (user, month) row under FOR UPDATE, creating it
// on first use. A concurrent first-use insert loses on the unique index and
// is retried by the caller.
func lockLedgerEntry(tx *gorm.DB, userID uuid.UUID, yearMonth string) (*models.QuotaLedger, error) {
	var entry models.QuotaLedger
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND year_month = ?", userID, yearMonth).
		First(&entry).Error
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	entry = models.QuotaLedger{
		ID:                uuid.New(),
		UserID:            userID,
		YearMonth:         yearMonth,
		ReservedUpdatedAt: time.Now().UTC(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return &entry, nil
}

// applyReservation holds the reservation arithmetic apart from the
// transaction plumbing. It mutates entry only when the grant succeeds.
func applyReservation(entry *models.QuotaLedger, requested, ceiling float64, now time.Time) ReserveResult {
	available := ceiling - (entry.UsedSeconds + entry.ReservedSeconds)
	if available <= 0 {
		return ReserveResult{Granted: false, Remaining: 0, Reason: "monthly limit reached"}
	}

	granted := math.Min(requested, available)
	entry.ReservedSeconds += granted
	entry.ReservedUpdatedAt = now
	return ReserveResult{
		Granted:   true,
		Reserved:  granted,
		Remaining: available - granted,
	}
}

func applyConsumption(entry *models.QuotaLedger, actual float64, released *float64, now time.Time) {
	rel := entry.ReservedSeconds
	if released != nil {
		rel = *released
	}
	entry.UsedSeconds += actual
	entry.ReservedSeconds = math.Max(0, entry.ReservedSeconds-rel)
	entry.ReservedUpdatedAt = now
}

func validateMonthKey(yearMonth string) error {
	if _, err := time.Parse("2006-01", yearMonth); err != nil {
		return ErrInvalidMonthKey
	}
	return nil
}

// withRetry re-runs a transaction a few times when Postgres reports a
// conflict between concurrent writers. Callers never see these conflicts
// beyond added latency.
func (s *QuotaService) withRetry(ctx context.Context, fn func() error) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isRetryableTxError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 20 * time.Millisecond):
		}
	}
	return err
}

func isRetryableTxError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "duplicate key value")
}
