package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hourglass-app/kotonoiro-backend/internal/dto"
	"github.com/hourglass-app/kotonoiro-backend/internal/models"
	"github.com/hourglass-app/kotonoiro-backend/internal/plan"
	"github.com/hourglass-app/kotonoiro-backend/internal/playstore"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrInvalidReceipt      = errors.New("invalid receipt format")
	ErrReceiptRejected     = errors.New("receipt rejected")
	ErrUnknownProduct      = errors.New("unknown product id")
	ErrDowngradeNotAllowed = errors.New("only downgrade to Free is allowed")
	ErrFreeTrialExhausted  = errors.New("free trial allowance exhausted")
)

// SubscriptionService is the subscription authority: it decides what plan a
// user is on and what that plan entitles them to. The plan field is written
// only here, never by clients, and every path that cannot prove entitlement
// fails closed to Free.
type SubscriptionService struct {
	db            *gorm.DB
	play          playstore.Client
	catalog       *plan.Catalog
	packageName   string
	strictTimeout time.Duration
}

func NewSubscriptionService(db *gorm.DB, play playstore.Client, catalog *plan.Catalog, packageName string, strictTimeout time.Duration) *SubscriptionService {
	return &SubscriptionService{
		db:            db,
		play:          play,
		catalog:       catalog,
		packageName:   packageName,
		strictTimeout: strictTimeout,
	}
}

// ResolvePlan returns the stored plan, defaulting to Free for users with no
// subscription record.
func (s *SubscriptionService) ResolvePlan(ctx context.Context, userID uuid.UUID) plan.Type {
	var status models.SubscriptionStatus
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&status).Error; err != nil {
		return plan.Free
	}
	return plan.Parse(status.Plan)
}

// Status loads the full stored record, creating a Free default in memory
// (not persisted) when none exists.
func (s *SubscriptionService) Status(ctx context.Context, userID uuid.UUID) (*models.SubscriptionStatus, error) {
	var status models.SubscriptionStatus
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.SubscriptionStatus{UserID: userID, Plan: string(plan.Free)}, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// VerifyReceipt validates a store receipt against the Play Developer API
// and, when valid, persists the purchased plan along with the purchase
// token needed to correlate later RTDNs. Cancelled-but-unexpired
// subscriptions remain entitled; everything ambiguous fails closed.
func (s *SubscriptionService) VerifyReceipt(ctx context.Context, userID uuid.UUID, receipt, platform, productID string) (plan.Type, error) {
	if platform != "GooglePlay" {
		// App Store verification is not configured; fail closed rather
		// than trusting the client's claim.
		return plan.Free, ErrUnsupportedPlatform
	}

	parsed, err := parsePlayReceipt(receipt, s.packageName, productID)
	if err != nil {
		return plan.Free, ErrInvalidReceipt
	}

	purchase, err := s.play.GetSubscription(ctx, parsed.PackageName, parsed.ProductID, parsed.PurchaseToken)
	if err != nil {
		slog.Error("play verification failed", "user_id", userID.String(), "error", err)
		return plan.Free, fmt.Errorf("%w: %v", ErrReceiptRejected, err)
	}

	if valid, reason := evaluatePurchase(purchase, time.Now()); !valid {
		slog.Warn("receipt rejected", "user_id", userID.String(), "reason", reason)
		return plan.Free, fmt.Errorf("%w: %s", ErrReceiptRejected, reason)
	}

	newPlan, ok := s.catalog.PlanFor(parsed.ProductID)
	if !ok {
		return plan.Free, ErrUnknownProduct
	}

	expiry := purchase.ExpiryTime()
	err = s.updateStatus(ctx, userID, func(status *models.SubscriptionStatus) {
		status.Plan = string(newPlan)
		status.PurchaseToken = parsed.PurchaseToken
		status.SubscriptionID = parsed.ProductID
		status.DowngradePending = false
		status.DowngradeReason = ""
		status.ExpiryTime = &expiry
	})
	if err != nil {
		return plan.Free, err
	}

	slog.Info("plan updated from receipt", "user_id", userID.String(), "plan", newPlan)
	return newPlan, nil
}

// CheckStatus re-checks a subscription's live state. Without a receipt the
// stored plan is reported but flagged expired so the client treats the
// subscription as inactive. With a receipt, an observed expiry downgrades
// the stored plan immediately.
func (s *SubscriptionService) CheckStatus(ctx context.Context, userID uuid.UUID, receipt, productID string) (*dto.SubscriptionStatusResponse, error) {
	if receipt == "" {
		stored, err := s.Status(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &dto.SubscriptionStatusResponse{
			Success:   true,
			Plan:      stored.Plan,
			Expired:   true,
			NoReceipt: true,
		}, nil
	}

	parsed, err := parsePlayReceipt(receipt, s.packageName, productID)
	if err != nil {
		return nil, ErrInvalidReceipt
	}
	if parsed.PurchaseToken == "" {
		if err := s.downgradeToFree(ctx, userID, "missing_purchase_token"); err != nil {
			return nil, err
		}
		return &dto.SubscriptionStatusResponse{Success: true, Plan: string(plan.Free), Expired: true}, nil
	}

	purchase, err := s.play.GetSubscription(ctx, parsed.PackageName, parsed.ProductID, parsed.PurchaseToken)
	if err != nil {
		return nil, fmt.Errorf("subscription check failed: %w", err)
	}

	now := time.Now()
	if purchase.ExpiryTime().Before(now) {
		if err := s.downgradeToFree(ctx, userID, "subscription_expired"); err != nil {
			return nil, err
		}
		return &dto.SubscriptionStatusResponse{Success: true, Plan: string(plan.Free), Expired: true}, nil
	}

	p, ok := s.catalog.PlanFor(parsed.ProductID)
	if !ok {
		return nil, ErrUnknownProduct
	}
	cancelled := purchase.Cancelled()
	return &dto.SubscriptionStatusResponse{
		Success:   true,
		Plan:      string(p),
		Expired:   false,
		Cancelled: &cancelled,
		ExpiryMs:  purchase.ExpiryTimeMillis,
	}, nil
}

// StrictVerify re-derives the plan fresh from the Play API, bypassing every
// cache, bounded by the configured timeout. It is the gate used before
// privileged operations; on any failure it answers Free.
func (s *SubscriptionService) StrictVerify(ctx context.Context, userID uuid.UUID) plan.Type {
	stored, err := s.Status(ctx, userID)
	if err != nil {
		return plan.Free
	}
	return s.strictVerifyRecord(ctx, stored)
}

func (s *SubscriptionService) strictVerifyRecord(ctx context.Context, stored *models.SubscriptionStatus) plan.Type {
	if stored.PurchaseToken == "" || stored.SubscriptionID == "" {
		return plan.Free
	}

	ctx, cancel := context.WithTimeout(ctx, s.strictTimeout)
	defer cancel()

	purchase, err := s.play.GetSubscription(ctx, s.packageName, stored.SubscriptionID, stored.PurchaseToken)
	if err != nil {
		slog.Warn("strict verify failed closed", "user_id", stored.UserID.String(), "error", err)
		return plan.Free
	}
	if valid, _ := evaluatePurchase(purchase, time.Now()); !valid {
		return plan.Free
	}

	p, ok := s.catalog.PlanFor(stored.SubscriptionID)
	if !ok {
		return plan.Free
	}
	return p
}

// Downgrade is the self-service plan change endpoint. Only Free is an
// accepted target, so this path can never escalate privileges.
func (s *SubscriptionService) Downgrade(ctx context.Context, userID uuid.UUID, newPlan string) error {
	if newPlan != string(plan.Free) {
		return ErrDowngradeNotAllowed
	}
	return s.downgradeToFree(ctx, userID, "subscription_cancelled")
}

// HandleNotification processes one decoded RTDN. CANCEL-class events
// downgrade immediately when the paid period is over, otherwise they mark a
// pending downgrade and leave the plan intact until expiry. ACTIVE-class
// events set the plan from the product catalog and clear pending markers.
func (s *SubscriptionService) HandleNotification(ctx context.Context, n *dto.DeveloperNotification) error {
	if n.TestNotification != nil {
		slog.Info("test notification received")
		return nil
	}
	if n.SubscriptionNotification == nil {
		slog.Info("ignoring non-subscription notification")
		return nil
	}

	sub := n.SubscriptionNotification
	pkg := n.PackageName
	if pkg == "" {
		pkg = s.packageName
	}

	purchase, err := s.play.GetSubscription(ctx, pkg, sub.SubscriptionID, sub.PurchaseToken)
	if err != nil {
		return fmt.Errorf("failed to fetch subscription for notification: %w", err)
	}

	userID, err := s.identifyUser(ctx, purchase, sub.PurchaseToken)
	if err != nil {
		return err
	}

	notifType := sub.NotificationType
	switch {
	case playstore.IsCancelNotification(notifType):
		expiry := purchase.ExpiryTime()
		if expiry.Before(time.Now()) {
			slog.Info("subscription ended, downgrading", "user_id", userID.String(), "notification_type", notifType)
			return s.updateStatus(ctx, userID, func(status *models.SubscriptionStatus) {
				status.Plan = string(plan.Free)
				status.DowngradePending = false
				status.DowngradeReason = fmt.Sprintf("rtdn_type_%d", notifType)
				status.LastNotificationType = &notifType
			})
		}
		slog.Info("subscription cancelled inside paid period", "user_id", userID.String(), "expiry", expiry)
		return s.updateStatus(ctx, userID, func(status *models.SubscriptionStatus) {
			status.DowngradePending = true
			status.ExpiryTime = &expiry
			status.LastNotificationType = &notifType
		})

	case playstore.IsActiveNotification(notifType):
		newPlan, ok := s.catalog.PlanFor(sub.SubscriptionID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProduct, sub.SubscriptionID)
		}
		expiry := purchase.ExpiryTime()
		slog.Info("subscription active", "user_id", userID.String(), "plan", newPlan, "notification_type", notifType)
		return s.updateStatus(ctx, userID, func(status *models.SubscriptionStatus) {
			status.Plan = string(newPlan)
			status.PurchaseToken = sub.PurchaseToken
			status.SubscriptionID = sub.SubscriptionID
			status.DowngradePending = false
			status.DowngradeReason = ""
			status.ExpiryTime = &expiry
			status.LastNotificationType = &notifType
		})
	}

	slog.Info("notification type not handled", "notification_type", notifType)
	return nil
}

// AuthorizeAnalysis gates access to the app-provided recognizer key.
// Granting the credential is a privileged operation, so the plan is
// re-derived through StrictVerify rather than read from the cached record:
// a stale or tampered row cannot issue a key, and neither can a Play outage.
// Users verifying as Free draw down a lifetime trial allowance counted
// inside a locking transaction so parallel requests cannot share one
// remaining slot.
func (s *SubscriptionService) AuthorizeAnalysis(ctx context.Context, userID uuid.UUID) (*dto.AuthorizeAnalysisResponse, error) {
	if p := s.StrictVerify(ctx, userID); p != plan.Free {
		return &dto.AuthorizeAnalysisResponse{
			Success:   true,
			Plan:      string(p),
			LogOptOut: p.LogOptOut(),
		}, nil
	}

	var resp *dto.AuthorizeAnalysisResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var status models.SubscriptionStatus
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&status).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = models.SubscriptionStatus{ID: uuid.New(), UserID: userID, Plan: string(plan.Free)}
			if err := tx.Create(&status).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if status.FreeTrialCount >= plan.FreeTrialLimit {
			resp = &dto.AuthorizeAnalysisResponse{
				Success:       false,
				Plan:          string(plan.Free),
				TrialsUsed:    status.FreeTrialCount,
				TrialsAllowed: plan.FreeTrialLimit,
			}
			return ErrFreeTrialExhausted
		}

		status.FreeTrialCount++
		if err := tx.Save(&status).Error; err != nil {
			return err
		}
		resp = &dto.AuthorizeAnalysisResponse{
			Success:       true,
			Plan:          string(plan.Free),
			TrialsUsed:    status.FreeTrialCount,
			TrialsAllowed: plan.FreeTrialLimit,
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrFreeTrialExhausted) {
		return nil, err
	}
	return resp, err
}

// Entitlements reports the feature gates derived from the current plan.
func (s *SubscriptionService) Entitlements(ctx context.Context, userID uuid.UUID) (*dto.EntitlementsResponse, error) {
	status, err := s.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := plan.Parse(status.Plan)
	return &dto.EntitlementsResponse{
		Plan:             string(p),
		QuotaCeiling:     p.QuotaCeiling(),
		CanAutoRecord:    p.CanAutoRecord(),
		HistoryMonths:    p.HistoryMonths(),
		LogOptOut:        p.LogOptOut(),
		DowngradePending: status.DowngradePending,
	}, nil
}

// evaluatePurchase applies the receipt decision table: paid or trial state
// with a future expiry is entitled, including cancelled-but-unexpired;
// anything else is not.
func evaluatePurchase(p *playstore.SubscriptionPurchase, now time.Time) (bool, string) {
	if !p.Paid() {
		return false, "payment not confirmed"
	}
	if !p.ExpiryTime().After(now) {
		return false, "subscription expired"
	}
	return true, ""
}

// identifyUser resolves the user an RTDN concerns: primarily via the
// obfuscated account id embedded at purchase time, falling back to a lookup
// by stored purchase token.
func (s *SubscriptionService) identifyUser(ctx context.Context, purchase *playstore.SubscriptionPurchase, purchaseToken string) (uuid.UUID, error) {
	if purchase.ObfuscatedExternalAccountID != "" {
		if id, err := uuid.Parse(purchase.ObfuscatedExternalAccountID); err == nil {
			return id, nil
		}
		slog.Warn("obfuscated account id is not a valid user id", "value", purchase.ObfuscatedExternalAccountID)
	}

	var status models.SubscriptionStatus
	err := s.db.WithContext(ctx).Where("purchase_token = ?", purchaseToken).First(&status).Error
	if err != nil {
		return uuid.Nil, fmt.Errorf("could not identify user for notification: %w", err)
	}
	return status.UserID, nil
}

func (s *SubscriptionService) downgradeToFree(ctx context.Context, userID uuid.UUID, reason string) error {
	return s.updateStatus(ctx, userID, func(status *models.SubscriptionStatus) {
		status.Plan = string(plan.Free)
		status.DowngradePending = false
		status.DowngradeReason = reason
	})
}

// updateStatus applies a mutation to the user's subscription record inside
// a locking transaction, creating the record on first touch.
func (s *SubscriptionService) updateStatus(ctx context.Context, userID uuid.UUID, mutate func(*models.SubscriptionStatus)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var status models.SubscriptionStatus
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&status).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = models.SubscriptionStatus{ID: uuid.New(), UserID: userID, Plan: string(plan.Free)}
			mutate(&status)
			return tx.Create(&status).Error
		}
		if err != nil {
			return err
		}
		mutate(&status)
		return tx.Save(&status).Error
	})
}
