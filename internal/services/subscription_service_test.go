package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hourglass-app/kotonoiro-backend/internal/models"
	"github.com/hourglass-app/kotonoiro-backend/internal/plan"
	"github.com/hourglass-app/kotonoiro-backend/internal/playstore"
)

func intPtr(v int) *int { return &v }

func TestEvaluatePurchase(t *testing.T) {
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour).UnixMilli()
	past := now.Add(-24 * time.Hour).UnixMilli()

	cases := []struct {
		name     string
		purchase playstore.SubscriptionPurchase
		entitled bool
	}{
		{
			name: "paid and unexpired",
			purchase: playstore.SubscriptionPurchase{
				PaymentState:     intPtr(playstore.PaymentReceived),
				ExpiryTimeMillis: future,
			},
			entitled: true,
		},
		{
			name: "free trial counts as paid",
			purchase: playstore.SubscriptionPurchase{
				PaymentState:     intPtr(playstore.PaymentFreeTrial),
				ExpiryTimeMillis: future,
			},
			entitled: true,
		},
		{
			name: "cancelled but unexpired keeps entitlement",
			purchase: playstore.SubscriptionPurchase{
				PaymentState:     intPtr(playstore.PaymentReceived),
				CancelReason:     intPtr(0),
				ExpiryTimeMillis: future,
			},
			entitled: true,
		},
		{
			name: "payment pending",
			purchase: playstore.SubscriptionPurchase{
				PaymentState:     intPtr(playstore.PaymentPending),
				ExpiryTimeMillis: future,
			},
			entitled: false,
		},
		{
			name: "missing payment state",
			purchase: playstore.SubscriptionPurchase{
				ExpiryTimeMillis: future,
			},
			entitled: false,
		},
		{
			name: "expired",
			purchase: playstore.SubscriptionPurchase{
				PaymentState:     intPtr(playstore.PaymentReceived),
				ExpiryTimeMillis: past,
			},
			entitled: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entitled, reason := evaluatePurchase(&tc.purchase, now)
			if entitled != tc.entitled {
				t.Fatalf("entitled = %v (reason %q), want %v", entitled, reason, tc.entitled)
			}
			if !entitled && reason == "" {
				t.Fatal("refusal must carry a reason")
			}
		})
	}
}

func TestParsePlayReceiptUnityEnvelope(t *testing.T) {
	// Unity IAP wraps the Play record twice: Payload is JSON whose "json"
	// field is a string of JSON.
	raw := `{"Payload":"{\"json\":\"{\\\"packageName\\\":\\\"com.hourglass.Kotonoiro\\\",\\\"productId\\\":\\\"com.kotono_iro.standard_monthly\\\",\\\"purchaseToken\\\":\\\"tok-123\\\"}\"}"}`

	r, err := parsePlayReceipt(raw, "fallback.pkg", "fallback.product")
	if err != nil {
		t.Fatalf("parsePlayReceipt: %v", err)
	}
	if r.PackageName != "com.hourglass.Kotonoiro" {
		t.Errorf("package = %q", r.PackageName)
	}
	if r.ProductID != "com.kotono_iro.standard_monthly" {
		t.Errorf("product = %q", r.ProductID)
	}
	if r.PurchaseToken != "tok-123" {
		t.Errorf("token = %q", r.PurchaseToken)
	}
}

func TestParsePlayReceiptBareRecord(t *testing.T) {
	raw := `{"packageName":"com.hourglass.Kotonoiro","productId":"com.kotono_iro.premium_monthly","purchaseToken":"tok-456"}`

	r, err := parsePlayReceipt(raw, "fallback.pkg", "fallback.product")
	if err != nil {
		t.Fatalf("parsePlayReceipt: %v", err)
	}
	if r.PurchaseToken != "tok-456" || r.ProductID != "com.kotono_iro.premium_monthly" {
		t.Fatalf("unexpected parse: %+v", r)
	}
}

func TestParsePlayReceiptFallbacks(t *testing.T) {
	raw := `{"purchaseToken":"tok-789"}`

	r, err := parsePlayReceipt(raw, "pkg.from.config", "product.from.request")
	if err != nil {
		t.Fatalf("parsePlayReceipt: %v", err)
	}
	if r.PackageName != "pkg.from.config" {
		t.Errorf("package fallback = %q", r.PackageName)
	}
	if r.ProductID != "product.from.request" {
		t.Errorf("product fallback = %q", r.ProductID)
	}
}

func TestParsePlayReceiptRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"not json",
		`{"packageName":"x"}`, // no purchase token
	} {
		if _, err := parsePlayReceipt(raw, "pkg", "prod"); !errors.Is(err, errMalformedReceipt) {
			t.Errorf("parsePlayReceipt(%q) error = %v, want errMalformedReceipt", raw, err)
		}
	}
}

type fakePlayClient struct {
	purchase *playstore.SubscriptionPurchase
	err      error
	delay    time.Duration
}

func (f *fakePlayClient) GetSubscription(ctx context.Context, packageName, subscriptionID, purchaseToken string) (*playstore.SubscriptionPurchase, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.purchase, nil
}

func strictTestService(play playstore.Client) *SubscriptionService {
	return NewSubscriptionService(nil, play, plan.DefaultCatalog(), "com.hourglass.Kotonoiro", 50*time.Millisecond)
}

func paidRecord() *models.SubscriptionStatus {
	return &models.SubscriptionStatus{
		UserID:         uuid.New(),
		Plan:           string(plan.Premium),
		PurchaseToken:  "tok-1",
		SubscriptionID: "com.kotono_iro.premium_monthly",
	}
}

func TestStrictVerifyConfirmsActivePurchase(t *testing.T) {
	state := playstore.PaymentReceived
	s := strictTestService(&fakePlayClient{purchase: &playstore.SubscriptionPurchase{
		PaymentState:     &state,
		ExpiryTimeMillis: time.Now().Add(time.Hour).UnixMilli(),
	}})

	if got := s.strictVerifyRecord(context.Background(), paidRecord()); got != plan.Premium {
		t.Fatalf("plan = %v, want Premium", got)
	}
}

func TestStrictVerifyFailsClosedOnAPIError(t *testing.T) {
	s := strictTestService(&fakePlayClient{err: errors.New("upstream down")})

	if got := s.strictVerifyRecord(context.Background(), paidRecord()); got != plan.Free {
		t.Fatalf("plan = %v, want Free on API error", got)
	}
}

func TestStrictVerifyFailsClosedOnTimeout(t *testing.T) {
	state := playstore.PaymentReceived
	s := strictTestService(&fakePlayClient{
		delay: 500 * time.Millisecond,
		purchase: &playstore.SubscriptionPurchase{
			PaymentState:     &state,
			ExpiryTimeMillis: time.Now().Add(time.Hour).UnixMilli(),
		},
	})

	start := time.Now()
	got := s.strictVerifyRecord(context.Background(), paidRecord())
	if got != plan.Free {
		t.Fatalf("plan = %v, want Free on timeout", got)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("verification took %v, want it bounded by the strict timeout", elapsed)
	}
}

func TestStrictVerifyFailsClosedOnExpiredPurchase(t *testing.T) {
	state := playstore.PaymentReceived
	s := strictTestService(&fakePlayClient{purchase: &playstore.SubscriptionPurchase{
		PaymentState:     &state,
		ExpiryTimeMillis: time.Now().Add(-time.Hour).UnixMilli(),
	}})

	if got := s.strictVerifyRecord(context.Background(), paidRecord()); got != plan.Free {
		t.Fatalf("plan = %v, want Free for expired purchase", got)
	}
}

func TestStrictVerifyFreeWithoutStoredToken(t *testing.T) {
	s := strictTestService(&fakePlayClient{})
	rec := &models.SubscriptionStatus{UserID: uuid.New(), Plan: string(plan.Premium)}

	if got := s.strictVerifyRecord(context.Background(), rec); got != plan.Free {
		t.Fatalf("plan = %v, want Free when no purchase is on record", got)
	}
}

func TestDowngradeOnlyAcceptsFree(t *testing.T) {
	s := strictTestService(&fakePlayClient{})
	userID := uuid.New()

	for _, target := range []string{"Premium", "Ultimate", "Standard", "premium", ""} {
		if err := s.Downgrade(context.Background(), userID, target); !errors.Is(err, ErrDowngradeNotAllowed) {
			t.Errorf("Downgrade(%q) = %v, want ErrDowngradeNotAllowed", target, err)
		}
	}
}
