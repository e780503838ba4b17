package playstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNotificationClassification(t *testing.T) {
	cancels := []int{NotificationCanceled, NotificationRevoked, NotificationExpired}
	actives := []int{NotificationRecovered, NotificationRenewed, NotificationPurchased, NotificationRestarted}
	neither := []int{NotificationOnHold, NotificationInGracePeriod, 0, 99}

	for _, n := range cancels {
		if !IsCancelNotification(n) {
			t.Errorf("type %d must classify as cancel", n)
		}
		if IsActiveNotification(n) {
			t.Errorf("type %d must not classify as active", n)
		}
	}
	for _, n := range actives {
		if !IsActiveNotification(n) {
			t.Errorf("type %d must classify as active", n)
		}
		if IsCancelNotification(n) {
			t.Errorf("type %d must not classify as cancel", n)
		}
	}
	for _, n := range neither {
		if IsCancelNotification(n) || IsActiveNotification(n) {
			t.Errorf("type %d must classify as neither", n)
		}
	}
}

func TestSubscriptionPurchaseDecode(t *testing.T) {
	// The API encodes millisecond timestamps as strings.
	raw := `{
		"paymentState": 1,
		"expiryTimeMillis": "1765000000000",
		"startTimeMillis": "1762000000000",
		"obfuscatedExternalAccountId": "user-42",
		"autoRenewing": true
	}`

	var p SubscriptionPurchase
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ExpiryTimeMillis != 1765000000000 {
		t.Fatalf("expiry millis = %d", p.ExpiryTimeMillis)
	}
	if !p.Paid() {
		t.Fatal("paymentState 1 must report paid")
	}
	if p.Cancelled() {
		t.Fatal("no cancelReason must report not cancelled")
	}
	if want := time.UnixMilli(1765000000000); !p.ExpiryTime().Equal(want) {
		t.Fatalf("expiry = %v, want %v", p.ExpiryTime(), want)
	}
}

func TestHTTPClientGetSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"paymentState": 1, "expiryTimeMillis": "1765000000000"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, StaticToken("test-token"), 5*time.Second)
	p, err := c.GetSubscription(context.Background(), "com.example", "sub", "tok")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if !p.Paid() {
		t.Fatal("expected paid purchase")
	}
}

func TestHTTPClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"gone"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, StaticToken("t"), 5*time.Second)
	_, err := c.GetSubscription(context.Background(), "com.example", "sub", "tok")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
