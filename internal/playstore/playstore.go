// Package playstore wraps the Google Play Developer API surface this
// service needs: fetching the state of a subscription purchase, and the
// real-time developer notification (RTDN) constants.
package playstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Payment states reported by purchases.subscriptions.get.
const (
	PaymentPending   = 0
	PaymentReceived  = 1
	PaymentFreeTrial = 2
	PaymentDeferred  = 3
)

// RTDN notification types.
// https://developer.android.com/google/play/billing/subscriptions#real-time-notifications
const (
	NotificationRecovered     = 1
	NotificationRenewed       = 2
	NotificationCanceled      = 3
	NotificationPurchased     = 4
	NotificationOnHold        = 5
	NotificationInGracePeriod = 6
	NotificationRestarted     = 7
	NotificationRevoked       = 12
	NotificationExpired       = 13
)

// IsCancelNotification reports whether the type ends entitlement
// (immediately or at period end).
func IsCancelNotification(t int) bool {
	switch t {
	case NotificationCanceled, NotificationRevoked, NotificationExpired:
		return true
	}
	return false
}

// IsActiveNotification reports whether the type grants or restores
// entitlement.
func IsActiveNotification(t int) bool {
	switch t {
	case NotificationRecovered, NotificationRenewed, NotificationPurchased, NotificationRestarted:
		return true
	}
	return false
}

// SubscriptionPurchase is the subset of the purchases.subscriptions.get
// response this service consumes.
type SubscriptionPurchase struct {
	PaymentState                *int   `json:"paymentState"`
	CancelReason                *int   `json:"cancelReason"`
	ExpiryTimeMillis            int64  `json:"expiryTimeMillis,string"`
	StartTimeMillis             int64  `json:"startTimeMillis,string"`
	ObfuscatedExternalAccountID string `json:"obfuscatedExternalAccountId"`
	AutoRenewing                bool   `json:"autoRenewing"`
}

func (p *SubscriptionPurchase) ExpiryTime() time.Time {
	return time.UnixMilli(p.ExpiryTimeMillis)
}

func (p *SubscriptionPurchase) Cancelled() bool {
	return p.CancelReason != nil
}

func (p *SubscriptionPurchase) Paid() bool {
	return p.PaymentState != nil &&
		(*p.PaymentState == PaymentReceived || *p.PaymentState == PaymentFreeTrial)
}

var ErrNotFound = errors.New("subscription purchase not found")

// Client fetches subscription purchase state. Callers must fail closed on
// any transport or API error.
type Client interface {
	GetSubscription(ctx context.Context, packageName, subscriptionID, purchaseToken string) (*SubscriptionPurchase, error)
}

// HTTPClient calls the androidpublisher v3 REST endpoint with a bearer
// token supplied by a TokenSource (typically a service-account exchange
// handled by the deployment environment).
type HTTPClient struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

// TokenSource supplies OAuth2 access tokens for the androidpublisher scope.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token, for environments
// where a sidecar refreshes credentials.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

func NewHTTPClient(baseURL string, tokens TokenSource, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetSubscription(ctx context.Context, packageName, subscriptionID, purchaseToken string) (*SubscriptionPurchase, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain API token: %w", err)
	}

	endpoint := fmt.Sprintf("%s/androidpublisher/v3/applications/%s/purchases/subscriptions/%s/tokens/%s",
		c.baseURL,
		url.PathEscape(packageName),
		url.PathEscape(subscriptionID),
		url.PathEscape(purchaseToken),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("play API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("play API returned %d: %s", resp.StatusCode, body)
	}

	var purchase SubscriptionPurchase
	if err := json.NewDecoder(resp.Body).Decode(&purchase); err != nil {
		return nil, fmt.Errorf("failed to decode play API response: %w", err)
	}
	return &purchase, nil
}
