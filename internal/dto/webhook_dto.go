package dto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PubSubPush is the envelope Google Pub/Sub wraps around an RTDN when
// delivering it over HTTPS push.
type PubSubPush struct {
	Message      PubSubMessage `json:"message"`
	Subscription string        `json:"subscription"`
}

type PubSubMessage struct {
	Data        string            `json:"data"` // base64-encoded DeveloperNotification
	MessageID   string            `json:"messageId"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	PublishTime string            `json:"publishTime"`
}

// DeveloperNotification is the decoded RTDN payload.
type DeveloperNotification struct {
	Version                  string                    `json:"version"`
	PackageName              string                    `json:"packageName"`
	EventTimeMillis          int64                     `json:"eventTimeMillis,string"`
	SubscriptionNotification *SubscriptionNotification `json:"subscriptionNotification,omitempty"`
	TestNotification         *TestNotification         `json:"testNotification,omitempty"`
}

type SubscriptionNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SubscriptionID   string `json:"subscriptionId"`
}

type TestNotification struct {
	Version string `json:"version"`
}

// Decode unwraps the base64 data field into the developer notification.
func (m *PubSubMessage) Decode() (*DeveloperNotification, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pubsub data: %w", err)
	}
	var n DeveloperNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("failed to parse developer notification: %w", err)
	}
	return &n, nil
}
