package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the server-authoritative plan record, one per user.
// The plan field is written only by server-side logic: receipt verification,
// the Play RTDN handler, and the self-service downgrade endpoint. Clients can
// read it but never write it.
type SubscriptionStatus struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Plan   string    `gorm:"size:20;not null;default:'Free'" json:"plan"`

	// PurchaseToken and SubscriptionID correlate asynchronous Play
	// notifications back to this user when the payload carries no
	// account id.
	PurchaseToken  string `gorm:"size:512;index" json:"-"`
	SubscriptionID string `gorm:"size:255" json:"subscription_id"`

	// DowngradePending marks "cancelled but still inside the paid period".
	// The plan stays untouched until expiry; the RTDN or strict check that
	// observes the expiry performs the actual downgrade.
	DowngradePending     bool       `gorm:"default:false" json:"downgrade_pending"`
	DowngradeReason      string     `gorm:"size:100" json:"downgrade_reason,omitempty"`
	ExpiryTime           *time.Time `json:"expiry_time,omitempty"`
	LastNotificationType *int       `json:"last_notification_type,omitempty"`

	// FreeTrialCount is the lifetime number of app-key analyses a Free
	// user has consumed. Capped server-side.
	FreeTrialCount int `gorm:"default:0" json:"free_trial_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
