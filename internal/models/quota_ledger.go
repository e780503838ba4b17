package models

import (
	"time"

	"github.com/google/uuid"
)

// QuotaLedger is the authoritative per-user, per-month usage record. One row
// exists per (user, year_month); past months are kept as audit history and are
// never deleted. Rows are only ever mutated inside a locking transaction.
type QuotaLedger struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_quota_user_month" json:"user_id"`
	YearMonth string    `gorm:"size:7;not null;uniqueIndex:idx_quota_user_month" json:"year_month"`

	// UsedSeconds is confirmed, billed consumption. Monotonically
	// non-decreasing within a month.
	UsedSeconds float64 `gorm:"not null;default:0" json:"used_seconds"`

	// ReservedSeconds is capacity provisionally held for in-flight
	// recordings that have not yet been confirmed by a consume call.
	ReservedSeconds float64 `gorm:"not null;default:0" json:"reserved_seconds"`

	// ReservedUpdatedAt tracks the last time the reservation balance
	// changed, so the sweeper can release holds abandoned by crashed
	// clients.
	ReservedUpdatedAt time.Time `json:"reserved_updated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
