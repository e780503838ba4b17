// Package plan defines the subscription tiers, their monthly quota ceilings
// and feature entitlements, and the product catalog that maps store product
// identifiers to tiers.
package plan

import (
	"fmt"
	"time"
)

type Type string

const (
	Free     Type = "Free"
	Standard Type = "Standard"
	Premium  Type = "Premium"
	Ultimate Type = "Ultimate"
)

// quotaSeconds is the monthly analysis allowance per tier.
var quotaSeconds = map[Type]float64{
	Free:     180,   // 3 min
	Standard: 3600,  // 60 min
	Premium:  10800, // 180 min
	Ultimate: 28800, // 480 min
}

// FreeTrialLimit is the lifetime number of app-key analyses a Free user may
// run before upgrading.
const FreeTrialLimit = 3

// Parse returns the tier for a stored plan string, defaulting to Free for
// anything unknown so a corrupted record can never widen entitlements.
func Parse(s string) Type {
	switch Type(s) {
	case Standard, Premium, Ultimate:
		return Type(s)
	default:
		return Free
	}
}

func (t Type) Valid() bool {
	_, ok := quotaSeconds[t]
	return ok
}

// QuotaCeiling returns the monthly quota ceiling in seconds.
func (t Type) QuotaCeiling() float64 {
	if q, ok := quotaSeconds[t]; ok {
		return q
	}
	return quotaSeconds[Free]
}

// CanAutoRecord reports whether scheduled automatic recording is available.
func (t Type) CanAutoRecord() bool {
	return t == Premium || t == Ultimate
}

// HistoryMonths returns how many past months of results are viewable.
// A negative value means unlimited.
func (t Type) HistoryMonths() int {
	switch t {
	case Standard:
		return 6
	case Premium, Ultimate:
		return -1
	default:
		return 0
	}
}

// LogOptOut reports whether recognizer-side logging must be disabled for
// this tier.
func (t Type) LogOptOut() bool {
	return t == Ultimate
}

// YearMonth formats a time as the "YYYY-MM" billing window key.
func YearMonth(t time.Time) string {
	return t.Format("2006-01")
}

// CanAccessMonth reports whether a tier may view the given month, relative
// to the current month. The current month is always accessible.
func (t Type) CanAccessMonth(monthKey, currentKey string) bool {
	if monthKey == currentKey {
		return true
	}
	allowed := t.HistoryMonths()
	if allowed == 0 {
		return false
	}
	diff, err := monthsBetween(monthKey, currentKey)
	if err != nil || diff < 0 {
		return false
	}
	if allowed < 0 {
		return true
	}
	return diff <= allowed
}

func monthsBetween(oldKey, newKey string) (int, error) {
	oldT, err := time.Parse("2006-01", oldKey)
	if err != nil {
		return 0, fmt.Errorf("bad month key %q: %w", oldKey, err)
	}
	newT, err := time.Parse("2006-01", newKey)
	if err != nil {
		return 0, fmt.Errorf("bad month key %q: %w", newKey, err)
	}
	return (newT.Year()-oldT.Year())*12 + int(newT.Month()) - int(oldT.Month()), nil
}
