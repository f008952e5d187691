package license

import "time"

// TypeLifetime is the subscription tier with no meaningful expiry.
const TypeLifetime = "lifetime"

// lifetimeYears is the sentinel offset stamped on lifetime grants. Active
// never consults the date for lifetime subscriptions, so the value only has
// to be far enough in the future to read as "never".
const lifetimeYears = 1337

// Active reports whether a subscription is live at the given instant.
// No subscription → false. Lifetime → true regardless of expiry. Dated
// tiers are active strictly before the expiry instant: at now == expires
// the subscription is already inactive.
func Active(subType *string, expires *time.Time, now time.Time) bool {
	if subType == nil {
		return false
	}
	if *subType == TypeLifetime {
		return true
	}
	return expires != nil && now.Before(*expires)
}

// ComputeExpiry returns the expiry stamped by a redemption at the given
// instant. It is always computed from now, never from a prior expiry:
// redeeming a second key overwrites instead of stacking remaining time.
func ComputeExpiry(subType string, durationDays int, now time.Time) time.Time {
	if subType == TypeLifetime {
		return now.AddDate(lifetimeYears, 0, 0)
	}
	return now.AddDate(0, 0, durationDays)
}
