package models

import "time"

// VerificationCode is a short-lived one-time code gating period
// deactivation. At most one live code exists per email; a new request
// overwrites the prior entry. Expiry is checked lazily at verification.
type VerificationCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the code is past its expiry at the given instant.
func (c VerificationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
