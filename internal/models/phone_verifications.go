package models

import (
	"time"
)

// Phone verification lifecycle states exposed by the status endpoint.
const (
	PhoneStatusNone     = "none"
	PhoneStatusPending  = "pending"
	PhoneStatusVerified = "verified"
)

// PhoneVerification is the persistent record of a phone ownership check.
// The active one-time code itself lives in Redis with a TTL; only the
// outcome survives here.
type PhoneVerification struct {
	UserBucket  int        `db:"user_bucket"`
	UserID      string     `db:"user_id"`
	PhoneHash   string     `db:"phone_hash"`
	PhoneMasked string     `db:"phone_masked"`
	Verified    bool       `db:"verified"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	VerifiedAt  *time.Time `db:"verified_at"`
}

// ActiveCode is the Redis payload for a live one-time code. Overwriting the
// key supersedes any prior code for the same phone.
type ActiveCode struct {
	UserID        string    `json:"user_id"`
	CodeHash      string    `json:"code_hash"`
	Salt          string    `json:"salt"`
	PepperVersion int       `json:"pepper_version"`
	Algorithm     string    `json:"algorithm"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}
