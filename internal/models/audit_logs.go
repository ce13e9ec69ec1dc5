package models

import (
	"time"
)

// Audit actions. Every state transition and every PII disclosure writes
// exactly one of these.
const (
	AuditOTPSent         = "OTP_SENT"
	AuditOTPVerified     = "OTP_VERIFIED"
	AuditSellerSubmitted = "SELLER_SUBMITTED"
	AuditSellerApproved  = "SELLER_APPROVED"
	AuditSellerRejected  = "SELLER_REJECTED"
	AuditAdminViewed     = "ADMIN_VIEWED"
)

// AuditLogEntry is append-only. Details carries a denormalized JSON snapshot
// of the record at the time of the action, so entries stay meaningful after
// the underlying submission is purged by retention.
type AuditLogEntry struct {
	ID          string    `db:"id"`
	DateBucket  string    `db:"date_bucket"`
	UserID      string    `db:"user_id"`
	Action      string    `db:"action"`
	PerformedBy string    `db:"performed_by"`
	Details     string    `db:"details"`
	IPAddress   string    `db:"ip_address"`
	CreatedAt   time.Time `db:"created_at"`
}
