package models

import (
	"time"
)

// Seller verification review states. REJECTED is terminal; a new attempt
// creates a fresh submission rather than reopening the old one.
const (
	SubmissionStatusPending  = "PENDING"
	SubmissionStatusApproved = "APPROVED"
	SubmissionStatusRejected = "REJECTED"
)

// SellerVerification holds one KYC submission. The national ID is stored
// only as envelope ciphertext plus a SHA-256 digest used for duplicate
// detection across users.
type SellerVerification struct {
	ID                  string     `db:"id"`
	UserBucket          int        `db:"user_bucket"`
	UserID              string     `db:"user_id"`
	NationalIDEncrypted string     `db:"national_id_encrypted"`
	NationalIDDEK       string     `db:"national_id_dek"`
	NationalIDKeyID     string     `db:"national_id_key_id"`
	EncryptionVersion   string     `db:"encryption_version"`
	NationalIDDigest    string     `db:"national_id_digest"`
	NationalIDMasked    string     `db:"national_id_masked"`
	DateOfBirth         time.Time  `db:"date_of_birth"`
	BillingAddress      string     `db:"billing_address"`
	Status              string     `db:"status"`
	SubmittedAt         time.Time  `db:"submitted_at"`
	ReviewedBy          string     `db:"reviewed_by"`
	ReviewedAt          *time.Time `db:"reviewed_at"`
	ReviewerIP          string     `db:"reviewer_ip"`
	RejectionReason     string     `db:"rejection_reason"`
}

// IsTerminal reports whether the submission has left the review queue.
func (s *SellerVerification) IsTerminal() bool {
	return s.Status == SubmissionStatusApproved || s.Status == SubmissionStatusRejected
}
