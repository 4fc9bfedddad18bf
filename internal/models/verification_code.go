package models

import (
	"strings"
	"time"
)

// DefaultCodeLabel tags admin-issued codes that are not meant for a particular cashier.
const DefaultCodeLabel = "Any"

// VerificationCode is a short single-use secret. Codes minted by an approval are bound to
// the request's customer; admin-issued codes may be bound or open to any customer.
type VerificationCode struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	Code          string     `gorm:"size:6;not null;index" json:"code"`
	BoundCustomer *string    `gorm:"size:120" json:"boundCustomer"`
	RequestID     *uint      `gorm:"index" json:"requestId"`
	Label         string     `gorm:"size:120" json:"label"`
	IssuedBy      string     `gorm:"size:120" json:"issuedBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `gorm:"index" json:"expiresAt"`
	Used          bool       `gorm:"not null;default:false" json:"used"`
	UsedAt        *time.Time `json:"usedAt"`
	UsedBy        *string    `gorm:"size:120" json:"usedBy"`
}

// Expired reports whether now falls outside the half-open validity window [CreatedAt, ExpiresAt).
func (v *VerificationCode) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && !now.Before(*v.ExpiresAt)
}

// Live reports whether the code can still be redeemed by someone.
func (v *VerificationCode) Live(now time.Time) bool {
	return !v.Used && !v.Expired(now)
}

// Check evaluates a redemption attempt by customer at now without mutating the code.
func (v *VerificationCode) Check(customer string, now time.Time) RedeemReason {
	switch {
	case v.Used:
		return RedeemReasonUsed
	case v.Expired(now):
		return RedeemReasonExpired
	case v.BoundCustomer != nil && *v.BoundCustomer != strings.TrimSpace(customer):
		return RedeemReasonMismatch
	}
	return RedeemReasonNone
}

// MarkUsed records a successful redemption.
func (v *VerificationCode) MarkUsed(actor string, now time.Time) {
	v.Used = true
	at := now
	v.UsedAt = &at
	if actor != "" {
		by := actor
		v.UsedBy = &by
	}
}

// PickRedeemable chooses which of several records sharing a code string a redemption is
// judged against: the live one if any, otherwise the most recently created.
func PickRedeemable(candidates []VerificationCode, now time.Time) *VerificationCode {
	var latest *VerificationCode
	for i := range candidates {
		c := &candidates[i]
		if c.Live(now) {
			return c
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	return latest
}

// RedeemReason explains why a redemption failed.
type RedeemReason string

const (
	RedeemReasonNone     RedeemReason = ""
	RedeemReasonNotFound RedeemReason = "not_found"
	RedeemReasonUsed     RedeemReason = "used"
	RedeemReasonExpired  RedeemReason = "expired"
	RedeemReasonMismatch RedeemReason = "mismatch"
)

// RedeemResult is the typed outcome of a redemption attempt.
type RedeemResult struct {
	Valid   bool           `json:"valid"`
	Request *CreditRequest `json:"request,omitempty"`
	Reason  RedeemReason   `json:"reason,omitempty"`
}

// ActivityAction names an audited workflow event.
type ActivityAction string

const (
	ActivityRequestSubmitted ActivityAction = "credit_request_submitted"
	ActivityRequestApproved  ActivityAction = "credit_request_approved"
	ActivityRequestRejected  ActivityAction = "credit_request_rejected"
	ActivityCodeGenerated    ActivityAction = "verification_code_generated"
	ActivityCodeRevoked      ActivityAction = "verification_code_revoked"
	ActivityCodeUsed         ActivityAction = "verification_code_used"
)

// ActivityEntry is one line of the admin activity log.
type ActivityEntry struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	Action    ActivityAction `gorm:"size:40;not null;index" json:"action"`
	Actor     string         `gorm:"size:120" json:"actor"`
	Subject   string         `gorm:"size:120" json:"subject"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
}
