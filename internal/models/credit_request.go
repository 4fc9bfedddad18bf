// Package models defines the credit workflow entities and the application error taxonomy.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts go over the wire as JSON numbers, which is what the POS UI sends.
	decimal.MarshalJSONWithoutQuotes = true
}

// Amounts are stored as numeric(14,2).
const AmountScale = 2

// MaxAmount is the largest amount the amount column holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// CreditRequestStatus defines lifecycle states for credit requests.
type CreditRequestStatus string

const (
	// CreditRequestStatusPending indicates the request is awaiting review.
	CreditRequestStatusPending CreditRequestStatus = "pending"
	// CreditRequestStatusApproved indicates an admin approved the request and a code was minted.
	CreditRequestStatusApproved CreditRequestStatus = "approved"
	// CreditRequestStatusRejected indicates an admin denied the request.
	CreditRequestStatusRejected CreditRequestStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s CreditRequestStatus) Valid() bool {
	switch s {
	case CreditRequestStatusPending, CreditRequestStatusApproved, CreditRequestStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s CreditRequestStatus) Terminal() bool {
	return s == CreditRequestStatusApproved || s == CreditRequestStatusRejected
}

// CreditRequest is a cashier-submitted ask for a customer to take goods on credit.
type CreditRequest struct {
	ID               uint                `gorm:"primaryKey" json:"id"`
	Cashier          string              `gorm:"size:120;not null" json:"cashier"`
	Customer         string              `gorm:"size:120;not null;index" json:"customer"`
	Amount           decimal.Decimal     `gorm:"type:numeric(14,2);not null" json:"amount"`
	Reason           string              `gorm:"type:text;not null" json:"reason"`
	Status           CreditRequestStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	VerificationCode *string             `gorm:"size:6" json:"verificationCode"`
	ReviewedBy       *string             `gorm:"size:120" json:"reviewedBy"`
	ReviewedAt       *time.Time          `json:"reviewedAt"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// HistoryEntry is the per-customer view of a credit request.
type HistoryEntry struct {
	ID     uint                `json:"id"`
	Amount decimal.Decimal     `json:"amount"`
	Status CreditRequestStatus `json:"status"`
	Date   string              `json:"date"`
}

// HistoryDateLayout formats HistoryEntry.Date.
const HistoryDateLayout = "2006-01-02"

// HistoryEntry derives the history record for r.
func (r *CreditRequest) HistoryEntry() HistoryEntry {
	return HistoryEntry{
		ID:     r.ID,
		Amount: r.Amount,
		Status: r.Status,
		Date:   r.CreatedAt.Format(HistoryDateLayout),
	}
}
