package models

import "time"

// Credit transaction types.
const (
	TxPurchase = "purchase"
	TxUsage    = "usage"
	TxBonus    = "bonus"
	TxRefund   = "refund"
)

// CreditBalance is the per-user prepaid balance row. The row is the only
// resource that needs cross-request mutual exclusion; the ledger serializes
// mutations per user. Invariant: LifetimeEarned - LifetimeUsed == Balance at
// all times.
type CreditBalance struct {
	ID             uint `gorm:"primaryKey"`
	UserID         uint `gorm:"uniqueIndex;not null"`
	Balance        int  `gorm:"not null;default:0"`
	LifetimeEarned int  `gorm:"not null;default:0"`
	LifetimeUsed   int  `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	User User `gorm:"constraint:OnDelete:CASCADE"`
}

// CreditTransaction is the append-only movement log. Amount is signed:
// positive for earn, negative for use. ExternalReference is the idempotency
// key: the unique index guarantees at most one transaction per payment
// reference.
type CreditTransaction struct {
	ID                uint    `gorm:"primaryKey"`
	UserID            uint    `gorm:"index;not null"`
	Amount            int     `gorm:"not null"`
	Type              string  `gorm:"size:16;index;not null"` // purchase / usage / bonus / refund
	SessionID         *string `gorm:"size:64;index"`          // set for usage and refunds
	ExternalReference *string `gorm:"size:100;uniqueIndex"`   // payment provider reference
	Description       string  `gorm:"size:255"`
	CreatedAt         time.Time
}
