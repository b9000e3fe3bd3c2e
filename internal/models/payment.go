package models

import "time"

// Payment intent statuses. An intent transitions out of initialized exactly
// once.
const (
	PaymentInitialized = "initialized"
	PaymentVerified    = "verified"
	PaymentFailed      = "failed"
)

// PaymentIntent binds a provider-issued reference to one pending credit
// purchase. Verification maps the reference to exactly one ledger credit no
// matter how many times it is invoked.
type PaymentIntent struct {
	ID               uint   `gorm:"primaryKey"`
	UserID           uint   `gorm:"index;not null"`
	Reference        string `gorm:"size:100;uniqueIndex;not null"`
	PackageSlug      string `gorm:"size:100;not null"`
	PackageName      string `gorm:"size:100;not null"`
	AmountMinor      int64  `gorm:"not null"` // smallest currency unit (kobo)
	Currency         string `gorm:"size:3;default:NGN;not null"`
	CreditsPurchased int    `gorm:"not null"` // base + bonus at initiation time
	Status           string `gorm:"size:16;index;not null"`
	CustomerEmail    string `gorm:"size:255;not null"`
	FailureMessage   string `gorm:"size:255"`
	PaidAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	User User `gorm:"constraint:OnDelete:CASCADE"`
}
