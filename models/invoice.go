package models

import "time"

// Invoice is one-to-one with a successful payment; created exactly once,
// never regenerated. Uniqueness on PaymentID is enforced both by the schema
// and by the reconciliation layer.
type Invoice struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	PaymentID uint    `gorm:"not null;uniqueIndex" json:"payment_id"`
	Payment   Payment `gorm:"foreignKey:PaymentID" json:"-"`

	InvoiceNumber string  `gorm:"type:varchar(40);not null;uniqueIndex" json:"invoice_number"`
	Amount        float64 `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency      string  `gorm:"type:varchar(3);not null" json:"currency"`

	IssuedAt  time.Time `gorm:"not null" json:"issued_at"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
