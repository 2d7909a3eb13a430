package models

import "time"

// Payment lifecycle states. Transitions only move forward:
// pending -> {success, failed}; success -> refunded.
const (
	PaymentPending  = "pending"
	PaymentSuccess  = "success"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Payment represents one settlement attempt against exactly one payable
// entity (order, reservation or room booking).
type Payment struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;index" json:"user_id"`
	User   User `gorm:"foreignKey:UserID" json:"-"`

	// Exactly one of the three links is set.
	OrderID       *uint        `gorm:"index" json:"order_id,omitempty"`
	Order         *Order       `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	ReservationID *uint        `gorm:"index" json:"reservation_id,omitempty"`
	Reservation   *Reservation `gorm:"foreignKey:ReservationID" json:"reservation,omitempty"`
	RoomBookingID *uint        `gorm:"index" json:"room_booking_id,omitempty"`
	RoomBooking   *RoomBooking `gorm:"foreignKey:RoomBookingID" json:"room_booking,omitempty"`

	Amount   float64 `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency string  `gorm:"type:varchar(3);not null;default:'NGN'" json:"currency"`
	Method   string  `gorm:"type:varchar(20);not null;default:'card'" json:"method"`
	Gateway  string  `gorm:"type:varchar(20);not null;default:'paystack'" json:"gateway"`

	PaymentNumber string `gorm:"type:varchar(40);not null;uniqueIndex" json:"payment_number"`
	Reference     string `gorm:"type:varchar(64);not null;uniqueIndex" json:"reference"`

	Status               string  `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	GatewayTransactionID string  `gorm:"type:varchar(64)" json:"gateway_transaction_id"`
	AuthorizationURL     string  `gorm:"type:varchar(255)" json:"authorization_url"`
	AccessCode           string  `gorm:"type:varchar(64)" json:"access_code"`
	Channel              string  `gorm:"type:varchar(30)" json:"channel"`
	FailureReason        string  `gorm:"type:text" json:"failure_reason"`
	RefundedAmount       float64 `gorm:"type:decimal(12,2);not null;default:0.00" json:"refunded_amount"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// IsTerminal reports whether the payment has reached a state that must not
// be reconciled again.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentSuccess || p.Status == PaymentFailed || p.Status == PaymentRefunded
}
