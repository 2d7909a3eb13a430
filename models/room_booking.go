package models

import "time"

// Room booking statuses
const (
	RoomBookingPending   = "pending"
	RoomBookingConfirmed = "confirmed"
	RoomBookingCancelled = "cancelled"
)

// RoomBooking covers private dining room hire, payable through the same
// reconciliation path as orders and reservations.
type RoomBooking struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index" json:"user_id"`
	RestaurantID uint       `gorm:"not null;index" json:"restaurant_id"`
	Restaurant   Restaurant `gorm:"foreignKey:RestaurantID" json:"-"`

	RoomName string    `gorm:"type:varchar(50);not null" json:"room_name"`
	StartsAt time.Time `gorm:"not null" json:"starts_at"`
	EndsAt   time.Time `gorm:"not null" json:"ends_at"`
	Amount   float64   `gorm:"type:decimal(12,2);not null;default:0.00" json:"amount"`
	Status   string    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
