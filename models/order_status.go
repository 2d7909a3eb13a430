package models

import "time"

// Canonical status names. The rows behind them are immutable reference data
// seeded once at startup.
const (
	StatusPending        = "Pending"
	StatusPreparing      = "Preparing"
	StatusReady          = "Ready"
	StatusOutForDelivery = "Out for Delivery"
	StatusDelivered      = "Delivered"
	StatusCompleted      = "Completed"
	StatusCancelled      = "Cancelled"
)

type OrderStatus struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(30);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (OrderStatus) TableName() string {
	return "order_statuses"
}
