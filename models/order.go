package models

import (
	"time"

	"gorm.io/gorm"
)

// Order types
const (
	OrderTypeDineIn   = "dine_in"
	OrderTypeTakeaway = "takeaway"
	OrderTypeDelivery = "delivery"
)

// Payment settlement markers carried on the order, independent of the
// kitchen/delivery status machine.
const (
	OrderPaymentUnpaid   = "unpaid"
	OrderPaymentPaid     = "paid"
	OrderPaymentRefunded = "refunded"
)

type Order struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RestaurantID uint       `gorm:"not null;index" json:"restaurant_id"`
	Restaurant   Restaurant `gorm:"foreignKey:RestaurantID" json:"restaurant"`
	CustomerID   uint       `gorm:"not null;index" json:"customer_id"`
	Customer     User       `gorm:"foreignKey:CustomerID" json:"customer"`

	TableNumber       *uint    `json:"table_number,omitempty"`
	DeliveryAddressID *uint    `gorm:"index" json:"delivery_address_id,omitempty"`
	DeliveryAddress   *Address `gorm:"foreignKey:DeliveryAddressID" json:"delivery_address,omitempty"`
	DriverID          *uint    `gorm:"index" json:"driver_id,omitempty"`
	Driver            *User    `gorm:"foreignKey:DriverID" json:"driver,omitempty"`

	OrderType string      `gorm:"type:varchar(20);not null;default:'delivery'" json:"order_type"`
	StatusID  uint        `gorm:"not null;index" json:"status_id"`
	Status    OrderStatus `gorm:"foreignKey:StatusID" json:"status"`

	Subtotal    float64 `gorm:"type:decimal(12,2);not null;default:0.00" json:"subtotal"`
	Discount    float64 `gorm:"type:decimal(12,2);not null;default:0.00" json:"discount"`
	DeliveryFee float64 `gorm:"type:decimal(12,2);not null;default:0.00" json:"delivery_fee"`
	Tax         float64 `gorm:"type:decimal(12,2);not null;default:0.00" json:"tax"`
	FinalTotal  float64 `gorm:"type:decimal(12,2);not null;default:0.00" json:"final_total"`

	PaymentStatus string `gorm:"type:varchar(20);not null;default:'unpaid'" json:"payment_status"`

	ScheduledAt        *time.Time `json:"scheduled_at,omitempty"`
	ActualDeliveryTime *time.Time `json:"actual_delivery_time,omitempty"`

	OrderItems []OrderItem `gorm:"foreignKey:OrderID" json:"order_items"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ComputeFinalTotal applies the monetary invariant:
// finalTotal = subtotal - discount + deliveryFee + tax, floored at zero.
func (o *Order) ComputeFinalTotal() float64 {
	total := o.Subtotal - o.Discount + o.DeliveryFee + o.Tax
	if total < 0 {
		total = 0
	}
	return total
}
