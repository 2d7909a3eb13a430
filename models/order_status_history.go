package models

import "time"

// OrderStatusHistory is an append-only ledger: one row per transition,
// never updated or deleted.
type OrderStatusHistory struct {
	ID       uint        `gorm:"primaryKey" json:"id"`
	OrderID  uint        `gorm:"not null;index" json:"order_id"`
	Order    Order       `gorm:"foreignKey:OrderID" json:"-"`
	StatusID uint        `gorm:"not null" json:"status_id"`
	Status   OrderStatus `gorm:"foreignKey:StatusID" json:"status"`

	Note      string    `gorm:"type:text" json:"note"`
	ChangedBy uint      `gorm:"not null" json:"changed_by"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
