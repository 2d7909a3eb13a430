package models

import "time"

// Tracking row statuses derived from distance to the delivery address.
const (
	TrackingAssigned = "assigned"
	TrackingOnTheWay = "on_the_way"
	TrackingNearby   = "nearby"
	TrackingArrived  = "arrived"
)

// DeliveryTracking is a time series: one row per location/status snapshot
// for an order+driver pair. Rows are never updated in place; the active
// delivery is the most recent row inside the recency window.
type DeliveryTracking struct {
	ID       uint  `gorm:"primaryKey" json:"id"`
	OrderID  uint  `gorm:"not null;index" json:"order_id"`
	Order    Order `gorm:"foreignKey:OrderID" json:"-"`
	DriverID uint  `gorm:"not null;index" json:"driver_id"`
	Driver   User  `gorm:"foreignKey:DriverID" json:"-"`

	Latitude  float64  `gorm:"not null" json:"latitude"`
	Longitude float64  `gorm:"not null" json:"longitude"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`

	DistanceKm float64 `gorm:"type:decimal(8,3)" json:"distance_km"`
	EtaMinutes float64 `gorm:"type:decimal(8,2)" json:"eta_minutes"`
	Status     string  `gorm:"type:varchar(20);not null" json:"status"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
