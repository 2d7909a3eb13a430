package models

import "time"

// VehicleInfo is one-to-one with a driver; license plates are unique across
// all drivers.
type VehicleInfo struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	DriverID uint `gorm:"not null;uniqueIndex" json:"driver_id"`

	VehicleType  string `gorm:"type:varchar(30);not null" json:"vehicle_type"`
	LicensePlate string `gorm:"type:varchar(20);not null;uniqueIndex" json:"license_plate"`
	Model        string `gorm:"type:varchar(50)" json:"model"`
	Color        string `gorm:"type:varchar(30)" json:"color"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
