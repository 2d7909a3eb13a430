package models

import "time"

// Roles
const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleCustomer = "customer"
	RoleDriver   = "driver"
)

type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"type:varchar(100);not null" json:"name"`
	Email    string `gorm:"type:varchar(100);not null;uniqueIndex" json:"email"`
	Password string `gorm:"type:varchar(255);not null" json:"-"`
	Phone    string `gorm:"type:varchar(20)" json:"phone"`
	Role     string `gorm:"type:varchar(20);not null;default:'customer'" json:"role"`

	// Driver availability flags; meaningless for other roles.
	IsOnline    bool `gorm:"not null;default:false" json:"is_online"`
	IsAvailable bool `gorm:"not null;default:false" json:"is_available"`
	IsActive    bool `gorm:"not null;default:true" json:"is_active"`

	// Last known position, refreshed on every location ping.
	CurrentLat *float64 `json:"current_lat,omitempty"`
	CurrentLng *float64 `json:"current_lng,omitempty"`

	VehicleInfo *VehicleInfo `gorm:"foreignKey:DriverID" json:"vehicle_info,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
