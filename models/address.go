package models

import "time"

type Address struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;index" json:"user_id"`

	Label  string `gorm:"type:varchar(50)" json:"label"`
	Street string `gorm:"type:varchar(255);not null" json:"street"`
	City   string `gorm:"type:varchar(100)" json:"city"`

	Latitude  float64 `gorm:"not null" json:"latitude"`
	Longitude float64 `gorm:"not null" json:"longitude"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
