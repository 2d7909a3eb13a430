package database

import (
	"gorm.io/gorm"

	"github.com/chopwell/chopwell-api/models"
)

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Restaurant{},
		&models.Address{},
		&models.Menu{},
		&models.OrderStatus{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderStatusHistory{},
		&models.DeliveryTracking{},
		&models.VehicleInfo{},
		&models.Payment{},
		&models.Invoice{},
		&models.Reservation{},
		&models.RoomBooking{},
	)
}

// SeedOrderStatuses inserts the fixed status catalog once. Existing rows
// are left untouched; the catalog is immutable reference data.
func SeedOrderStatuses(db *gorm.DB) error {
	names := []string{
		models.StatusPending,
		models.StatusPreparing,
		models.StatusReady,
		models.StatusOutForDelivery,
		models.StatusDelivered,
		models.StatusCompleted,
		models.StatusCancelled,
	}

	for _, name := range names {
		var count int64
		if err := db.Model(&models.OrderStatus{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := db.Create(&models.OrderStatus{Name: name}).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
