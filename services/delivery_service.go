package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/chopwell/chopwell-api/models"
)

// activeDeliveryWindow bounds how old a tracking row may be while still
// marking a delivery as active for incoming pings.
const activeDeliveryWindow = 30 * time.Minute

// DeliveryService coordinates driver assignment and ingests live location
// pings into the append-only tracking series.
type DeliveryService struct {
	db           *gorm.DB
	catalog      *StatusCatalog
	stateMachine *OrderStateMachine
	notifier     Notifier
	log          *logrus.Logger
}

func NewDeliveryService(db *gorm.DB, catalog *StatusCatalog, sm *OrderStateMachine, notifier Notifier, log *logrus.Logger) *DeliveryService {
	return &DeliveryService{db: db, catalog: catalog, stateMachine: sm, notifier: notifier, log: log}
}

// AssignmentResult is what the coordinator hands back to the caller.
type AssignmentResult struct {
	Tracking models.DeliveryTracking `json:"tracking"`
	Order    models.Order            `json:"order"`
}

// Assign attaches an eligible driver to an order, records the initial
// delivery metrics and, when the kitchen has already marked the order Ready,
// advances it to Out for Delivery. Reassignment is not supported; an order
// that already carries a driver must be returned to Ready first.
func (ds *DeliveryService) Assign(orderID, driverID uint, pickupLat, pickupLng float64, actorID uint) (*AssignmentResult, error) {
	var (
		order    models.Order
		tracking models.DeliveryTracking
	)

	err := ds.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("DeliveryAddress").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}

		current, err := ds.catalog.ByID(order.StatusID)
		if err != nil {
			return err
		}
		if current.Name != models.StatusPreparing && current.Name != models.StatusReady {
			return fmt.Errorf("%w: cannot assign driver while order is %s", ErrInvalidState, current.Name)
		}
		if order.DriverID != nil {
			return fmt.Errorf("%w: order %d already has a driver", ErrInvalidState, order.ID)
		}
		if order.OrderType != models.OrderTypeDelivery {
			return fmt.Errorf("%w: order %d is not a delivery order", ErrValidation, order.ID)
		}
		if order.DeliveryAddress == nil {
			return fmt.Errorf("%w: order %d has no delivery address", ErrValidation, order.ID)
		}

		var driver models.User
		if err := tx.First(&driver, driverID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: driver %d", ErrNotFound, driverID)
			}
			return err
		}
		if driver.Role != models.RoleDriver || !driver.IsOnline || !driver.IsAvailable || !driver.IsActive {
			return fmt.Errorf("%w: driver %d", ErrDriverUnavailable, driverID)
		}

		est := EstimateRoute(pickupLat, pickupLng,
			order.DeliveryAddress.Latitude, order.DeliveryAddress.Longitude)

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("driver_id", driver.ID).Error; err != nil {
			return err
		}
		order.DriverID = &driver.ID

		if err := tx.Model(&models.User{}).Where("id = ?", driver.ID).
			Update("is_available", false).Error; err != nil {
			return err
		}

		tracking = models.DeliveryTracking{
			OrderID:    order.ID,
			DriverID:   driver.ID,
			Latitude:   pickupLat,
			Longitude:  pickupLng,
			DistanceKm: est.DistanceKm,
			EtaMinutes: est.EtaMinutes,
			Status:     models.TrackingAssigned,
		}
		return tx.Create(&tracking).Error
	})
	if err != nil {
		return nil, err
	}

	// A Preparing order keeps its driver and goes out the moment the
	// kitchen marks it Ready; a Ready order leaves immediately. The
	// assignment itself has already committed, so a failed dispatch must
	// be unwound rather than left half-applied.
	current, _ := ds.catalog.ByID(order.StatusID)
	if current.Name == models.StatusReady {
		updated, err := ds.stateMachine.Transition(order.ID, models.StatusOutForDelivery, "driver assigned", actorID)
		if err != nil {
			ds.revertAssignment(order.ID, driverID, tracking.ID)
			return nil, err
		}
		order = *updated
	}

	return &AssignmentResult{Tracking: tracking, Order: order}, nil
}

// revertAssignment undoes a committed assignment after the dispatch
// transition failed: the order loses its driver, the driver returns to the
// pool and the initial tracking row is removed. Failures are logged; there
// is nothing further the caller can do about them.
func (ds *DeliveryService) revertAssignment(orderID, driverID, trackingID uint) {
	if err := ds.db.Model(&models.Order{}).Where("id = ?", orderID).
		Update("driver_id", nil).Error; err != nil {
		ds.log.Errorf("reverting assignment on order %d: %v", orderID, err)
	}
	if err := ds.db.Model(&models.User{}).Where("id = ?", driverID).
		Update("is_available", true).Error; err != nil {
		ds.log.Errorf("restoring availability for driver %d: %v", driverID, err)
	}
	if err := ds.db.Delete(&models.DeliveryTracking{}, trackingID).Error; err != nil {
		ds.log.Errorf("removing tracking row %d: %v", trackingID, err)
	}
}

// FindAvailableDrivers returns drivers that are online, available and active
// within radiusKm of the centre. Drivers with no known position are skipped.
func (ds *DeliveryService) FindAvailableDrivers(centerLat, centerLng, radiusKm float64) ([]models.User, error) {
	var drivers []models.User
	if err := ds.db.
		Where("role = ? AND is_online = ? AND is_available = ? AND is_active = ?",
			models.RoleDriver, true, true, true).
		Find(&drivers).Error; err != nil {
		return nil, err
	}

	eligible := make([]models.User, 0, len(drivers))
	for _, d := range drivers {
		if d.CurrentLat == nil || d.CurrentLng == nil {
			continue
		}
		if HaversineKm(centerLat, centerLng, *d.CurrentLat, *d.CurrentLng) <= radiusKm {
			eligible = append(eligible, d)
		}
	}
	return eligible, nil
}

// LocationPing is one GPS report from a driver.
type LocationPing struct {
	DriverID  uint
	Latitude  float64
	Longitude float64
	Speed     *float64
	Heading   *float64
}

// IngestLocation resolves the driver's active delivery, recomputes the
// route estimate and appends a new tracking row. Pings from drivers with no
// recent assignment are rejected, not silently stored.
func (ds *DeliveryService) IngestLocation(ping LocationPing) (*models.DeliveryTracking, error) {
	var last models.DeliveryTracking
	cutoff := time.Now().Add(-activeDeliveryWindow)
	err := ds.db.
		Where("driver_id = ? AND created_at >= ?", ping.DriverID, cutoff).
		Order("created_at DESC, id DESC").
		First(&last).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: driver %d", ErrNoActiveDelivery, ping.DriverID)
		}
		return nil, err
	}

	var order models.Order
	if err := ds.db.Preload("DeliveryAddress").First(&order, last.OrderID).Error; err != nil {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, last.OrderID)
	}
	if order.DeliveryAddress == nil {
		return nil, fmt.Errorf("%w: order %d has no delivery address", ErrValidation, order.ID)
	}

	est := EstimateRoute(ping.Latitude, ping.Longitude,
		order.DeliveryAddress.Latitude, order.DeliveryAddress.Longitude)

	row := models.DeliveryTracking{
		OrderID:    last.OrderID,
		DriverID:   ping.DriverID,
		Latitude:   ping.Latitude,
		Longitude:  ping.Longitude,
		Speed:      ping.Speed,
		Heading:    ping.Heading,
		DistanceKm: est.DistanceKm,
		EtaMinutes: est.EtaMinutes,
		Status:     DeriveTrackingStatus(est.DistanceKm),
	}
	if err := ds.db.Create(&row).Error; err != nil {
		return nil, err
	}

	// Keep the driver's last known position fresh for radius queries.
	if err := ds.db.Model(&models.User{}).Where("id = ?", ping.DriverID).
		Updates(map[string]interface{}{"current_lat": ping.Latitude, "current_lng": ping.Longitude}).Error; err != nil {
		ds.log.Errorf("updating driver %d position: %v", ping.DriverID, err)
	}

	if ds.notifier != nil {
		ds.notifier.DeliveryLocation(row)
	}
	return &row, nil
}

// LiveTracking bundles the latest snapshot with driver display info and a
// recomputed route estimate.
type LiveTracking struct {
	Tracking models.DeliveryTracking `json:"tracking"`
	Driver   models.User             `json:"driver"`
	Estimate RouteEstimate           `json:"estimate"`
}

// GetLiveTracking returns the most recent tracking row for an order.
func (ds *DeliveryService) GetLiveTracking(orderID uint) (*LiveTracking, error) {
	var row models.DeliveryTracking
	err := ds.db.
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no tracking for order %d", ErrNotFound, orderID)
		}
		return nil, err
	}

	var driver models.User
	if err := ds.db.Preload("VehicleInfo").First(&driver, row.DriverID).Error; err != nil {
		return nil, fmt.Errorf("%w: driver %d", ErrNotFound, row.DriverID)
	}

	var order models.Order
	if err := ds.db.Preload("DeliveryAddress").First(&order, orderID).Error; err != nil {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}

	est := RouteEstimate{DistanceKm: row.DistanceKm, EtaMinutes: row.EtaMinutes}
	if order.DeliveryAddress != nil {
		est = EstimateRoute(row.Latitude, row.Longitude,
			order.DeliveryAddress.Latitude, order.DeliveryAddress.Longitude)
	}

	return &LiveTracking{Tracking: row, Driver: driver, Estimate: est}, nil
}

// RegisterVehicle stores a driver's vehicle, enforcing plate uniqueness.
func (ds *DeliveryService) RegisterVehicle(driverID uint, vehicleType, licensePlate, model, color string) (*models.VehicleInfo, error) {
	var driver models.User
	if err := ds.db.First(&driver, driverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: driver %d", ErrNotFound, driverID)
		}
		return nil, err
	}
	if driver.Role != models.RoleDriver {
		return nil, fmt.Errorf("%w: user %d is not a driver", ErrValidation, driverID)
	}

	var count int64
	if err := ds.db.Model(&models.VehicleInfo{}).
		Where("license_plate = ? OR driver_id = ?", licensePlate, driverID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: license plate %s or driver %d already registered", ErrConflict, licensePlate, driverID)
	}

	vehicle := models.VehicleInfo{
		DriverID:     driverID,
		VehicleType:  vehicleType,
		LicensePlate: licensePlate,
		Model:        model,
		Color:        color,
	}
	if err := ds.db.Create(&vehicle).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// SetDriverAvailability flips the driver's online/available flags.
func (ds *DeliveryService) SetDriverAvailability(driverID uint, online, available bool) error {
	res := ds.db.Model(&models.User{}).
		Where("id = ? AND role = ?", driverID, models.RoleDriver).
		Updates(map[string]interface{}{"is_online": online, "is_available": available})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: driver %d", ErrNotFound, driverID)
	}
	return nil
}
