package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/chopwell/chopwell-api/models"
)

// Notifier receives best-effort fan-out of lifecycle events. The realtime
// hub implements it; tests plug in fakes.
type Notifier interface {
	OrderStatusChanged(order models.Order, status models.OrderStatus)
	NotifyEligibleDrivers(order models.Order)
	PaymentUpdated(payment models.Payment)
	DeliveryLocation(tracking models.DeliveryTracking)
}

// OrderStateMachine validates and applies order status transitions, keeps
// the append-only history ledger and fires per-transition side effects.
type OrderStateMachine struct {
	db       *gorm.DB
	catalog  *StatusCatalog
	notifier Notifier
	log      *logrus.Logger
}

func NewOrderStateMachine(db *gorm.DB, catalog *StatusCatalog, notifier Notifier, log *logrus.Logger) *OrderStateMachine {
	return &OrderStateMachine{db: db, catalog: catalog, notifier: notifier, log: log}
}

// Transition moves an order to targetStatus if the move is allowed from the
// order's current status. The guard is evaluated inside the same transaction
// as the write, so two concurrent requests cannot both succeed from a stale
// current-status read. The status change and the history row commit
// atomically; side effects run after commit and never roll it back.
func (sm *OrderStateMachine) Transition(orderID uint, targetStatus string, note string, actorID uint) (*models.Order, error) {
	target, err := sm.catalog.ByName(targetStatus)
	if err != nil {
		return nil, err
	}

	var order models.Order
	err = sm.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("DeliveryAddress").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}

		current, err := sm.catalog.ByID(order.StatusID)
		if err != nil {
			return err
		}
		if !sm.catalog.CanTransition(current.Name, target.Name) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Name, target.Name)
		}

		order.StatusID = target.ID
		order.Status = target
		if target.Name == models.StatusDelivered {
			now := time.Now()
			order.ActualDeliveryTime = &now
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"status_id":            order.StatusID,
				"actual_delivery_time": order.ActualDeliveryTime,
				"updated_at":           time.Now(),
			}).Error; err != nil {
			return err
		}

		history := models.OrderStatusHistory{
			OrderID:   order.ID,
			StatusID:  target.ID,
			Note:      note,
			ChangedBy: actorID,
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return nil, err
	}

	sm.runSideEffects(order, target)
	return &order, nil
}

// runSideEffects fires the per-transition hooks. The transition itself is
// the durable fact; failures here are logged and swallowed.
func (sm *OrderStateMachine) runSideEffects(order models.Order, target models.OrderStatus) {
	defer func() {
		if r := recover(); r != nil {
			sm.log.Errorf("side effect panic for order %d (%s): %v", order.ID, target.Name, r)
		}
	}()

	switch target.Name {
	case models.StatusReady:
		if order.OrderType == models.OrderTypeDelivery && sm.notifier != nil {
			sm.notifier.NotifyEligibleDrivers(order)
		}
	case models.StatusOutForDelivery:
		if err := sm.ensureInitialTracking(order); err != nil {
			sm.log.Errorf("initial tracking row for order %d: %v", order.ID, err)
		}
	case models.StatusDelivered:
		// Timestamp is stamped inside the transaction; the driver goes
		// back into the dispatch pool here.
		sm.releaseDriver(order)
	case models.StatusCancelled:
		sm.releaseDriver(order)
	case models.StatusCompleted:
		sm.log.Infof("order %d finalized", order.ID)
	}

	if sm.notifier != nil {
		sm.notifier.OrderStatusChanged(order, target)
	}
}

// releaseDriver marks the order's driver available again once the order no
// longer needs one.
func (sm *OrderStateMachine) releaseDriver(order models.Order) {
	if order.DriverID == nil {
		return
	}
	if err := sm.db.Model(&models.User{}).Where("id = ?", *order.DriverID).
		Update("is_available", true).Error; err != nil {
		sm.log.Errorf("releasing driver %d after order %d: %v", *order.DriverID, order.ID, err)
	}
}

// ensureInitialTracking creates a first tracking row when an order goes out
// for delivery without one (the assignment coordinator usually writes the
// "assigned" row first; a manual transition does not).
func (sm *OrderStateMachine) ensureInitialTracking(order models.Order) error {
	if order.DriverID == nil {
		return nil
	}

	var count int64
	if err := sm.db.Model(&models.DeliveryTracking{}).
		Where("order_id = ?", order.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var restaurant models.Restaurant
	if err := sm.db.First(&restaurant, order.RestaurantID).Error; err != nil {
		return err
	}

	tracking := models.DeliveryTracking{
		OrderID:   order.ID,
		DriverID:  *order.DriverID,
		Latitude:  restaurant.Latitude,
		Longitude: restaurant.Longitude,
		Status:    models.TrackingAssigned,
	}
	if order.DeliveryAddress != nil {
		est := EstimateRoute(restaurant.Latitude, restaurant.Longitude,
			order.DeliveryAddress.Latitude, order.DeliveryAddress.Longitude)
		tracking.DistanceKm = est.DistanceKm
		tracking.EtaMinutes = est.EtaMinutes
	}
	return sm.db.Create(&tracking).Error
}

// HistoryEntry is one ledger row plus the time the order spent in the
// previous status before this transition landed.
type HistoryEntry struct {
	models.OrderStatusHistory
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// History returns the append-only transition ledger for an order, oldest
// first, with per-row elapsed time since the previous transition.
func (sm *OrderStateMachine) History(orderID uint) ([]HistoryEntry, error) {
	var order models.Order
	if err := sm.db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}

	var rows []models.OrderStatusHistory
	if err := sm.db.Preload("Status").
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, len(rows))
	prev := order.CreatedAt
	for i, row := range rows {
		entries[i] = HistoryEntry{
			OrderStatusHistory: row,
			ElapsedSeconds:     row.CreatedAt.Sub(prev).Seconds(),
		}
		prev = row.CreatedAt
	}
	return entries, nil
}
