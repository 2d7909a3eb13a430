package services

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/chopwell/chopwell-api/models"
)

// OrderService creates orders at checkout and guards content mutation
// against the order lifecycle. Status changes go through the state machine
// only.
type OrderService struct {
	db      *gorm.DB
	catalog *StatusCatalog
	log     *logrus.Logger
}

func NewOrderService(db *gorm.DB, catalog *StatusCatalog, log *logrus.Logger) *OrderService {
	return &OrderService{db: db, catalog: catalog, log: log}
}

// CheckoutItem is one requested line.
type CheckoutItem struct {
	MenuID   uint   `json:"menu_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
	Notes    string `json:"notes"`
}

// CheckoutRequest creates one order.
type CheckoutRequest struct {
	CustomerID        uint
	RestaurantID      uint           `json:"restaurant_id" binding:"required"`
	OrderType         string         `json:"order_type" binding:"required,oneof=dine_in takeaway delivery"`
	TableNumber       *uint          `json:"table_number"`
	DeliveryAddressID *uint          `json:"delivery_address_id"`
	Discount          float64        `json:"discount"`
	DeliveryFee       float64        `json:"delivery_fee"`
	Tax               float64        `json:"tax"`
	ScheduledAt       *string        `json:"scheduled_at"`
	Items             []CheckoutItem `json:"items" binding:"required,min=1,dive"`
}

// Checkout creates the order and its items in one transaction, snapshotting
// menu prices into the items. The monetary invariant is applied once here;
// item content is frozen the moment the order leaves Pending.
func (s *OrderService) Checkout(req CheckoutRequest) (*models.Order, error) {
	if req.OrderType == models.OrderTypeDelivery && req.DeliveryAddressID == nil {
		return nil, fmt.Errorf("%w: delivery orders require a delivery address", ErrValidation)
	}

	pending, err := s.catalog.ByName(models.StatusPending)
	if err != nil {
		return nil, err
	}

	var order models.Order
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var restaurant models.Restaurant
		if err := tx.First(&restaurant, req.RestaurantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: restaurant %d", ErrNotFound, req.RestaurantID)
			}
			return err
		}

		if req.DeliveryAddressID != nil {
			var address models.Address
			if err := tx.First(&address, *req.DeliveryAddressID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: address %d", ErrNotFound, *req.DeliveryAddressID)
				}
				return err
			}
		}

		order = models.Order{
			RestaurantID:      req.RestaurantID,
			CustomerID:        req.CustomerID,
			TableNumber:       req.TableNumber,
			DeliveryAddressID: req.DeliveryAddressID,
			OrderType:         req.OrderType,
			StatusID:          pending.ID,
			Discount:          req.Discount,
			DeliveryFee:       req.DeliveryFee,
			Tax:               req.Tax,
			PaymentStatus:     models.OrderPaymentUnpaid,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		var subtotal float64
		for _, item := range req.Items {
			var menu models.Menu
			if err := tx.First(&menu, item.MenuID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: menu item %d", ErrNotFound, item.MenuID)
				}
				return err
			}
			if !menu.IsAvailable {
				return fmt.Errorf("%w: menu item %q is unavailable", ErrValidation, menu.Name)
			}

			lineTotal := float64(item.Quantity) * menu.Price
			subtotal += lineTotal

			orderItem := models.OrderItem{
				OrderID:   order.ID,
				MenuID:    menu.ID,
				Quantity:  item.Quantity,
				UnitPrice: menu.Price,
				LineTotal: lineTotal,
				Notes:     item.Notes,
			}
			if err := tx.Create(&orderItem).Error; err != nil {
				return err
			}
		}

		order.Subtotal = subtotal
		order.FinalTotal = order.ComputeFinalTotal()
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"subtotal":    order.Subtotal,
				"final_total": order.FinalTotal,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	return s.GetOrder(order.ID)
}

// GetOrder returns one order with its items and relations materialized.
func (s *OrderService) GetOrder(orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.
		Preload("OrderItems").
		Preload("OrderItems.Menu").
		Preload("Status").
		Preload("DeliveryAddress").
		Preload("Driver").
		First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}
	return &order, nil
}

// ListOrders filters by any combination of customer, restaurant and driver.
func (s *OrderService) ListOrders(customerID, restaurantID, driverID *uint) ([]models.Order, error) {
	query := s.db.Preload("Status").Preload("OrderItems").Order("created_at DESC")
	if customerID != nil {
		query = query.Where("customer_id = ?", *customerID)
	}
	if restaurantID != nil {
		query = query.Where("restaurant_id = ?", *restaurantID)
	}
	if driverID != nil {
		query = query.Where("driver_id = ?", *driverID)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateItemsRequest replaces quantities/notes on existing lines. Only
// allowed while the order is still Pending.
type UpdateItemsRequest struct {
	Items []struct {
		ID       uint    `json:"id" binding:"required"`
		Quantity *int    `json:"quantity"`
		Notes    *string `json:"notes"`
	} `json:"items" binding:"required,min=1"`
}

// UpdateItems mutates order content, re-deriving the totals from the price
// snapshots already taken. Unit prices are never refreshed from the menu.
func (s *OrderService) UpdateItems(orderID uint, req UpdateItemsRequest) (*models.Order, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}
		if err := s.requirePending(order); err != nil {
			return err
		}

		for _, upd := range req.Items {
			var item models.OrderItem
			if err := tx.Where("id = ? AND order_id = ?", upd.ID, orderID).First(&item).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: order item %d", ErrNotFound, upd.ID)
				}
				return err
			}
			if upd.Quantity != nil {
				if *upd.Quantity < 1 {
					return fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
				}
				item.Quantity = *upd.Quantity
				item.LineTotal = float64(item.Quantity) * item.UnitPrice
			}
			if upd.Notes != nil {
				item.Notes = *upd.Notes
			}
			if err := tx.Save(&item).Error; err != nil {
				return err
			}
		}

		var subtotal float64
		var items []models.OrderItem
		if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
			return err
		}
		for _, item := range items {
			subtotal += item.LineTotal
		}

		order.Subtotal = subtotal
		order.FinalTotal = order.ComputeFinalTotal()
		return tx.Model(&models.Order{}).Where("id = ?", orderID).
			Updates(map[string]interface{}{
				"subtotal":    order.Subtotal,
				"final_total": order.FinalTotal,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(orderID)
}

// SoftDelete removes an order from view. Permitted only while Pending.
func (s *OrderService) SoftDelete(orderID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}
		if err := s.requirePending(order); err != nil {
			return err
		}
		return tx.Delete(&order).Error
	})
}

func (s *OrderService) requirePending(order models.Order) error {
	current, err := s.catalog.ByID(order.StatusID)
	if err != nil {
		return err
	}
	if current.Name != models.StatusPending {
		return fmt.Errorf("%w: order content is frozen once status is %s", ErrInvalidState, current.Name)
	}
	return nil
}
