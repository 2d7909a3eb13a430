package services

import (
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/chopwell/chopwell-api/models"
)

// allowedTransitions is the single source of truth for the order status
// graph. Completed and Cancelled are terminal.
var allowedTransitions = map[string][]string{
	models.StatusPending:        {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing:      {models.StatusReady, models.StatusCancelled},
	models.StatusReady:          {models.StatusOutForDelivery, models.StatusCompleted, models.StatusCancelled},
	models.StatusOutForDelivery: {models.StatusDelivered, models.StatusCancelled},
	models.StatusDelivered:      {models.StatusCompleted},
	models.StatusCompleted:      {},
	models.StatusCancelled:      {},
}

// StatusCatalog holds the fixed set of order statuses, loaded once from the
// reference table and read-only afterwards.
type StatusCatalog struct {
	byName map[string]models.OrderStatus
	byID   map[uint]models.OrderStatus
}

var (
	statusCatalog     *StatusCatalog
	statusCatalogOnce sync.Once
	statusCatalogErr  error
)

// LoadStatusCatalog reads the order_statuses table once and caches the
// result for the process lifetime.
func LoadStatusCatalog(db *gorm.DB) (*StatusCatalog, error) {
	statusCatalogOnce.Do(func() {
		statusCatalog, statusCatalogErr = buildStatusCatalog(db)
	})
	return statusCatalog, statusCatalogErr
}

// NewStatusCatalog builds a catalog without the process-wide cache. Tests
// use this with their own in-memory databases.
func NewStatusCatalog(db *gorm.DB) (*StatusCatalog, error) {
	return buildStatusCatalog(db)
}

func buildStatusCatalog(db *gorm.DB) (*StatusCatalog, error) {
	var statuses []models.OrderStatus
	if err := db.Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("loading status catalog: %w", err)
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("status catalog is empty; seed order_statuses first")
	}

	c := &StatusCatalog{
		byName: make(map[string]models.OrderStatus, len(statuses)),
		byID:   make(map[uint]models.OrderStatus, len(statuses)),
	}
	for _, s := range statuses {
		c.byName[s.Name] = s
		c.byID[s.ID] = s
	}
	return c, nil
}

// ByName resolves a status by its stable name.
func (c *StatusCatalog) ByName(name string) (models.OrderStatus, error) {
	s, ok := c.byName[name]
	if !ok {
		return models.OrderStatus{}, fmt.Errorf("%w: status %q", ErrNotFound, name)
	}
	return s, nil
}

// ByID resolves a status by its id.
func (c *StatusCatalog) ByID(id uint) (models.OrderStatus, error) {
	s, ok := c.byID[id]
	if !ok {
		return models.OrderStatus{}, fmt.Errorf("%w: status id %d", ErrNotFound, id)
	}
	return s, nil
}

// CanTransition reports whether target is in the allowed-next set for from.
func (c *StatusCatalog) CanTransition(from, target string) bool {
	for _, next := range allowedTransitions[from] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func (c *StatusCatalog) IsTerminal(name string) bool {
	return len(allowedTransitions[name]) == 0
}
