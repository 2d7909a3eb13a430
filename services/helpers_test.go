package services

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chopwell/chopwell-api/database"
	"github.com/chopwell/chopwell-api/models"
)

// fakeNotifier records fan-out calls so tests can assert on side effects
// without a websocket hub.
type fakeNotifier struct {
	statusChanges    []string
	driverBroadcasts int
	paymentUpdates   []string
	locationPings    int
}

func (f *fakeNotifier) OrderStatusChanged(order models.Order, status models.OrderStatus) {
	f.statusChanges = append(f.statusChanges, status.Name)
}

func (f *fakeNotifier) NotifyEligibleDrivers(order models.Order) {
	f.driverBroadcasts++
}

func (f *fakeNotifier) PaymentUpdated(payment models.Payment) {
	f.paymentUpdates = append(f.paymentUpdates, payment.Status)
}

func (f *fakeNotifier) DeliveryLocation(tracking models.DeliveryTracking) {
	f.locationPings++
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// openTestDB opens a per-test named in-memory database. The shared cache
// keeps gorm's pooled connections on the same data; the name keeps tests
// isolated from each other.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("opening in-memory sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	if err := database.SeedOrderStatuses(db); err != nil {
		t.Fatalf("seeding statuses: %v", err)
	}
	return db
}

func testCatalog(t *testing.T, db *gorm.DB) *StatusCatalog {
	t.Helper()
	catalog, err := NewStatusCatalog(db)
	if err != nil {
		t.Fatalf("building status catalog: %v", err)
	}
	return catalog
}

// seedCore creates the minimal graph most tests need: a restaurant in Lagos,
// a customer, the customer's delivery address ~2km away and two menu items.
type coreFixture struct {
	Restaurant models.Restaurant
	Customer   models.User
	Address    models.Address
	MenuA      models.Menu
	MenuB      models.Menu
}

func seedCore(t *testing.T, db *gorm.DB) coreFixture {
	t.Helper()

	restaurant := models.Restaurant{Name: "Chopwell Lekki", Latitude: 6.4281, Longitude: 3.4219}
	if err := db.Create(&restaurant).Error; err != nil {
		t.Fatalf("seeding restaurant: %v", err)
	}

	customer := models.User{Name: "Ada", Email: "ada@example.com", Password: "x", Role: models.RoleCustomer}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("seeding customer: %v", err)
	}

	address := models.Address{UserID: customer.ID, Street: "12 Admiralty Way", Latitude: 6.4412, Longitude: 3.4499}
	if err := db.Create(&address).Error; err != nil {
		t.Fatalf("seeding address: %v", err)
	}

	menuA := models.Menu{RestaurantID: restaurant.ID, Name: "Jollof Rice", Price: 600, IsAvailable: true}
	menuB := models.Menu{RestaurantID: restaurant.ID, Name: "Suya Platter", Price: 800, IsAvailable: true}
	if err := db.Create(&menuA).Error; err != nil {
		t.Fatalf("seeding menu: %v", err)
	}
	if err := db.Create(&menuB).Error; err != nil {
		t.Fatalf("seeding menu: %v", err)
	}

	return coreFixture{Restaurant: restaurant, Customer: customer, Address: address, MenuA: menuA, MenuB: menuB}
}

// seedDriver creates a driver with the given flags at a position.
func seedDriver(t *testing.T, db *gorm.DB, email string, online, available bool, lat, lng float64) models.User {
	t.Helper()
	driver := models.User{
		Name:        "Driver " + email,
		Email:       email,
		Password:    "x",
		Role:        models.RoleDriver,
		IsOnline:    online,
		IsAvailable: available,
		IsActive:    true,
		CurrentLat:  &lat,
		CurrentLng:  &lng,
	}
	if err := db.Create(&driver).Error; err != nil {
		t.Fatalf("seeding driver: %v", err)
	}
	return driver
}

// seedOrder creates a delivery order in the given status.
func seedOrder(t *testing.T, db *gorm.DB, catalog *StatusCatalog, fx coreFixture, statusName, orderType string) models.Order {
	t.Helper()
	status, err := catalog.ByName(statusName)
	if err != nil {
		t.Fatalf("resolving status %s: %v", statusName, err)
	}

	order := models.Order{
		RestaurantID:  fx.Restaurant.ID,
		CustomerID:    fx.Customer.ID,
		OrderType:     orderType,
		StatusID:      status.ID,
		Subtotal:      2000,
		DeliveryFee:   200,
		Tax:           160,
		PaymentStatus: models.OrderPaymentUnpaid,
	}
	if orderType == models.OrderTypeDelivery {
		order.DeliveryAddressID = &fx.Address.ID
	}
	order.FinalTotal = order.ComputeFinalTotal()
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seeding order: %v", err)
	}
	return order
}
