package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chopwell/chopwell-api/database"
	"github.com/chopwell/chopwell-api/models"
	"github.com/chopwell/chopwell-api/realtime"
	"github.com/chopwell/chopwell-api/router"
	"github.com/chopwell/chopwell-api/services"
	"github.com/chopwell/chopwell-api/utils"
)

const testSecretKey = "sk_test_integration"

func TestMain(m *testing.M) {
	utils.InitLogger()
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type integrationEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	gateway  *httptest.Server
	customer models.User
	staff    models.User
	driver   models.User
	address  models.Address
	menuA    models.Menu
	menuB    models.Menu
}

// TestEndToEndDeliveryFlow walks the full path of a delivery order:
// 1. Customer checks out a 2000 cart with 200 delivery fee and 160 tax
// 2. Payment is initialized, then settled by a signed webhook
// 3. A duplicate webhook and a verify poll are both no-ops
// 4. Kitchen walks Pending -> Preparing -> Ready
// 5. Dispatch assigns a driver, the order goes Out for Delivery
// 6. The driver pings a location, tracking is readable
// 7. Delivered -> Completed, history carries one row per hop
func TestEndToEndDeliveryFlow(t *testing.T) {
	env := setupIntegrationEnv(t)
	defer env.gateway.Close()

	customerToken := tokenFor(t, env.customer)
	staffToken := tokenFor(t, env.staff)
	driverToken := tokenFor(t, env.driver)

	orderID := checkoutTest(t, env, customerToken)
	reference := initializePaymentTest(t, env, customerToken, orderID)

	webhookTest(t, env, reference, false)
	webhookTest(t, env, reference, true) // duplicate delivery
	verifyPaymentTest(t, env, customerToken, reference)
	assertOrderPaid(t, env, customerToken, orderID)
	assertSingleInvoice(t, env, reference)

	updateStatusTest(t, env, staffToken, orderID, models.StatusPreparing)
	updateStatusTest(t, env, staffToken, orderID, models.StatusReady)
	assignDriverTest(t, env, staffToken, orderID)
	pingLocationTest(t, env, driverToken)
	trackingTest(t, env, customerToken, orderID)
	updateStatusTest(t, env, driverToken, orderID, models.StatusDelivered)
	updateStatusTest(t, env, staffToken, orderID, models.StatusCompleted)

	historyTest(t, env, customerToken, orderID, []string{
		models.StatusPreparing,
		models.StatusReady,
		models.StatusOutForDelivery,
		models.StatusDelivered,
		models.StatusCompleted,
	})
}

func TestRejectedTransitionsOverHTTP(t *testing.T) {
	env := setupIntegrationEnv(t)
	defer env.gateway.Close()

	customerToken := tokenFor(t, env.customer)
	staffToken := tokenFor(t, env.staff)

	orderID := checkoutTest(t, env, customerToken)

	// Skipping straight to Delivered is a conflict, not a server error.
	w := doJSON(t, env.router, http.MethodPatch,
		"/api/orders/"+strconv.FormatUint(uint64(orderID), 10)+"/status",
		staffToken, map[string]interface{}{"status": models.StatusDelivered})
	if w.Code != http.StatusConflict {
		t.Fatalf("skip transition: want 409, got %d, body=%s", w.Code, w.Body.String())
	}

	// Customers cannot drive the status machine at all.
	w = doJSON(t, env.router, http.MethodPatch,
		"/api/orders/"+strconv.FormatUint(uint64(orderID), 10)+"/status",
		customerToken, map[string]interface{}{"status": models.StatusPreparing})
	if w.Code != http.StatusForbidden {
		t.Fatalf("customer transition: want 403, got %d, body=%s", w.Code, w.Body.String())
	}
}

func TestRegisterAndLoginOverHTTP(t *testing.T) {
	env := setupIntegrationEnv(t)
	defer env.gateway.Close()

	w := doJSON(t, env.router, http.MethodPost, "/register", "", map[string]interface{}{
		"name":     "Chidi",
		"email":    "chidi@example.com",
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: want 201, got %d, body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, env.router, http.MethodPost, "/login", "", map[string]interface{}{
		"email":    "chidi@example.com",
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: want 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Token string `json:"token"`
			Role  string `json:"role"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.Token == "" || resp.Data.Role != models.RoleCustomer {
		t.Fatalf("login: token or role missing, body=%s", w.Body.String())
	}

	// The issued token opens the authenticated surface.
	w = doJSON(t, env.router, http.MethodGet, "/api/profile", resp.Data.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile: want 200, got %d, body=%s", w.Code, w.Body.String())
	}

	// Wrong password is rejected without detail.
	w = doJSON(t, env.router, http.MethodPost, "/login", "", map[string]interface{}{
		"email":    "chidi@example.com",
		"password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: want 401, got %d", w.Code)
	}
}

func TestWebhookSignatureRejectedOverHTTP(t *testing.T) {
	env := setupIntegrationEnv(t)
	defer env.gateway.Close()

	body := []byte(`{"event":"charge.success","data":{"reference":"CW-forged","status":"success"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Paystack-Signature", "deadbeef")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged webhook: want 401, got %d, body=%s", w.Code, w.Body.String())
	}
}

func setupIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := database.SeedOrderStatuses(db); err != nil {
		t.Fatalf("failed to seed statuses: %v", err)
	}

	restaurant := models.Restaurant{Name: "Chopwell Lekki", Latitude: 6.4281, Longitude: 3.4219}
	db.Create(&restaurant)

	customer := models.User{Name: "Ada", Email: "ada@example.com", Password: "x", Role: models.RoleCustomer}
	staff := models.User{Name: "Bisi", Email: "bisi@example.com", Password: "x", Role: models.RoleStaff}
	driverLat, driverLng := 6.4290, 3.4230
	driver := models.User{
		Name: "Kunle", Email: "kunle@example.com", Password: "x", Role: models.RoleDriver,
		IsOnline: true, IsAvailable: true, IsActive: true,
		CurrentLat: &driverLat, CurrentLng: &driverLng,
	}
	db.Create(&customer)
	db.Create(&staff)
	db.Create(&driver)

	address := models.Address{UserID: customer.ID, Street: "12 Admiralty Way", Latitude: 6.4412, Longitude: 3.4499}
	db.Create(&address)

	menuA := models.Menu{RestaurantID: restaurant.ID, Name: "Jollof Rice", Price: 600, IsAvailable: true}
	menuB := models.Menu{RestaurantID: restaurant.ID, Name: "Suya Platter", Price: 800, IsAvailable: true}
	db.Create(&menuA)
	db.Create(&menuB)

	// Fake gateway: initialize always succeeds; verify settles whatever
	// reference is asked for.
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/transaction/initialize":
			w.Write([]byte(`{"status":true,"data":{"authorization_url":"https://checkout.paystack.com/it1","access_code":"it1"}}`))
		case strings.HasPrefix(r.URL.Path, "/transaction/verify/"):
			ref := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
			fmt.Fprintf(w, `{"status":true,"data":{"status":"success","reference":"%s","amount":236000,"channel":"card"}}`, ref)
		default:
			w.Write([]byte(`{"status":true,"message":"ok"}`))
		}
	}))

	catalog, err := services.NewStatusCatalog(db)
	if err != nil {
		t.Fatalf("building status catalog: %v", err)
	}

	hub := realtime.NewHub(utils.InfoLogger)
	gatewaySvc := services.NewPaystackService(&services.PaystackConfig{
		SecretKey: testSecretKey,
		BaseURL:   gateway.URL,
	}, utils.InfoLogger)

	stateMachine := services.NewOrderStateMachine(db, catalog, hub, utils.InfoLogger)
	orders := services.NewOrderService(db, catalog, utils.InfoLogger)
	deliveries := services.NewDeliveryService(db, catalog, stateMachine, hub, utils.InfoLogger)
	payments := services.NewPaymentService(db, gatewaySvc, hub, utils.InfoLogger)

	r := router.SetupRouter(router.Deps{
		DB:           db,
		Orders:       orders,
		StateMachine: stateMachine,
		Deliveries:   deliveries,
		Payments:     payments,
		Gateway:      gatewaySvc,
		Hub:          hub,
	})

	return &integrationEnv{
		db:       db,
		router:   r,
		gateway:  gateway,
		customer: customer,
		staff:    staff,
		driver:   driver,
		address:  address,
		menuA:    menuA,
		menuB:    menuB,
	}
}

func tokenFor(t *testing.T, user models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(user.ID, user.Role)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// checkoutTest -> POST /api/orders, asserts the monetary invariant:
// 2x600 + 1x800 = 2000, +200 delivery +160 tax = 2360.
func checkoutTest(t *testing.T, env *integrationEnv, token string) uint {
	t.Helper()
	w := doJSON(t, env.router, http.MethodPost, "/api/orders", token, map[string]interface{}{
		"restaurant_id":       1,
		"order_type":          "delivery",
		"delivery_address_id": env.address.ID,
		"delivery_fee":        200,
		"tax":                 160,
		"items": []map[string]interface{}{
			{"menu_id": env.menuA.ID, "quantity": 2},
			{"menu_id": env.menuB.ID, "quantity": 1, "notes": "extra spicy"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout: want 201, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Status bool `json:"status"`
		Data   struct {
			ID         uint    `json:"id"`
			Subtotal   float64 `json:"subtotal"`
			FinalTotal float64 `json:"final_total"`
			Status     struct {
				Name string `json:"name"`
			} `json:"status"`
			OrderItems []struct {
				UnitPrice float64 `json:"unit_price"`
				LineTotal float64 `json:"line_total"`
			} `json:"order_items"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Data.Status.Name != models.StatusPending {
		t.Fatalf("checkout: want status Pending, got %s", resp.Data.Status.Name)
	}
	if resp.Data.Subtotal != 2000 {
		t.Fatalf("checkout: want subtotal 2000, got %v", resp.Data.Subtotal)
	}
	if resp.Data.FinalTotal != 2360 {
		t.Fatalf("checkout: want final total 2360, got %v", resp.Data.FinalTotal)
	}
	if len(resp.Data.OrderItems) != 2 {
		t.Fatalf("checkout: want 2 items, got %d", len(resp.Data.OrderItems))
	}
	return resp.Data.ID
}

func initializePaymentTest(t *testing.T, env *integrationEnv, token string, orderID uint) string {
	t.Helper()
	w := doJSON(t, env.router, http.MethodPost, "/api/payments/initialize", token, map[string]interface{}{
		"order_id": orderID,
		"email":    "ada@example.com",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("initialize payment: want 201, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Reference        string `json:"reference"`
			AuthorizationURL string `json:"authorization_url"`
			Payment          struct {
				Status string  `json:"status"`
				Amount float64 `json:"amount"`
			} `json:"payment"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Data.Reference == "" || resp.Data.AuthorizationURL == "" {
		t.Fatalf("initialize payment: missing reference or url, body=%s", w.Body.String())
	}
	if resp.Data.Payment.Status != models.PaymentPending {
		t.Fatalf("initialize payment: want pending, got %s", resp.Data.Payment.Status)
	}
	if resp.Data.Payment.Amount != 2360 {
		t.Fatalf("initialize payment: want amount 2360, got %v", resp.Data.Payment.Amount)
	}
	return resp.Data.Reference
}

// webhookTest -> POST /webhooks/paystack with a properly signed body. The
// second delivery of the same event must report already_final.
func webhookTest(t *testing.T, env *integrationEnv, reference string, wantAlreadyFinal bool) {
	t.Helper()
	body := []byte(fmt.Sprintf(
		`{"event":"charge.success","data":{"status":"success","reference":"%s","amount":236000,"channel":"card"}}`,
		reference))

	mac := hmac.New(sha512.New, []byte(testSecretKey))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Paystack-Signature", signature)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook: want 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			AlreadyFinal bool `json:"already_final"`
			Payment      struct {
				Status string `json:"status"`
			} `json:"payment"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Data.Payment.Status != models.PaymentSuccess {
		t.Fatalf("webhook: want success, got %s", resp.Data.Payment.Status)
	}
	if resp.Data.AlreadyFinal != wantAlreadyFinal {
		t.Fatalf("webhook: want already_final=%v, got %v", wantAlreadyFinal, resp.Data.AlreadyFinal)
	}
}

// verifyPaymentTest -> GET /api/payments/verify/:reference after the webhook
// settled it; the poll must be a no-op.
func verifyPaymentTest(t *testing.T, env *integrationEnv, token, reference string) {
	t.Helper()
	w := doJSON(t, env.router, http.MethodGet, "/api/payments/verify/"+reference, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: want 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			AlreadyFinal bool `json:"already_final"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Data.AlreadyFinal {
		t.Fatalf("verify after webhook: want already_final=true, body=%s", w.Body.String())
	}
}

func assertOrderPaid(t *testing.T, env *integrationEnv, token string, orderID uint) {
	t.Helper()
	w := doJSON(t, env.router, http.MethodGet,
		"/api/orders/"+strconv.FormatUint(uint64(orderID), 10), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get order: want 200, got %d", w.Code)
	}

	var resp struct {
		Data struct {
			PaymentStatus string `json:"payment_status"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.PaymentStatus != models.OrderPaymentPaid {
		t.Fatalf("order payment status: want paid, got %s", resp.Data.PaymentStatus)
	}
}

func assertSingleInvoice(t *testing.T, env *integrationEnv, reference string) {
	t.Helper()
	var payment models.Payment
	if err := env.db.Where("reference = ?", reference).First(&payment).Error; err != nil {
		t.Fatalf("loading payment: %v", err)
	}

	var invoices int64
	if err := env.db.Model(&models.Invoice{}).
		Where("payment_id = ?", payment.ID).Count(&invoices).Error; err != nil {
		t.Fatalf("counting invoices: %v", err)
	}
	if invoices != 1 {
		t.Fatalf("want exactly 1 invoice, got %d", invoices)
	}
}

func updateStatusTest(t *testing.T, env *integrationEnv, token string, orderID uint, status string) {
	t.Helper()
	w := doJSON(t, env.router, http.MethodPatch,
		"/api/orders/"+strconv.FormatUint(uint64(orderID), 10)+"/status",
		token, map[string]interface{}{"status": status})
	if w.Code != http.StatusOK {
		t.Fatalf("transition to %s: want 200, got %d, body=%s", status, w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Status struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.Status.Name != status {
		t.Fatalf("transition to %s: order reports %s", status, resp.Data.Status.Name)
	}
}

func assignDriverTest(t *testing.T, env *integrationEnv, token string, orderID uint) {
	t.Helper()
	w := doJSON(t, env.router, http.MethodPost,
		"/api/orders/"+strconv.FormatUint(uint64(orderID), 10)+"/assign",
		token, map[string]interface{}{
			"driver_id":  env.driver.ID,
			"pickup_lat": 6.4281,
			"pickup_lng": 3.4219,
		})
	if w.Code != http.StatusOK {
		t.Fatalf("assign driver: want 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Order struct {
				Status struct {
					Name string `json:"name"`
				} `json:"status"`
			} `json:"order"`
			Tracking struct {
				Status     string  `json:"status"`
				DistanceKm float64 `json:"distance_km"`
			} `json:"tracking"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Data.Order.Status.Name != models.StatusOutForDelivery {
		t.Fatalf("assign driver: want Out for Delivery, got %s", resp.Data.Order.Status.Name)
	}
	if resp.Data.Tracking.Status != models.TrackingAssigned {
		t.Fatalf("assign driver: want assigned tracking row, got %s", resp.Data.Tracking.Status)
	}
}

func pingLocationTest(t *testing.T, env *integrationEnv, token string) {
	t.Helper()
	w := doJSON(t, env.router, http.MethodPost, "/api/drivers/location", token, map[string]interface{}{
		"latitude":  6.4350,
		"longitude": 3.4360,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("location ping: want 201, got %d, body=%s", w.Code, w.Body.String())
	}
}

func trackingTest(t *testing.T, env *integrationEnv, token string, orderID uint) {
	t.Helper()
	w := doJSON(t, env.router, http.MethodGet,
		"/api/orders/"+strconv.FormatUint(uint64(orderID), 10)+"/tracking", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tracking: want 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Tracking struct {
				Latitude float64 `json:"latitude"`
			} `json:"tracking"`
			Driver struct {
				ID uint `json:"id"`
			} `json:"driver"`
			Estimate struct {
				DistanceKm float64 `json:"distance_km"`
				EtaMinutes float64 `json:"eta_minutes"`
			} `json:"estimate"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Data.Driver.ID != env.driver.ID {
		t.Fatalf("tracking: want driver %d, got %d", env.driver.ID, resp.Data.Driver.ID)
	}
	if resp.Data.Estimate.DistanceKm <= 0 || resp.Data.Estimate.EtaMinutes <= 0 {
		t.Fatalf("tracking: estimate not computed, body=%s", w.Body.String())
	}
}

func historyTest(t *testing.T, env *integrationEnv, token string, orderID uint, wantStatuses []string) {
	t.Helper()
	w := doJSON(t, env.router, http.MethodGet,
		"/api/orders/"+strconv.FormatUint(uint64(orderID), 10)+"/history", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: want 200, got %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Data []struct {
			Status struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Data) != len(wantStatuses) {
		t.Fatalf("history: want %d rows, got %d, body=%s", len(wantStatuses), len(resp.Data), w.Body.String())
	}
	for i, want := range wantStatuses {
		if resp.Data[i].Status.Name != want {
			t.Fatalf("history[%d]: want %s, got %s", i, want, resp.Data[i].Status.Name)
		}
	}
}
