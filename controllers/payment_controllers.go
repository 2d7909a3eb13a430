package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chopwell/chopwell-api/models"
	"github.com/chopwell/chopwell-api/services"
	"github.com/chopwell/chopwell-api/utils"
)

type PaymentController struct {
	db       *gorm.DB
	payments *services.PaymentService
	gateway  *services.PaystackService
}

func NewPaymentController(db *gorm.DB, payments *services.PaymentService, gateway *services.PaystackService) *PaymentController {
	return &PaymentController{db: db, payments: payments, gateway: gateway}
}

// InitializePayment -> register a transaction with the gateway and record a
// pending payment for exactly one payable entity.
func (pc *PaymentController) InitializePayment(c *gin.Context) {
	var req struct {
		OrderID       *uint    `json:"order_id"`
		ReservationID *uint    `json:"reservation_id"`
		RoomBookingID *uint    `json:"room_booking_id"`
		Email         string   `json:"email" binding:"required,email"`
		Method        string   `json:"method"`
		Channels      []string `json:"channels"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := pc.payments.InitializePayment(services.InitializePaymentRequest{
		UserID:        actorID(c),
		OrderID:       req.OrderID,
		ReservationID: req.ReservationID,
		RoomBookingID: req.RoomBookingID,
		Email:         req.Email,
		Method:        req.Method,
		Channels:      req.Channels,
	})
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Payment initialized", result)
}

// VerifyPayment -> client-initiated reconciliation by reference
func (pc *PaymentController) VerifyPayment(c *gin.Context) {
	reference := c.Param("reference")
	if reference == "" {
		utils.RespondError(c, http.StatusBadRequest, errors.New("reference is required"))
		return
	}

	result, err := pc.payments.VerifyPayment(reference)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment verified", result)
}

// HandleWebhook -> gateway-initiated reconciliation. The raw-body signature
// check runs before anything else is read or parsed.
func (pc *PaymentController) HandleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("failed to read request body"))
		return
	}

	signature := c.GetHeader("X-Paystack-Signature")
	if err := pc.gateway.VerifySignature(body, signature); err != nil {
		utils.RespondServiceError(c, err)
		return
	}

	var event struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("failed to parse request body"))
		return
	}

	result, err := pc.payments.HandleWebhookEvent(event.Event, event.Data)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	if result == nil {
		// Unhandled event type; acknowledged so the provider stops retrying.
		utils.RespondJSON(c, http.StatusOK, "Event ignored", nil)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Webhook processed", result)
}

// InitiateRefund -> full refund of a successful payment
func (pc *PaymentController) InitiateRefund(c *gin.Context) {
	paymentID, err := paramUint(c, "payment_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	payment, err := pc.payments.InitiateRefund(paymentID, req.Reason)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment refunded", payment)
}

// GetPayment -> one payment with its linked entity
func (pc *PaymentController) GetPayment(c *gin.Context) {
	paymentID, err := paramUint(c, "payment_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var payment models.Payment
	if err := pc.db.Preload("Order").Preload("Reservation").Preload("RoomBooking").
		First(&payment, paymentID).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("payment not found"))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment detail", payment)
}

// ListPayments -> payments, optionally filtered by order
func (pc *PaymentController) ListPayments(c *gin.Context) {
	query := pc.db.Order("created_at DESC")
	if orderID := queryUint(c, "order_id"); orderID != nil {
		query = query.Where("order_id = ?", *orderID)
	}

	var payments []models.Payment
	if err := query.Find(&payments).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of payments", payments)
}

// GetInvoice -> the single invoice of a successful payment
func (pc *PaymentController) GetInvoice(c *gin.Context) {
	paymentID, err := paramUint(c, "payment_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var invoice models.Invoice
	if err := pc.db.Where("payment_id = ?", paymentID).First(&invoice).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("invoice not found"))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Invoice detail", invoice)
}
