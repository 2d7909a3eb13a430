package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chopwell/chopwell-api/models"
)

// PaymentService is the reconciliation core: it creates payment records,
// funnels both verify polling and webhook pushes through one idempotent
// reconcile step, and keeps invoices and payable-entity statuses in line
// with the provider outcome.
type PaymentService struct {
	db       *gorm.DB
	gateway  *PaystackService
	notifier Notifier
	log      *logrus.Logger
}

func NewPaymentService(db *gorm.DB, gateway *PaystackService, notifier Notifier, log *logrus.Logger) *PaymentService {
	return &PaymentService{db: db, gateway: gateway, notifier: notifier, log: log}
}

// InitializePaymentRequest targets exactly one payable entity.
type InitializePaymentRequest struct {
	UserID        uint
	OrderID       *uint
	ReservationID *uint
	RoomBookingID *uint
	Email         string
	Method        string
	Channels      []string
}

// InitializePaymentResult carries what the client needs to complete the
// checkout on the provider's page.
type InitializePaymentResult struct {
	Payment          models.Payment `json:"payment"`
	AuthorizationURL string         `json:"authorization_url"`
	AccessCode       string         `json:"access_code"`
	Reference        string         `json:"reference"`
}

// InitializePayment resolves the payable entity, registers the transaction
// with the gateway and records a pending payment. A gateway failure leaves
// no local record; a local failure after the gateway call is rolled back
// and resolved later through verify-by-reference or the pending sweep.
func (svc *PaymentService) InitializePayment(req InitializePaymentRequest) (*InitializePaymentResult, error) {
	if countLinks(req.OrderID, req.ReservationID, req.RoomBookingID) != 1 {
		return nil, fmt.Errorf("%w: exactly one of order_id, reservation_id, room_booking_id is required", ErrValidation)
	}

	amount, currency, err := svc.resolvePayable(req)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	}

	reference := newReference()
	metadata := map[string]interface{}{}
	if req.OrderID != nil {
		metadata["order_id"] = *req.OrderID
	}
	if req.ReservationID != nil {
		metadata["reservation_id"] = *req.ReservationID
	}
	if req.RoomBookingID != nil {
		metadata["room_booking_id"] = *req.RoomBookingID
	}

	initResult, err := svc.gateway.InitializeTransaction(InitializeRequest{
		Email:     req.Email,
		Amount:    amount,
		Currency:  currency,
		Reference: reference,
		Channels:  req.Channels,
		Metadata:  metadata,
	})
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = "card"
	}

	payment := models.Payment{
		UserID:           req.UserID,
		OrderID:          req.OrderID,
		ReservationID:    req.ReservationID,
		RoomBookingID:    req.RoomBookingID,
		Amount:           amount,
		Currency:         currency,
		Method:           method,
		Gateway:          "paystack",
		PaymentNumber:    newPaymentNumber(),
		Reference:        reference,
		Status:           models.PaymentPending,
		AuthorizationURL: initResult.AuthorizationURL,
		AccessCode:       initResult.AccessCode,
	}

	if err := svc.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&payment).Error
	}); err != nil {
		// The remote transaction still exists; the pending sweep or a
		// verify(reference) call reconciles it later.
		svc.log.Errorf("payment record for reference %s rolled back after gateway init: %v", reference, err)
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("%w: payment reference or number", ErrConflict)
		}
		return nil, err
	}

	return &InitializePaymentResult{
		Payment:          payment,
		AuthorizationURL: initResult.AuthorizationURL,
		AccessCode:       initResult.AccessCode,
		Reference:        reference,
	}, nil
}

// ReconcileResult reports the post-reconciliation payment and whether the
// call was a no-op against an already-terminal record.
type ReconcileResult struct {
	Payment      models.Payment `json:"payment"`
	AlreadyFinal bool           `json:"already_final"`
}

// VerifyPayment reconciles a payment by asking the provider for the final
// status of the reference. Safe to call any number of times.
func (svc *PaymentService) VerifyPayment(reference string) (*ReconcileResult, error) {
	return svc.reconcile(reference, func() (*ProviderOutcome, error) {
		return svc.gateway.VerifyTransaction(reference)
	})
}

// HandleWebhookEvent reconciles a payment from a signature-checked webhook
// payload. Events other than charge.success / charge.failed are logged and
// ignored. Duplicate deliveries are no-ops.
func (svc *PaymentService) HandleWebhookEvent(event string, data json.RawMessage) (*ReconcileResult, error) {
	outcome, err := svc.gateway.OutcomeFromWebhook(event, data)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		svc.log.Infof("ignoring webhook event %q", event)
		return nil, nil
	}
	return svc.reconcile(outcome.Reference, func() (*ProviderOutcome, error) {
		return outcome, nil
	})
}

// reconcile is the single funnel both ingress paths converge on. The
// status-terminal guard and the writes share one transaction, so two racing
// calls for the same reference cannot both apply the outcome.
func (svc *PaymentService) reconcile(reference string, resolve func() (*ProviderOutcome, error)) (*ReconcileResult, error) {
	var result ReconcileResult

	err := svc.db.Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := lockForUpdate(tx).Where("reference = ?", reference).First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: payment with reference %s", ErrNotFound, reference)
			}
			return err
		}

		// Idempotency guard: terminal payments return the stored outcome
		// unchanged. No gateway call, no invoice, no entity update.
		if payment.IsTerminal() {
			result = ReconcileResult{Payment: payment, AlreadyFinal: true}
			return nil
		}

		outcome, err := resolve()
		if err != nil {
			// Payment stays pending; the caller may retry later.
			return err
		}

		now := time.Now()
		payment.ProcessedAt = &now
		if outcome.Succeeded {
			payment.Status = models.PaymentSuccess
			payment.Channel = outcome.Channel
			payment.GatewayTransactionID = outcome.TransactionID
			if outcome.PaidAt != nil {
				payment.PaidAt = outcome.PaidAt
			} else {
				payment.PaidAt = &now
			}
		} else {
			payment.Status = models.PaymentFailed
			payment.FailedAt = &now
			payment.FailureReason = outcome.GatewayResponse
			if payment.FailureReason == "" {
				payment.FailureReason = "declined by provider"
			}
		}

		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		if payment.Status == models.PaymentSuccess {
			if err := svc.createInvoiceOnce(tx, &payment); err != nil {
				return err
			}
			// Entity bookkeeping failures are logged, never escalated: a
			// successful payment must not be reversed by a downstream
			// update going wrong.
			svc.propagateEntityStatus(tx, &payment)
		}

		result = ReconcileResult{Payment: payment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyFinal && svc.notifier != nil {
		svc.notifier.PaymentUpdated(result.Payment)
	}
	return &result, nil
}

// createInvoiceOnce creates the one invoice a successful payment gets. The
// in-transaction existence check backs up the schema's unique index.
func (svc *PaymentService) createInvoiceOnce(tx *gorm.DB, payment *models.Payment) error {
	var count int64
	if err := tx.Model(&models.Invoice{}).
		Where("payment_id = ?", payment.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	invoice := models.Invoice{
		PaymentID:     payment.ID,
		InvoiceNumber: newInvoiceNumber(),
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		IssuedAt:      time.Now(),
	}
	if err := tx.Create(&invoice).Error; err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return err
	}
	return nil
}

// propagateEntityStatus flips the linked payable entity. Sub-step failures
// are isolated and logged for reconciliation tooling to pick up.
func (svc *PaymentService) propagateEntityStatus(tx *gorm.DB, payment *models.Payment) {
	switch {
	case payment.OrderID != nil:
		if err := tx.Model(&models.Order{}).Where("id = ?", *payment.OrderID).
			Update("payment_status", models.OrderPaymentPaid).Error; err != nil {
			svc.log.Errorf("marking order %d paid for payment %d: %v", *payment.OrderID, payment.ID, err)
		}
	case payment.ReservationID != nil:
		if err := tx.Model(&models.Reservation{}).Where("id = ?", *payment.ReservationID).
			Update("status", models.ReservationConfirmed).Error; err != nil {
			svc.log.Errorf("confirming reservation %d for payment %d: %v", *payment.ReservationID, payment.ID, err)
		}
	case payment.RoomBookingID != nil:
		if err := tx.Model(&models.RoomBooking{}).Where("id = ?", *payment.RoomBookingID).
			Update("status", models.RoomBookingConfirmed).Error; err != nil {
			svc.log.Errorf("confirming room booking %d for payment %d: %v", *payment.RoomBookingID, payment.ID, err)
		}
	}
}

// InitiateRefund refunds the full amount of a successful payment. Partial
// refunds are not modeled.
func (svc *PaymentService) InitiateRefund(paymentID uint, reason string) (*models.Payment, error) {
	var payment models.Payment

	err := svc.db.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&payment, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: payment %d", ErrNotFound, paymentID)
			}
			return err
		}
		if payment.Status != models.PaymentSuccess {
			return fmt.Errorf("%w: refund requires a successful payment, got %s", ErrInvalidState, payment.Status)
		}

		if err := svc.gateway.RefundTransaction(payment.Reference); err != nil {
			return err
		}

		payment.Status = models.PaymentRefunded
		payment.RefundedAmount = payment.Amount
		if reason != "" {
			payment.FailureReason = reason
		}
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		if payment.OrderID != nil {
			if err := tx.Model(&models.Order{}).Where("id = ?", *payment.OrderID).
				Update("payment_status", models.OrderPaymentRefunded).Error; err != nil {
				svc.log.Errorf("marking order %d refunded for payment %d: %v", *payment.OrderID, payment.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if svc.notifier != nil {
		svc.notifier.PaymentUpdated(payment)
	}
	return &payment, nil
}

// GetPaymentByReference loads a payment by its gateway reference.
func (svc *PaymentService) GetPaymentByReference(reference string) (*models.Payment, error) {
	var payment models.Payment
	if err := svc.db.Where("reference = ?", reference).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment with reference %s", ErrNotFound, reference)
		}
		return nil, err
	}
	return &payment, nil
}

func (svc *PaymentService) resolvePayable(req InitializePaymentRequest) (float64, string, error) {
	switch {
	case req.OrderID != nil:
		var order models.Order
		if err := svc.db.First(&order, *req.OrderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, "", fmt.Errorf("%w: order %d", ErrNotFound, *req.OrderID)
			}
			return 0, "", err
		}
		if order.PaymentStatus == models.OrderPaymentPaid {
			return 0, "", fmt.Errorf("%w: order %d is already paid", ErrInvalidState, order.ID)
		}
		return order.FinalTotal, defaultCurrency(), nil
	case req.ReservationID != nil:
		var reservation models.Reservation
		if err := svc.db.First(&reservation, *req.ReservationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, "", fmt.Errorf("%w: reservation %d", ErrNotFound, *req.ReservationID)
			}
			return 0, "", err
		}
		return reservation.Amount, defaultCurrency(), nil
	default:
		var booking models.RoomBooking
		if err := svc.db.First(&booking, *req.RoomBookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, "", fmt.Errorf("%w: room booking %d", ErrNotFound, *req.RoomBookingID)
			}
			return 0, "", err
		}
		return booking.Amount, defaultCurrency(), nil
	}
}

func defaultCurrency() string {
	return "NGN"
}

func countLinks(ids ...*uint) int {
	n := 0
	for _, id := range ids {
		if id != nil {
			n++
		}
	}
	return n
}

func newReference() string {
	return "CW-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

func newPaymentNumber() string {
	return "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
}

func newInvoiceNumber() string {
	return "INV-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
}

// lockForUpdate applies SELECT ... FOR UPDATE on engines that support it.
// The sqlite test driver serializes writers anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// isDuplicateKey matches unique-constraint violations across the mysql and
// sqlite drivers.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
