package services

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/chopwell/chopwell-api/models"
)

// PaymentMetrics tracks settlement counters for observability.
type PaymentMetrics struct {
	TotalSwept         int64
	SuccessfulPayments int64
	FailedPayments     int64
	StillPending       int64
}

// PaymentMonitor periodically re-verifies pending payments against the
// gateway. It closes the window where local state was rolled back after a
// successful gateway initialization, and picks up webhooks that never
// arrived.
type PaymentMonitor struct {
	db            *gorm.DB
	payments      *PaymentService
	log           *logrus.Logger
	metrics       PaymentMetrics
	retryQueue    []string
	sweepInterval time.Duration
	minPendingAge time.Duration
	stop          chan struct{}
	mutex         sync.Mutex
}

func NewPaymentMonitor(db *gorm.DB, payments *PaymentService, log *logrus.Logger) *PaymentMonitor {
	return &PaymentMonitor{
		db:            db,
		payments:      payments,
		log:           log,
		retryQueue:    make([]string, 0),
		sweepInterval: 5 * time.Minute,
		minPendingAge: 2 * time.Minute,
		stop:          make(chan struct{}),
	}
}

// Start launches the sweep goroutine.
func (pm *PaymentMonitor) Start() {
	go pm.run()
	pm.log.Info("payment monitor started")
}

// Stop terminates the sweep goroutine.
func (pm *PaymentMonitor) Stop() {
	close(pm.stop)
}

// AddToRetryQueue flags a reference for the next sweep regardless of age.
func (pm *PaymentMonitor) AddToRetryQueue(reference string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	for _, ref := range pm.retryQueue {
		if ref == reference {
			return
		}
	}
	pm.retryQueue = append(pm.retryQueue, reference)
}

// Metrics returns a snapshot of the sweep counters.
func (pm *PaymentMonitor) Metrics() PaymentMetrics {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.metrics
}

func (pm *PaymentMonitor) run() {
	ticker := time.NewTicker(pm.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.Sweep()
		case <-pm.stop:
			return
		}
	}
}

// Sweep reconciles queued references plus every pending payment older than
// the minimum age. Reconciliation is idempotent, so racing a webhook is
// harmless.
func (pm *PaymentMonitor) Sweep() {
	pm.mutex.Lock()
	queued := pm.retryQueue
	pm.retryQueue = make([]string, 0)
	pm.mutex.Unlock()

	refs := make(map[string]struct{}, len(queued))
	for _, ref := range queued {
		refs[ref] = struct{}{}
	}

	var stale []models.Payment
	cutoff := time.Now().Add(-pm.minPendingAge)
	if err := pm.db.
		Where("status = ? AND created_at <= ?", models.PaymentPending, cutoff).
		Find(&stale).Error; err != nil {
		pm.log.Errorf("payment sweep query: %v", err)
		return
	}
	for _, p := range stale {
		refs[p.Reference] = struct{}{}
	}

	for ref := range refs {
		result, err := pm.payments.VerifyPayment(ref)

		pm.mutex.Lock()
		pm.metrics.TotalSwept++
		switch {
		case err != nil && errors.Is(err, ErrGateway):
			// Still pending on our side; retry next sweep.
			pm.metrics.StillPending++
		case err != nil:
			pm.log.Errorf("sweeping payment %s: %v", ref, err)
		case result.Payment.Status == models.PaymentSuccess:
			pm.metrics.SuccessfulPayments++
		case result.Payment.Status == models.PaymentFailed:
			pm.metrics.FailedPayments++
		default:
			pm.metrics.StillPending++
		}
		pm.mutex.Unlock()

		if err != nil && errors.Is(err, ErrGateway) {
			pm.AddToRetryQueue(ref)
		}
	}
}
