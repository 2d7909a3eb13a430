package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PaystackConfig holds Paystack API credentials and endpoints.
type PaystackConfig struct {
	SecretKey   string
	PublicKey   string
	BaseURL     string
	CallbackURL string
}

// PaystackService handles Paystack API interactions.
type PaystackService struct {
	config     *PaystackConfig
	httpClient *http.Client
	log        *logrus.Logger
}

var (
	paystackService *PaystackService
	paystackOnce    sync.Once
)

// GetPaystackService returns the process-wide instance configured from the
// environment.
func GetPaystackService(log *logrus.Logger) *PaystackService {
	paystackOnce.Do(func() {
		cfg := &PaystackConfig{
			SecretKey:   os.Getenv("PAYSTACK_SECRET_KEY"),
			PublicKey:   os.Getenv("PAYSTACK_PUBLIC_KEY"),
			BaseURL:     os.Getenv("PAYSTACK_BASE_URL"),
			CallbackURL: os.Getenv("PAYSTACK_CALLBACK_URL"),
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.paystack.co"
		}
		paystackService = NewPaystackService(cfg, log)
	})
	return paystackService
}

// NewPaystackService builds a service against an explicit config. Tests use
// this to point at a local httptest server.
func NewPaystackService(cfg *PaystackConfig, log *logrus.Logger) *PaystackService {
	return &PaystackService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// ValidateConfig checks that required credentials are present.
func (ps *PaystackService) ValidateConfig() error {
	if ps.config.SecretKey == "" {
		return fmt.Errorf("PAYSTACK_SECRET_KEY is not set")
	}
	if ps.config.BaseURL == "" {
		return fmt.Errorf("PAYSTACK_BASE_URL is not set")
	}
	return nil
}

// InitializeRequest is the payload for starting a transaction. Amount is in
// the major currency unit; the wire format carries minor units (x100).
type InitializeRequest struct {
	Email       string
	Amount      float64
	Currency    string
	Reference   string
	Channels    []string
	Metadata    map[string]interface{}
	CallbackURL string
}

// InitializeResult is the normalized provider response.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeTransaction starts a transaction with the provider and returns
// the authorization URL and access code.
func (ps *PaystackService) InitializeTransaction(req InitializeRequest) (*InitializeResult, error) {
	payload := map[string]interface{}{
		"email":     req.Email,
		"amount":    toMinorUnits(req.Amount),
		"reference": req.Reference,
		"currency":  req.Currency,
	}
	if len(req.Channels) > 0 {
		payload["channels"] = req.Channels
	}
	if req.Metadata != nil {
		payload["metadata"] = req.Metadata
	}
	callback := req.CallbackURL
	if callback == "" {
		callback = ps.config.CallbackURL
	}
	if callback != "" {
		payload["callback_url"] = callback
	}

	env, err := ps.post("/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}

	var result InitializeResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("%w: decoding initialize response: %v", ErrGateway, err)
	}
	return &result, nil
}

// toMinorUnits converts a major-unit amount to the wire's minor units,
// rounding so 19.99 lands on 1999 and not 1998 after the float multiply.
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// ProviderOutcome is the normalized terminal status of one payment attempt,
// whether it arrived via verify polling or a webhook push.
type ProviderOutcome struct {
	Reference       string
	Succeeded       bool
	PaidAt          *time.Time
	Channel         string
	TransactionID   string
	GatewayResponse string
	AmountMinor     int64
	Raw             json.RawMessage
}

type paystackTransactionData struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	PaidAt          string `json:"paid_at"`
	Channel         string `json:"channel"`
	GatewayResponse string `json:"gateway_response"`
}

// VerifyTransaction queries the provider for the final status of a
// reference.
func (ps *PaystackService) VerifyTransaction(reference string) (*ProviderOutcome, error) {
	env, err := ps.get("/transaction/verify/" + reference)
	if err != nil {
		return nil, err
	}
	return outcomeFromTransactionData(env.Data)
}

// OutcomeFromWebhook normalizes a signature-checked webhook payload. Only
// charge.success and charge.failed are meaningful; anything else returns a
// nil outcome for the caller to log and ignore.
func (ps *PaystackService) OutcomeFromWebhook(event string, data json.RawMessage) (*ProviderOutcome, error) {
	switch event {
	case "charge.success", "charge.failed":
		outcome, err := outcomeFromTransactionData(data)
		if err != nil {
			return nil, err
		}
		// Event name wins over the embedded status field.
		outcome.Succeeded = event == "charge.success"
		return outcome, nil
	default:
		return nil, nil
	}
}

func outcomeFromTransactionData(data json.RawMessage) (*ProviderOutcome, error) {
	var tx paystackTransactionData
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: decoding transaction data: %v", ErrGateway, err)
	}

	outcome := &ProviderOutcome{
		Reference:       tx.Reference,
		Succeeded:       tx.Status == "success",
		Channel:         tx.Channel,
		GatewayResponse: tx.GatewayResponse,
		AmountMinor:     tx.Amount,
		Raw:             data,
	}
	if tx.ID != 0 {
		outcome.TransactionID = strconv.FormatInt(tx.ID, 10)
	}
	if tx.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, tx.PaidAt); err == nil {
			outcome.PaidAt = &t
		}
	}
	return outcome, nil
}

// RefundTransaction asks the provider to refund the full amount of a
// settled transaction.
func (ps *PaystackService) RefundTransaction(reference string) error {
	_, err := ps.post("/refund", map[string]interface{}{
		"transaction": reference,
	})
	return err
}

// VerifySignature recomputes the HMAC-SHA512 of the raw webhook body with
// the shared secret and compares it to the header value. This check is
// mandatory before any webhook payload is trusted.
func (ps *PaystackService) VerifySignature(rawPayload []byte, signatureHeader string) error {
	mac := hmac.New(sha512.New, []byte(ps.config.SecretKey))
	mac.Write(rawPayload)
	expected := hex.EncodeToString(mac.Sum(nil))

	sig, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return fmt.Errorf("%w: malformed signature header", ErrInvalidSignature)
	}
	if !hmac.Equal(sig, mac.Sum(nil)) {
		ps.log.Warnf("webhook signature mismatch (got %s, want %s…)", signatureHeader, expected[:16])
		return ErrInvalidSignature
	}
	return nil
}

func (ps *PaystackService) post(path string, payload interface{}) (*paystackEnvelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, ps.config.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ps.config.SecretKey)

	return ps.do(req)
}

func (ps *PaystackService) get(path string) (*paystackEnvelope, error) {
	req, err := http.NewRequest(http.MethodGet, ps.config.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ps.config.SecretKey)

	return ps.do(req)
}

// do executes a provider call. Timeouts and transport failures surface as
// ErrGateway, never as success.
func (ps *PaystackService) do(req *http.Request) (*paystackEnvelope, error) {
	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ps.log.Errorf("paystack %s %s -> %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
		return nil, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}

	var env paystackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrGateway, err)
	}
	if !env.Status {
		return nil, fmt.Errorf("%w: %s", ErrGateway, env.Message)
	}
	return &env, nil
}
