package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rifaescolar/raffle-backend/pkg/config"
	pkgerrors "github.com/rifaescolar/raffle-backend/pkg/errors"
	"github.com/rifaescolar/raffle-backend/pkg/logger"
)

var (
	errAccessTokenRequired = errors.New("mercadopago access token is required")
	errLoggerRequired      = errors.New("mercadopago logger is required")
)

// Client exposes the Mercado Pago primitives the engine consumes: creating a
// hosted checkout preference and reading back a payment notification.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	accessToken   string
	webhookSecret string
	backURLBase   string
	notifyURL     string
	currency      string
	logger        *logger.Logger
}

// NewClient initializes the Mercado Pago wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.MercadoPagoConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		accessToken:   accessToken,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		backURLBase:   strings.TrimRight(cfg.BackURLBase, "/"),
		notifyURL:     cfg.NotifyURL,
		currency:      cfg.Currency,
		logger:        logg,
	}

	logg.Info(ctx, "mercadopago client initialized")
	return c, nil
}

// SigningSecret returns the webhook secret used for x-signature verification.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// CreatePreferenceInput carries everything the hosted checkout needs.
type CreatePreferenceInput struct {
	PurchaseID  string
	BuyerName   string
	Email       string
	Numbers     []int
	TotalAmount decimal.Decimal
	ExpiresIn   time.Duration
}

// Preference is the hosted checkout session returned by Mercado Pago.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type preferenceItem struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	CurrencyID string          `json:"currency_id"`
}

type preferencePayer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type preferenceBackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type preferencePaymentMethods struct {
	Installments        int `json:"installments"`
	DefaultInstallments int `json:"default_installments"`
}

type preferenceRequest struct {
	Items               []preferenceItem         `json:"items"`
	Payer               preferencePayer          `json:"payer"`
	BackURLs            preferenceBackURLs       `json:"back_urls"`
	AutoReturn          string                   `json:"auto_return"`
	ExternalReference   string                   `json:"external_reference"`
	NotificationURL     string                   `json:"notification_url,omitempty"`
	StatementDescriptor string                   `json:"statement_descriptor"`
	PaymentMethods      preferencePaymentMethods `json:"payment_methods"`
	Expires             bool                     `json:"expires"`
	ExpirationDateFrom  string                   `json:"expiration_date_from"`
	ExpirationDateTo    string                   `json:"expiration_date_to"`
}

// CreatePreference opens a hosted checkout session bound to the purchase id.
// The session expires together with the reservation hold so an abandoned
// checkout cannot pay for numbers that were already released.
func (c *Client) CreatePreference(ctx context.Context, input CreatePreferenceInput) (*Preference, error) {
	if input.PurchaseID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase id is required")
	}

	expiresIn := input.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 15 * time.Minute
	}
	now := time.Now()

	body := preferenceRequest{
		Items: []preferenceItem{{
			ID:         input.PurchaseID,
			Title:      fmt.Sprintf("Rifa Escolar - Números: %s", joinNumbers(input.Numbers)),
			Quantity:   1,
			UnitPrice:  input.TotalAmount,
			CurrencyID: c.currency,
		}},
		Payer: preferencePayer{Name: input.BuyerName, Email: input.Email},
		BackURLs: preferenceBackURLs{
			Success: c.backURLBase + "/api/v1/payment/success",
			Failure: c.backURLBase + "/api/v1/payment/failure",
			Pending: c.backURLBase + "/api/v1/payment/pending",
		},
		AutoReturn:          "approved",
		ExternalReference:   input.PurchaseID,
		NotificationURL:     c.notifyURL,
		StatementDescriptor: "RIFA ESCOLAR",
		PaymentMethods:      preferencePaymentMethods{Installments: 1, DefaultInstallments: 1},
		Expires:             true,
		ExpirationDateFrom:  now.Format(time.RFC3339),
		ExpirationDateTo:    now.Add(expiresIn).Format(time.RFC3339),
	}

	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", body, &pref); err != nil {
		return nil, err
	}

	logCtx := c.logger.WithFields(ctx, map[string]any{
		"purchase_id":   input.PurchaseID,
		"preference_id": pref.ID,
	})
	c.logger.Info(logCtx, "mercadopago preference created")
	return &pref, nil
}

// PaymentInfo is the subset of a Mercado Pago payment the engine cares about.
type PaymentInfo struct {
	ID                int64  `json:"id"`
	Status            string `json:"status"`
	StatusDetail      string `json:"status_detail"`
	ExternalReference string `json:"external_reference"`
	PaymentMethodID   string `json:"payment_method_id"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
}

// GetPayment fetches payment details; external_reference carries the purchase id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	var info PaymentInfo
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode mercadopago request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mercadopago request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet {
		req.Header.Set("X-Idempotency-Key", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mercadopago request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("mercadopago %s %s: status %d", method, path, resp.StatusCode)).
			WithDetails(map[string]any{"body": string(raw)})
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode mercadopago response")
	}
	return nil
}

func joinNumbers(numbers []int) string {
	parts := make([]string, 0, len(numbers))
	for _, n := range numbers {
		parts = append(parts, fmt.Sprintf("%d", n))
	}
	return strings.Join(parts, ", ")
}
