// Package ejara is the live payment gateway: Lightning invoices in,
// mobile-money payouts out, over the provider's HTTP API.
package ejara

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lnmomo-backend/internal/adapter/provider"
	"github.com/simaogato/lnmomo-backend/internal/domain"
)

const (
	pathAuthenticate    = "/api/v1/accounts/authenticate"
	pathGenerateInvoice = "/api/v1/transactions/generate-ln-invoice"
	pathInvoiceStatus   = "/api/v1/transactions/ln-invoice-status/"
	pathInitiatePayout  = "/api/v1/transactions/initiate-momo-payment"
	pathTransaction     = "/api/v1/transactions/"

	maxResponseBytes = 1 << 20
)

// Config holds the credentials and request shaping for the live API
type Config struct {
	BaseURL       string
	ClientKey     string
	ClientSecret  string
	Email         string
	Password      string
	Timeout       time.Duration
	MaxRetries    int
	TokenTTL      time.Duration
	Currency      string
	CountryCode   string
	DialCode      string
	PaymentMode   string
	FeatureCode   string
	PayerName     string
	PayerEmail    string
	Description   string
	InvoiceExpiry time.Duration
	FallbackRate  decimal.Decimal
}

// StatusError is a non-2xx answer from the upstream
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Body)
}

// Unwrap classifies the failure for errors.Is
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return domain.ErrUpstreamAuth
	}
	return domain.ErrUpstreamTransient
}

// Client implements domain.ProviderGateway against the live API
type Client struct {
	cfg        Config
	httpClient *http.Client
	auth       *provider.Authenticator
	now        func() time.Time
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock injects the time source used for token and invoice expiry
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithBackOff replaces the retry policy of idempotent reads
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = newBackOff }
}

// NewClient creates a live gateway client
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		now:        time.Now,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	c.auth = provider.NewAuthenticator(c.authenticate, cfg.TokenTTL, c.now)
	return c
}

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// optionalString is a flexString that decodes any other JSON type as empty
type optionalString string

func (o *optionalString) UnmarshalJSON(b []byte) error {
	var f flexString
	if err := f.UnmarshalJSON(b); err != nil {
		*o = ""
		return nil
	}
	*o = optionalString(f)
	return nil
}

type authResponse struct {
	Data struct {
		Token       string `json:"token"`
		AccessToken string `json:"accessToken"`
	} `json:"data"`
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
}

type invoiceResponse struct {
	Data struct {
		ID             flexString      `json:"id"`
		InvoiceID      flexString      `json:"invoiceId"`
		PaymentRequest string          `json:"paymentRequest"`
		AmountBtc      optionalString  `json:"amountBtc"`
		ExpiresAt      optionalString  `json:"expiresAt"`
	} `json:"data"`
}

type statusResponse struct {
	Data struct {
		Status        string     `json:"status"`
		TransactionID flexString `json:"transactionId"`
	} `json:"data"`
}

type payoutResponse struct {
	Data *struct {
		PaymentReference flexString `json:"paymentReference"`
	} `json:"data"`
}

// do sends one request with its own timeout and decodes a 2xx body into out
func (c *Client) do(ctx context.Context, method, path string, body any, authed bool, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request for %s: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("client-key", c.cfg.ClientKey)
	req.Header.Set("client-secret", c.cfg.ClientSecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authed {
		token, err := c.auth.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, domain.ErrUpstreamTransient)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %v: %w", path, err, domain.ErrUpstreamTransient)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		if authed && errors.Is(statusErr, domain.ErrUpstreamAuth) {
			c.auth.Invalidate()
		}
		return statusErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("malformed response from %s: %v: %w", path, err, domain.ErrUpstreamTransient)
		}
	}
	return nil
}

// retry runs an idempotent operation with bounded exponential backoff.
// Authentication failures are not retried.
func (c *Client) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxRetries)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && errors.Is(err, domain.ErrUpstreamAuth) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	body := map[string]string{"email": c.cfg.Email, "password": c.cfg.Password}

	var resp authResponse
	err := c.retry(ctx, func() error {
		resp = authResponse{}
		return c.do(ctx, http.MethodPost, pathAuthenticate, body, false, &resp)
	})
	if err != nil {
		return "", err
	}

	for _, token := range []string{resp.Data.Token, resp.Data.AccessToken, resp.Token, resp.AccessToken} {
		if token != "" {
			c.logger.Debug("authenticated with payment provider")
			return token, nil
		}
	}
	return "", fmt.Errorf("no token in authentication response: %w", domain.ErrUpstreamAuth)
}

// IssueInvoice tries each known payload shape in turn until one yields a payment request.
// Creation is not idempotent upstream, so a failed shape is never resent.
func (c *Client) IssueInvoice(ctx context.Context, req domain.InvoiceRequest) (*domain.Invoice, error) {
	currency := req.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}
	description := req.Description
	if description == "" {
		description = c.cfg.Description
	}
	amount := json.Number(req.Amount.String())

	payloads := []map[string]any{
		{
			"amount":       amount,
			"currencyCode": currency,
			"description":  description,
		},
		{
			"amount":          amount,
			"currencyCode":    currency,
			"description":     description,
			"memo":            "Payment to Mobile Money",
			"expiryInMinutes": int(c.cfg.InvoiceExpiry.Minutes()),
		},
	}

	var lastErr error
	for i, payload := range payloads {
		var resp invoiceResponse
		if err := c.do(ctx, http.MethodPost, pathGenerateInvoice, payload, true, &resp); err != nil {
			if errors.Is(err, domain.ErrUpstreamAuth) {
				return nil, err
			}
			c.logger.Warn("invoice payload rejected", "shape", i, "error", err)
			lastErr = err
			continue
		}

		id := string(resp.Data.ID)
		if id == "" {
			id = string(resp.Data.InvoiceID)
		}
		if resp.Data.PaymentRequest == "" || id == "" {
			lastErr = fmt.Errorf("invoice response without payment request or id: %w", domain.ErrUpstreamTransient)
			c.logger.Warn("invoice payload returned incomplete invoice", "shape", i)
			continue
		}

		return c.buildInvoice(id, resp, req.Amount), nil
	}

	return nil, fmt.Errorf("failed to generate invoice: %w", lastErr)
}

func (c *Client) buildInvoice(id string, resp invoiceResponse, amount decimal.Decimal) *domain.Invoice {
	amountBtc, err := decimal.NewFromString(strings.TrimSpace(string(resp.Data.AmountBtc)))
	if err != nil || !amountBtc.IsPositive() {
		amountBtc = amount.Mul(c.cfg.FallbackRate)
	}

	expiresAt, ok := parseExpiry(string(resp.Data.ExpiresAt))
	if !ok {
		expiresAt = c.now().Add(c.cfg.InvoiceExpiry)
	}

	return &domain.Invoice{
		ID:             id,
		PaymentRequest: resp.Data.PaymentRequest,
		AmountCrypto:   amountBtc,
		ExpiresAt:      expiresAt.UTC(),
		Source:         domain.InvoiceSourceLive,
	}
}

// parseExpiry accepts RFC 3339 or a unix epoch in seconds or milliseconds
func parseExpiry(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, true
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || epoch <= 0 {
		return time.Time{}, false
	}
	if epoch >= 1e12 {
		return time.UnixMilli(epoch), true
	}
	return time.Unix(epoch, 0), true
}

// CheckInvoicePaid reports PAID or COMPLETED invoices as paid
func (c *Client) CheckInvoicePaid(ctx context.Context, ref domain.InvoiceRef) (*domain.InvoiceCheck, error) {
	var resp statusResponse
	err := c.retry(ctx, func() error {
		resp = statusResponse{}
		return c.do(ctx, http.MethodGet, pathInvoiceStatus+url.PathEscape(ref.ID), nil, true, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check invoice %s: %w", ref.ID, err)
	}

	status := strings.ToUpper(strings.TrimSpace(resp.Data.Status))
	if status == "" {
		status = "PENDING"
	}
	return &domain.InvoiceCheck{
		Paid:   status == "PAID" || status == "COMPLETED",
		Status: status,
	}, nil
}

// InitiatePayout sends the mobile-money payout exactly once; it is never retried.
// An upstream rejection is reported in the result, a transport failure as an error.
func (c *Client) InitiatePayout(ctx context.Context, req domain.PayoutRequest) (*domain.PayoutResult, error) {
	phone := domain.CanonicalPhone(req.Phone, c.cfg.DialCode)
	if phone == "" {
		return &domain.PayoutResult{Success: false, Error: "phone number is required"}, nil
	}

	currency := req.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}

	payload := map[string]string{
		"phoneNumber":       phone,
		"transactionType":   "payin",
		"amount":            req.Amount.String(),
		"fullName":          c.cfg.PayerName,
		"emailAddress":      c.cfg.PayerEmail,
		"currencyCode":      currency,
		"countryCode":       c.cfg.CountryCode,
		"paymentMode":       c.cfg.PaymentMode,
		"externalReference": req.Reference,
		"featureCode":       c.cfg.FeatureCode,
	}

	var resp payoutResponse
	err := c.do(ctx, http.MethodPost, pathInitiatePayout, payload, true, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !errors.Is(err, domain.ErrUpstreamAuth) {
			return &domain.PayoutResult{Success: false, Error: fmt.Sprintf("API error %d: %s", statusErr.Code, statusErr.Body)}, nil
		}
		return nil, fmt.Errorf("failed to initiate payout %s: %w", req.Reference, err)
	}

	if resp.Data == nil {
		return &domain.PayoutResult{Success: false, Error: "invalid response format from API"}, nil
	}
	if resp.Data.PaymentReference == "" {
		return &domain.PayoutResult{Success: false, Error: "response did not include a payment reference"}, nil
	}

	return &domain.PayoutResult{Success: true, PaymentReference: string(resp.Data.PaymentReference)}, nil
}

// CheckPayoutStatus maps COMPLETED and FAILED; anything else is still pending
func (c *Client) CheckPayoutStatus(ctx context.Context, ref domain.PayoutRef) (*domain.PayoutCheck, error) {
	var resp statusResponse
	err := c.retry(ctx, func() error {
		resp = statusResponse{}
		return c.do(ctx, http.MethodGet, pathTransaction+url.PathEscape(ref.Reference), nil, true, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check payout %s: %w", ref.Reference, err)
	}

	switch strings.ToUpper(strings.TrimSpace(resp.Data.Status)) {
	case "COMPLETED":
		return &domain.PayoutCheck{Status: domain.PayoutCompleted}, nil
	case "FAILED":
		return &domain.PayoutCheck{Status: domain.PayoutFailed}, nil
	default:
		return &domain.PayoutCheck{Status: domain.PayoutPending}, nil
	}
}
