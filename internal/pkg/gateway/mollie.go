package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/creditdesk/creditdesk/internal/pkg/billing"
	"github.com/creditdesk/creditdesk/internal/pkg/env"
)

const defaultMollieAPIBaseURL = "https://api.mollie.com/v2"

// MollieClient implements billing.PaymentGateway against the Mollie v2
// API. Base URL and HTTP client are swappable so tests can point it at a
// local server.
type MollieClient struct {
	APIKey     string
	BaseURL    string
	Currency   string
	WebhookURL string

	HTTPClient *http.Client
}

// NewMollieClientFromEnv builds the client from MOLLIE_* env settings.
func NewMollieClientFromEnv() *MollieClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	webhookURL := strings.TrimSpace(env.GetEnv("MOLLIE_WEBHOOK_URL", ""))
	if webhookURL == "" && base != "" {
		webhookURL = base + "/webhooks/payment"
	}

	return &MollieClient{
		APIKey:     strings.TrimSpace(env.GetEnv("MOLLIE_API_KEY", "")),
		BaseURL:    strings.TrimRight(env.GetEnv("MOLLIE_API_BASE_URL", defaultMollieAPIBaseURL), "/"),
		Currency:   strings.TrimSpace(env.GetEnv("BILLING_CURRENCY", "EUR")),
		WebhookURL: webhookURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type mollieAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type molliePayment struct {
	ID             string                 `json:"id"`
	Status         string                 `json:"status"`
	Amount         mollieAmount           `json:"amount"`
	MandateID      string                 `json:"mandateId"`
	SubscriptionID string                 `json:"subscriptionId"`
	Metadata       map[string]interface{} `json:"metadata"`
	Links          struct {
		Checkout struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

type mollieCustomer struct {
	ID string `json:"id"`
}

type mollieSubscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type mollieMandate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *MollieClient) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	body := map[string]interface{}{
		"name":  name,
		"email": email,
	}

	var customer mollieCustomer
	if err := c.do(ctx, http.MethodPost, "/customers", body, &customer); err != nil {
		return "", &billing.GatewayError{Op: "create customer", Err: err}
	}
	if customer.ID == "" {
		return "", &billing.GatewayError{Op: "create customer", Err: errors.New("response carried no customer id")}
	}
	return customer.ID, nil
}

func (c *MollieClient) CreateOneOffPayment(ctx context.Context, customerID string, amount float64, description string, meta billing.PaymentMetadata) (*billing.GatewayPayment, error) {
	return c.createPayment(ctx, customerID, amount, description, "oneoff", meta)
}

// CreateFirstPayment opens a checkout that both charges the given amount
// and establishes a mandate for future off-session charges. A zero amount
// re-authorizes the payment method without charging.
func (c *MollieClient) CreateFirstPayment(ctx context.Context, customerID string, amount float64, description string, meta billing.PaymentMetadata) (*billing.GatewayPayment, error) {
	return c.createPayment(ctx, customerID, amount, description, "first", meta)
}

func (c *MollieClient) createPayment(ctx context.Context, customerID string, amount float64, description, sequenceType string, meta billing.PaymentMetadata) (*billing.GatewayPayment, error) {
	body := map[string]interface{}{
		"amount":       c.amount(amount),
		"description":  description,
		"customerId":   customerID,
		"sequenceType": sequenceType,
		"metadata":     meta,
	}
	if c.WebhookURL != "" {
		body["webhookUrl"] = c.WebhookURL
	}

	var payment molliePayment
	if err := c.do(ctx, http.MethodPost, "/payments", body, &payment); err != nil {
		return nil, &billing.GatewayError{Op: "create payment", Err: err}
	}
	if payment.ID == "" {
		return nil, &billing.GatewayError{Op: "create payment", Err: errors.New("response carried no payment id")}
	}

	charged, err := parseAmount(payment.Amount.Value)
	if err != nil {
		charged = amount
	}
	return &billing.GatewayPayment{
		PaymentID:   payment.ID,
		CheckoutURL: payment.Links.Checkout.Href,
		Amount:      charged,
	}, nil
}

func (c *MollieClient) FetchPaymentStatus(ctx context.Context, paymentID string) (*billing.GatewayPaymentStatus, error) {
	var payment molliePayment
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &payment); err != nil {
		return nil, &billing.GatewayError{Op: "fetch payment", Err: err}
	}

	amount, err := parseAmount(payment.Amount.Value)
	if err != nil {
		return nil, &billing.GatewayError{Op: "fetch payment", Err: fmt.Errorf("malformed amount %q", payment.Amount.Value)}
	}
	return &billing.GatewayPaymentStatus{
		Status:         payment.Status,
		MandateID:      payment.MandateID,
		SubscriptionID: payment.SubscriptionID,
		Amount:         amount,
	}, nil
}

func (c *MollieClient) CreateRecurringSubscription(ctx context.Context, customerID string, amount float64, interval string, startDate time.Time, meta billing.PaymentMetadata) (string, error) {
	body := map[string]interface{}{
		"amount":      c.amount(amount),
		"interval":    interval,
		"startDate":   startDate.Format("2006-01-02"),
		"description": fmt.Sprintf("Recurring credits (%s)", interval),
		"metadata":    meta,
	}
	if c.WebhookURL != "" {
		body["webhookUrl"] = c.WebhookURL
	}

	var sub mollieSubscription
	if err := c.do(ctx, http.MethodPost, "/customers/"+customerID+"/subscriptions", body, &sub); err != nil {
		return "", &billing.GatewayError{Op: "create subscription", Err: err}
	}
	if sub.ID == "" {
		return "", &billing.GatewayError{Op: "create subscription", Err: errors.New("response carried no subscription id")}
	}
	return sub.ID, nil
}

// CancelSubscription fetches the current state first, cancels when
// needed, and only reports success once the gateway confirms the
// subscription is canceled.
func (c *MollieClient) CancelSubscription(ctx context.Context, subscriptionID, customerID string) error {
	path := "/customers/" + customerID + "/subscriptions/" + subscriptionID

	var sub mollieSubscription
	if err := c.do(ctx, http.MethodGet, path, nil, &sub); err != nil {
		return &billing.GatewayError{Op: "fetch subscription", Err: err}
	}
	if sub.Status == "canceled" {
		return nil
	}

	if err := c.do(ctx, http.MethodDelete, path, nil, &sub); err != nil {
		return &billing.GatewayError{Op: "cancel subscription", Err: err}
	}
	if sub.Status != "canceled" {
		return &billing.GatewayError{Op: "cancel subscription", Err: fmt.Errorf("subscription %s settled into %q, not canceled", subscriptionID, sub.Status)}
	}
	return nil
}

// IsMandateValid reports whether the mandate still allows future charges
// (valid or pending at the gateway).
func (c *MollieClient) IsMandateValid(ctx context.Context, mandateID, customerID string) (bool, error) {
	var mandate mollieMandate
	err := c.do(ctx, http.MethodGet, "/customers/"+customerID+"/mandates/"+mandateID, nil, &mandate)
	if err != nil {
		return false, &billing.GatewayError{Op: "fetch mandate", Err: err}
	}
	return mandate.Status == "valid" || mandate.Status == "pending", nil
}

func (c *MollieClient) UpdatePaymentRedirect(ctx context.Context, paymentID, redirectURL string) error {
	body := map[string]interface{}{
		"redirectUrl": redirectURL,
	}
	if err := c.do(ctx, http.MethodPatch, "/payments/"+paymentID, body, nil); err != nil {
		return &billing.GatewayError{Op: "update payment redirect", Err: err}
	}
	return nil
}

func (c *MollieClient) amount(v float64) mollieAmount {
	return mollieAmount{
		Currency: c.Currency,
		Value:    strconv.FormatFloat(v, 'f', 2, 64),
	}
}

func (c *MollieClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.APIKey == "" {
		return errors.New("MOLLIE_API_KEY is not configured")
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, truncate(string(payload), 256))
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}

func parseAmount(value string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
