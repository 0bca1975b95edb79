package billing

import (
	"context"
	"time"

	"github.com/creditdesk/creditdesk/app/models"
)

// Payment statuses reported by the gateway.
const (
	PaymentStatusOpen     = "open"
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusExpired  = "expired"
	PaymentStatusCanceled = "canceled"
)

// PaymentMetadata rides along on gateway payments so a webhook can be
// correlated with the local ledger even when the local write lagged.
type PaymentMetadata struct {
	AccountKind string  `json:"account_kind"`
	AccountID   uint    `json:"account_id"`
	Credits     float64 `json:"credits"`
	Type        string  `json:"type"`
}

// GatewayPayment is the result of creating a payment at the gateway.
type GatewayPayment struct {
	PaymentID   string
	CheckoutURL string
	Amount      float64
}

// GatewayPaymentStatus is the authoritative state of a payment as reported
// by the gateway. MandateID and SubscriptionID are empty when not attached.
type GatewayPaymentStatus struct {
	Status         string
	MandateID      string
	SubscriptionID string
	Amount         float64
}

// PaymentGateway is the adapter contract for the external payment
// provider. Implementations must keep FetchPaymentStatus safe to call
// repeatedly; none of the create calls are idempotent at the gateway.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	CreateOneOffPayment(ctx context.Context, customerID string, amount float64, description string, meta PaymentMetadata) (*GatewayPayment, error)
	CreateFirstPayment(ctx context.Context, customerID string, amount float64, description string, meta PaymentMetadata) (*GatewayPayment, error)
	FetchPaymentStatus(ctx context.Context, paymentID string) (*GatewayPaymentStatus, error)
	CreateRecurringSubscription(ctx context.Context, customerID string, amount float64, interval string, startDate time.Time, meta PaymentMetadata) (string, error)
	// CancelSubscription must only return nil once the gateway confirms the
	// subscription settled into a canceled state.
	CancelSubscription(ctx context.Context, subscriptionID, customerID string) error
	IsMandateValid(ctx context.Context, mandateID, customerID string) (bool, error)
	// UpdatePaymentRedirect is best-effort metadata maintenance; callers
	// log failures and move on.
	UpdatePaymentRedirect(ctx context.Context, paymentID, redirectURL string) error
}

// Notifier delivers fire-and-forget messages after a payment is confirmed.
// Failures must never fail reconciliation.
type Notifier interface {
	PaymentConfirmed(account *models.Account, tr *models.Transaction) error
}

// PurchaseDetails is the caller-facing view of one ledger entry.
type PurchaseDetails struct {
	PaymentID string            `json:"payment_id"`
	Account   models.AccountRef `json:"account"`
	Type      string            `json:"type"`
	Amount    float64           `json:"amount"`
	Credits   float64           `json:"credits"`
	Verified  bool              `json:"verified"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func purchaseDetails(tr *models.Transaction) *PurchaseDetails {
	return &PurchaseDetails{
		PaymentID: tr.PaymentID,
		Account:   tr.AccountRef(),
		Type:      tr.Type,
		Amount:    tr.Amount,
		Credits:   tr.Credits,
		Verified:  tr.Verified,
		CreatedAt: tr.CreatedAt,
		UpdatedAt: tr.UpdatedAt,
	}
}
