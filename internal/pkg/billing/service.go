package billing

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/creditdesk/creditdesk/app/models"
	"github.com/creditdesk/creditdesk/internal/pkg/env"
	"gorm.io/gorm"
)

// Service orchestrates purchases against the payment gateway and the
// local ledger. All collaborators are injected so tests can substitute
// them.
type Service struct {
	repo     Repository
	gateway  PaymentGateway
	tax      Policy
	notifier Notifier
	baseURL  string
}

// NewService creates a billing service from injected collaborators.
func NewService(repo Repository, gateway PaymentGateway, tax Policy, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		tax:      tax,
		notifier: notifier,
		baseURL:  strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"),
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle and a
// gateway client, with the env-configured tax policy and mail notifier.
func NewServiceFromDB(db *gorm.DB, gateway PaymentGateway) *Service {
	return NewService(NewRepository(db), gateway, NewPolicyFromEnv(), NewMailNotifier())
}

// InitiateTopUp creates a one-off gateway payment for a credit package and
// records the pending ledger entry. It returns the checkout URL the buyer
// completes the payment on.
func (s *Service) InitiateTopUp(ctx context.Context, ref models.AccountRef, packageID uint) (string, error) {
	acc, err := s.repo.FindAccount(ref)
	if err != nil {
		return "", err
	}

	pkg, err := s.repo.FindPackage(packageID)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureGatewayCustomer(ctx, acc)
	if err != nil {
		return "", err
	}

	amount := s.tax.ApplyTax(pkg.Price)
	payment, err := s.gateway.CreateOneOffPayment(ctx, customerID, amount,
		fmt.Sprintf("Credit package %q (%s credits)", pkg.Name, formatCredits(pkg.Credits)),
		PaymentMetadata{
			AccountKind: ref.Kind,
			AccountID:   ref.ID,
			Credits:     pkg.Credits,
			Type:        models.TransactionTypeTopUp,
		})
	if err != nil {
		return "", err
	}

	// If this write fails the payment exists at the gateway with no ledger
	// row; the reconciler treats the unknown payment id as a no-op and
	// reconciliation alerting picks it up out-of-band.
	tr := &models.Transaction{
		PaymentID:   payment.PaymentID,
		AccountKind: ref.Kind,
		AccountID:   ref.ID,
		Type:        models.TransactionTypeTopUp,
		Amount:      amount,
		Credits:     pkg.Credits,
	}
	if err := s.repo.CreateTransaction(tr); err != nil {
		return "", err
	}

	s.updateRedirect(ctx, payment.PaymentID)

	return payment.CheckoutURL, nil
}

// InitiateSubscription activates a plan through a gateway first payment.
// The plan linkage is written before the payment confirms so a second
// subscribe attempt during the checkout window fails PreconditionFailed
// instead of racing into a double subscription.
func (s *Service) InitiateSubscription(ctx context.Context, ref models.AccountRef, planID uint) (string, error) {
	acc, err := s.repo.FindAccount(ref)
	if err != nil {
		return "", err
	}

	if acc.SubscriptionPlanID != nil && *acc.SubscriptionPlanID == planID {
		return "", fmt.Errorf("%w: plan %d already active", ErrPreconditionFailed, planID)
	}

	plan, err := s.repo.FindPlan(planID)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureGatewayCustomer(ctx, acc)
	if err != nil {
		return "", err
	}

	if acc.HasGatewaySubscription() {
		if err := s.cancelGatewaySubscription(ctx, acc); err != nil {
			return "", err
		}
	}

	amount := s.tax.ApplyTax(plan.Price)
	payment, err := s.gateway.CreateFirstPayment(ctx, customerID, amount,
		fmt.Sprintf("Subscription %q first payment", plan.Name),
		PaymentMetadata{
			AccountKind: ref.Kind,
			AccountID:   ref.ID,
			Credits:     plan.Credits,
			Type:        models.TransactionTypeConsentFirstPayment,
		})
	if err != nil {
		return "", err
	}

	// Amount from the gateway response: a first payment may charge an
	// authorization amount rather than the plan price.
	tr := &models.Transaction{
		PaymentID:   payment.PaymentID,
		AccountKind: ref.Kind,
		AccountID:   ref.ID,
		Type:        models.TransactionTypeConsentFirstPayment,
		Amount:      payment.Amount,
		Credits:     plan.Credits,
	}
	if err := s.repo.CreateTransaction(tr); err != nil {
		return "", err
	}

	acc.SubscriptionPlanID = &plan.ID
	if err := s.repo.SaveAccount(acc); err != nil {
		return "", err
	}

	s.updateRedirect(ctx, payment.PaymentID)

	return payment.CheckoutURL, nil
}

// CancelSubscription cancels the account's recurring gateway subscription
// and clears the local linkage. Without any gateway linkage it is a no-op
// that still leaves the local fields cleared.
func (s *Service) CancelSubscription(ctx context.Context, ref models.AccountRef) error {
	acc, err := s.repo.FindAccount(ref)
	if err != nil {
		return err
	}
	return s.cancelGatewaySubscription(ctx, acc)
}

// ReauthorizeMandate obtains a fresh mandate for a user whose saved
// payment method can no longer be charged, via a zero-amount first
// payment. Returns the checkout URL, or PreconditionFailed when the
// current mandate is still chargeable.
func (s *Service) ReauthorizeMandate(ctx context.Context, ref models.AccountRef) (string, error) {
	acc, err := s.repo.FindAccount(ref)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureGatewayCustomer(ctx, acc)
	if err != nil {
		return "", err
	}

	if acc.GatewayMandateID != nil && *acc.GatewayMandateID != "" {
		valid, err := s.gateway.IsMandateValid(ctx, *acc.GatewayMandateID, customerID)
		if err != nil {
			return "", err
		}
		if valid {
			return "", fmt.Errorf("%w: mandate still valid", ErrPreconditionFailed)
		}
	}

	payment, err := s.gateway.CreateFirstPayment(ctx, customerID, 0,
		"Payment method re-authorization",
		PaymentMetadata{
			AccountKind: ref.Kind,
			AccountID:   ref.ID,
			Type:        models.TransactionTypeConsentFirstPayment,
		})
	if err != nil {
		return "", err
	}

	tr := &models.Transaction{
		PaymentID:   payment.PaymentID,
		AccountKind: ref.Kind,
		AccountID:   ref.ID,
		Type:        models.TransactionTypeConsentFirstPayment,
		Amount:      payment.Amount,
	}
	if err := s.repo.CreateTransaction(tr); err != nil {
		return "", err
	}

	s.updateRedirect(ctx, payment.PaymentID)

	return payment.CheckoutURL, nil
}

// ensureGatewayCustomer returns the account's gateway customer id,
// creating and persisting one on first use. Customer creation is not
// idempotent at the gateway: if the persist fails after creation a retry
// leaves a duplicate customer behind. Accepted risk.
func (s *Service) ensureGatewayCustomer(ctx context.Context, acc *models.Account) (string, error) {
	if acc.HasGatewayCustomer() {
		return *acc.GatewayCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, acc.Name, acc.Email)
	if err != nil {
		return "", err
	}

	acc.GatewayCustomerID = &customerID
	if err := s.repo.SaveAccount(acc); err != nil {
		return "", err
	}
	return customerID, nil
}

// cancelGatewaySubscription confirms cancellation at the gateway before
// clearing the local plan linkage. Non-confirmation is a fatal gateway
// error, never assumed success.
func (s *Service) cancelGatewaySubscription(ctx context.Context, acc *models.Account) error {
	if acc.HasGatewayCustomer() && acc.HasGatewaySubscription() {
		if err := s.gateway.CancelSubscription(ctx, *acc.GatewaySubscriptionID, *acc.GatewayCustomerID); err != nil {
			return err
		}
	}

	acc.SubscriptionPlanID = nil
	acc.GatewaySubscriptionID = nil
	return s.repo.SaveAccount(acc)
}

// updateRedirect points the payment's redirect URL at the local return
// page for the payment so the buyer can be correlated on return.
// Best-effort: failures are logged only.
func (s *Service) updateRedirect(ctx context.Context, paymentID string) {
	if s.baseURL == "" {
		return
	}
	url := fmt.Sprintf("%s/billing/return/%s", s.baseURL, paymentID)
	if err := s.gateway.UpdatePaymentRedirect(ctx, paymentID, url); err != nil {
		log.Printf("redirect update for payment %s failed: %v", paymentID, err)
	}
}

func formatCredits(credits float64) string {
	if credits == float64(int64(credits)) {
		return fmt.Sprintf("%d", int64(credits))
	}
	return fmt.Sprintf("%.2f", credits)
}
