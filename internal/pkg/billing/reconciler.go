package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/creditdesk/creditdesk/app/models"
)

// ReconcilePayment converts a confirmed gateway payment into its ledger
// effect exactly once. The payment id arrives over the unauthenticated
// webhook channel, so the gateway is asked for the authoritative state and
// the webhook payload itself is never trusted.
//
// A nil return tells the webhook caller to acknowledge; that includes
// unpaid payments, unknown payment ids and already verified entries. A
// non-nil return makes the gateway redeliver, which is safe because the
// verified flag is re-checked under a row lock before credits are applied.
func (s *Service) ReconcilePayment(ctx context.Context, paymentID string) error {
	status, err := s.gateway.FetchPaymentStatus(ctx, paymentID)
	if err != nil {
		return err
	}

	if status.Status != PaymentStatusPaid || status.MandateID == "" {
		log.Printf("payment %s not settled (status=%s), skipping", paymentID, status.Status)
		return nil
	}

	tr, err := s.repo.FindTransaction(paymentID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if status.SubscriptionID == "" {
			// The initiating request may not have committed its ledger row
			// yet, or never did. Detected by out-of-band reconciliation.
			log.Printf("no ledger entry for paid payment %s, skipping", paymentID)
			return nil
		}
		// Recurring cycle charge initiated by the gateway: no purchase
		// request ever wrote a ledger row, so one is bootstrapped here.
		tr, err = s.bootstrapRecurringTransaction(paymentID, status)
		if err != nil {
			return err
		}
		if tr == nil {
			return nil
		}
	}

	if tr.Verified {
		return nil
	}

	acc, err := s.repo.FindAccount(tr.AccountRef())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("account %s/%d gone for payment %s, skipping", tr.AccountKind, tr.AccountID, paymentID)
			return nil
		}
		return err
	}

	// Gateway registration happens before the local transaction so no
	// database locks are held across network calls. Two deliveries racing
	// on the same consent payment can therefore both register; the loser
	// is detected under the row lock below and its subscription canceled.
	// A crash between registration and commit can still orphan a gateway
	// subscription; same accepted-risk class as duplicate customer
	// creation.
	gatewaySubscriptionID := ""
	if tr.Type == models.TransactionTypeConsentFirstPayment && !acc.HasGatewaySubscription() {
		gatewaySubscriptionID, err = s.registerRecurringSubscription(ctx, acc, status)
		if err != nil {
			return err
		}
	}

	applied := false
	leakedSubscriptionID := ""
	err = s.repo.WithinTransaction(func(txRepo Repository) error {
		locked, err := txRepo.FindTransactionForUpdate(paymentID)
		if err != nil {
			return err
		}

		// Re-read under the lock: the snapshot above may be stale against
		// a concurrent cancellation or a concurrent delivery's commit.
		current, err := txRepo.FindAccount(locked.AccountRef())
		if err != nil {
			return err
		}

		if locked.Verified {
			if gatewaySubscriptionID != "" && derefOr(current.GatewaySubscriptionID, "") != gatewaySubscriptionID {
				leakedSubscriptionID = gatewaySubscriptionID
			}
			return nil
		}

		locked.Verified = true
		if err := txRepo.SaveTransaction(locked); err != nil {
			return err
		}
		if locked.Credits != 0 {
			if err := txRepo.AddCredits(locked.AccountRef(), locked.Credits); err != nil {
				return err
			}
		}

		if locked.Type == models.TransactionTypeConsentFirstPayment {
			if current.IsUser() && status.MandateID != "" {
				current.GatewayMandateID = &status.MandateID
			}
			if gatewaySubscriptionID != "" {
				switch {
				case current.SubscriptionPlanID == nil:
					// Canceled while the first payment was in flight; the
					// cancellation stands and the registration is undone.
					leakedSubscriptionID = gatewaySubscriptionID
				case current.HasGatewaySubscription() && *current.GatewaySubscriptionID != gatewaySubscriptionID:
					leakedSubscriptionID = gatewaySubscriptionID
				default:
					current.GatewaySubscriptionID = &gatewaySubscriptionID
				}
			}
			if err := txRepo.SaveAccount(current); err != nil {
				return err
			}
		}

		acc = current
		applied = true
		return nil
	})
	if err != nil {
		return err
	}

	if leakedSubscriptionID != "" {
		s.cancelLeakedSubscription(ctx, acc, leakedSubscriptionID, paymentID)
	}

	if applied {
		s.notifyConfirmed(acc, tr)
	}
	return nil
}

// cancelLeakedSubscription removes a gateway subscription this delivery
// registered but could not attach to the account. The webhook is still
// acknowledged because credits were applied exactly once; a failed cancel
// leaves a charging subscription behind and is logged for operators.
func (s *Service) cancelLeakedSubscription(ctx context.Context, acc *models.Account, subscriptionID, paymentID string) {
	customerID := derefOr(acc.GatewayCustomerID, "")
	if err := s.gateway.CancelSubscription(ctx, subscriptionID, customerID); err != nil {
		log.Printf("could not cancel duplicate gateway subscription %s (payment %s, customer %s): %v", subscriptionID, paymentID, customerID, err)
	}
}

// GetPurchase returns one ledger entry, enforcing that the caller owns it.
func (s *Service) GetPurchase(ctx context.Context, caller models.AccountRef, paymentID string) (*PurchaseDetails, error) {
	tr, err := s.repo.FindTransaction(paymentID)
	if err != nil {
		return nil, err
	}
	if !tr.BelongsTo(caller) {
		return nil, fmt.Errorf("%w: payment %s", ErrForbidden, paymentID)
	}
	return purchaseDetails(tr), nil
}

// ListPurchases returns the account's ledger entries, newest first.
func (s *Service) ListPurchases(ctx context.Context, caller models.AccountRef, offset, limit int) ([]PurchaseDetails, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	trs, err := s.repo.ListTransactions(caller, offset, limit)
	if err != nil {
		return nil, err
	}

	details := make([]PurchaseDetails, 0, len(trs))
	for i := range trs {
		details = append(details, *purchaseDetails(&trs[i]))
	}
	return details, nil
}

// bootstrapRecurringTransaction writes the ledger row for a gateway-
// initiated recurring charge. Returns nil, nil when no local account owns
// the gateway subscription (canceled locally while a cycle was in flight).
func (s *Service) bootstrapRecurringTransaction(paymentID string, status *GatewayPaymentStatus) (*models.Transaction, error) {
	acc, err := s.repo.FindAccountByGatewaySubscription(status.SubscriptionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("no account owns gateway subscription %s (payment %s), skipping", status.SubscriptionID, paymentID)
			return nil, nil
		}
		return nil, err
	}

	credits := 0.0
	if acc.SubscriptionPlanID != nil {
		plan, err := s.repo.FindPlan(*acc.SubscriptionPlanID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if plan != nil {
			credits = plan.Credits
		}
	}

	tr := &models.Transaction{
		PaymentID:   paymentID,
		AccountKind: acc.Ref.Kind,
		AccountID:   acc.Ref.ID,
		Type:        models.TransactionTypeRecurring,
		Amount:      status.Amount,
		Credits:     credits,
	}
	if err := s.repo.CreateTransaction(tr); err != nil {
		// A concurrent delivery may have created the row first.
		if existing, findErr := s.repo.FindTransaction(paymentID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return tr, nil
}

// registerRecurringSubscription registers the ongoing charges for the plan
// the account opted into with its first payment. Plans without an interval
// never recur.
func (s *Service) registerRecurringSubscription(ctx context.Context, acc *models.Account, status *GatewayPaymentStatus) (string, error) {
	if acc.SubscriptionPlanID == nil {
		return "", nil
	}

	plan, err := s.repo.FindPlan(*acc.SubscriptionPlanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("plan %d vanished before recurring registration for account %s/%d", *acc.SubscriptionPlanID, acc.Ref.Kind, acc.Ref.ID)
			return "", nil
		}
		return "", err
	}
	if !plan.IsRecurring() {
		return "", nil
	}

	startDate, err := NextBillingDate(time.Now(), plan.Interval)
	if err != nil {
		return "", err
	}

	return s.gateway.CreateRecurringSubscription(ctx,
		derefOr(acc.GatewayCustomerID, ""),
		s.tax.ApplyTax(plan.Price),
		plan.Interval,
		startDate,
		PaymentMetadata{
			AccountKind: acc.Ref.Kind,
			AccountID:   acc.Ref.ID,
			Credits:     plan.Credits,
			Type:        models.TransactionTypeRecurring,
		})
}

// notifyConfirmed fires the confirmation notification without ever
// failing reconciliation.
func (s *Service) notifyConfirmed(acc *models.Account, tr *models.Transaction) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PaymentConfirmed(acc, tr); err != nil {
		log.Printf("payment confirmation notification for %s failed: %v", tr.PaymentID, err)
	}
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
