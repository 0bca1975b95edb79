package billing

import (
	"context"
	"testing"

	"github.com/creditdesk/creditdesk/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userRef(id uint) models.AccountRef {
	return models.AccountRef{Kind: models.AccountKindUser, ID: id}
}

func orgRef(id uint) models.AccountRef {
	return models.AccountRef{Kind: models.AccountKindOrganization, ID: id}
}

func TestInitiateTopUpCreatesCustomerAndPendingTransaction(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{
		Ref:     userRef(1),
		Name:    "Ada",
		Email:   "ada@example.com",
		Credits: 100,
	})
	repo.packages[5] = &models.CreditPackage{ID: 5, Name: "Starter", Price: 50.00, Credits: 500}

	gw := newFakeGateway()
	svc := newTestService(repo, gw)
	svc.tax = PercentPolicy{Rate: 0}

	checkoutURL, err := svc.InitiateTopUp(context.Background(), userRef(1), 5)
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.test/checkout/tr_test_1", checkoutURL)

	assert.Equal(t, 1, gw.createCustomerCalls)
	acc := repo.account(userRef(1))
	require.NotNil(t, acc.GatewayCustomerID)
	assert.Equal(t, "cst_test", *acc.GatewayCustomerID)
	assert.Equal(t, 100.0, acc.Credits, "credits must not move before verification")

	tr := repo.transaction("tr_test_1")
	require.NotNil(t, tr)
	assert.False(t, tr.Verified)
	assert.Equal(t, models.TransactionTypeTopUp, tr.Type)
	assert.Equal(t, 50.00, tr.Amount)
	assert.Equal(t, 500.0, tr.Credits)
	assert.Equal(t, userRef(1), tr.AccountRef())

	assert.Equal(t, 1, gw.redirectCalls)
	assert.Equal(t, models.TransactionTypeTopUp, gw.lastMetadata.Type)
}

func TestInitiateTopUpReusesExistingCustomer(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{
		Ref:               userRef(1),
		Name:              "Ada",
		Email:             "ada@example.com",
		GatewayCustomerID: strPtr("cst_existing"),
	})
	repo.packages[5] = &models.CreditPackage{ID: 5, Name: "Starter", Price: 50.00, Credits: 500}

	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	_, err := svc.InitiateTopUp(context.Background(), userRef(1), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, gw.createCustomerCalls)
}

func TestInitiateTopUpAppliesTax(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{Ref: userRef(1), Name: "Ada", Email: "ada@example.com"})
	repo.packages[5] = &models.CreditPackage{ID: 5, Name: "Starter", Price: 50.00, Credits: 500}

	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	_, err := svc.InitiateTopUp(context.Background(), userRef(1), 5)
	require.NoError(t, err)

	assert.Equal(t, 60.50, gw.lastSequenceAmount)
	assert.Equal(t, 60.50, repo.transaction("tr_test_1").Amount)
}

func TestInitiateTopUpUnknownAccountOrPackage(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{Ref: userRef(1), Name: "Ada", Email: "ada@example.com"})

	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	_, err := svc.InitiateTopUp(context.Background(), userRef(9), 5)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.InitiateTopUp(context.Background(), userRef(1), 404)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 0, gw.createPaymentCalls)
}

func TestInitiateTopUpSurfacesLedgerWriteFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{Ref: userRef(1), Name: "Ada", Email: "ada@example.com"})
	repo.packages[5] = &models.CreditPackage{ID: 5, Name: "Starter", Price: 50.00, Credits: 500}
	repo.failCreateTransaction = true

	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	_, err := svc.InitiateTopUp(context.Background(), userRef(1), 5)
	require.Error(t, err)
	// Payment exists at the gateway with no ledger row; the reconciler
	// treats the unknown id as a no-op.
	assert.Equal(t, 1, gw.createPaymentCalls)
	assert.Nil(t, repo.transaction("tr_test_1"))
}

func TestInitiateSubscriptionSetsOptimisticPlanLinkage(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{Ref: userRef(1), Name: "Ada", Email: "ada@example.com"})
	repo.plans[9] = &models.SubscriptionPlan{ID: 9, Name: "Pro", Price: 20.00, Credits: 200, Interval: "1 month"}

	gw := newFakeGateway()
	gw.payment.Amount = 24.20
	svc := newTestService(repo, gw)

	checkoutURL, err := svc.InitiateSubscription(context.Background(), userRef(1), 9)
	require.NoError(t, err)
	assert.NotEmpty(t, checkoutURL)

	acc := repo.account(userRef(1))
	require.NotNil(t, acc.SubscriptionPlanID)
	assert.Equal(t, uint(9), *acc.SubscriptionPlanID)
	assert.Nil(t, acc.GatewaySubscriptionID, "recurring registration waits for the first payment to confirm")

	tr := repo.transaction("tr_test_1")
	require.NotNil(t, tr)
	assert.Equal(t, models.TransactionTypeConsentFirstPayment, tr.Type)
	assert.False(t, tr.Verified)
	assert.Equal(t, 24.20, tr.Amount, "amount comes from the gateway's first-payment response")
	assert.Equal(t, 200.0, tr.Credits)
}

func TestInitiateSubscriptionAlreadyActiveIsRejectedWithoutGatewayCalls(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{
		Ref:                userRef(1),
		Name:               "Ada",
		Email:              "ada@example.com",
		SubscriptionPlanID: uintPtr(9),
	})
	repo.plans[9] = &models.SubscriptionPlan{ID: 9, Name: "Pro", Price: 20.00, Credits: 200, Interval: "1 month"}

	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	_, err := svc.InitiateSubscription(context.Background(), userRef(1), 9)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Equal(t, 0, gw.createCustomerCalls)
	assert.Equal(t, 0, gw.createPaymentCalls)
	assert.Equal(t, 0, gw.cancelCalls)
}

func TestInitiateSubscriptionSwitchesPlansAfterConfirmedCancellation(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{
		Ref:                   orgRef(3),
		Name:                  "Acme",
		Email:                 "billing@acme.example",
		SubscriptionPlanID:    uintPtr(9),
		GatewayCustomerID:     strPtr("cst_acme"),
		GatewaySubscriptionID: strPtr("sub_old"),
	})
	repo.plans[12] = &models.SubscriptionPlan{ID: 12, Name: "Scale", Price: 99.00, Credits: 1000, Interval: "1 month"}

	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	_, err := svc.InitiateSubscription(context.Background(), orgRef(3), 12)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.cancelCalls)

	acc := repo.account(orgRef(3))
	require.NotNil(t, acc.SubscriptionPlanID)
	assert.Equal(t, uint(12), *acc.SubscriptionPlanID)
	assert.Nil(t, acc.GatewaySubscriptionID)
}

func TestInitiateSubscriptionUnconfirmedCancellationAborts(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{
		Ref:                   userRef(1),
		Name:                  "Ada",
		Email:                 "ada@example.com",
		SubscriptionPlanID:    uintPtr(9),
		GatewayCustomerID:     strPtr("cst_test"),
		GatewaySubscriptionID: strPtr("sub_old"),
	})
	repo.plans[12] = &models.SubscriptionPlan{ID: 12, Name: "Scale", Price: 99.00, Credits: 1000, Interval: "1 month"}

	gw := newFakeGateway()
	gw.failCancel = true
	svc := newTestService(repo, gw)

	_, err := svc.InitiateSubscription(context.Background(), userRef(1), 12)
	require.Error(t, err)
	assert.True(t, IsGatewayError(err))

	acc := repo.account(userRef(1))
	require.NotNil(t, acc.SubscriptionPlanID)
	assert.Equal(t, uint(9), *acc.SubscriptionPlanID, "local linkage untouched when cancellation is unconfirmed")
	require.NotNil(t, acc.GatewaySubscriptionID)
	assert.Equal(t, "sub_old", *acc.GatewaySubscriptionID)
	assert.Equal(t, 0, gw.createPaymentCalls)
}

func TestCancelSubscriptionWithoutGatewayLinkageIsIdempotentNoOp(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{
		Ref:                userRef(1),
		Name:               "Ada",
		Email:              "ada@example.com",
		SubscriptionPlanID: uintPtr(9),
	})

	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	require.NoError(t, svc.CancelSubscription(context.Background(), userRef(1)))
	require.NoError(t, svc.CancelSubscription(context.Background(), userRef(1)))

	acc := repo.account(userRef(1))
	assert.Nil(t, acc.SubscriptionPlanID)
	assert.Nil(t, acc.GatewaySubscriptionID)
	assert.Equal(t, 0, gw.cancelCalls)
}

func TestCancelSubscriptionClearsLinkageAfterGatewayConfirms(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{
		Ref:                   userRef(1),
		Name:                  "Ada",
		Email:                 "ada@example.com",
		SubscriptionPlanID:    uintPtr(9),
		GatewayCustomerID:     strPtr("cst_test"),
		GatewaySubscriptionID: strPtr("sub_test_1"),
	})

	gw := newFakeGateway()
	svc := newTestService(repo, gw)

	require.NoError(t, svc.CancelSubscription(context.Background(), userRef(1)))
	assert.Equal(t, 1, gw.cancelCalls)

	acc := repo.account(userRef(1))
	assert.Nil(t, acc.SubscriptionPlanID)
	assert.Nil(t, acc.GatewaySubscriptionID)
	require.NotNil(t, acc.GatewayCustomerID, "customer survives cancellation")
}

func TestReauthorizeMandateStillValidFailsPrecondition(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{
		Ref:               userRef(1),
		Name:              "Ada",
		Email:             "ada@example.com",
		GatewayCustomerID: strPtr("cst_test"),
		GatewayMandateID:  strPtr("mdt_valid"),
	})

	gw := newFakeGateway()
	gw.mandateValid = true
	svc := newTestService(repo, gw)

	_, err := svc.ReauthorizeMandate(context.Background(), userRef(1))
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Equal(t, 0, gw.createPaymentCalls)
}

func TestReauthorizeMandateChargesNothing(t *testing.T) {
	repo := newFakeRepo()
	repo.putAccount(&models.Account{
		Ref:               userRef(1),
		Name:              "Ada",
		Email:             "ada@example.com",
		GatewayCustomerID: strPtr("cst_test"),
		GatewayMandateID:  strPtr("mdt_revoked"),
	})

	gw := newFakeGateway()
	gw.payment.Amount = 0
	svc := newTestService(repo, gw)

	checkoutURL, err := svc.ReauthorizeMandate(context.Background(), userRef(1))
	require.NoError(t, err)
	assert.NotEmpty(t, checkoutURL)
	assert.Equal(t, 0.0, gw.lastSequenceAmount)

	tr := repo.transaction("tr_test_1")
	require.NotNil(t, tr)
	assert.Equal(t, 0.0, tr.Credits)
}
