package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/creditdesk/creditdesk/app/models"
)

// fakeRepo is an in-memory Repository. WithinTransaction serializes on a
// dedicated mutex so the reconciler's lock-and-recheck behavior can be
// exercised concurrently.
type fakeRepo struct {
	mu   sync.Mutex
	txMu sync.Mutex

	accounts     map[models.AccountRef]*models.Account
	packages     map[uint]*models.CreditPackage
	plans        map[uint]*models.SubscriptionPlan
	transactions map[string]*models.Transaction

	failCreateTransaction bool
	failSaveAccount       bool
	saveAccountCalls      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts:     make(map[models.AccountRef]*models.Account),
		packages:     make(map[uint]*models.CreditPackage),
		plans:        make(map[uint]*models.SubscriptionPlan),
		transactions: make(map[string]*models.Transaction),
	}
}

func (r *fakeRepo) putAccount(acc *models.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *acc
	r.accounts[acc.Ref] = &cp
}

func (r *fakeRepo) account(ref models.AccountRef) *models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[ref]
}

func (r *fakeRepo) transaction(paymentID string) *models.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transactions[paymentID]
}

func (r *fakeRepo) FindAccount(ref models.AccountRef) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (r *fakeRepo) FindAccountByGatewaySubscription(subscriptionID string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.GatewaySubscriptionID != nil && *acc.GatewaySubscriptionID == subscriptionID {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *fakeRepo) SaveAccount(acc *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveAccountCalls++
	if r.failSaveAccount {
		return errors.New("save account failed")
	}
	stored, ok := r.accounts[acc.Ref]
	if !ok {
		return ErrNotFound
	}
	stored.SubscriptionPlanID = acc.SubscriptionPlanID
	stored.GatewayCustomerID = acc.GatewayCustomerID
	stored.GatewaySubscriptionID = acc.GatewaySubscriptionID
	if acc.IsUser() {
		stored.GatewayMandateID = acc.GatewayMandateID
	}
	return nil
}

func (r *fakeRepo) AddCredits(ref models.AccountRef, delta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[ref]
	if !ok {
		return ErrNotFound
	}
	acc.Credits += delta
	return nil
}

func (r *fakeRepo) FindPackage(id uint) (*models.CreditPackage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pkg, ok := r.packages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return pkg, nil
}

func (r *fakeRepo) FindPlan(id uint) (*models.SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return plan, nil
}

func (r *fakeRepo) CreateTransaction(tr *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateTransaction {
		return errors.New("create transaction failed")
	}
	if _, exists := r.transactions[tr.PaymentID]; exists {
		return fmt.Errorf("duplicate payment id %s", tr.PaymentID)
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now()
	}
	tr.UpdatedAt = tr.CreatedAt
	cp := *tr
	r.transactions[tr.PaymentID] = &cp
	return nil
}

func (r *fakeRepo) FindTransaction(paymentID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.transactions[paymentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tr
	return &cp, nil
}

func (r *fakeRepo) FindTransactionForUpdate(paymentID string) (*models.Transaction, error) {
	return r.FindTransaction(paymentID)
}

func (r *fakeRepo) SaveTransaction(tr *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transactions[tr.PaymentID]; !ok {
		return ErrNotFound
	}
	tr.UpdatedAt = time.Now()
	cp := *tr
	r.transactions[tr.PaymentID] = &cp
	return nil
}

func (r *fakeRepo) ListTransactions(ref models.AccountRef, offset, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, tr := range r.transactions {
		if tr.BelongsTo(ref) {
			out = append(out, *tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) WithinTransaction(fn func(txRepo Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(r)
}

// fakeGateway is a scripted PaymentGateway that records calls. Each
// CreateRecurringSubscription returns a distinct id, like the real
// gateway. subRendezvous, when set, parks registrations until all
// expected callers arrive; onCreateSub runs before each registration.
type fakeGateway struct {
	mu sync.Mutex

	customerID   string
	payment      *GatewayPayment
	status       *GatewayPaymentStatus
	mandateValid bool

	subRendezvous *sync.WaitGroup
	onCreateSub   func()

	failCreateCustomer bool
	failCreatePayment  bool
	failFetchStatus    bool
	failCancel         bool
	failCreateSub      bool

	createCustomerCalls int
	createPaymentCalls  int
	createSubCalls      int
	cancelCalls         int
	redirectCalls       int
	lastSequenceAmount  float64
	lastMetadata        PaymentMetadata
	canceledSubIDs      []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customerID: "cst_test",
		payment: &GatewayPayment{
			PaymentID:   "tr_test_1",
			CheckoutURL: "https://gateway.test/checkout/tr_test_1",
			Amount:      60.50,
		},
	}
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCustomerCalls++
	if g.failCreateCustomer {
		return "", &GatewayError{Op: "create customer", Err: errors.New("boom")}
	}
	return g.customerID, nil
}

func (g *fakeGateway) CreateOneOffPayment(ctx context.Context, customerID string, amount float64, description string, meta PaymentMetadata) (*GatewayPayment, error) {
	return g.createPayment(amount, meta)
}

func (g *fakeGateway) CreateFirstPayment(ctx context.Context, customerID string, amount float64, description string, meta PaymentMetadata) (*GatewayPayment, error) {
	return g.createPayment(amount, meta)
}

func (g *fakeGateway) createPayment(amount float64, meta PaymentMetadata) (*GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createPaymentCalls++
	g.lastSequenceAmount = amount
	g.lastMetadata = meta
	if g.failCreatePayment {
		return nil, &GatewayError{Op: "create payment", Err: errors.New("boom")}
	}
	cp := *g.payment
	return &cp, nil
}

func (g *fakeGateway) FetchPaymentStatus(ctx context.Context, paymentID string) (*GatewayPaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFetchStatus {
		return nil, &GatewayError{Op: "fetch payment", Err: errors.New("boom")}
	}
	cp := *g.status
	return &cp, nil
}

func (g *fakeGateway) CreateRecurringSubscription(ctx context.Context, customerID string, amount float64, interval string, startDate time.Time, meta PaymentMetadata) (string, error) {
	if g.subRendezvous != nil {
		g.subRendezvous.Done()
		g.subRendezvous.Wait()
	}
	if g.onCreateSub != nil {
		g.onCreateSub()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.createSubCalls++
	if g.failCreateSub {
		return "", &GatewayError{Op: "create subscription", Err: errors.New("boom")}
	}
	return fmt.Sprintf("sub_test_%d", g.createSubCalls), nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, subscriptionID, customerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls++
	if g.failCancel {
		return &GatewayError{Op: "cancel subscription", Err: errors.New("not confirmed")}
	}
	g.canceledSubIDs = append(g.canceledSubIDs, subscriptionID)
	return nil
}

func (g *fakeGateway) IsMandateValid(ctx context.Context, mandateID, customerID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mandateValid, nil
}

func (g *fakeGateway) UpdatePaymentRedirect(ctx context.Context, paymentID, redirectURL string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.redirectCalls++
	return nil
}

func newTestService(repo *fakeRepo, gw *fakeGateway) *Service {
	return &Service{
		repo:    repo,
		gateway: gw,
		tax:     PercentPolicy{Rate: 21},
		baseURL: "https://app.test",
	}
}

func strPtr(s string) *string { return &s }

func uintPtr(v uint) *uint { return &v }
