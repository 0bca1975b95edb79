package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/creditdesk/creditdesk/app/models"
	"github.com/creditdesk/creditdesk/internal/pkg/cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const catalogCacheTTL = 5 * time.Minute

// Repository provides the DB operations used by the billing service.
// WithinTransaction yields a Repository bound to one database transaction;
// FindTransactionForUpdate is only meaningful inside such a scope.
type Repository interface {
	FindAccount(ref models.AccountRef) (*models.Account, error)
	FindAccountByGatewaySubscription(subscriptionID string) (*models.Account, error)
	SaveAccount(acc *models.Account) error
	AddCredits(ref models.AccountRef, delta float64) error

	FindPackage(id uint) (*models.CreditPackage, error)
	FindPlan(id uint) (*models.SubscriptionPlan, error)

	CreateTransaction(tr *models.Transaction) error
	FindTransaction(paymentID string) (*models.Transaction, error)
	FindTransactionForUpdate(paymentID string) (*models.Transaction, error)
	SaveTransaction(tr *models.Transaction) error
	ListTransactions(ref models.AccountRef, offset, limit int) ([]models.Transaction, error)

	WithinTransaction(fn func(txRepo Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindAccount(ref models.AccountRef) (*models.Account, error) {
	switch ref.Kind {
	case models.AccountKindUser:
		var u models.User
		if err := r.db.First(&u, ref.ID).Error; err != nil {
			return nil, mapNotFound(err)
		}
		return u.BillingAccount(), nil
	case models.AccountKindOrganization:
		var o models.Organization
		if err := r.db.First(&o, ref.ID).Error; err != nil {
			return nil, mapNotFound(err)
		}
		return o.BillingAccount(), nil
	default:
		return nil, fmt.Errorf("%w: unknown account kind %q", ErrValidation, ref.Kind)
	}
}

func (r *gormRepository) FindAccountByGatewaySubscription(subscriptionID string) (*models.Account, error) {
	var u models.User
	err := r.db.Where("gateway_subscription_id = ?", subscriptionID).First(&u).Error
	if err == nil {
		return u.BillingAccount(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var o models.Organization
	if err := r.db.Where("gateway_subscription_id = ?", subscriptionID).First(&o).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return o.BillingAccount(), nil
}

// SaveAccount writes the billing-owned columns back to the owning table.
// It never touches credits; balance changes go through AddCredits so they
// stay relative updates.
func (r *gormRepository) SaveAccount(acc *models.Account) error {
	updates := map[string]interface{}{
		"subscription_plan_id":    acc.SubscriptionPlanID,
		"gateway_customer_id":     acc.GatewayCustomerID,
		"gateway_subscription_id": acc.GatewaySubscriptionID,
	}

	switch acc.Ref.Kind {
	case models.AccountKindUser:
		updates["gateway_mandate_id"] = acc.GatewayMandateID
		return r.db.Model(&models.User{}).Where("id = ?", acc.Ref.ID).Updates(updates).Error
	case models.AccountKindOrganization:
		return r.db.Model(&models.Organization{}).Where("id = ?", acc.Ref.ID).Updates(updates).Error
	default:
		return fmt.Errorf("%w: unknown account kind %q", ErrValidation, acc.Ref.Kind)
	}
}

func (r *gormRepository) AddCredits(ref models.AccountRef, delta float64) error {
	var tx *gorm.DB
	switch ref.Kind {
	case models.AccountKindUser:
		tx = r.db.Model(&models.User{}).Where("id = ?", ref.ID).
			Update("credits", gorm.Expr("credits + ?", delta))
	case models.AccountKindOrganization:
		tx = r.db.Model(&models.Organization{}).Where("id = ?", ref.ID).
			Update("credits", gorm.Expr("credits + ?", delta))
	default:
		return fmt.Errorf("%w: unknown account kind %q", ErrValidation, ref.Kind)
	}
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) FindPackage(id uint) (*models.CreditPackage, error) {
	var pkg models.CreditPackage
	key := fmt.Sprintf("catalog:package:%d", id)
	if cacheGet(key, &pkg) && pkg.IsActive {
		return &pkg, nil
	}
	if err := r.db.Where("is_active = ?", true).First(&pkg, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	cacheSet(key, &pkg)
	return &pkg, nil
}

func (r *gormRepository) FindPlan(id uint) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	key := fmt.Sprintf("catalog:plan:%d", id)
	if cacheGet(key, &plan) && plan.IsActive {
		return &plan, nil
	}
	if err := r.db.Where("is_active = ?", true).First(&plan, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	cacheSet(key, &plan)
	return &plan, nil
}

func (r *gormRepository) CreateTransaction(tr *models.Transaction) error {
	return r.db.Create(tr).Error
}

func (r *gormRepository) FindTransaction(paymentID string) (*models.Transaction, error) {
	var tr models.Transaction
	if err := r.db.Where("payment_id = ?", paymentID).First(&tr).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &tr, nil
}

// FindTransactionForUpdate takes a row lock so two concurrent
// reconciliations of the same payment serialize on the verified check.
func (r *gormRepository) FindTransactionForUpdate(paymentID string) (*models.Transaction, error) {
	var tr models.Transaction
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_id = ?", paymentID).First(&tr).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &tr, nil
}

func (r *gormRepository) SaveTransaction(tr *models.Transaction) error {
	return r.db.Save(tr).Error
}

func (r *gormRepository) ListTransactions(ref models.AccountRef, offset, limit int) ([]models.Transaction, error) {
	var trs []models.Transaction
	err := r.db.Where("account_kind = ? AND account_id = ?", ref.Kind, ref.ID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&trs).Error
	return trs, err
}

func (r *gormRepository) WithinTransaction(fn func(txRepo Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Catalog rows are read-mostly; cache misses and cache errors both fall
// through to the database.
func cacheGet(key string, out interface{}) bool {
	raw, err := cache.Get(key)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

func cacheSet(key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := cache.Set(key, string(raw), catalogCacheTTL); err != nil {
		log.Printf("catalog cache set %s failed: %v", key, err)
	}
}
