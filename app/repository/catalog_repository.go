package repository

import (
	"github.com/creditdesk/creditdesk/app/models"
	"gorm.io/gorm"
)

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a catalog repository backed by GORM.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) ListPackages() ([]models.CreditPackage, error) {
	var pkgs []models.CreditPackage
	err := r.db.Where("is_active = ?", true).Order("price ASC").Find(&pkgs).Error
	return pkgs, err
}

func (r *catalogRepository) ListPlans() ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Where("is_active = ?", true).Order("price ASC").Find(&plans).Error
	return plans, err
}
