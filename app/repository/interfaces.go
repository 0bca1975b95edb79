package repository

import (
	"github.com/creditdesk/creditdesk/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// OrganizationRepository defines the interface for organization-related
// database operations
type OrganizationRepository interface {
	Create(org *models.Organization) error
	GetByID(id uint) (*models.Organization, error)
	GetByOwner(ownerUserID uint) ([]models.Organization, error)
	Update(org *models.Organization) error
	List(offset, limit int) ([]models.Organization, error)
	Count() (int64, error)
}

// CatalogRepository defines read operations for packages and plans used by
// the catalog endpoints. The billing core has its own repository with the
// cached variants of these reads.
type CatalogRepository interface {
	ListPackages() ([]models.CreditPackage, error)
	ListPlans() ([]models.SubscriptionPlan, error)
}
