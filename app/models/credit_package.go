package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// CreditPackage is a catalog row granting a one-off credit amount for a
// fixed price. Read-only to the billing core.
type CreditPackage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=3,max=150"`
	Price     float64   `gorm:"type:decimal(10,2);not null" json:"price" validate:"gt=0"`
	Credits   float64   `gorm:"type:decimal(12,2);not null" json:"credits" validate:"gt=0"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *CreditPackage) Validate() error {
	v := validator.New()

	return v.Struct(p)
}
