package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// SubscriptionPlan is a catalog row granting recurring credits at a price
// and interval. The interval uses the gateway's format ("1 month",
// "12 months"). Read-only to the billing core except for account linkage.
type SubscriptionPlan struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=3,max=150"`
	Price     float64   `gorm:"type:decimal(10,2);not null" json:"price" validate:"gt=0"`
	Credits   float64   `gorm:"type:decimal(12,2);not null" json:"credits" validate:"gt=0"`
	Interval  string    `gorm:"type:varchar(32);not null" json:"interval" validate:"required"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *SubscriptionPlan) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// IsRecurring reports whether the plan requires ongoing gateway charges
// after the first payment.
func (p *SubscriptionPlan) IsRecurring() bool {
	return p.Interval != ""
}
