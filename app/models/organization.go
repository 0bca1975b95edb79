package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Organization is a team account. It holds its own credit balance and
// subscription linkage, separate from any member's personal account.
// Mandates for organization charges live at the gateway only.
type Organization struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	Name                  string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=3,max=150"`
	BillingEmail          string    `gorm:"type:varchar(200);not null" json:"billing_email" validate:"required,email,min=5,max=200"`
	OwnerUserID           uint      `gorm:"not null;index" json:"owner_user_id" validate:"required"`
	Credits               float64   `gorm:"type:decimal(12,2);not null;default:0" json:"credits"`
	SubscriptionPlanID    *uint     `gorm:"index" json:"subscription_plan_id,omitempty"`
	GatewayCustomerID     *string   `gorm:"type:varchar(64);index" json:"-"`
	GatewaySubscriptionID *string   `gorm:"type:varchar(64)" json:"-"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *Organization) Validate() error {
	v := validator.New()

	return v.Struct(o)
}

// BillingAccount returns the kind-neutral account view used by the billing core.
func (o *Organization) BillingAccount() *Account {
	return &Account{
		Ref:                   AccountRef{Kind: AccountKindOrganization, ID: o.ID},
		Name:                  o.Name,
		Email:                 o.BillingEmail,
		Credits:               o.Credits,
		SubscriptionPlanID:    o.SubscriptionPlanID,
		GatewayCustomerID:     o.GatewayCustomerID,
		GatewaySubscriptionID: o.GatewaySubscriptionID,
	}
}
