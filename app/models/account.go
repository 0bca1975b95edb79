package models

const (
	AccountKindUser         = "user"
	AccountKindOrganization = "organization"
)

// AccountRef identifies a billing account across the users and
// organizations tables.
type AccountRef struct {
	Kind string `json:"kind"`
	ID   uint   `json:"id"`
}

// Account is the kind-neutral billing view of a User or Organization.
// The billing core only ever mutates the fields below; repositories
// translate reads and writes to the owning table.
type Account struct {
	Ref                   AccountRef
	Name                  string
	Email                 string
	Credits               float64
	SubscriptionPlanID    *uint
	GatewayCustomerID     *string
	GatewayMandateID      *string // user accounts only
	GatewaySubscriptionID *string
}

// IsUser reports whether the account row lives in the users table.
func (a *Account) IsUser() bool {
	return a.Ref.Kind == AccountKindUser
}

// HasGatewayCustomer reports whether a gateway customer has been created
// for this account.
func (a *Account) HasGatewayCustomer() bool {
	return a.GatewayCustomerID != nil && *a.GatewayCustomerID != ""
}

// HasGatewaySubscription reports whether a recurring gateway subscription
// is registered for this account.
func (a *Account) HasGatewaySubscription() bool {
	return a.GatewaySubscriptionID != nil && *a.GatewaySubscriptionID != ""
}
