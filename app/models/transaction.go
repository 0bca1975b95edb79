package models

import "time"

const (
	TransactionTypeTopUp               = "top_up"
	TransactionTypeConsentFirstPayment = "consent_first_payment"
	TransactionTypeRecurring           = "subscription_recurring"
)

// Transaction is the ledger entry for one purchase attempt, keyed by the
// gateway's payment id. Rows are created unverified by the purchase
// orchestrator and flipped to verified exactly once by the webhook
// reconciler; they are never deleted.
type Transaction struct {
	PaymentID   string    `gorm:"primaryKey;type:varchar(64)" json:"payment_id"`
	AccountKind string    `gorm:"type:varchar(20);not null;index:idx_transactions_account,priority:1" json:"account_kind"`
	AccountID   uint      `gorm:"not null;index:idx_transactions_account,priority:2" json:"account_id"`
	Type        string    `gorm:"type:varchar(32);not null" json:"type"`
	Amount      float64   `gorm:"type:decimal(10,2);not null" json:"amount"`
	Credits     float64   `gorm:"type:decimal(12,2);not null" json:"credits"`
	Verified    bool      `gorm:"not null;default:false;index" json:"verified"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AccountRef returns the owning account reference.
func (t *Transaction) AccountRef() AccountRef {
	return AccountRef{Kind: t.AccountKind, ID: t.AccountID}
}

// BelongsTo reports whether the transaction is owned by the given account.
func (t *Transaction) BelongsTo(ref AccountRef) bool {
	return t.AccountKind == ref.Kind && t.AccountID == ref.ID
}
