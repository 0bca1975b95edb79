package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

type User struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	Name                  string     `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email                 string     `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password              string     `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role                  string     `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Status                string     `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	APIKeyHash            string     `gorm:"type:varchar(64);index" json:"-"`
	Credits               float64    `gorm:"type:decimal(12,2);not null;default:0" json:"credits"`
	SubscriptionPlanID    *uint      `gorm:"index" json:"subscription_plan_id,omitempty"`
	GatewayCustomerID     *string    `gorm:"type:varchar(64);index" json:"-"`
	GatewayMandateID      *string    `gorm:"type:varchar(64)" json:"-"`
	GatewaySubscriptionID *string    `gorm:"type:varchar(64)" json:"-"`
	LastLoginAt           *time.Time `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func CreateUser(username string, email string, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:     username,
		Email:    email,
		Password: pw,
		Role:     ROLE_USER,
		Status:   STATUS_INACTIVE,
	}

	err = u.Validate()
	if err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HashAPIKey returns the storage hash for a raw API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// BillingAccount returns the kind-neutral account view used by the billing core.
func (u *User) BillingAccount() *Account {
	return &Account{
		Ref:                   AccountRef{Kind: AccountKindUser, ID: u.ID},
		Name:                  u.Name,
		Email:                 u.Email,
		Credits:               u.Credits,
		SubscriptionPlanID:    u.SubscriptionPlanID,
		GatewayCustomerID:     u.GatewayCustomerID,
		GatewayMandateID:      u.GatewayMandateID,
		GatewaySubscriptionID: u.GatewaySubscriptionID,
	}
}
