package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlanMonth   = "month"
	PlanYear    = "year"
	PlanOneTime = "one_time"
	PlanUnknown = "unknown"
)

const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// Subscription is the durable billing state for one customer, keyed by email.
// Emails are stored lower-cased (see NormalizeEmail); the unique index makes
// the per-email merge upsert atomic inside MySQL. Records are never deleted;
// cancellation is a status, not a tombstone.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UUID                   string     `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	Email                  string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_email" json:"email"`
	Plan                   string     `gorm:"type:varchar(32);not null;default:''" json:"plan"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'';index" json:"status"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CanceledAt             *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_subscription_id"`
	ProviderCustomerID     string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_customer_id"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == "" {
		s.UUID = uuid.New().String()
	}
	return nil
}

// NormalizeEmail canonicalizes an email for use as the store key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindSubscriptionByEmail loads the record for a normalized email.
func FindSubscriptionByEmail(db *gorm.DB, email string) (*Subscription, error) {
	var sub Subscription
	result := db.Where("email = ?", NormalizeEmail(email)).First(&sub)
	if result.Error != nil {
		return nil, result.Error
	}
	return &sub, nil
}
