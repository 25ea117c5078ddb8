package billing

import (
	"time"

	"github.com/fluxpay/subsync/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	UpsertSubscription(patch *Patch) (*models.Subscription, error)
	GetSubscriptionByEmail(email string) (*models.Subscription, error)
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	RecordWebhookFailure(id uint, processingError string) error
	ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// UpsertSubscription merges the patch into the record for its email, creating
// the record on first contact. The merge is one INSERT ... ON DUPLICATE KEY
// UPDATE keyed by the unique email index, so concurrent writers for the same
// email serialize in the database and never interleave partial field sets.
// Only columns the patch actually derives are assigned; everything else keeps
// its stored value. Calling twice with the same patch is idempotent up to
// updated_at.
func (r *gormRepository) UpsertSubscription(patch *Patch) (*models.Subscription, error) {
	email := models.NormalizeEmail(patch.Email)

	sub := &models.Subscription{
		Email:                  email,
		Plan:                   patch.Plan,
		Status:                 patch.Status,
		CurrentPeriodStart:     patch.PeriodStart,
		CurrentPeriodEnd:       patch.PeriodEnd,
		CanceledAt:             patch.CanceledAt,
		ProviderSubscriptionID: patch.ProviderSubscriptionID,
		ProviderCustomerID:     patch.ProviderCustomerID,
	}

	assignments := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if patch.Plan != "" {
		assignments["plan"] = patch.Plan
	}
	if patch.Status != "" {
		assignments["status"] = patch.Status
	}
	if patch.PeriodStart != nil {
		assignments["current_period_start"] = patch.PeriodStart
	}
	if patch.PeriodEnd != nil {
		assignments["current_period_end"] = patch.PeriodEnd
	} else if patch.ClearPeriodEnd {
		assignments["current_period_end"] = nil
	}
	if patch.CanceledAt != nil {
		assignments["canceled_at"] = patch.CanceledAt
	}
	if patch.ProviderSubscriptionID != "" {
		assignments["provider_subscription_id"] = patch.ProviderSubscriptionID
	}
	if patch.ProviderCustomerID != "" {
		assignments["provider_customer_id"] = patch.ProviderCustomerID
	}

	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(sub).Error; err != nil {
		return nil, err
	}

	// Ensure the returned record reflects the merged row.
	if err := r.db.Where("email = ?", email).First(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *gormRepository) GetSubscriptionByEmail(email string) (*models.Subscription, error) {
	return models.FindSubscriptionByEmail(r.db, email)
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// MarkWebhookProcessed finalizes an event: once processed_at is set the event
// is a terminal duplicate for any re-delivery.
func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// RecordWebhookFailure notes a transient failure without finalizing the event,
// so the provider's re-delivery gets another attempt.
func (r *gormRepository) RecordWebhookFailure(id uint, processingError string) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).
		Update("processing_error", processingError).Error
}

func (r *gormRepository) ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var events []models.WebhookEvent
	err := r.db.Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}
