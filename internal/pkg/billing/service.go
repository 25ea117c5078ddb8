package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fluxpay/subsync/app/models"
	"github.com/fluxpay/subsync/internal/pkg/env"
	"github.com/go-playground/validator/v10"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ResultStatus reports what the pipeline did with an event. Every status maps
// to a 200 response: anything that warrants a non-2xx surfaces as an error.
type ResultStatus string

const (
	// ResultProcessed means state was derived and upserted.
	ResultProcessed ResultStatus = "processed"
	// ResultDuplicate means this provider event id was already handled.
	ResultDuplicate ResultStatus = "duplicate"
	// ResultIgnored means the event kind is recognized-but-irrelevant or unknown.
	ResultIgnored ResultStatus = "ignored"
	// ResultAcknowledged means a terminal condition (gone entity, no email)
	// was logged and accepted so the provider stops re-delivering.
	ResultAcknowledged ResultStatus = "acknowledged"
)

type Result struct {
	Status ResultStatus
	Kind   EventKind
	Email  string
}

// Service runs the webhook pipeline: verify, normalize, resolve, reconcile,
// upsert. Requests are independent; the only shared state is the injected
// read-only configuration (secret, provider client, store handle).
type Service struct {
	repo          Repository
	resolver      *Resolver
	webhookSecret string
	validate      *validator.Validate
	now           func() time.Time
}

// NewService creates a billing service from injected collaborators.
func NewService(repo Repository, resolver *Resolver, webhookSecret string) *Service {
	return &Service{
		repo:          repo,
		resolver:      resolver,
		webhookSecret: webhookSecret,
		validate:      validator.New(),
		now:           time.Now,
	}
}

// NewServiceFromDB creates a billing service wired to the Stripe API, the
// shared Redis email cache, and a GORM-backed repository.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(
		NewRepository(db),
		NewResolver(NewStripeClientFromEnv(), NewRedisEmailCache()),
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	)
}

// ProcessWebhook takes the raw request body and signature header and drives
// the event through the pipeline. Verification and normalization failures
// never reach the resolver or the store; resolver and store failures abort
// the rest of the pipeline for this request without any partial write.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, signatureHeader string) (*Result, error) {
	event, err := VerifyStripeWebhookSignature(payload, signatureHeader, s.webhookSecret)
	if err != nil {
		return nil, err
	}

	normalized, err := NormalizeEvent(event)
	if err != nil {
		fiberlog.Warnf("webhook event %s (%s) rejected: %v", event.ID, event.Type, err)
		return nil, err
	}

	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Provider:        ProviderStripe,
		ProviderEventID: normalized.ProviderEventID,
		EventType:       normalized.ProviderType,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: record webhook event: %v", ErrStore, err)
	}
	if !created {
		// Only a finalized event is a duplicate. An unfinalized row means a
		// prior attempt hit a transient failure and this re-delivery is the
		// retry, so the pipeline runs again.
		if stored.ProcessedAt != nil {
			return &Result{Status: ResultDuplicate, Kind: normalized.Kind}, nil
		}
		fiberlog.Infof("webhook event %s re-delivered before completion, reprocessing", normalized.ProviderEventID)
	}

	if normalized.Kind == KindUnknown {
		fiberlog.Infof("webhook event %s ignored (unhandled type %s)", normalized.ProviderEventID, normalized.ProviderType)
		s.markProcessed(stored.ID, nil)
		return &Result{Status: ResultIgnored, Kind: KindUnknown}, nil
	}

	resolved, err := s.resolver.Resolve(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrEntityNotFound) || errors.Is(err, ErrMissingEmail) {
			// Terminal for this event: retrying cannot bring back a deleted
			// entity or conjure an email. Acknowledge to stop re-delivery.
			s.markProcessed(stored.ID, err)
			fiberlog.Warnf("webhook event %s (%s) acknowledged without write: %v", normalized.ProviderEventID, normalized.ProviderType, err)
			return &Result{Status: ResultAcknowledged, Kind: normalized.Kind}, nil
		}
		s.recordFailure(stored.ID, err)
		return nil, err
	}

	if err := s.validate.Var(resolved.Email, "required,email"); err != nil {
		s.markProcessed(stored.ID, fmt.Errorf("%w: %q", ErrMissingEmail, resolved.Email))
		fiberlog.Warnf("webhook event %s carried unusable email %q", normalized.ProviderEventID, resolved.Email)
		return &Result{Status: ResultAcknowledged, Kind: normalized.Kind}, nil
	}

	patch := Reconcile(normalized.Kind, resolved, s.now())
	if patch == nil {
		s.markProcessed(stored.ID, nil)
		return &Result{Status: ResultIgnored, Kind: normalized.Kind, Email: resolved.Email}, nil
	}

	if _, err := s.repo.UpsertSubscription(patch); err != nil {
		s.recordFailure(stored.ID, err)
		return nil, fmt.Errorf("%w: upsert subscription for %s: %v", ErrStore, patch.Email, err)
	}

	s.markProcessed(stored.ID, nil)
	return &Result{Status: ResultProcessed, Kind: normalized.Kind, Email: resolved.Email}, nil
}

// RecentEvents returns the latest webhook events for diagnosis.
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	_ = ctx
	return s.repo.ListRecentWebhookEvents(limit)
}

// SubscriptionForEmail looks up the stored record for an email.
func (s *Service) SubscriptionForEmail(email string) (*models.Subscription, error) {
	return s.repo.GetSubscriptionByEmail(email)
}

func (s *Service) markProcessed(eventID uint, processingErr error) {
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(eventID, errMsg); err != nil {
		fiberlog.Errorf("failed to mark webhook event %d processed: %v", eventID, err)
	}
}

// recordFailure logs a transient failure on the event row but leaves it
// unfinalized so the provider's re-delivery is reprocessed.
func (s *Service) recordFailure(eventID uint, processingErr error) {
	if err := s.repo.RecordWebhookFailure(eventID, processingErr.Error()); err != nil {
		fiberlog.Errorf("failed to record failure on webhook event %d: %v", eventID, err)
	}
}
