package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxpay/subsync/app/models"
	"github.com/fluxpay/subsync/internal/pkg/cache"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

const customerEmailCacheTTL = 15 * time.Minute

// EmailCache memoizes customer-id to email resolution. Misses and cache
// failures are equivalent: the resolver falls back to a provider lookup.
type EmailCache interface {
	GetCustomerEmail(ctx context.Context, customerID string) (string, bool)
	SetCustomerEmail(ctx context.Context, customerID, email string)
}

type redisEmailCache struct{}

// NewRedisEmailCache returns an EmailCache backed by the shared cache client.
func NewRedisEmailCache() EmailCache {
	return redisEmailCache{}
}

func (redisEmailCache) GetCustomerEmail(ctx context.Context, customerID string) (string, bool) {
	val, err := cache.Get("stripe:customer_email:" + customerID)
	if err != nil || val == "" {
		return "", false
	}
	return val, true
}

func (redisEmailCache) SetCustomerEmail(ctx context.Context, customerID, email string) {
	if err := cache.Set("stripe:customer_email:"+customerID, email, customerEmailCacheTTL); err != nil {
		fiberlog.Debugf("customer email cache write failed for %s: %v", customerID, err)
	}
}

type noopEmailCache struct{}

func (noopEmailCache) GetCustomerEmail(context.Context, string) (string, bool) { return "", false }
func (noopEmailCache) SetCustomerEmail(context.Context, string, string)        {}

// Resolver turns a normalized event into the objects the reconciler needs,
// fetching whatever the provider did not inline into the payload. Every
// persisted record is keyed by email, so resolution fails with
// ErrMissingEmail rather than letting an unkeyed event reach the store.
type Resolver struct {
	api   ProviderAPI
	cache EmailCache
}

func NewResolver(api ProviderAPI, emailCache EmailCache) *Resolver {
	if emailCache == nil {
		emailCache = noopEmailCache{}
	}
	return &Resolver{api: api, cache: emailCache}
}

func (r *Resolver) Resolve(ctx context.Context, ev *NormalizedEvent) (*Resolved, error) {
	switch ev.Kind {
	case KindCheckoutCompleted:
		return r.resolveCheckout(ctx, ev)
	case KindSubscriptionUpdated, KindSubscriptionDeleted:
		return r.resolveSubscription(ctx, ev)
	case KindPaymentSucceeded, KindPaymentFailed:
		return r.resolveInvoice(ctx, ev)
	default:
		return nil, fmt.Errorf("no resolution path for event kind %q", ev.Kind)
	}
}

// resolveCheckout re-fetches the session by id: the webhook payload is a
// notification, the re-fetched object is provider-side truth and wins any
// field disagreement.
func (r *Resolver) resolveCheckout(ctx context.Context, ev *NormalizedEvent) (*Resolved, error) {
	session, err := r.api.GetCheckoutSession(ctx, ev.ObjectID)
	if err != nil {
		return nil, err
	}

	email := session.CustomerDetails.Email
	if email == "" {
		email = session.CustomerEmail
	}
	if email == "" && session.Customer != "" {
		email, err = r.emailForCustomer(ctx, session.Customer)
		if err != nil {
			return nil, err
		}
	}
	if email == "" {
		return nil, fmt.Errorf("%w: checkout session %s", ErrMissingEmail, session.ID)
	}

	res := &Resolved{
		Email:      models.NormalizeEmail(email),
		Session:    session,
		CustomerID: session.Customer,
	}
	if session.Subscription != "" {
		sub, err := r.api.GetSubscription(ctx, session.Subscription)
		if err != nil {
			return nil, err
		}
		res.Subscription = sub
	}
	return res, nil
}

// resolveSubscription uses the event's subscription object directly (it
// carries status and period) and only resolves the owning email through the
// customer reference.
func (r *Resolver) resolveSubscription(ctx context.Context, ev *NormalizedEvent) (*Resolved, error) {
	sub := ev.Subscription
	if sub.Customer == "" {
		return nil, fmt.Errorf("%w: subscription %s has no customer reference", ErrMissingEmail, sub.ID)
	}
	email, err := r.emailForCustomer(ctx, sub.Customer)
	if err != nil {
		return nil, err
	}
	return &Resolved{
		Email:        models.NormalizeEmail(email),
		Subscription: sub,
		CustomerID:   sub.Customer,
	}, nil
}

// resolveInvoice ties the payment to an email via the invoice's customer and,
// for successful payments with an attached subscription, re-fetches that
// subscription so the update path works from current provider state.
func (r *Resolver) resolveInvoice(ctx context.Context, ev *NormalizedEvent) (*Resolved, error) {
	invoice := ev.Invoice

	email := invoice.CustomerEmail
	if email == "" && invoice.Customer != "" {
		var err error
		email, err = r.emailForCustomer(ctx, invoice.Customer)
		if err != nil {
			return nil, err
		}
	}
	if email == "" {
		return nil, fmt.Errorf("%w: invoice %s", ErrMissingEmail, invoice.ID)
	}

	res := &Resolved{
		Email:      models.NormalizeEmail(email),
		CustomerID: invoice.Customer,
	}
	if ev.Kind == KindPaymentSucceeded {
		if subID := invoice.SubscriptionID(); subID != "" {
			sub, err := r.api.GetSubscription(ctx, subID)
			if err != nil {
				return nil, err
			}
			res.Subscription = sub
		}
	}
	return res, nil
}

func (r *Resolver) emailForCustomer(ctx context.Context, customerID string) (string, error) {
	if email, ok := r.cache.GetCustomerEmail(ctx, customerID); ok {
		return email, nil
	}
	customer, err := r.api.GetCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	if customer.Email == "" {
		return "", fmt.Errorf("%w: customer %s has no email", ErrMissingEmail, customerID)
	}
	r.cache.SetCustomerEmail(ctx, customerID, customer.Email)
	return customer.Email, nil
}
