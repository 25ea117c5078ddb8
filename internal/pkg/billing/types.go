package billing

import (
	"errors"
	"time"
)

const ProviderStripe = "stripe"

// Pipeline error taxonomy. Callers classify with errors.Is and map each class
// to an HTTP status: invalid signature and malformed events are terminal 4xx,
// lookup and store failures are 5xx so the provider re-delivers, not-found and
// missing-email are acknowledged with 200 because retrying cannot fix them.
var (
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrMalformedEvent       = errors.New("malformed webhook event")
	ErrProviderLookupFailed = errors.New("provider lookup failed")
	ErrEntityNotFound       = errors.New("provider entity not found")
	ErrMissingEmail         = errors.New("no email associated with event")
	ErrStore                = errors.New("subscription store failure")
)

// EventKind is the closed set of webhook event kinds the pipeline reacts to.
// Anything else normalizes to KindUnknown and is acknowledged without work.
type EventKind string

const (
	KindCheckoutCompleted   EventKind = "checkout_completed"
	KindSubscriptionUpdated EventKind = "subscription_updated"
	KindSubscriptionDeleted EventKind = "subscription_deleted"
	KindPaymentSucceeded    EventKind = "payment_succeeded"
	KindPaymentFailed       EventKind = "payment_failed"
	KindUnknown             EventKind = "unknown"
)

// NormalizedEvent is the typed form of a verified webhook payload. It lives
// for one request and is never persisted. Exactly one of Session,
// Subscription, Invoice is set for known kinds.
type NormalizedEvent struct {
	Kind            EventKind
	ProviderEventID string
	ProviderType    string
	ObjectID        string

	Session      *CheckoutSession
	Subscription *ProviderSubscription
	Invoice      *Invoice
}

// CheckoutSession is the subset of a provider checkout session the pipeline
// reads. Customer and Subscription are opaque references, not inlined objects.
type CheckoutSession struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// ProviderSubscription mirrors the provider subscription object. Period
// fields are epoch seconds as delivered on the wire.
type ProviderSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID        string `json:"id"`
				Recurring struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// Invoice carries the references needed to tie a payment event to an email
// and, when present, to the subscription it renews. Newer payload shapes move
// the subscription reference under parent.subscription_details.
type Invoice struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customer_email"`
	Subscription  string `json:"subscription"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID returns the subscription reference regardless of payload
// shape, or "" for one-off invoices.
func (i *Invoice) SubscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription
	}
	return i.Parent.SubscriptionDetails.Subscription
}

// Customer is the subset of a provider customer object used for email
// resolution. Deleted customers come back as a stub with Deleted set.
type Customer struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Deleted bool   `json:"deleted"`
}

// Resolved bundles the objects the reconciler derives state from. Email is
// always set and normalized; Subscription is nil when the event has no
// subscription attached.
type Resolved struct {
	Email        string
	Session      *CheckoutSession
	Subscription *ProviderSubscription
	CustomerID   string
}

// Patch is the partial field set one event derives for the subscription
// record. Zero values mean "leave the stored column untouched"; the explicit
// ClearPeriodEnd flag is the one case where writing NULL is meaningful.
type Patch struct {
	Email                  string
	Plan                   string
	Status                 string
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
	ClearPeriodEnd         bool
	CanceledAt             *time.Time
	ProviderSubscriptionID string
	ProviderCustomerID     string
}
