package billing

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
)

// kindForEventType maps the provider's event type string onto the closed
// EventKind set. Unlisted types are KindUnknown, never an error: new provider
// event types must not break the endpoint.
func kindForEventType(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return KindCheckoutCompleted
	case "customer.subscription.updated":
		return KindSubscriptionUpdated
	case "customer.subscription.deleted":
		return KindSubscriptionDeleted
	case "invoice.payment_succeeded", "invoice.paid":
		return KindPaymentSucceeded
	case "invoice.payment_failed":
		return KindPaymentFailed
	default:
		return KindUnknown
	}
}

// NormalizeEvent extracts the typed nested object for a verified event.
// Extraction is type-directed per kind; a known kind whose payload lacks the
// expected object is ErrMalformedEvent, not silently defaulted.
func NormalizeEvent(event *stripe.Event) (*NormalizedEvent, error) {
	out := &NormalizedEvent{
		Kind:            kindForEventType(string(event.Type)),
		ProviderEventID: event.ID,
		ProviderType:    string(event.Type),
	}
	if out.Kind == KindUnknown {
		return out, nil
	}

	switch out.Kind {
	case KindCheckoutCompleted:
		var session CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: decode checkout session for %s: %v", ErrMalformedEvent, event.Type, err)
		}
		if session.ID == "" {
			return nil, fmt.Errorf("%w: checkout session without id in %s", ErrMalformedEvent, event.Type)
		}
		out.ObjectID = session.ID
		out.Session = &session

	case KindSubscriptionUpdated, KindSubscriptionDeleted:
		var sub ProviderSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decode subscription for %s: %v", ErrMalformedEvent, event.Type, err)
		}
		if sub.ID == "" {
			return nil, fmt.Errorf("%w: subscription without id in %s", ErrMalformedEvent, event.Type)
		}
		out.ObjectID = sub.ID
		out.Subscription = &sub

	case KindPaymentSucceeded, KindPaymentFailed:
		var invoice Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("%w: decode invoice for %s: %v", ErrMalformedEvent, event.Type, err)
		}
		if invoice.ID == "" {
			return nil, fmt.Errorf("%w: invoice without id in %s", ErrMalformedEvent, event.Type)
		}
		out.ObjectID = invoice.ID
		out.Invoice = &invoice
	}

	return out, nil
}
