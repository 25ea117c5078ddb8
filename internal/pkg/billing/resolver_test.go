package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeProviderAPI struct {
	sessions  map[string]*CheckoutSession
	subs      map[string]*ProviderSubscription
	customers map[string]*Customer

	err           error
	customerCalls int
}

func (f *fakeProviderAPI) GetCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: checkout session %s", ErrEntityNotFound, id)
}

func (f *fakeProviderAPI) GetSubscription(_ context.Context, id string) (*ProviderSubscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.subs[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: subscription %s", ErrEntityNotFound, id)
}

func (f *fakeProviderAPI) GetCustomer(_ context.Context, id string) (*Customer, error) {
	f.customerCalls++
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.customers[id]; ok {
		if c.Deleted {
			return nil, fmt.Errorf("%w: customer %s is deleted", ErrEntityNotFound, id)
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: customer %s", ErrEntityNotFound, id)
}

type mapEmailCache struct {
	entries map[string]string
	sets    int
}

func (m *mapEmailCache) GetCustomerEmail(_ context.Context, customerID string) (string, bool) {
	email, ok := m.entries[customerID]
	return email, ok
}

func (m *mapEmailCache) SetCustomerEmail(_ context.Context, customerID, email string) {
	if m.entries == nil {
		m.entries = map[string]string{}
	}
	m.entries[customerID] = email
	m.sets++
}

func TestResolveCheckoutReFetchesSession(t *testing.T) {
	// The stored session carries the email; the payload copy does not. The
	// re-fetched object is what counts.
	fresh := &CheckoutSession{ID: "cs_1", Mode: "subscription", Customer: "cus_1", Subscription: "sub_1"}
	fresh.CustomerDetails.Email = "Fresh@Example.COM"
	api := &fakeProviderAPI{
		sessions: map[string]*CheckoutSession{"cs_1": fresh},
		subs:     map[string]*ProviderSubscription{"sub_1": {ID: "sub_1", Customer: "cus_1", Status: "active"}},
	}
	r := NewResolver(api, nil)

	res, err := r.Resolve(context.Background(), &NormalizedEvent{
		Kind:     KindCheckoutCompleted,
		ObjectID: "cs_1",
		Session:  &CheckoutSession{ID: "cs_1"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Email != "fresh@example.com" {
		t.Fatalf("email = %q, want normalized fresh@example.com", res.Email)
	}
	if res.Subscription == nil || res.Subscription.ID != "sub_1" {
		t.Fatalf("referenced subscription not fetched: %+v", res.Subscription)
	}
}

func TestResolveCheckoutEmailFallbackToCustomer(t *testing.T) {
	session := &CheckoutSession{ID: "cs_1", Mode: "payment", Customer: "cus_1"}
	api := &fakeProviderAPI{
		sessions:  map[string]*CheckoutSession{"cs_1": session},
		customers: map[string]*Customer{"cus_1": {ID: "cus_1", Email: "owner@example.com"}},
	}
	cache := &mapEmailCache{}
	r := NewResolver(api, cache)

	res, err := r.Resolve(context.Background(), &NormalizedEvent{Kind: KindCheckoutCompleted, ObjectID: "cs_1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Email != "owner@example.com" {
		t.Fatalf("email = %q", res.Email)
	}
	if cache.sets != 1 {
		t.Fatalf("resolved email should be cached, sets = %d", cache.sets)
	}
}

func TestResolveCheckoutMissingEmail(t *testing.T) {
	api := &fakeProviderAPI{
		sessions: map[string]*CheckoutSession{"cs_1": {ID: "cs_1", Mode: "payment"}},
	}
	r := NewResolver(api, nil)

	_, err := r.Resolve(context.Background(), &NormalizedEvent{Kind: KindCheckoutCompleted, ObjectID: "cs_1"})
	if !errors.Is(err, ErrMissingEmail) {
		t.Fatalf("err = %v, want ErrMissingEmail", err)
	}
}

func TestResolveSubscriptionUsesCacheBeforeLookup(t *testing.T) {
	api := &fakeProviderAPI{}
	cache := &mapEmailCache{entries: map[string]string{"cus_1": "cached@example.com"}}
	r := NewResolver(api, cache)

	res, err := r.Resolve(context.Background(), &NormalizedEvent{
		Kind:         KindSubscriptionUpdated,
		Subscription: &ProviderSubscription{ID: "sub_1", Customer: "cus_1", Status: "active"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Email != "cached@example.com" {
		t.Fatalf("email = %q", res.Email)
	}
	if api.customerCalls != 0 {
		t.Fatalf("cache hit must not hit the provider, calls = %d", api.customerCalls)
	}
}

func TestResolveSubscriptionDeletedCustomer(t *testing.T) {
	api := &fakeProviderAPI{
		customers: map[string]*Customer{"cus_1": {ID: "cus_1", Deleted: true}},
	}
	r := NewResolver(api, nil)

	_, err := r.Resolve(context.Background(), &NormalizedEvent{
		Kind:         KindSubscriptionDeleted,
		Subscription: &ProviderSubscription{ID: "sub_1", Customer: "cus_1", Status: "canceled"},
	})
	if !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("err = %v, want ErrEntityNotFound", err)
	}
}

func TestResolveSubscriptionWithoutCustomer(t *testing.T) {
	r := NewResolver(&fakeProviderAPI{}, nil)
	_, err := r.Resolve(context.Background(), &NormalizedEvent{
		Kind:         KindSubscriptionUpdated,
		Subscription: &ProviderSubscription{ID: "sub_1", Status: "active"},
	})
	if !errors.Is(err, ErrMissingEmail) {
		t.Fatalf("err = %v, want ErrMissingEmail", err)
	}
}

func TestResolveInvoicePaymentSucceededFetchesSubscription(t *testing.T) {
	api := &fakeProviderAPI{
		subs: map[string]*ProviderSubscription{"sub_1": {ID: "sub_1", Customer: "cus_1", Status: "active"}},
	}
	r := NewResolver(api, nil)

	invoice := &Invoice{ID: "in_1", Customer: "cus_1", CustomerEmail: "user@example.com"}
	invoice.Parent.SubscriptionDetails.Subscription = "sub_1"

	res, err := r.Resolve(context.Background(), &NormalizedEvent{Kind: KindPaymentSucceeded, Invoice: invoice})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Subscription == nil || res.Subscription.ID != "sub_1" {
		t.Fatalf("subscription not refreshed: %+v", res.Subscription)
	}
}

func TestResolveInvoicePaymentFailedSkipsSubscriptionFetch(t *testing.T) {
	// Failed payments only need an email; the subscription is not consulted.
	api := &fakeProviderAPI{}
	r := NewResolver(api, nil)

	res, err := r.Resolve(context.Background(), &NormalizedEvent{
		Kind:    KindPaymentFailed,
		Invoice: &Invoice{ID: "in_1", Customer: "cus_1", CustomerEmail: "user@example.com", Subscription: "sub_1"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Subscription != nil {
		t.Fatalf("payment_failed must not fetch the subscription")
	}
}

func TestResolveInvoiceLookupFailurePropagates(t *testing.T) {
	api := &fakeProviderAPI{err: fmt.Errorf("%w: boom", ErrProviderLookupFailed)}
	r := NewResolver(api, nil)

	_, err := r.Resolve(context.Background(), &NormalizedEvent{
		Kind:    KindPaymentFailed,
		Invoice: &Invoice{ID: "in_1", Customer: "cus_1"},
	})
	if !errors.Is(err, ErrProviderLookupFailed) {
		t.Fatalf("err = %v, want ErrProviderLookupFailed", err)
	}
}
