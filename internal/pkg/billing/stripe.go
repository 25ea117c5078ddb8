package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fluxpay/subsync/internal/pkg/env"
	"github.com/stripe/stripe-go/v82"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com"

// ProviderAPI is the read-only lookup surface the resolver needs. All calls
// are idempotent GET-equivalents against the provider.
type ProviderAPI interface {
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
}

// StripeClient implements ProviderAPI against the Stripe REST API. The base
// URL is overridable so tests can point it at an httptest server.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetCheckoutSession re-fetches the full checkout session, expanding line
// items so the purchase shape is visible without a second round trip.
func (c *StripeClient) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	var session CheckoutSession
	q := url.Values{}
	q.Add("expand[]", "line_items")
	if err := c.doGet(ctx, "/v1/checkout/sessions/"+url.PathEscape(id), q, &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: checkout session %s", ErrEntityNotFound, id)
	}
	return &session, nil
}

// GetSubscription fetches the subscription with its items/price expanded so
// the billing interval is available.
func (c *StripeClient) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	var sub ProviderSubscription
	q := url.Values{}
	q.Add("expand[]", "items.data.price")
	if err := c.doGet(ctx, "/v1/subscriptions/"+url.PathEscape(id), q, &sub); err != nil {
		return nil, err
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: subscription %s", ErrEntityNotFound, id)
	}
	return &sub, nil
}

func (c *StripeClient) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var customer Customer
	if err := c.doGet(ctx, "/v1/customers/"+url.PathEscape(id), nil, &customer); err != nil {
		return nil, err
	}
	if customer.Deleted {
		return nil, fmt.Errorf("%w: customer %s is deleted", ErrEntityNotFound, id)
	}
	return &customer, nil
}

func (c *StripeClient) doGet(ctx context.Context, path string, query url.Values, out interface{}) error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}

	u := strings.TrimRight(c.APIBaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProviderLookupFailed, path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrEntityNotFound, path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: status=%d body=%s", ErrProviderLookupFailed, path, resp.StatusCode, string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("stripe request %s failed: status=%d body=%s", path, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrProviderLookupFailed, path, err)
	}
	return nil
}
