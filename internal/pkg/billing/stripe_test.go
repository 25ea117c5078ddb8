package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testStripeClient(srv *httptest.Server) *StripeClient {
	return &StripeClient{
		SecretKey:  "sk_test_123",
		APIBaseURL: srv.URL,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestStripeClientGetSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/subscriptions/sub_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
			t.Errorf("authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "sub_1",
			"customer": "cus_1",
			"status": "trialing",
			"current_period_start": 1700000000,
			"current_period_end": 1702592000,
			"items": {"data": [{"price": {"id": "price_1", "recurring": {"interval": "year"}}}]}
		}`))
	}))
	defer srv.Close()

	sub, err := testStripeClient(srv).GetSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Status != "trialing" || sub.CurrentPeriodStart != 1700000000 {
		t.Fatalf("subscription = %+v", sub)
	}
	if len(sub.Items.Data) != 1 || sub.Items.Data[0].Price.Recurring.Interval != "year" {
		t.Fatalf("items = %+v", sub.Items)
	}
}

func TestStripeClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": {"type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := testStripeClient(srv).GetCheckoutSession(context.Background(), "cs_missing")
	if !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("err = %v, want ErrEntityNotFound", err)
	}
}

func TestStripeClientServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testStripeClient(srv).GetCustomer(context.Background(), "cus_1")
	if !errors.Is(err, ErrProviderLookupFailed) {
		t.Fatalf("err = %v, want ErrProviderLookupFailed", err)
	}
}

func TestStripeClientRateLimitIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testStripeClient(srv).GetSubscription(context.Background(), "sub_1")
	if !errors.Is(err, ErrProviderLookupFailed) {
		t.Fatalf("err = %v, want ErrProviderLookupFailed", err)
	}
}

func TestStripeClientDeletedCustomer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "cus_1", "deleted": true}`))
	}))
	defer srv.Close()

	_, err := testStripeClient(srv).GetCustomer(context.Background(), "cus_1")
	if !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("err = %v, want ErrEntityNotFound", err)
	}
}

func TestStripeClientUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := testStripeClient(srv).GetCustomer(context.Background(), "cus_1")
	if !errors.Is(err, ErrProviderLookupFailed) {
		t.Fatalf("err = %v, want ErrProviderLookupFailed", err)
	}
}

func TestStripeClientRequiresSecretKey(t *testing.T) {
	c := &StripeClient{APIBaseURL: "https://example.invalid", HTTPClient: http.DefaultClient}
	if _, err := c.GetCustomer(context.Background(), "cus_1"); err == nil {
		t.Fatalf("expected an error without a secret key")
	}
}
