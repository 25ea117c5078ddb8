package billing

import (
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// VerifyStripeWebhookSignature checks the Stripe-Signature header against the
// exact raw bytes received. Any re-serialization upstream breaks the HMAC, so
// callers must pass the body untouched. Returns the verified event or
// ErrInvalidSignature; verification failure is permanent for that payload.
func VerifyStripeWebhookSignature(payload []byte, signatureHeader, webhookSecret string) (*stripe.Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return nil, ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &event, nil
}
