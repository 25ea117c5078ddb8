package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fluxpay/subsync/internal/pkg/billing"
	"github.com/fluxpay/subsync/internal/pkg/database"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// webhookTimeout bounds the whole pipeline for one request: provider lookups
// and the store write are blocking I/O without internal deadlines.
const webhookTimeout = 15 * time.Second

func HandleStripeWebhook(c *fiber.Ctx) error {
	// Copy the raw bytes before fiber reuses the buffer; the signature is
	// computed over exactly these bytes.
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	result, err := svc.ProcessWebhook(ctx, rawBody, signature)
	if err != nil {
		status, code := statusForError(err)
		if status >= fiber.StatusInternalServerError {
			fiberlog.Errorf("stripe webhook failed: %v", err)
		}
		return c.Status(status).JSON(fiber.Map{"error": code})
	}

	resp := fiber.Map{"received": true}
	if result.Status != billing.ResultProcessed {
		resp["status"] = string(result.Status)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// statusForError maps the pipeline error taxonomy to the HTTP contract:
// client errors are terminal, 5xx lets the provider's retry loop recover.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		return fiber.StatusBadRequest, "invalid_signature"
	case errors.Is(err, billing.ErrMalformedEvent):
		return fiber.StatusBadRequest, "malformed_event"
	case errors.Is(err, billing.ErrProviderLookupFailed):
		return fiber.StatusBadGateway, "provider_lookup_failed"
	case errors.Is(err, billing.ErrStore):
		return fiber.StatusInternalServerError, "store_failed"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}
