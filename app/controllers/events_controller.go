package controllers

import (
	"context"
	"strconv"
	"time"

	"github.com/fluxpay/subsync/internal/pkg/billing"
	"github.com/fluxpay/subsync/internal/pkg/database"
	"github.com/gofiber/fiber/v2"
)

// HandleListWebhookEvents returns the most recent processed webhook events.
// Guarded by the admin token middleware; intended for delivery diagnosis.
func HandleListWebhookEvents(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := svc.RecentEvents(ctx, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_listing_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"events": events,
		"count":  len(events),
	})
}
