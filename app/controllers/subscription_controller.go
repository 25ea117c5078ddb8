package controllers

import (
	"errors"

	"github.com/fluxpay/subsync/internal/pkg/billing"
	"github.com/fluxpay/subsync/internal/pkg/database"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// HandleGetSubscription returns the stored subscription record for an email.
// Guarded by the admin token middleware.
func HandleGetSubscription(c *fiber.Ctx) error {
	email := c.Params("email")
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_email"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	sub, err := svc.SubscriptionForEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subscription_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_lookup_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(sub)
}
