package controllers

import (
	"github.com/fluxpay/subsync/internal/pkg/database"
	"github.com/gofiber/fiber/v2"
)

func HandleHealth(c *fiber.Ctx) error {
	dbStatus := "ok"
	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			dbStatus = "unavailable"
		}
	} else {
		dbStatus = "unavailable"
	}

	status := fiber.StatusOK
	if dbStatus != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"service":  "subsync",
		"database": dbStatus,
	})
}
