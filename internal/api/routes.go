package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/offerwire/promofeed/internal/config"
	"github.com/offerwire/promofeed/internal/middleware"
)

// SetupRoutes registers all HTTP routes. Read endpoints are open; everything
// that mutates state sits behind the admin API key.
func SetupRoutes(app *fiber.App, h *Handlers, cfg *config.Config) {
	app.Get("/api/v1/health", h.HealthCheck)

	v1 := app.Group("/api/v1")
	v1.Get("/pending", h.ListPending)
	v1.Get("/pending/:id", h.GetPending)
	v1.Get("/published/:id", h.GetPublished)
	v1.Get("/sources", h.LookupSource)
	v1.Get("/banks", h.ListBanks)

	admin := v1.Group("/admin", middleware.RequireAPIKey(cfg.AdminAPIKey))
	admin.Post("/import", h.ImportPosts)
	admin.Post("/import/file", h.ImportFile)
	admin.Post("/process", h.ProcessBatch)
	admin.Put("/pending/:id", h.SavePending)
	admin.Post("/pending/:id/approve", h.ApprovePending)
	admin.Post("/pending/:id/reject", h.RejectPending)
	admin.Post("/pending/:id/reprocess", h.ReprocessPending)
}
