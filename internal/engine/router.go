package engine

import "github.com/gofiber/fiber/v2"

// RegisterValueRoutes mounts the custom field value endpoints. Register
// admin routes first so /api/_admin is not matched as an entity type.
func RegisterValueRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	wrap := func(fn fiber.Handler) []fiber.Handler {
		all := make([]fiber.Handler, len(middleware)+1)
		copy(all, middleware)
		all[len(middleware)] = fn
		return all
	}

	app.Post("/api/:entityType/custom-fields/validate", wrap(h.Validate)...)

	app.Get("/api/:entityType/:id/custom-fields", wrap(h.Get)...)
	app.Put("/api/:entityType/:id/custom-fields", wrap(h.Replace)...)
	app.Patch("/api/:entityType/:id/custom-fields", wrap(h.Patch)...)
	app.Delete("/api/:entityType/:id/custom-fields", wrap(h.Delete)...)
	app.Post("/api/:entityType/:id/custom-fields/:field/toggle", wrap(h.Toggle)...)
}
