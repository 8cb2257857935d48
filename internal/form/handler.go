package form

import (
	"github.com/gofiber/fiber/v2"

	"fieldengine/internal/engine"
	"fieldengine/internal/metadata"
)

// Handler serves field schemas and server-rendered forms.
type Handler struct {
	svc *engine.Service
}

func NewHandler(svc *engine.Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterFormRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	wrap := func(fn fiber.Handler) []fiber.Handler {
		all := make([]fiber.Handler, len(middleware)+1)
		copy(all, middleware)
		all[len(middleware)] = fn
		return all
	}

	app.Get("/api/:entityType/custom-fields/schema", wrap(h.Schema)...)
	app.Get("/api/:entityType/:id/custom-fields/form", wrap(h.Form)...)
}

// Schema handles GET /api/:entityType/custom-fields/schema
func (h *Handler) Schema(c *fiber.Ctx) error {
	entityType := metadata.EntityType(c.Params("entityType"))
	if !entityType.Valid() {
		return engine.UnknownEntityError(string(entityType))
	}
	defs, err := h.svc.Definitions.ListDefinitions(c.UserContext(), entityType, false)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": BuildSchema(entityType, defs, h.svc.Binder.CurrencyFor)})
}

// Form handles GET /api/:entityType/:id/custom-fields/form?mode=edit|display
func (h *Handler) Form(c *fiber.Ctx) error {
	entityType := metadata.EntityType(c.Params("entityType"))
	if !entityType.Valid() {
		return engine.UnknownEntityError(string(entityType))
	}
	mode := Mode(c.Query("mode", string(ModeEdit)))
	if mode != ModeEdit && mode != ModeDisplay {
		return engine.BadRequestError("mode must be edit or display")
	}

	ctx := c.UserContext()
	id := c.Params("id")
	defs, err := h.svc.Definitions.ListDefinitions(ctx, entityType, false)
	if err != nil {
		return err
	}
	typed, err := h.svc.Values.GetValues(ctx, entityType, id, false)
	if err != nil {
		return err
	}

	html, err := New(defs, typed, h.svc.Binder).Render(mode, entityType, id)
	if err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.SendString(html)
}
