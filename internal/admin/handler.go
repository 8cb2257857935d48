package admin

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"fieldengine/internal/engine"
	"fieldengine/internal/instrument"
	"fieldengine/internal/metadata"
)

// ExportVersion is the only definition export format Import accepts.
const ExportVersion = 1

type Handler struct {
	defs   *engine.DefinitionStore
	events *instrument.EventHandler
}

// NewHandler creates the admin handler. events may be nil, in which case
// the event log route is not registered.
func NewHandler(defs *engine.DefinitionStore, events *instrument.EventHandler) *Handler {
	return &Handler{defs: defs, events: events}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/fields/:entityType", h.ListDefinitions)
	admin.Post("/field-definitions", h.CreateDefinition)
	admin.Get("/field-definitions/:id", h.GetDefinition)
	admin.Put("/field-definitions/:id", h.UpdateDefinition)
	admin.Post("/field-definitions/:id/deactivate", h.DeactivateDefinition)
	admin.Post("/field-definitions/:id/reactivate", h.ReactivateDefinition)

	admin.Get("/export", h.Export)
	admin.Post("/import", h.Import)

	if h.events != nil {
		admin.Get("/events", h.events.List)
	}
}

// --- Field Definition Endpoints ---

func (h *Handler) ListDefinitions(c *fiber.Ctx) error {
	entityType := metadata.EntityType(c.Params("entityType"))
	if !entityType.Valid() {
		return engine.UnknownEntityError(string(entityType))
	}
	defs, err := h.defs.ListDefinitions(c.UserContext(), entityType, c.QueryBool("include_inactive"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": defs})
}

func (h *Handler) GetDefinition(c *fiber.Ctx) error {
	def, err := h.defs.GetDefinition(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": def})
}

func (h *Handler) CreateDefinition(c *fiber.Ctx) error {
	var spec metadata.DefinitionSpec
	if err := c.BodyParser(&spec); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	def, err := h.defs.CreateDefinition(c.UserContext(), getUser(c), spec)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": def})
}

// UpdateDefinition applies a partial patch. The response carries the
// number of stored values a field type change left unreadable.
func (h *Handler) UpdateDefinition(c *fiber.Ctx) error {
	var patch metadata.DefinitionPatch
	if err := c.BodyParser(&patch); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	result, err := h.defs.UpdateDefinition(c.UserContext(), getUser(c), c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

func (h *Handler) DeactivateDefinition(c *fiber.Ctx) error {
	def, err := h.defs.Deactivate(c.UserContext(), getUser(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": def})
}

func (h *Handler) ReactivateDefinition(c *fiber.Ctx) error {
	def, err := h.defs.Reactivate(c.UserContext(), getUser(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": def})
}

// --- Export / Import ---

type exportedDefinition struct {
	metadata.DefinitionSpec
	IsActive bool `json:"is_active"`
}

type exportPayload struct {
	Version     int                  `json:"version"`
	Definitions []exportedDefinition `json:"definitions"`
}

// Export dumps every definition, active or not, of every entity type.
func (h *Handler) Export(c *fiber.Ctx) error {
	ctx := c.UserContext()
	out := exportPayload{Version: ExportVersion, Definitions: []exportedDefinition{}}
	for _, et := range metadata.EntityTypes {
		defs, err := h.defs.ListDefinitions(ctx, et, true)
		if err != nil {
			return fmt.Errorf("export %s: %w", et, err)
		}
		for _, def := range defs {
			out.Definitions = append(out.Definitions, exportedDefinition{
				DefinitionSpec: metadata.DefinitionSpec{
					EntityType:      def.EntityType,
					Name:            def.Name,
					Label:           def.Label,
					FieldType:       def.FieldType,
					SelectOptions:   def.SelectOptions,
					IsRequired:      def.IsRequired,
					DisplayOrder:    def.DisplayOrder,
					PlaceholderText: def.PlaceholderText,
					HelpText:        def.HelpText,
					ValidationRules: def.ValidationRules,
					DefaultValue:    def.DefaultValue,
				},
				IsActive: def.IsActive,
			})
		}
	}
	return c.JSON(out)
}

// Import creates the definitions of an export that do not exist yet.
// Existing (entity type, name) pairs are skipped, never overwritten.
func (h *Handler) Import(c *fiber.Ctx) error {
	var payload exportPayload
	if err := c.BodyParser(&payload); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	if payload.Version != ExportVersion {
		return engine.NewAppError("VALIDATION_FAILED", 422, fmt.Sprintf("Unsupported export version: %d", payload.Version))
	}

	ctx := c.UserContext()
	caller := getUser(c)
	created, skipped := 0, 0
	var problems []string
	for _, item := range payload.Definitions {
		def, err := h.defs.CreateDefinition(ctx, caller, item.DefinitionSpec)
		switch {
		case errors.Is(err, engine.ErrDuplicateName):
			skipped++
			continue
		case errors.Is(err, engine.ErrUnauthorized):
			return err
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s.%s: %v", item.EntityType, item.Name, err))
			continue
		}
		if !item.IsActive {
			if _, err := h.defs.Deactivate(ctx, caller, def.ID); err != nil {
				problems = append(problems, fmt.Sprintf("%s.%s: deactivate: %v", item.EntityType, item.Name, err))
			}
		}
		created++
	}
	if len(problems) > 0 {
		log.Printf("WARN: definition import finished with %d problem(s)", len(problems))
	}

	resp := fiber.Map{"created": created, "skipped": skipped}
	if len(problems) > 0 {
		resp["errors"] = problems
	}
	return c.JSON(fiber.Map{"data": resp})
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}
