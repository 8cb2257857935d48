package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"fieldengine/internal/metadata"
)

// Handler serves custom field values of entity instances.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Get handles GET /api/:entityType/:id/custom-fields
func (h *Handler) Get(c *fiber.Ctx) error {
	entityType, err := resolveEntityType(c)
	if err != nil {
		return err
	}
	view, err := h.svc.Read(c.UserContext(), entityType, c.Params("id"), c.QueryBool("include_inactive"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": view})
}

// Replace handles PUT /api/:entityType/:id/custom-fields. Fields missing
// from the body are reset to their default or cleared.
func (h *Handler) Replace(c *fiber.Ctx) error {
	return h.submit(c)
}

// Patch handles PATCH /api/:entityType/:id/custom-fields. Only fields in
// the body are written.
func (h *Handler) Patch(c *fiber.Ctx) error {
	return h.submit(c, WithPartial())
}

func (h *Handler) submit(c *fiber.Ctx, opts ...BindOption) error {
	entityType, err := resolveEntityType(c)
	if err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	ctx := c.UserContext()
	_, errs, err := h.svc.Submit(ctx, getUser(c), entityType, id, body, opts...)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return errs.Err()
	}
	view, err := h.svc.Read(ctx, entityType, id, false)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": view})
}

// Delete handles DELETE /api/:entityType/:id/custom-fields
func (h *Handler) Delete(c *fiber.Ctx) error {
	entityType, err := resolveEntityType(c)
	if err != nil {
		return err
	}
	n, err := h.svc.Delete(c.UserContext(), getUser(c), entityType, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": n}})
}

// Toggle handles POST /api/:entityType/:id/custom-fields/:field/toggle
func (h *Handler) Toggle(c *fiber.Ctx) error {
	entityType, err := resolveEntityType(c)
	if err != nil {
		return err
	}
	var body struct {
		Option string `json:"option"`
	}
	if err := c.BodyParser(&body); err != nil || body.Option == "" {
		return NewAppError("INVALID_PAYLOAD", 400, "Body must carry an option")
	}

	field := c.Params("field")
	selection, err := h.svc.Toggle(c.UserContext(), getUser(c), entityType, c.Params("id"), field, body.Option)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"field": field, "value": selection}})
}

// Validate handles POST /api/:entityType/custom-fields/validate. Nothing
// is written; the response lists every field error at once.
func (h *Handler) Validate(c *fiber.Ctx) error {
	entityType, err := resolveEntityType(c)
	if err != nil {
		return err
	}
	body, err := parseBody(c)
	if err != nil {
		return err
	}

	var opts []BindOption
	if c.QueryBool("partial") {
		opts = append(opts, WithPartial())
	}
	typed, errs, err := h.svc.Validate(c.UserContext(), entityType, body, opts...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"valid":  len(errs) == 0,
		"values": typed,
		"errors": errs.Details(),
	}})
}

func resolveEntityType(c *fiber.Ctx) (metadata.EntityType, error) {
	name := metadata.EntityType(c.Params("entityType"))
	if !name.Valid() {
		return "", UnknownEntityError(string(name))
	}
	return name, nil
}

// parseBody keeps numbers as json.Number so integers past 2^53 reach the
// coercers intact.
func parseBody(c *fiber.Ctx) (map[string]any, error) {
	body := map[string]any{}
	if len(c.Body()) == 0 {
		return body, nil
	}
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	return body, nil
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

// ErrorHandler renders AppErrors in the standard envelope and hides
// everything else behind a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		return c.Status(code).JSON(ErrorResponse{
			Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
		})
	}

	log.Printf("ERROR: %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(code).JSON(ErrorResponse{
		Error: &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error"},
	})
}
