package storage

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"fieldengine/internal/engine"
	"fieldengine/internal/fieldtype"
	"fieldengine/internal/metadata"
)

// Handler uploads and serves the files of file and image fields.
type Handler struct {
	svc     *engine.Service
	files   FileStorage
	maxSize int64
}

// NewHandler creates the file handler. Uploads larger than maxSize bytes
// are rejected.
func NewHandler(svc *engine.Service, files FileStorage, maxSize int64) *Handler {
	return &Handler{svc: svc, files: files, maxSize: maxSize}
}

func RegisterFileRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	wrap := func(fn fiber.Handler) []fiber.Handler {
		all := make([]fiber.Handler, len(middleware)+1)
		copy(all, middleware)
		all[len(middleware)] = fn
		return all
	}

	app.Post("/api/:entityType/:id/custom-fields/:field/file", wrap(h.Upload)...)
	app.Get("/api/:entityType/:id/custom-fields/:field/file", wrap(h.Download)...)
}

// Upload handles POST /api/:entityType/:id/custom-fields/:field/file with a
// multipart "file" part. The stored reference becomes the field's value and
// the previously referenced file, if any, is removed. Files are kept under
// the entity's own namespace.
func (h *Handler) Upload(c *fiber.Ctx) error {
	entityType, def, err := h.resolveField(c)
	if err != nil {
		return err
	}
	header, err := c.FormFile("file")
	if err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Multipart body must carry a file part")
	}
	if header.Size > h.maxSize {
		msg := fmt.Sprintf("File too large: %d bytes (max %d)", header.Size, h.maxSize)
		return engine.NewAppError("FILE_TOO_LARGE", 413, msg)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if def.FieldType == fieldtype.ImageUpload && !strings.HasPrefix(contentType, "image/") {
		return engine.ValidationError([]engine.ErrorDetail{{Field: def.Name, Rule: "type",
			Message: fmt.Sprintf("%s must be an image", def.Label)}})
	}

	caller, _ := c.Locals("user").(*metadata.UserContext)
	if caller == nil || caller.ID == "" {
		return engine.UnauthorizedError("Caller identity required")
	}

	ctx := c.UserContext()
	entityID := c.Params("id")
	namespace, ok := Namespace(string(entityType), entityID)
	if !ok {
		return engine.BadRequestError(fmt.Sprintf("invalid entity id %q", entityID))
	}
	previous, err := h.currentRef(ctx, entityType, entityID, def.Name)
	if err != nil {
		return err
	}

	src, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	fileID := uuid.NewString()
	key, err := h.files.Save(ctx, namespace, fileID, header.Filename, src)
	if err != nil {
		return err
	}
	ref := map[string]any{
		"id":           fileID,
		"name":         cleanName(header.Filename),
		"size":         header.Size,
		"content_type": contentType,
	}

	_, errs, err := h.svc.Submit(ctx, caller, entityType, entityID, map[string]any{def.Name: ref}, engine.WithPartial())
	if err == nil && len(errs) > 0 {
		err = errs.Err()
	}
	if err != nil {
		if derr := h.files.Delete(ctx, key); derr != nil {
			log.Printf("WARN: remove rejected upload %s: %v", key, derr)
		}
		return err
	}

	if oldKey, ok := refKey(namespace, previous); ok && oldKey != key {
		if err := h.files.Delete(ctx, oldKey); err != nil {
			log.Printf("WARN: remove replaced file %s: %v", oldKey, err)
		}
	}
	return c.Status(201).JSON(fiber.Map{"data": ref})
}

// Download handles GET /api/:entityType/:id/custom-fields/:field/file
func (h *Handler) Download(c *fiber.Ctx) error {
	entityType, def, err := h.resolveField(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	entityID := c.Params("id")
	namespace, ok := Namespace(string(entityType), entityID)
	if !ok {
		return engine.BadRequestError(fmt.Sprintf("invalid entity id %q", entityID))
	}
	ref, err := h.currentRef(ctx, entityType, entityID, def.Name)
	if err != nil {
		return err
	}
	key, ok := refKey(namespace, ref)
	if !ok {
		return engine.NotFoundError("file", def.Name)
	}

	rc, err := h.files.Open(ctx, key)
	if err != nil {
		log.Printf("WARN: stored file %s unavailable: %v", key, err)
		return engine.NotFoundError("file", def.Name)
	}
	if ct, _ := ref["content_type"].(string); ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	}
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	// fasthttp closes the stream once the body is written
	return c.SendStream(rc)
}

func (h *Handler) resolveField(c *fiber.Ctx) (metadata.EntityType, *metadata.FieldDefinition, error) {
	entityType := metadata.EntityType(c.Params("entityType"))
	if !entityType.Valid() {
		return "", nil, engine.UnknownEntityError(string(entityType))
	}
	defs, err := h.svc.Definitions.ListDefinitions(c.UserContext(), entityType, false)
	if err != nil {
		return "", nil, err
	}
	name := c.Params("field")
	for _, def := range defs {
		if def.Name != name {
			continue
		}
		if def.FieldType != fieldtype.FileUpload && def.FieldType != fieldtype.ImageUpload {
			return "", nil, engine.BadRequestError(fmt.Sprintf("%s is not a file field", name))
		}
		return entityType, def, nil
	}
	return "", nil, engine.NotFoundError("field", name)
}

func (h *Handler) currentRef(ctx context.Context, entityType metadata.EntityType, entityID, field string) (map[string]any, error) {
	values, err := h.svc.Values.GetValues(ctx, entityType, entityID, false)
	if err != nil {
		return nil, err
	}
	ref, _ := values[field].(map[string]any)
	return ref, nil
}

// refKey derives the storage key of a stored reference. Only references
// carrying an upload id resolve, and only to a key inside namespace.
func refKey(namespace string, ref map[string]any) (string, bool) {
	id, _ := ref["id"].(string)
	if parsed, err := uuid.Parse(id); err != nil || parsed.String() != id {
		return "", false
	}
	name, _ := ref["name"].(string)
	key, ok := Key(namespace, id, name)
	if !ok || !strings.HasPrefix(key, namespace+"/") {
		return "", false
	}
	return key, true
}
