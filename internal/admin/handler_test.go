package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"fieldengine/internal/config"
	"fieldengine/internal/engine"
	"fieldengine/internal/instrument"
	"fieldengine/internal/metadata"
	"fieldengine/internal/store"
)

var testAdmin = &metadata.UserContext{ID: "5d0e8b7a-2f43-4c61-9a0b-7e6d5c4b3a21", Roles: []string{"admin"}}

func newTestApp(t *testing.T, user *metadata.UserContext) *fiber.App {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "admin"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	svc := engine.New(s, engine.Options{})
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	withUser := func(c *fiber.Ctx) error {
		if user != nil {
			c.Locals("user", user)
		}
		return c.Next()
	}
	RegisterAdminRoutes(app, NewHandler(svc.Definitions, instrument.NewEventHandler(s.DB, s.Dialect)), withUser)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", body)
	}
	return d
}

const riskTierBody = `{"entity_type":"client","name":"riskTier","label":"Risk tier",
	"field_type":"select_single_dropdown","select_options":["low","medium","high"],"is_required":true}`

func TestCreateAndGetDefinition(t *testing.T) {
	app := newTestApp(t, testAdmin)

	status, body := do(t, app, "POST", "/api/_admin/field-definitions", riskTierBody)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %v", status, body)
	}
	id, _ := data(t, body)["id"].(string)
	if id == "" {
		t.Fatalf("expected generated id, got %v", body)
	}

	status, body = do(t, app, "POST", "/api/_admin/field-definitions", riskTierBody)
	if status != 409 {
		t.Fatalf("expected 409 on duplicate, got %d", status)
	}
	if code := body["error"].(map[string]any)["code"]; code != "DUPLICATE_NAME" {
		t.Fatalf("expected DUPLICATE_NAME, got %v", code)
	}

	status, body = do(t, app, "GET", "/api/_admin/field-definitions/"+id, "")
	if status != 200 || data(t, body)["name"] != "riskTier" {
		t.Fatalf("unexpected get response %d: %v", status, body)
	}

	status, _ = do(t, app, "GET", "/api/_admin/field-definitions/missing", "")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestCreateDefinitionInvalidSpec(t *testing.T) {
	app := newTestApp(t, testAdmin)

	status, body := do(t, app, "POST", "/api/_admin/field-definitions",
		`{"entity_type":"client","name":"tier","label":"Tier","field_type":"select_single_dropdown"}`)
	if status != 422 {
		t.Fatalf("expected 422, got %d: %v", status, body)
	}
	status, _ = do(t, app, "POST", "/api/_admin/field-definitions", `{not json`)
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestCreateDefinitionRequiresCaller(t *testing.T) {
	app := newTestApp(t, nil)
	status, _ := do(t, app, "POST", "/api/_admin/field-definitions", riskTierBody)
	if status != 401 {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestUpdateDeactivateAndList(t *testing.T) {
	app := newTestApp(t, testAdmin)
	_, body := do(t, app, "POST", "/api/_admin/field-definitions", riskTierBody)
	id := data(t, body)["id"].(string)

	status, body := do(t, app, "PUT", "/api/_admin/field-definitions/"+id, `{"label":"Risk","display_order":3}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	def := data(t, body)["definition"].(map[string]any)
	if def["label"] != "Risk" || def["display_order"] != float64(3) {
		t.Fatalf("patch not applied: %v", def)
	}

	if status, _ := do(t, app, "POST", "/api/_admin/field-definitions/"+id+"/deactivate", ""); status != 200 {
		t.Fatalf("deactivate: expected 200, got %d", status)
	}
	_, body = do(t, app, "GET", "/api/_admin/fields/client", "")
	if n := len(body["data"].([]any)); n != 0 {
		t.Fatalf("expected no active definitions, got %d", n)
	}
	_, body = do(t, app, "GET", "/api/_admin/fields/client?include_inactive=true", "")
	if n := len(body["data"].([]any)); n != 1 {
		t.Fatalf("expected 1 definition with include_inactive, got %d", n)
	}

	status, body = do(t, app, "POST", "/api/_admin/field-definitions/"+id+"/reactivate", "")
	if status != 200 || data(t, body)["is_active"] != true {
		t.Fatalf("reactivate failed %d: %v", status, body)
	}

	status, _ = do(t, app, "GET", "/api/_admin/fields/invoice", "")
	if status != 404 {
		t.Fatalf("expected 404 for unknown entity type, got %d", status)
	}
}

func TestExportImport(t *testing.T) {
	src := newTestApp(t, testAdmin)
	do(t, src, "POST", "/api/_admin/field-definitions", riskTierBody)
	_, body := do(t, src, "POST", "/api/_admin/field-definitions",
		`{"entity_type":"contract","name":"po","label":"PO number","field_type":"text_single_line"}`)
	do(t, src, "POST", "/api/_admin/field-definitions/"+data(t, body)["id"].(string)+"/deactivate", "")

	_, exported := do(t, src, "GET", "/api/_admin/export", "")
	if exported["version"] != float64(ExportVersion) {
		t.Fatalf("unexpected export version: %v", exported["version"])
	}
	if n := len(exported["definitions"].([]any)); n != 2 {
		t.Fatalf("expected 2 exported definitions, got %d", n)
	}
	payload, _ := json.Marshal(exported)

	dst := newTestApp(t, testAdmin)
	status, body := do(t, dst, "POST", "/api/_admin/import", string(payload))
	if status != 200 {
		t.Fatalf("import: expected 200, got %d: %v", status, body)
	}
	if d := data(t, body); d["created"] != float64(2) || d["skipped"] != float64(0) {
		t.Fatalf("unexpected import summary: %v", d)
	}

	_, body = do(t, dst, "POST", "/api/_admin/import", string(payload))
	if d := data(t, body); d["created"] != float64(0) || d["skipped"] != float64(2) {
		t.Fatalf("expected second import to skip everything: %v", d)
	}

	_, body = do(t, dst, "GET", "/api/_admin/fields/contract?include_inactive=true", "")
	defs := body["data"].([]any)
	if len(defs) != 1 || defs[0].(map[string]any)["is_active"] != false {
		t.Fatalf("expected imported inactive definition, got %v", defs)
	}

	status, _ = do(t, dst, "POST", "/api/_admin/import", `{"version":7,"definitions":[]}`)
	if status != 422 {
		t.Fatalf("expected 422 for unknown version, got %d", status)
	}
}

func TestEventsRoute(t *testing.T) {
	app := newTestApp(t, testAdmin)
	status, body := do(t, app, "GET", "/api/_admin/events", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if _, ok := body["data"].([]any); !ok {
		t.Fatalf("expected data array, got %v", body)
	}
}
