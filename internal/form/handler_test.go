package form

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldengine/internal/config"
	"fieldengine/internal/engine"
	"fieldengine/internal/fieldtype"
	"fieldengine/internal/metadata"
	"fieldengine/internal/store"
)

var admin = &metadata.UserContext{ID: "7c1d2e4f-0a3b-4c5d-8e9f-112233445566", Roles: []string{"admin"}}

func newFormApp(t *testing.T) (*fiber.App, *engine.Service) {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "forms"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Bootstrap(ctx))

	svc := engine.New(s, engine.Options{})
	for _, spec := range []metadata.DefinitionSpec{
		{EntityType: metadata.EntityContract, Name: "tier", Label: "Tier", FieldType: fieldtype.SelectSingleDropdown,
			SelectOptions: []string{"gold", "silver"}, IsRequired: true, DisplayOrder: 1},
		{EntityType: metadata.EntityContract, Name: "fee", Label: "Fee", FieldType: fieldtype.Currency, DisplayOrder: 2},
	} {
		_, err := svc.Definitions.CreateDefinition(ctx, admin, spec)
		require.NoError(t, err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	RegisterFormRoutes(app, NewHandler(svc))
	return app, svc
}

func get(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()
	req, _ := http.NewRequest("GET", path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestSchemaEndpoint(t *testing.T) {
	app, _ := newFormApp(t)

	resp, body := get(t, app, "/api/contract/custom-fields/schema")
	require.Equal(t, 200, resp.StatusCode, string(body))

	var out struct {
		Data Schema `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, metadata.EntityContract, out.Data.EntityType)
	assert.Equal(t, []string{"tier"}, out.Data.Required)
	require.Len(t, out.Data.Properties, 2)
	assert.Equal(t, "tier", out.Data.Properties[0].Name)
	assert.Equal(t, "USD", out.Data.Properties[1].Currency)

	resp, _ = get(t, app, "/api/invoice/custom-fields/schema")
	assert.Equal(t, 404, resp.StatusCode)
}

func TestFormEndpoint(t *testing.T) {
	app, svc := newFormApp(t)
	_, errs, err := svc.Submit(context.Background(), admin, metadata.EntityContract, "c-9",
		map[string]any{"tier": "gold", "fee": 1500})
	require.NoError(t, err)
	require.Empty(t, errs)

	resp, body := get(t, app, "/api/contract/c-9/custom-fields/form")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), `<option value="gold" selected>gold</option>`)

	resp, body = get(t, app, "/api/contract/c-9/custom-fields/form?mode=display")
	require.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "USD 1,500.00")

	resp, _ = get(t, app, "/api/contract/c-9/custom-fields/form?mode=print")
	assert.Equal(t, 400, resp.StatusCode)
}
