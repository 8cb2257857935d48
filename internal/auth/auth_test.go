package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"fieldengine/internal/config"
	"fieldengine/internal/engine"
	"fieldengine/internal/metadata"
)

const testSecret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	signed, err := GenerateAccessToken("client-a", []string{"admin"}, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseAccessToken(signed, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "client-a" || len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("expected a token id")
	}

	if _, err := ParseAccessToken(signed, "other-secret"); err == nil {
		t.Fatalf("expected signature failure with wrong secret")
	}
}

func TestNonPositiveTTLUsesDefault(t *testing.T) {
	signed, err := GenerateAccessToken("client-a", nil, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseAccessToken(signed, testSecret)
	if err != nil {
		t.Fatalf("expected token to parse: %v", err)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != DefaultTokenTTL {
		t.Fatalf("expected default ttl, got %v", ttl)
	}
}

func TestSecretHashing(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckSecret("s3cret", hash) {
		t.Fatalf("expected secret to match its hash")
	}
	if CheckSecret("wrong", hash) {
		t.Fatalf("expected mismatch for wrong secret")
	}
}

func newAuthApp(t *testing.T) *fiber.App {
	t.Helper()
	adminHash, err := HashSecret("admin-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	readerHash, err := HashSecret("reader-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	writerHash, err := HashSecret("writer-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg := config.AuthConfig{TokenTTLMinutes: 5, Clients: []config.ClientConfig{
		{ID: "backoffice", SecretHash: adminHash, Roles: []string{"admin"}},
		{ID: "reporting", SecretHash: readerHash, Roles: []string{"reader"}},
		{ID: "crm-sync", SecretHash: writerHash, Roles: []string{metadata.RoleWriter}},
	}}

	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	RegisterAuthRoutes(app, NewAuthHandler(cfg, testSecret))
	app.Get("/whoami", AuthMiddleware(testSecret), func(c *fiber.Ctx) error {
		return c.JSON(GetUser(c))
	})
	app.Get("/admin-only", AuthMiddleware(testSecret), RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(204)
	})
	values := app.Group("/api/contract", AuthMiddleware(testSecret), RequireWriter())
	noContent := func(c *fiber.Ctx) error { return c.SendStatus(204) }
	values.Get("/k1/custom-fields", noContent)
	values.Put("/k1/custom-fields", noContent)
	values.Post("/custom-fields/validate", noContent)
	return app
}

func request(t *testing.T, app *fiber.App, method, path, body, token string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	return resp, raw
}

func issue(t *testing.T, app *fiber.App, id, secret string) string {
	t.Helper()
	resp, raw := request(t, app, "POST", "/api/auth/token",
		`{"client_id":"`+id+`","client_secret":"`+secret+`"}`, "")
	if resp.StatusCode != 200 {
		t.Fatalf("token: expected 200, got %d: %s", resp.StatusCode, raw)
	}
	var out struct {
		Data Token `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Data.TokenType != "Bearer" || out.Data.ExpiresIn != 300 {
		t.Fatalf("unexpected token response: %+v", out.Data)
	}
	return out.Data.AccessToken
}

func TestTokenEndpoint(t *testing.T) {
	app := newAuthApp(t)
	token := issue(t, app, "backoffice", "admin-secret")

	resp, raw := request(t, app, "GET", "/whoami", "", token)
	if resp.StatusCode != 200 {
		t.Fatalf("whoami: expected 200, got %d", resp.StatusCode)
	}
	var user metadata.UserContext
	if err := json.Unmarshal(raw, &user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.ID != "backoffice" || !user.IsAdmin() || user.TokenID == "" {
		t.Fatalf("unexpected user: %+v", user)
	}

	for _, body := range []string{
		`{"client_id":"backoffice","client_secret":"nope"}`,
		`{"client_id":"ghost","client_secret":"admin-secret"}`,
		`{"client_id":"backoffice"}`,
	} {
		if resp, _ := request(t, app, "POST", "/api/auth/token", body, ""); resp.StatusCode != 401 {
			t.Fatalf("expected 401 for %s, got %d", body, resp.StatusCode)
		}
	}
}

func TestMiddleware(t *testing.T) {
	app := newAuthApp(t)

	if resp, _ := request(t, app, "GET", "/whoami", "", ""); resp.StatusCode != 401 {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	if resp, _ := request(t, app, "GET", "/whoami", "", "garbage"); resp.StatusCode != 401 {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}

	reader := issue(t, app, "reporting", "reader-secret")
	if resp, _ := request(t, app, "GET", "/admin-only", "", reader); resp.StatusCode != 403 {
		t.Fatalf("expected 403 for non-admin, got %d", resp.StatusCode)
	}
	admin := issue(t, app, "backoffice", "admin-secret")
	if resp, _ := request(t, app, "GET", "/admin-only", "", admin); resp.StatusCode != 204 {
		t.Fatalf("expected 204 for admin, got %d", resp.StatusCode)
	}
}

func TestRequireWriter(t *testing.T) {
	app := newAuthApp(t)
	reader := issue(t, app, "reporting", "reader-secret")
	writer := issue(t, app, "crm-sync", "writer-secret")
	admin := issue(t, app, "backoffice", "admin-secret")

	cases := []struct {
		method, path, token string
		want                int
	}{
		{"GET", "/api/contract/k1/custom-fields", reader, 204},
		{"POST", "/api/contract/custom-fields/validate", reader, 204},
		{"PUT", "/api/contract/k1/custom-fields", reader, 403},
		{"PUT", "/api/contract/k1/custom-fields", writer, 204},
		{"PUT", "/api/contract/k1/custom-fields", admin, 204},
		{"PUT", "/api/contract/k1/custom-fields", "", 401},
	}
	for _, tc := range cases {
		if resp, _ := request(t, app, tc.method, tc.path, "", tc.token); resp.StatusCode != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.StatusCode)
		}
	}
}
