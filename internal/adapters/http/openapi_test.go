package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/mapcore/api"
	handler "github.com/samirrijal/mapcore/internal/adapters/http"
)

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(api.OpenAPI)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}
	return doc
}

func TestOpenAPIDocument_Valid(t *testing.T) {
	doc := loadOpenAPI(t)
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI validation failed: %v", err)
	}

	expectedPaths := []string{
		"/v1/health",
		"/v1/ready",
		"/v1/providers",
		"/v1/geocode/search",
		"/v1/geocode/reverse",
		"/v1/routes",
		"/v1/routes/straight",
		"/v1/clusters",
		"/v1/markers",
		"/v1/markers/batch",
		"/v1/markers/{id}",
		"/graphql",
	}
	for _, path := range expectedPaths {
		if item := doc.Paths.Find(path); item == nil {
			t.Errorf("expected path %s not found", path)
		}
	}

	expectedSchemas := []string{
		"APIError",
		"Pagination",
		"GeocodeResult",
		"ReverseGeocodingResult",
		"RouteRequest",
		"RoutingResult",
		"Marker",
		"ClusterSnapshot",
	}
	for _, name := range expectedSchemas {
		if doc.Components.Schemas[name] == nil {
			t.Errorf("expected schema %s not found", name)
		}
	}
}

func TestOpenAPIDocument_Info(t *testing.T) {
	doc := loadOpenAPI(t)
	if doc.Info.Title != "mapcore Map API" {
		t.Errorf("title = %q", doc.Info.Title)
	}
	if doc.Info.Version != "1.0.0" {
		t.Errorf("version = %q, want 1.0.0", doc.Info.Version)
	}
	if len(doc.Servers) == 0 {
		t.Error("expected at least one server")
	}
}

func TestDocs_ServesDescription(t *testing.T) {
	app := fiber.New()
	handler.SetupDocs(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/docs/openapi.json", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["openapi"] != "3.0.3" {
		t.Errorf("expected openapi 3.0.3, got %v", body["openapi"])
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/docs", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("expected 200 for /docs, got %d", resp.StatusCode)
	}
}
