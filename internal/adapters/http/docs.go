package http

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/mapcore/api"
)

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>mapcore API · Swagger UI</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body style="margin:0">
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/docs/openapi.json',
      dom_id: '#swagger-ui',
      tryItOutEnabled: true,
    });
  </script>
</body>
</html>`

var (
	openAPIOnce sync.Once
	openAPIJSON []byte
	openAPIErr  error
)

// openAPIDocument parses and validates the embedded description once and
// caches its JSON form.
func openAPIDocument() ([]byte, error) {
	openAPIOnce.Do(func() {
		loader := &openapi3.Loader{IsExternalRefsAllowed: false}
		doc, err := loader.LoadFromData(api.OpenAPI)
		if err != nil {
			openAPIErr = fmt.Errorf("parse openapi: %w", err)
			return
		}
		openAPIJSON, openAPIErr = json.Marshal(doc)
	})
	return openAPIJSON, openAPIErr
}

// SetupDocs registers Swagger UI at /docs and the API description at
// /docs/openapi.yaml and /docs/openapi.json.
func SetupDocs(app *fiber.App) {
	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(swaggerUIHTML)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(api.OpenAPI)
	})

	app.Get("/docs/openapi.json", func(c *fiber.Ctx) error {
		data, err := openAPIDocument()
		if err != nil {
			return errInternal(c, "API description unavailable")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(data)
	})
}
