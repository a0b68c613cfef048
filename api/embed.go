// Package api carries the OpenAPI description of the mapcore HTTP API.
package api

import _ "embed"

// OpenAPI is the raw openapi.yaml document.
//
//go:embed openapi.yaml
var OpenAPI []byte
