// Package api carries the OpenAPI document served and enforced by the HTTP router.
package api

import _ "embed"

// OpenAPISpec is the raw api/openapi.yaml document.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
