// Пакет api содержит OpenAPI контракт Media Gate.
package api

import _ "embed"

// Spec — OpenAPI 3 документ HTTP API (openapi.yaml).
//
//go:embed openapi.yaml
var Spec []byte
