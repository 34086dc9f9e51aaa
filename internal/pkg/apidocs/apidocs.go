// Package apidocs loads the OpenAPI document served under /docs/api.
package apidocs

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// DefaultPath is the document location relative to the project root.
const DefaultPath = "public/docs/v1/openapi.yml"

// Load reads and validates the OpenAPI document at path.
func Load(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document %s: %w", path, err)
	}
	return doc, nil
}

// Operations lists "METHOD /path" for every operation, with the server base
// path prefixed.
func Operations(doc *openapi3.T, basePath string) []string {
	var ops []string
	for path, item := range doc.Paths.Map() {
		for method := range item.Operations() {
			ops = append(ops, method+" "+basePath+path)
		}
	}
	return ops
}
