// Package openapi renders the composed route table as an OpenAPI 3 document.
package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"

	"user-gateway/internal/pipeline"
)

const bearerScheme = "bearerAuth"

// skeleton carries the parts that never depend on routes.
const skeleton = `{
	"openapi": "3.0.3",
	"info": {"title": "api", "version": "0"},
	"paths": {},
	"components": {
		"securitySchemes": {
			"bearerAuth": {"type": "http", "scheme": "bearer", "bearerFormat": "JWT"}
		}
	}
}`

// Build renders routes into a validated document.
func Build(ctx context.Context, title, version string, routes []pipeline.Mounted) (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData([]byte(skeleton))
	if err != nil {
		return nil, fmt.Errorf("openapi: load skeleton: %w", err)
	}
	doc.Info.Title = title
	doc.Info.Version = version

	for _, r := range routes {
		path, params := templated(r.Path)
		op := openapi3.NewOperation()
		op.Summary = r.Summary
		op.OperationID = operationID(r.Method, r.Path)
		op.Tags = []string{r.Group}
		for _, p := range params {
			op.AddParameter(openapi3.NewPathParameter(p).WithSchema(openapi3.NewUUIDSchema()))
		}
		if body := requestBody(r.Method, r.Path); body != nil {
			op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(body)}
		}
		for _, status := range responses(r) {
			op.AddResponse(status, openapi3.NewResponse().WithDescription(http.StatusText(status)))
		}
		if r.Protected {
			sec := openapi3.NewSecurityRequirements().With(openapi3.NewSecurityRequirement().Authenticate(bearerScheme))
			op.Security = sec
		}
		doc.AddOperation(path, r.Method, op)
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: invalid document: %w", err)
	}
	return doc, nil
}

// Document serves the pre-serialized document. It answers 503 until Publish runs,
// which lets the route exist before the route table is known.
type Document struct {
	raw atomic.Pointer[[]byte]
}

func (d *Document) Publish(ctx context.Context, title, version string, routes []pipeline.Mounted) error {
	doc, err := Build(ctx, title, version, routes)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("openapi: marshal: %w", err)
	}
	d.raw.Store(&raw)
	return nil
}

func (d *Document) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := d.raw.Load()
		if raw == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "api document not ready", "reason": "not_ready"})
			return
		}
		c.Data(http.StatusOK, "application/json", *raw)
	}
}

// templated turns /users/:id into /users/{id}.
func templated(path string) (string, []string) {
	parts := strings.Split(path, "/")
	var params []string
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			params = append(params, p[1:])
			parts[i] = "{" + p[1:] + "}"
		}
	}
	return strings.Join(parts, "/"), params
}

func operationID(method, path string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, p := range strings.Split(path, "/") {
		p = strings.TrimPrefix(p, ":")
		p = strings.ReplaceAll(p, ".", "_")
		if p == "" {
			continue
		}
		b.WriteString("_")
		b.WriteString(p)
	}
	if b.Len() == len(method) {
		b.WriteString("_root")
	}
	return b.String()
}

func userSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("user_id", openapi3.NewUUIDSchema()).
		WithProperty("username", openapi3.NewStringSchema()).
		WithProperty("email", openapi3.NewStringSchema().WithFormat("email").WithNullable())
}

func requestBody(method, path string) *openapi3.Schema {
	switch {
	case path == "/login" && method == http.MethodPost:
		return openapi3.NewObjectSchema().
			WithProperty("username", openapi3.NewStringSchema()).
			WithProperty("password", openapi3.NewStringSchema().WithFormat("password"))
	case strings.HasPrefix(path, "/users") && method == http.MethodPost:
		return userSchema()
	case strings.HasPrefix(path, "/users") && method == http.MethodPut:
		return openapi3.NewObjectSchema().
			WithProperty("username", openapi3.NewStringSchema()).
			WithProperty("email", openapi3.NewStringSchema().WithFormat("email"))
	}
	return nil
}

func responses(r pipeline.Mounted) []int {
	var out []int
	switch r.Method {
	case http.MethodPost:
		if r.Protected {
			out = append(out, http.StatusCreated, http.StatusBadRequest, http.StatusConflict)
		} else {
			out = append(out, http.StatusOK, http.StatusBadRequest, http.StatusForbidden)
		}
	case http.MethodPut:
		out = append(out, http.StatusOK, http.StatusBadRequest, http.StatusNotFound)
	case http.MethodDelete:
		out = append(out, http.StatusNoContent, http.StatusNotFound)
	default:
		out = append(out, http.StatusOK)
		if strings.Contains(r.Path, ":") {
			out = append(out, http.StatusNotFound)
		}
	}
	if r.Protected {
		out = append(out, http.StatusUnauthorized, http.StatusForbidden)
	}
	return dedupe(out)
}

func dedupe(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
