// Package apispec holds the normalized API description the pipeline consumes.
// Import and normalization of OpenAPI documents happens upstream; this package
// only models the already-normalized operation list and provides read-only
// access to it.
package apispec

import (
	"fmt"
	"strings"
)

// ParameterLocation identifies where a parameter is carried.
type ParameterLocation string

const (
	InPath   ParameterLocation = "path"
	InQuery  ParameterLocation = "query"
	InHeader ParameterLocation = "header"
)

// Parameter is a single operation parameter.
type Parameter struct {
	Name     string            `yaml:"name" json:"name"`
	In       ParameterLocation `yaml:"in" json:"in"`
	Type     string            `yaml:"type" json:"type"` // integer, string, boolean, number
	Required bool              `yaml:"required" json:"required"`
}

// SchemaField is one field of a (truncated) request body schema preview.
type SchemaField struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Example string `yaml:"example,omitempty" json:"example,omitempty"`
}

// Response is a documented response for an operation.
type Response struct {
	Status      int    `yaml:"status" json:"status"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Operation is one normalized API operation.
type Operation struct {
	ID         string      `yaml:"id" json:"id"`
	Method     string      `yaml:"method" json:"method"`
	Path       string      `yaml:"path" json:"path"`
	Summary    string      `yaml:"summary,omitempty" json:"summary,omitempty"`
	Tags       []string    `yaml:"tags,omitempty" json:"tags,omitempty"`
	Parameters []Parameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	// RequestSchema previews the request body schema; empty means the
	// operation takes no body (or the schema is unknown).
	RequestSchema []SchemaField `yaml:"request_schema,omitempty" json:"request_schema,omitempty"`
	Responses     []Response    `yaml:"responses,omitempty" json:"responses,omitempty"`
}

// Spec is a normalized API specification.
type Spec struct {
	ID         string      `yaml:"id" json:"id"`
	Title      string      `yaml:"title" json:"title"`
	BaseURL    string      `yaml:"base_url" json:"base_url"`
	Operations []Operation `yaml:"operations" json:"operations"`
}

// PathParams returns the operation's path parameters.
func (o *Operation) PathParams() []Parameter {
	var params []Parameter
	for _, p := range o.Parameters {
		if p.In == InPath {
			params = append(params, p)
		}
	}
	return params
}

// HasPathParam reports whether the operation is path-parameterized.
func (o *Operation) HasPathParam() bool {
	return len(o.PathParams()) > 0 || strings.Contains(o.Path, "{")
}

// AcceptsBody reports whether the operation accepts a request body.
func (o *Operation) AcceptsBody() bool {
	switch strings.ToUpper(o.Method) {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// IsCreation reports whether the operation creates a resource.
func (o *Operation) IsCreation() bool {
	return strings.ToUpper(o.Method) == "POST" && !o.HasPathParam()
}

// IsList reports whether the operation lists a collection.
func (o *Operation) IsList() bool {
	return strings.ToUpper(o.Method) == "GET" && !o.HasPathParam()
}

// IntegerPathParam returns the first integer path parameter, if any.
// When parameter metadata is missing, a path segment named id is assumed
// to be integer-typed.
func (o *Operation) IntegerPathParam() (Parameter, bool) {
	for _, p := range o.PathParams() {
		if p.Type == "integer" || p.Type == "number" {
			return p, true
		}
	}
	if len(o.Parameters) == 0 && strings.Contains(o.Path, "{id}") {
		return Parameter{Name: "id", In: InPath, Type: "integer", Required: true}, true
	}
	return Parameter{}, false
}

// PaginationParam returns the operation's pagination-limit query
// parameter, if it has one.
func (o *Operation) PaginationParam() (Parameter, bool) {
	for _, p := range o.Parameters {
		if p.In != InQuery {
			continue
		}
		switch strings.ToLower(p.Name) {
		case "limit", "size", "page_size", "pagesize", "per_page":
			return p, true
		}
	}
	return Parameter{}, false
}

// PrimaryTag returns the grouping tag for the operation. Operations
// without tags group under the first path segment.
func (o *Operation) PrimaryTag() string {
	if len(o.Tags) > 0 {
		return o.Tags[0]
	}
	trimmed := strings.Trim(o.Path, "/")
	if trimmed == "" {
		return "root"
	}
	return strings.SplitN(trimmed, "/", 2)[0]
}

// Validate checks structural integrity of the spec.
func (s *Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("spec id is required")
	}
	seen := make(map[string]bool, len(s.Operations))
	for i, op := range s.Operations {
		if op.ID == "" {
			return fmt.Errorf("operation %d has no id", i)
		}
		if seen[op.ID] {
			return fmt.Errorf("duplicate operation id %q", op.ID)
		}
		seen[op.ID] = true
		if op.Method == "" || op.Path == "" {
			return fmt.Errorf("operation %s missing method or path", op.ID)
		}
	}
	return nil
}

// Filter returns a copy of the spec containing only the operations whose
// id appears in keep. An empty keep set returns the spec unchanged.
func (s *Spec) Filter(keep []string) *Spec {
	if len(keep) == 0 {
		return s
	}
	allowed := make(map[string]bool, len(keep))
	for _, id := range keep {
		allowed[id] = true
	}
	filtered := &Spec{ID: s.ID, Title: s.Title, BaseURL: s.BaseURL}
	for _, op := range s.Operations {
		if allowed[op.ID] {
			filtered.Operations = append(filtered.Operations, op)
		}
	}
	return filtered
}
