package spec

import (
	"sort"
	"strings"
)

// Canonical model shared by the synthesizer and the renderer. Values are
// treated as immutable once the loader or the model builder returns them.

type Location string

const (
	InPath   Location = "path"
	InQuery  Location = "query"
	InHeader Location = "header"
	InCookie Location = "cookie"
)

// HTTP methods in the order they are read from a path item.
var methodOrder = []string{"GET", "PUT", "POST", "DELETE", "OPTIONS", "HEAD", "PATCH", "TRACE"}

// Document is the loader's output: a reference-free view of the API contract.
type Document struct {
	Version       string // OpenAPI version after conversion, e.g. 3.0.3
	SourceVersion string // version declared by the input, e.g. 2.0
	Title         string
	Endpoints     []*Endpoint
	Schemas       *Registry
}

// Model is the builder's output: filtered, deduplicated, sorted endpoints.
type Model struct {
	Title     string
	Version   string
	Endpoints []*Endpoint
	Schemas   *Registry
}

type Endpoint struct {
	ID          string // METHOD /path
	Method      string // upper-case
	Path        string
	OperationID string
	Summary     string
	Description string
	Tags        []string
	Parameters  []Parameter
	RequestBody *RequestBody
	Responses   []Response // sorted by status key
}

type Parameter struct {
	Name     string
	In       Location
	Required bool
	Schema   *SchemaNode
}

type RequestBody struct {
	ContentType string
	Required    bool
	Schema      *SchemaNode
}

type Response struct {
	Status      string // 200, 4XX, default
	Description string
	ContentType string
	Schema      *SchemaNode
}

// Response returns the declared response for status.
func (e *Endpoint) Response(status string) (Response, bool) {
	for _, r := range e.Responses {
		if r.Status == status {
			return r, true
		}
	}
	return Response{}, false
}

// ParametersIn returns the endpoint parameters declared at loc, in order.
func (e *Endpoint) ParametersIn(loc Location) []Parameter {
	var out []Parameter
	for _, p := range e.Parameters {
		if p.In == loc {
			out = append(out, p)
		}
	}
	return out
}

// PathVariables returns the {name} segments of the path template.
func PathVariables(path string) []string {
	var out []string
	for {
		start := strings.IndexByte(path, '{')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(path[start:], '}')
		if end < 0 {
			return out
		}
		out = append(out, path[start+1:start+end])
		path = path[start+end+1:]
	}
}

type Kind string

const (
	KindPrimitive    Kind = "primitive"
	KindObject       Kind = "object"
	KindArray        Kind = "array"
	KindEnum         Kind = "enum"
	KindUnion        Kind = "union"
	KindIntersection Kind = "intersection"
	KindRef          Kind = "ref"
)

type Constraints struct {
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum bool
	ExclusiveMaximum bool
	MinLength        *uint64
	MaxLength        *uint64
	Pattern          string
	MinItems         *uint64
	MaxItems         *uint64
	Required         []string
	Enum             []any
}

type Property struct {
	Name   string
	Schema *SchemaNode
}

// SchemaNode is a recursive type description. A KindRef node stands for the
// registry entry named by Ref and is how reference cycles are represented.
type SchemaNode struct {
	ID          string
	Kind        Kind
	Type        string // string, integer, number, boolean, object, array or empty
	Format      string
	Nullable    bool
	Constraints Constraints
	Properties  []Property // sorted by name
	Items       *SchemaNode
	Branches    []*SchemaNode
	Ref         string
}

// Property returns the named property schema.
func (n *SchemaNode) Property(name string) (*SchemaNode, bool) {
	if n == nil {
		return nil, false
	}
	for _, p := range n.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// IsRequired reports whether name is in the node's required set.
func (n *SchemaNode) IsRequired(name string) bool {
	if n == nil {
		return false
	}
	for _, r := range n.Constraints.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Registry maps schema identifiers to nodes. Several identifiers may share one
// node after deduplication.
type Registry struct {
	nodes map[string]*SchemaNode
}

func NewRegistry() *Registry {
	return &Registry{nodes: map[string]*SchemaNode{}}
}

func (r *Registry) Lookup(id string) (*SchemaNode, bool) {
	if r == nil {
		return nil, false
	}
	n, ok := r.nodes[id]
	return n, ok
}

func (r *Registry) put(id string, n *SchemaNode) {
	r.nodes[id] = n
}

// IDs returns every registered identifier in sorted order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve follows back-references until it reaches a concrete node. It
// returns nil for a dangling reference.
func (r *Registry) Resolve(n *SchemaNode) *SchemaNode {
	if r == nil {
		if n != nil && n.Kind == KindRef {
			return nil
		}
		return n
	}
	for hops := 0; n != nil && n.Kind == KindRef; hops++ {
		if hops > len(r.nodes) {
			return nil
		}
		next, ok := r.Lookup(n.Ref)
		if !ok {
			return nil
		}
		n = next
	}
	return n
}
