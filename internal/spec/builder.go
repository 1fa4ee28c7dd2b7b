package spec

import (
	"context"
	"sort"
	"strings"

	"github.com/mark3labs/spec2test/internal/generr"
)

// BuildOption configures how the Model is built from a Document.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[string]struct{}
}

// WithIncludeTags keeps only endpoints that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.includeTags = addAll(c.includeTags, tags, strings.TrimSpace)
	}
}

// WithExcludeTags removes endpoints that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.excludeTags = addAll(c.excludeTags, tags, strings.TrimSpace)
	}
}

// WithMethods keeps only endpoints using one of the provided HTTP methods.
func WithMethods(methods []string) BuildOption {
	return func(c *buildConfig) {
		c.methods = addAll(c.methods, methods, func(s string) string {
			return strings.ToUpper(strings.TrimSpace(s))
		})
	}
}

func addAll(set map[string]struct{}, values []string, norm func(string) string) map[string]struct{} {
	for _, v := range values {
		v = norm(v)
		if v == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{}, len(values))
		}
		set[v] = struct{}{}
	}
	return set
}

// BuildModel filters, checks, deduplicates and sorts the document's endpoints.
// Endpoints are ordered by (method, path). Structurally identical schemas are
// merged into one shared node whose identifier is the smallest identifier of
// the group, so the result does not depend on traversal order.
func BuildModel(ctx context.Context, doc *Document, opts ...BuildOption) (*Model, error) {
	if doc == nil {
		return nil, generr.New(generr.InconsistentModel, "model: nil document")
	}
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var endpoints []*Endpoint
	for _, ep := range doc.Endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ep == nil || !cfg.allows(ep) {
			continue
		}
		if err := checkEndpoint(ep, doc.Schemas); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}

	d := newDeduper(doc.Schemas)
	for _, id := range doc.Schemas.IDs() {
		n, _ := doc.Schemas.Lookup(id)
		d.collect(n)
	}
	for _, ep := range endpoints {
		for _, n := range endpointSchemas(ep) {
			d.collect(n)
		}
	}

	model := &Model{Title: doc.Title, Version: doc.Version, Schemas: d.registry()}
	for _, ep := range endpoints {
		model.Endpoints = append(model.Endpoints, d.endpoint(ep))
	}
	sort.Slice(model.Endpoints, func(i, j int) bool {
		a, b := model.Endpoints[i], model.Endpoints[j]
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Path < b.Path
	})
	return model, nil
}

func (c *buildConfig) allows(ep *Endpoint) bool {
	if len(c.methods) > 0 {
		if _, ok := c.methods[ep.Method]; !ok {
			return false
		}
	}
	if len(c.includeTags) > 0 {
		ok := false
		for _, t := range ep.Tags {
			if _, yes := c.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range ep.Tags {
		if _, blocked := c.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}

func endpointSchemas(ep *Endpoint) []*SchemaNode {
	var out []*SchemaNode
	for _, p := range ep.Parameters {
		out = append(out, p.Schema)
	}
	if ep.RequestBody != nil {
		out = append(out, ep.RequestBody.Schema)
	}
	for _, r := range ep.Responses {
		out = append(out, r.Schema)
	}
	return out
}

func checkEndpoint(ep *Endpoint, reg *Registry) error {
	declared := map[string]bool{}
	for _, p := range ep.Parameters {
		if p.Schema == nil {
			return generr.New(generr.InconsistentModel, "model: %s: parameter %q (%s) has no schema", ep.ID, p.Name, p.In).At(ep.ID)
		}
		if p.In == InPath {
			declared[p.Name] = true
		}
	}
	for _, v := range PathVariables(ep.Path) {
		if !declared[v] {
			return generr.New(generr.InconsistentModel, "model: %s: path variable {%s} has no matching path parameter", ep.ID, v).At(ep.ID)
		}
	}
	seen := map[*SchemaNode]bool{}
	for _, n := range endpointSchemas(ep) {
		if dangling := findDangling(n, reg, seen); dangling != nil {
			return generr.New(generr.InconsistentModel, "model: %s: schema %s references unknown schema %s", ep.ID, dangling.ID, dangling.Ref).At(ep.ID).WithPointer(dangling.ID)
		}
	}
	return nil
}

func findDangling(n *SchemaNode, reg *Registry, seen map[*SchemaNode]bool) *SchemaNode {
	if n == nil || seen[n] {
		return nil
	}
	seen[n] = true
	if n.Kind == KindRef {
		if _, ok := reg.Lookup(n.Ref); !ok {
			return n
		}
		return nil
	}
	for _, c := range children(n) {
		if d := findDangling(c, reg, seen); d != nil {
			return d
		}
	}
	return nil
}

func children(n *SchemaNode) []*SchemaNode {
	out := make([]*SchemaNode, 0, len(n.Properties)+len(n.Branches)+1)
	for _, p := range n.Properties {
		out = append(out, p.Schema)
	}
	if n.Items != nil {
		out = append(out, n.Items)
	}
	return append(out, n.Branches...)
}

// deduper groups nodes by structural fingerprint and rebuilds one canonical
// node per group.
type deduper struct {
	source    *Registry
	classes   *classes
	fps       map[*SchemaNode]string
	minID     map[string]string
	canonical map[string]*SchemaNode
}

func newDeduper(source *Registry) *deduper {
	return &deduper{
		source:    source,
		classes:   newClasses(),
		fps:       map[*SchemaNode]string{},
		minID:     map[string]string{},
		canonical: map[string]*SchemaNode{},
	}
}

func (d *deduper) collect(n *SchemaNode) {
	if n == nil {
		return
	}
	if _, done := d.fps[n]; done {
		return
	}
	for _, c := range children(n) {
		d.collect(c)
	}
	fp := d.fingerprint(n)
	if cur, ok := d.minID[fp]; !ok || n.ID < cur {
		d.minID[fp] = n.ID
	}
}

func (d *deduper) fingerprint(n *SchemaNode) string {
	if fp, ok := d.fps[n]; ok {
		return fp
	}
	childFP := func(c *SchemaNode) string {
		if c == nil {
			return ""
		}
		return d.fingerprint(c)
	}
	fp := d.classes.id(structuralKey(n, childFP))
	d.fps[n] = fp
	return fp
}

func (d *deduper) canonicalNode(n *SchemaNode) *SchemaNode {
	if n == nil {
		return nil
	}
	fp := d.fingerprint(n)
	if c, ok := d.canonical[fp]; ok {
		return c
	}
	c := &SchemaNode{
		ID:          d.minID[fp],
		Kind:        n.Kind,
		Type:        n.Type,
		Format:      n.Format,
		Nullable:    n.Nullable,
		Constraints: n.Constraints,
		Ref:         n.Ref,
	}
	if c.ID == "" {
		c.ID = n.ID
	}
	d.canonical[fp] = c
	if n.Kind == KindRef {
		if target, ok := d.source.Lookup(n.Ref); ok {
			c.Ref = d.minID[d.fingerprint(target)]
		}
	}
	for _, p := range n.Properties {
		c.Properties = append(c.Properties, Property{Name: p.Name, Schema: d.canonicalNode(p.Schema)})
	}
	c.Items = d.canonicalNode(n.Items)
	for _, b := range n.Branches {
		c.Branches = append(c.Branches, d.canonicalNode(b))
	}
	return c
}

// registry maps every original registry id and every canonical id to its
// canonical node.
func (d *deduper) registry() *Registry {
	out := NewRegistry()
	for _, id := range d.source.IDs() {
		n, _ := d.source.Lookup(id)
		c := d.canonicalNode(n)
		out.put(id, c)
		out.put(c.ID, c)
	}
	return out
}

func (d *deduper) endpoint(ep *Endpoint) *Endpoint {
	out := *ep
	out.Tags = append([]string(nil), ep.Tags...)
	out.Parameters = make([]Parameter, len(ep.Parameters))
	for i, p := range ep.Parameters {
		p.Schema = d.canonicalNode(p.Schema)
		out.Parameters[i] = p
	}
	if ep.RequestBody != nil {
		rb := *ep.RequestBody
		rb.Schema = d.canonicalNode(rb.Schema)
		out.RequestBody = &rb
	}
	out.Responses = make([]Response, len(ep.Responses))
	for i, r := range ep.Responses {
		r.Schema = d.canonicalNode(r.Schema)
		out.Responses[i] = r
	}
	return &out
}
