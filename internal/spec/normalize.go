package spec

import (
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// normalizer converts kin-openapi schemas into SchemaNodes. Every referenced
// schema is converted once and registered under its reference string; a
// reference met while its own conversion is still in progress becomes a
// KindRef back-reference.
type normalizer struct {
	registry   *Registry
	inProgress map[string]bool
}

func normalize(doc *openapi3.T) (*Document, error) {
	n := &normalizer{registry: NewRegistry(), inProgress: map[string]bool{}}

	out := &Document{Version: strings.TrimSpace(doc.OpenAPI), Schemas: n.registry}
	if doc.Info != nil {
		out.Title = strings.TrimSpace(doc.Info.Title)
	}

	if doc.Components != nil {
		names := make([]string, 0, len(doc.Components.Schemas))
		for name := range doc.Components.Schemas {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			id := "#/components/schemas/" + escapeToken(name)
			n.convertRef(&openapi3.SchemaRef{Ref: id, Value: schemaValue(doc.Components.Schemas[name])}, id)
		}
	}

	pathKeys := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	for _, p := range pathKeys {
		item := doc.Paths[p]
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			out.Endpoints = append(out.Endpoints, n.endpoint(p, method, item, op))
		}
	}
	return out, nil
}

func schemaValue(ref *openapi3.SchemaRef) *openapi3.Schema {
	if ref == nil {
		return nil
	}
	return ref.Value
}

func (n *normalizer) endpoint(path, method string, item *openapi3.PathItem, op *openapi3.Operation) *Endpoint {
	base := "#/paths/" + escapeToken(path) + "/" + strings.ToLower(method)

	// Merge parameters: path-level first, overridden by op-level.
	merged := map[string]*openapi3.Parameter{}
	var order []string
	collect := func(refs openapi3.Parameters) {
		for _, pref := range refs {
			if pref == nil || pref.Value == nil {
				continue
			}
			key := pref.Value.In + ":" + pref.Value.Name
			if _, seen := merged[key]; !seen {
				order = append(order, key)
			}
			merged[key] = pref.Value
		}
	}
	collect(item.Parameters)
	collect(op.Parameters)

	params := make([]Parameter, 0, len(order))
	for _, key := range order {
		p := merged[key]
		loc := Location(strings.ToLower(strings.TrimSpace(p.In)))
		at := base + "/parameters/" + escapeToken(string(loc)) + "/" + escapeToken(p.Name)
		schemaRef := p.Schema
		if schemaRef == nil {
			if _, mt := pickMedia(p.Content); mt != nil {
				schemaRef = mt.Schema
			}
		}
		params = append(params, Parameter{
			Name:     strings.TrimSpace(p.Name),
			In:       loc,
			Required: p.Required || loc == InPath,
			Schema:   n.convertRef(schemaRef, at),
		})
	}
	sort.SliceStable(params, func(i, j int) bool {
		if params[i].In == params[j].In {
			return params[i].Name < params[j].Name
		}
		return locationRank(params[i].In) < locationRank(params[j].In)
	})

	ep := &Endpoint{
		ID:          method + " " + path,
		Method:      method,
		Path:        path,
		OperationID: strings.TrimSpace(op.OperationID),
		Summary:     strings.TrimSpace(op.Summary),
		Description: strings.TrimSpace(op.Description),
		Parameters:  params,
	}
	for _, t := range op.Tags {
		if t = strings.TrimSpace(t); t != "" {
			ep.Tags = append(ep.Tags, t)
		}
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		mime, mt := pickMedia(op.RequestBody.Value.Content)
		rb := &RequestBody{ContentType: mime, Required: op.RequestBody.Value.Required}
		if mt != nil {
			rb.Schema = n.convertRef(mt.Schema, base+"/requestBody/content/"+escapeToken(mime)+"/schema")
		}
		ep.RequestBody = rb
	}

	codes := make([]string, 0, len(op.Responses))
	for code := range op.Responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		rref := op.Responses[code]
		if rref == nil || rref.Value == nil {
			continue
		}
		resp := Response{Status: strings.ToUpper(code)}
		if code == "default" {
			resp.Status = code
		}
		if rref.Value.Description != nil {
			resp.Description = strings.TrimSpace(*rref.Value.Description)
		}
		mime, mt := pickMedia(rref.Value.Content)
		resp.ContentType = mime
		if mt != nil {
			resp.Schema = n.convertRef(mt.Schema, base+"/responses/"+escapeToken(code)+"/content/"+escapeToken(mime)+"/schema")
		}
		ep.Responses = append(ep.Responses, resp)
	}
	return ep
}

func locationRank(loc Location) int {
	switch loc {
	case InPath:
		return 0
	case InQuery:
		return 1
	case InHeader:
		return 2
	case InCookie:
		return 3
	default:
		return 4
	}
}

// pickMedia prefers application/json, then any +json type, then the first
// media type in sorted order.
func pickMedia(content openapi3.Content) (string, *openapi3.MediaType) {
	if len(content) == 0 {
		return "", nil
	}
	if mt, ok := content["application/json"]; ok && mt != nil {
		return "application/json", mt
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasSuffix(strings.ToLower(k), "+json") && content[k] != nil {
			return k, content[k]
		}
	}
	for _, k := range keys {
		if content[k] != nil {
			return k, content[k]
		}
	}
	return "", nil
}

func (n *normalizer) convertRef(ref *openapi3.SchemaRef, at string) *SchemaNode {
	if ref == nil {
		return nil
	}
	if ref.Ref == "" {
		if ref.Value == nil {
			return nil
		}
		return n.convert(ref.Value, at)
	}

	id := ref.Ref
	if node, ok := n.registry.Lookup(id); ok {
		return node
	}
	if n.inProgress[id] || ref.Value == nil {
		return &SchemaNode{ID: at, Kind: KindRef, Ref: id}
	}
	n.inProgress[id] = true
	node := n.convert(ref.Value, id)
	delete(n.inProgress, id)
	n.registry.put(id, node)
	return node
}

func (n *normalizer) convert(s *openapi3.Schema, id string) *SchemaNode {
	node := &SchemaNode{
		ID:       id,
		Type:     strings.TrimSpace(s.Type),
		Format:   strings.TrimSpace(s.Format),
		Nullable: s.Nullable,
		Constraints: Constraints{
			Minimum:          s.Min,
			Maximum:          s.Max,
			ExclusiveMinimum: s.ExclusiveMin,
			ExclusiveMaximum: s.ExclusiveMax,
			MaxLength:        s.MaxLength,
			Pattern:          s.Pattern,
			MaxItems:         s.MaxItems,
		},
	}
	if s.MinLength > 0 {
		v := s.MinLength
		node.Constraints.MinLength = &v
	}
	if s.MinItems > 0 {
		v := s.MinItems
		node.Constraints.MinItems = &v
	}
	if len(s.Required) > 0 {
		req := append([]string(nil), s.Required...)
		sort.Strings(req)
		node.Constraints.Required = req
	}
	if len(s.Enum) > 0 {
		node.Constraints.Enum = append([]any(nil), s.Enum...)
	}

	if len(s.Properties) > 0 {
		names := make([]string, 0, len(s.Properties))
		for name := range s.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child := n.convertRef(s.Properties[name], id+"/properties/"+escapeToken(name))
			if child == nil {
				continue
			}
			node.Properties = append(node.Properties, Property{Name: name, Schema: child})
		}
	}
	if s.Items != nil {
		node.Items = n.convertRef(s.Items, id+"/items")
	}

	switch {
	case len(s.AllOf) > 0:
		node.Kind = KindIntersection
		node.Branches = n.branches(s.AllOf, id+"/allOf/")
	case len(s.OneOf) > 0:
		node.Kind = KindUnion
		node.Branches = n.branches(s.OneOf, id+"/oneOf/")
	case len(s.AnyOf) > 0:
		node.Kind = KindUnion
		node.Branches = n.branches(s.AnyOf, id+"/anyOf/")
	case len(node.Constraints.Enum) > 0:
		node.Kind = KindEnum
	case node.Type == "array" || node.Items != nil:
		node.Kind = KindArray
		if node.Type == "" {
			node.Type = "array"
		}
	case node.Type == "object" || len(node.Properties) > 0:
		node.Kind = KindObject
		if node.Type == "" {
			node.Type = "object"
		}
	default:
		node.Kind = KindPrimitive
	}
	return node
}

func (n *normalizer) branches(refs openapi3.SchemaRefs, prefix string) []*SchemaNode {
	out := make([]*SchemaNode, 0, len(refs))
	for i, r := range refs {
		if child := n.convertRef(r, prefix+strconv.Itoa(i)); child != nil {
			out = append(out, child)
		}
	}
	return out
}
