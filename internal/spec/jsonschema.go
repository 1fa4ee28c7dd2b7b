package spec

import (
	"strconv"
	"strings"
)

const draft04 = "http://json-schema.org/draft-04/schema#"

// JSONSchema renders n as a draft-04 JSON Schema document. Back-references
// become entries under "definitions" so recursive shapes stay finite.
func (r *Registry) JSONSchema(n *SchemaNode) map[string]any {
	w := &schemaWriter{reg: r, names: map[string]string{}, defs: map[string]any{}}
	out := w.node(n)
	out["$schema"] = draft04
	if len(w.defs) > 0 {
		out["definitions"] = w.defs
	}
	return out
}

type schemaWriter struct {
	reg   *Registry
	names map[string]string // schema id -> definition name
	defs  map[string]any
	taken map[string]bool
}

func (w *schemaWriter) node(n *SchemaNode) map[string]any {
	m := map[string]any{}
	if n == nil {
		return m
	}
	if n.Kind == KindRef {
		name, known := w.names[n.Ref]
		if !known {
			name = w.defName(n.Ref)
			w.names[n.Ref] = name
			w.defs[name] = map[string]any{}
			if target, ok := w.reg.Lookup(n.Ref); ok {
				w.defs[name] = w.node(target)
			}
		}
		m["$ref"] = "#/definitions/" + name
		return m
	}

	if n.Type != "" {
		if n.Nullable {
			m["type"] = []any{n.Type, "null"}
		} else {
			m["type"] = n.Type
		}
	}
	if n.Format != "" {
		m["format"] = n.Format
	}
	c := n.Constraints
	if len(c.Enum) > 0 {
		enum := append([]any(nil), c.Enum...)
		if n.Nullable {
			enum = append(enum, nil)
		}
		m["enum"] = enum
	}
	if c.Minimum != nil {
		m["minimum"] = *c.Minimum
		if c.ExclusiveMinimum {
			m["exclusiveMinimum"] = true
		}
	}
	if c.Maximum != nil {
		m["maximum"] = *c.Maximum
		if c.ExclusiveMaximum {
			m["exclusiveMaximum"] = true
		}
	}
	if c.MinLength != nil {
		m["minLength"] = *c.MinLength
	}
	if c.MaxLength != nil {
		m["maxLength"] = *c.MaxLength
	}
	if c.Pattern != "" {
		m["pattern"] = c.Pattern
	}
	if c.MinItems != nil {
		m["minItems"] = *c.MinItems
	}
	if c.MaxItems != nil {
		m["maxItems"] = *c.MaxItems
	}
	if len(c.Required) > 0 {
		m["required"] = append([]string(nil), c.Required...)
	}
	if len(n.Properties) > 0 {
		props := make(map[string]any, len(n.Properties))
		for _, p := range n.Properties {
			props[p.Name] = w.node(p.Schema)
		}
		m["properties"] = props
	}
	if n.Items != nil {
		m["items"] = w.node(n.Items)
	}
	if len(n.Branches) > 0 {
		branches := make([]any, 0, len(n.Branches))
		for _, b := range n.Branches {
			branches = append(branches, w.node(b))
		}
		if n.Kind == KindIntersection {
			m["allOf"] = branches
		} else {
			m["anyOf"] = branches
		}
	}
	return m
}

func (w *schemaWriter) defName(id string) string {
	if w.taken == nil {
		w.taken = map[string]bool{}
	}
	base := id
	if i := strings.LastIndex(id, "/"); i >= 0 && strings.HasPrefix(id, "#/components/schemas/") {
		base = id[i+1:]
	}
	var b strings.Builder
	for _, r := range base {
		if r == '_' || r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "schema"
	}
	candidate := name
	for i := 2; w.taken[candidate]; i++ {
		candidate = name + strconv.Itoa(i)
	}
	w.taken[candidate] = true
	return candidate
}
