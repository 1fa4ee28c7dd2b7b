package scenario

import (
	"strings"

	"github.com/mark3labs/spec2test/internal/spec"
)

// fieldStep is one step into a value: a named object property, or the first
// element of an array when item is set. schema describes the value reached.
type fieldStep struct {
	name   string
	item   bool
	schema *spec.SchemaNode
}

// field is a value nested somewhere inside a request body or a parameter.
type field struct {
	path     []fieldStep
	required bool // required by the enclosing object
}

// label renders the path for descriptions, e.g. address.zip or codes[0].
func (f field) label(root string) string {
	var b strings.Builder
	b.WriteString(root)
	for _, st := range f.path {
		if st.item {
			b.WriteString("[0]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(st.name)
	}
	return b.String()
}

// camel renders the path as an identifier suffix, e.g. AddressZip or CodesItem.
func (f field) camel() string {
	var b strings.Builder
	for _, st := range f.path {
		if st.item {
			b.WriteString("Item")
			continue
		}
		b.WriteString(upperCamel(st.name))
	}
	return b.String()
}

func (f field) schema() *spec.SchemaNode {
	return f.path[len(f.path)-1].schema
}

// fields lists every property and array item below n, depth first in
// declaration order. Recursive schemas are walked once per branch.
func (s sampler) fields(n *spec.SchemaNode) []field {
	return s.walk(n, nil, 0, map[*spec.SchemaNode]bool{})
}

func (s sampler) walk(n *spec.SchemaNode, prefix []fieldStep, depth int, visiting map[*spec.SchemaNode]bool) []field {
	n = s.reg.Resolve(n)
	if n == nil || depth > maxValueDepth || visiting[n] {
		return nil
	}
	visiting[n] = true
	defer delete(visiting, n)

	var out []field
	if n.Kind == spec.KindArray {
		if n.Items == nil || (n.Constraints.MaxItems != nil && *n.Constraints.MaxItems == 0) {
			return nil
		}
		path := extend(prefix, fieldStep{item: true, schema: n.Items})
		out = append(out, field{path: path})
		return append(out, s.walk(n.Items, path, depth+1, visiting)...)
	}
	props, required := s.shape(n, 0)
	for _, p := range props {
		path := extend(prefix, fieldStep{name: p.Name, schema: p.Schema})
		out = append(out, field{path: path, required: contains(required, p.Name)})
		out = append(out, s.walk(p.Schema, path, depth+1, visiting)...)
	}
	return out
}

func extend(prefix []fieldStep, st fieldStep) []fieldStep {
	out := make([]fieldStep, 0, len(prefix)+1)
	return append(append(out, prefix...), st)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// setField returns a copy of v with the value at path replaced by value. v is
// never modified. Missing containers on the way are sampled from their schema.
func (s sampler) setField(v any, path []fieldStep, value any) any {
	if len(path) == 0 {
		return value
	}
	st := path[0]
	if st.item {
		arr, _ := v.([]any)
		cp := append([]any(nil), arr...)
		if len(cp) == 0 {
			cp = append(cp, s.value(st.schema, 0))
		}
		cp[0] = s.setField(cp[0], path[1:], value)
		return cp
	}
	m, _ := v.(map[string]any)
	cp := make(map[string]any, len(m)+1)
	for k, val := range m {
		cp[k] = val
	}
	child, ok := cp[st.name]
	if !ok && len(path) > 1 {
		child = s.value(st.schema, 0)
	}
	cp[st.name] = s.setField(child, path[1:], value)
	return cp
}

// deleteField returns a copy of v without the property at path. It reports
// false when the property is not present.
func deleteField(v any, path []fieldStep) (any, bool) {
	if len(path) == 0 {
		return v, false
	}
	st := path[0]
	if st.item {
		arr, ok := v.([]any)
		if !ok || len(arr) == 0 || len(path) == 1 {
			return v, false
		}
		child, ok := deleteField(arr[0], path[1:])
		if !ok {
			return v, false
		}
		cp := append([]any(nil), arr...)
		cp[0] = child
		return cp, true
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v, false
	}
	cur, present := m[st.name]
	if !present {
		return v, false
	}
	cp := make(map[string]any, len(m))
	for k, val := range m {
		cp[k] = val
	}
	if len(path) == 1 {
		delete(cp, st.name)
		return cp, true
	}
	child, ok := deleteField(cur, path[1:])
	if !ok {
		return v, false
	}
	cp[st.name] = child
	return cp, true
}
