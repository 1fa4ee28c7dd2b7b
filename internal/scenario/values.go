package scenario

import (
	"math"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/mark3labs/spec2test/internal/spec"
)

const maxValueDepth = 8

var formatSamples = map[string]string{
	"email":     "user@example.com",
	"uuid":      "00000000-0000-4000-8000-000000000000",
	"date-time": "2025-01-01T00:00:00Z",
	"date":      "2025-01-01",
	"time":      "00:00:00",
	"uri":       "https://example.com",
	"url":       "https://example.com",
	"hostname":  "example.com",
	"ipv4":      "127.0.0.1",
	"ipv6":      "::1",
	"byte":      "dmFsdWU=",
	"password":  "password",
}

// sampler produces representative values for schema nodes.
type sampler struct {
	reg *spec.Registry
}

// value returns a valid representative value: required object properties
// only, the first enum value, the first union branch, minimum-satisfying
// numbers and short strings.
func (s sampler) value(n *spec.SchemaNode, depth int) any {
	n = s.reg.Resolve(n)
	if n == nil || depth > maxValueDepth {
		return nil
	}
	if len(n.Constraints.Enum) > 0 {
		return n.Constraints.Enum[0]
	}
	switch n.Kind {
	case spec.KindUnion:
		if len(n.Branches) > 0 {
			return s.value(n.Branches[0], depth+1)
		}
		return nil
	case spec.KindIntersection:
		return s.merged(n, depth)
	case spec.KindArray:
		return s.array(n, arrayLen(n.Constraints), depth)
	case spec.KindObject:
		return s.object(n, depth)
	}
	switch n.Type {
	case "integer":
		return integerSample(n.Constraints)
	case "number":
		return numberSample(n.Constraints)
	case "boolean":
		return true
	case "string":
		return stringSample(n)
	case "object":
		return map[string]any{}
	}
	return "value"
}

func (s sampler) object(n *spec.SchemaNode, depth int) map[string]any {
	out := map[string]any{}
	for _, p := range n.Properties {
		if !n.IsRequired(p.Name) {
			continue
		}
		out[p.Name] = s.value(p.Schema, depth+1)
	}
	return out
}

func (s sampler) merged(n *spec.SchemaNode, depth int) any {
	out := map[string]any{}
	var scalar any
	for _, b := range n.Branches {
		switch v := s.value(b, depth+1).(type) {
		case map[string]any:
			for k, val := range v {
				out[k] = val
			}
		default:
			if scalar == nil {
				scalar = v
			}
		}
	}
	if len(out) == 0 && scalar != nil {
		return scalar
	}
	for _, p := range n.Properties {
		if n.IsRequired(p.Name) {
			out[p.Name] = s.value(p.Schema, depth+1)
		}
	}
	return out
}

func (s sampler) array(n *spec.SchemaNode, size, depth int) []any {
	out := make([]any, 0, size)
	for i := 0; i < size; i++ {
		out = append(out, s.value(n.Items, depth+1))
	}
	return out
}

// objectShape returns the top-level properties and required set of a body,
// merging intersection branches.
func (s sampler) objectShape(n *spec.SchemaNode) ([]spec.Property, []string) {
	return s.shape(n, 0)
}

func (s sampler) shape(n *spec.SchemaNode, depth int) ([]spec.Property, []string) {
	n = s.reg.Resolve(n)
	if n == nil || depth > maxValueDepth {
		return nil, nil
	}
	switch n.Kind {
	case spec.KindObject:
		return n.Properties, n.Constraints.Required
	case spec.KindIntersection:
		seen := map[string]bool{}
		var props []spec.Property
		add := func(ps []spec.Property) {
			for _, p := range ps {
				if !seen[p.Name] {
					seen[p.Name] = true
					props = append(props, p)
				}
			}
		}
		add(n.Properties)
		required := append([]string(nil), n.Constraints.Required...)
		for _, b := range n.Branches {
			bp, br := s.shape(b, depth+1)
			add(bp)
			required = append(required, br...)
		}
		sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
		return props, dedupSorted(required)
	}
	return nil, nil
}

func dedupSorted(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func arrayLen(c spec.Constraints) int {
	n := 1
	if c.MinItems != nil {
		n = int(*c.MinItems)
	}
	if c.MaxItems != nil && int(*c.MaxItems) < n {
		n = int(*c.MaxItems)
	}
	return n
}

func integerSample(c spec.Constraints) any {
	switch {
	case c.Minimum != nil:
		v := math.Ceil(*c.Minimum)
		if c.ExclusiveMinimum && v == *c.Minimum {
			v++
		}
		return integerValue(v)
	case c.Maximum != nil:
		v := math.Min(1, math.Floor(*c.Maximum))
		if c.ExclusiveMaximum && v == *c.Maximum {
			v--
		}
		return integerValue(v)
	}
	return int64(1)
}

// integerValue converts an integral float to int64, keeping the float when
// it lies outside the int64 range.
func integerValue(v float64) any {
	if v >= math.MinInt64 && v < math.MaxInt64 {
		return int64(v)
	}
	return v
}

func numberSample(c spec.Constraints) float64 {
	step := numberStep(c)
	switch {
	case c.Minimum != nil:
		if c.ExclusiveMinimum {
			return *c.Minimum + step
		}
		return *c.Minimum
	case c.Maximum != nil:
		v := math.Min(1, *c.Maximum)
		if c.ExclusiveMaximum && v == *c.Maximum {
			v -= step
		}
		return v
	}
	return 1
}

// numberStep is one unit, shrunk to half the range when both bounds are
// closer than that.
func numberStep(c spec.Constraints) float64 {
	if c.Minimum != nil && c.Maximum != nil {
		if span := *c.Maximum - *c.Minimum; span > 0 && span <= 1 {
			return span / 2
		}
	}
	return 1
}

func stringSample(n *spec.SchemaNode) string {
	c := n.Constraints
	base := "value"
	if sample, ok := formatSamples[strings.ToLower(n.Format)]; ok {
		base = sample
	}
	if c.Pattern != "" {
		if m, ok := shortestMatch(c.Pattern); ok {
			base = m
		}
	}
	size := len([]rune(base))
	if c.MinLength != nil && size < int(*c.MinLength) {
		size = int(*c.MinLength)
	}
	if c.MaxLength != nil && size > int(*c.MaxLength) {
		size = int(*c.MaxLength)
	}
	out := sized(base, size, c.Pattern)
	if out == "" && (c.MaxLength == nil || *c.MaxLength > 0) {
		return "a"
	}
	return out
}

// sized pads or truncates base to size runes. With a pattern it first tries
// repeating the last rune and keeps that when the pattern still matches.
func sized(base string, size int, pattern string) string {
	runes := []rune(base)
	if len(runes) >= size {
		return string(runes[:size])
	}
	if pattern != "" && len(runes) > 0 {
		last := runes[len(runes)-1]
		candidate := base + strings.Repeat(string(last), size-len(runes))
		if fitsPattern(pattern, candidate) {
			return candidate
		}
	}
	return base + strings.Repeat("a", size-len(runes))
}

// WireValue encodes a sampled value for a path, query, header or cookie.
// Arrays are comma-joined.
func WireValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, WireValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return encodeJSON(val)
	}
}

func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
