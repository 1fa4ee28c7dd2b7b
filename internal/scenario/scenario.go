// Package scenario derives test scenarios for an endpoint: a deterministic
// rule set, optionally augmented by an external Proposer.
package scenario

import (
	"strconv"
	"strings"
	"unicode"

	json "github.com/goccy/go-json"

	"github.com/mark3labs/spec2test/internal/spec"
)

type Category string

const (
	HappyPath   Category = "happy-path"
	Boundary    Category = "boundary"
	Negative    Category = "negative"
	AISuggested Category = "ai-suggested"
)

// Binding is one parameter value, already encoded as it goes on the wire.
type Binding struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Inputs are the concrete request values of a scenario. RawBody, when set,
// is sent verbatim instead of Body.
type Inputs struct {
	Path        []Binding `json:"path,omitempty"`
	Query       []Binding `json:"query,omitempty"`
	Header      []Binding `json:"header,omitempty"`
	Cookie      []Binding `json:"cookie,omitempty"`
	HasBody     bool      `json:"hasBody,omitempty"`
	Body        any       `json:"body,omitempty"`
	RawBody     string    `json:"rawBody,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
}

// Expectation is either an exact Status or a status Class (4 means any 4xx).
// Declared names the response key it targets, if any.
type Expectation struct {
	Status   int              `json:"status,omitempty"`
	Class    int              `json:"class,omitempty"`
	Declared string           `json:"declared,omitempty"`
	Schema   *spec.SchemaNode `json:"-"`
}

// TestScenario is a value object; synthesized scenarios are filtered or
// merged, never mutated.
type TestScenario struct {
	EndpointID  string      `json:"endpointId"`
	Category    Category    `json:"category"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Inputs      Inputs      `json:"inputs"`
	Expect      Expectation `json:"expect"`
	// Placeholder marks a scenario whose input could not be derived. It is
	// rendered disabled unless a proposed scenario replaces it.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Key identifies a scenario by endpoint, category and input bindings.
func (s TestScenario) Key() string {
	return s.EndpointID + "|" + string(s.Category) + "|" + inputsFingerprint(s.Inputs)
}

func inputsFingerprint(in Inputs) string {
	b, err := json.Marshal(in)
	if err != nil {
		return "!" + err.Error()
	}
	return string(b)
}

// Valid reports whether the expectation names a usable status or class.
func (e Expectation) Valid() bool {
	if e.Status != 0 {
		return e.Status >= 100 && e.Status <= 599
	}
	return e.Class >= 1 && e.Class <= 5
}

// Matches reports whether two expectations assert the same outcome.
func (e Expectation) Matches(o Expectation) bool {
	return e.Status == o.Status && e.Class == o.Class
}

func (e Expectation) String() string {
	if e.Status != 0 {
		return strconv.Itoa(e.Status)
	}
	if e.Class != 0 {
		return strconv.Itoa(e.Class) + "XX"
	}
	return "any"
}

// Get returns the binding value for name.
func Get(bs []Binding, name string) (string, bool) {
	for _, b := range bs {
		if b.Name == name {
			return b.Value, true
		}
	}
	return "", false
}

func with(bs []Binding, name, value string) []Binding {
	out := make([]Binding, 0, len(bs)+1)
	replaced := false
	for _, b := range bs {
		if b.Name == name {
			b.Value = value
			replaced = true
		}
		out = append(out, b)
	}
	if !replaced {
		out = append(out, Binding{Name: name, Value: value})
	}
	return out
}

func without(bs []Binding, name string) []Binding {
	var out []Binding
	for _, b := range bs {
		if b.Name != name {
			out = append(out, b)
		}
	}
	return out
}

// clone copies the binding slices and the top-level body map so variants can
// be derived from a shared base.
func (in Inputs) clone() Inputs {
	out := in
	out.Path = append([]Binding(nil), in.Path...)
	out.Query = append([]Binding(nil), in.Query...)
	out.Header = append([]Binding(nil), in.Header...)
	out.Cookie = append([]Binding(nil), in.Cookie...)
	if m, ok := in.Body.(map[string]any); ok {
		cp := make(map[string]any, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out.Body = cp
	}
	return out
}

func (in *Inputs) bindings(loc spec.Location) *[]Binding {
	switch loc {
	case spec.InPath:
		return &in.Path
	case spec.InQuery:
		return &in.Query
	case spec.InHeader:
		return &in.Header
	default:
		return &in.Cookie
	}
}

// LowerCamel turns an arbitrary identifier into lowerCamelCase ASCII.
func LowerCamel(s string) string {
	words := splitWords(s)
	var b strings.Builder
	for i, w := range words {
		if i == 0 {
			b.WriteString(strings.ToLower(w))
			continue
		}
		b.WriteString(upperFirst(strings.ToLower(w)))
	}
	return b.String()
}

func upperCamel(s string) string {
	return upperFirst(LowerCamel(s))
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// splitWords breaks on non-alphanumerics and lower-to-upper transitions.
func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}
