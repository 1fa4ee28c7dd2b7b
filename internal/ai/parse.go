package ai

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	jsValidator "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mark3labs/spec2test/internal/scenario"
	"github.com/mark3labs/spec2test/internal/spec"
)

// ErrMalformedReply marks model output that is not a usable scenario list.
var ErrMalformedReply = errors.New("malformed AI reply")

//go:embed scenarios.schema.json
var replySchemaJSON string

var (
	replySchemaOnce sync.Once
	replySchema     *jsValidator.Schema
	defaultPrinter  = message.NewPrinter(language.English)
)

func compiledReplySchema() *jsValidator.Schema {
	replySchemaOnce.Do(func() {
		doc, err := jsValidator.UnmarshalJSON(strings.NewReader(replySchemaJSON))
		if err != nil {
			panic(err)
		}
		c := jsValidator.NewCompiler()
		if err := c.AddResource("scenarios.schema.json", doc); err != nil {
			panic(err)
		}
		replySchema = c.MustCompile("scenarios.schema.json")
	})
	return replySchema
}

type wireInputs struct {
	Path        map[string]any  `json:"path"`
	Query       map[string]any  `json:"query"`
	Headers     map[string]any  `json:"headers"`
	Cookies     map[string]any  `json:"cookies"`
	Body        json.RawMessage `json:"body"`
	ContentType string          `json:"contentType"`
}

type wireScenario struct {
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Category       string     `json:"category"`
	ExpectedStatus int        `json:"expectedStatus"`
	Inputs         wireInputs `json:"inputs"`
}

// parseReply validates the model's text and converts it into scenarios bound
// to ep. Values for undeclared parameters are dropped. Path parameters the
// reply leaves out are taken from the happy-path scenario in existing.
func parseReply(text string, ep *spec.Endpoint, existing []scenario.TestScenario) ([]scenario.TestScenario, error) {
	text = stripCodeFences(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}

	inst, err := jsValidator.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if err := compiledReplySchema().Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedReply, describeValidation(err))
	}

	var list []wireScenario
	trimmed := []byte(text)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var wrapped struct {
			Scenarios []wireScenario `json:"scenarios"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
		}
		list = wrapped.Scenarios
	} else if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	var happy *scenario.TestScenario
	for i := range existing {
		if existing[i].Category == scenario.HappyPath {
			happy = &existing[i]
			break
		}
	}

	out := make([]scenario.TestScenario, 0, len(list))
	for _, w := range list {
		sc, err := convert(w, ep, happy)
		if err != nil {
			return nil, fmt.Errorf("%w: scenario %q: %v", ErrMalformedReply, w.Name, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

func convert(w wireScenario, ep *spec.Endpoint, happy *scenario.TestScenario) (scenario.TestScenario, error) {
	sc := scenario.TestScenario{
		EndpointID:  ep.ID,
		Category:    scenario.AISuggested,
		Name:        w.Name,
		Description: strings.TrimSpace(w.Description),
		Expect:      expectation(ep, w.ExpectedStatus),
	}

	sources := map[spec.Location]map[string]any{
		spec.InPath:   w.Inputs.Path,
		spec.InQuery:  w.Inputs.Query,
		spec.InHeader: w.Inputs.Headers,
		spec.InCookie: w.Inputs.Cookies,
	}
	for _, p := range ep.Parameters {
		v, ok := lookupParam(sources[p.In], p.Name, p.In == spec.InHeader)
		if !ok && p.In == spec.InPath && happy != nil {
			if hv, found := scenario.Get(happy.Inputs.Path, p.Name); found {
				sc.Inputs.Path = append(sc.Inputs.Path, scenario.Binding{Name: p.Name, Value: hv})
			}
			continue
		}
		if !ok {
			continue
		}
		b := scenario.Binding{Name: p.Name, Value: scenario.WireValue(v)}
		switch p.In {
		case spec.InPath:
			sc.Inputs.Path = append(sc.Inputs.Path, b)
		case spec.InQuery:
			sc.Inputs.Query = append(sc.Inputs.Query, b)
		case spec.InHeader:
			sc.Inputs.Header = append(sc.Inputs.Header, b)
		case spec.InCookie:
			sc.Inputs.Cookie = append(sc.Inputs.Cookie, b)
		}
	}

	if raw := bytes.TrimSpace(w.Inputs.Body); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var body any
		if err := json.Unmarshal(raw, &body); err != nil {
			return scenario.TestScenario{}, err
		}
		sc.Inputs.HasBody = true
		sc.Inputs.Body = body
		sc.Inputs.ContentType = strings.TrimSpace(w.Inputs.ContentType)
		if sc.Inputs.ContentType == "" {
			sc.Inputs.ContentType = "application/json"
			if ep.RequestBody != nil && ep.RequestBody.ContentType != "" {
				sc.Inputs.ContentType = ep.RequestBody.ContentType
			}
		}
	}
	return sc, nil
}

// lookupParam finds name in m. Header names compare case-insensitively.
func lookupParam(m map[string]any, name string, foldCase bool) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	if !foldCase {
		return nil, false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, name) {
			return m[k], true
		}
	}
	return nil, false
}

// expectation targets the exact declared status, else its declared class
// range. Undeclared statuses are kept without a response schema.
func expectation(ep *spec.Endpoint, status int) scenario.Expectation {
	code := strconv.Itoa(status)
	if r, ok := ep.Response(code); ok {
		return scenario.Expectation{Status: status, Declared: code, Schema: r.Schema}
	}
	class := code[:1] + "XX"
	if r, ok := ep.Response(class); ok {
		return scenario.Expectation{Status: status, Declared: class, Schema: r.Schema}
	}
	return scenario.Expectation{Status: status}
}

// stripCodeFences removes a surrounding Markdown code block, if any.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// describeValidation reports the first leaf cause of a validation failure.
func describeValidation(err error) string {
	var verr *jsValidator.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	loc := "/" + strings.Join(verr.InstanceLocation, "/")
	return loc + ": " + verr.ErrorKind.LocalizedString(defaultPrinter)
}
