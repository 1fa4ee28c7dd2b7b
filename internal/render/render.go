// Package render turns an endpoint and its scenarios into a JUnit 5 test
// class driving RestAssured.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strconv"
	"strings"
	"text/template"

	json "github.com/goccy/go-json"

	"github.com/mark3labs/spec2test/internal/emitter"
	"github.com/mark3labs/spec2test/internal/generr"
	"github.com/mark3labs/spec2test/internal/scenario"
	"github.com/mark3labs/spec2test/internal/spec"
)

const DefaultBasePackage = "com.example.api"

//go:embed templates/*.tmpl
var templateFS embed.FS

// Options are the per-run rendering settings.
type Options struct {
	BasePackage string
	BaseURL     string
	Mode        emitter.Mode
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.BasePackage) == "" {
		o.BasePackage = DefaultBasePackage
	}
	if strings.TrimSpace(o.BaseURL) == "" {
		o.BaseURL = emitter.DefaultBaseURL
	}
	if o.Mode == 0 {
		o.Mode = emitter.NewProject
	}
	return o
}

// Target is the output location chosen for one endpoint.
type Target struct {
	EndpointID string
	ClassName  string
	Path       string
}

// Plan assigns every endpoint its output file. Two endpoints whose paths
// differ only in case collide, since they cannot coexist on every
// filesystem.
func Plan(endpoints []*spec.Endpoint, opts Options) ([]Target, error) {
	opts = opts.withDefaults()
	if err := ValidatePackage(opts.BasePackage); err != nil {
		return nil, err
	}
	dir := path.Join("src/test/java", strings.ReplaceAll(opts.BasePackage, ".", "/"))

	owner := map[string]string{}
	targets := make([]Target, 0, len(endpoints))
	for _, ep := range endpoints {
		class := ClassName(ep)
		p := path.Join(dir, class+".java")
		key := strings.ToLower(p)
		if prev, ok := owner[key]; ok {
			return nil, generr.New(generr.NameCollision,
				"endpoints %s and %s both render to %s", prev, ep.ID, p).At(ep.ID)
		}
		owner[key] = ep.ID
		targets = append(targets, Target{EndpointID: ep.ID, ClassName: class, Path: p})
	}
	return targets, nil
}

// shape and mode select the request and setup templates.
type variant struct {
	shape string // with-body or bodiless
	mode  emitter.Mode
}

func (v variant) id() string { return "junit5/" + v.shape + "/" + v.mode.String() }

var variants = buildVariants()

func buildVariants() map[variant]*template.Template {
	funcs := template.FuncMap{"javaString": javaString}
	base := template.Must(template.New("java").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl"))
	out := map[variant]*template.Template{}
	for _, shape := range []string{"with-body", "bodiless"} {
		for _, mode := range []emitter.Mode{emitter.NewProject, emitter.Merge} {
			t := template.Must(base.Clone())
			template.Must(t.AddParseTree("request", base.Lookup("request."+shape).Tree))
			template.Must(t.AddParseTree("setup", base.Lookup("setup."+mode.String()).Tree))
			out[variant{shape: shape, mode: mode}] = t
		}
	}
	return out
}

type schemaConst struct {
	Name string
	JSON string
}

type testCase struct {
	Name        string
	DisplayName string
	Disabled    string
	Inputs      scenario.Inputs
	ContentType string
	HasBody     bool
	Body        string
	Status      string
	Schema      string
}

type classData struct {
	Package        string
	ClassName      string
	Method         string
	Path           string
	BaseURL        string
	UsesProperties bool
	UsesDisabled   bool
	UsesSchema     bool
	UsesRange      bool
	Schemas        []schemaConst
	Tests          []testCase
}

// Render produces the test class for one endpoint. The output depends only
// on its arguments.
func Render(reg *spec.Registry, ep *spec.Endpoint, scenarios []scenario.TestScenario, target Target, opts Options) (emitter.GeneratedFile, error) {
	opts = opts.withDefaults()
	v := variant{shape: "bodiless", mode: opts.Mode}
	if ep.RequestBody != nil {
		v.shape = "with-body"
	}
	tmpl, ok := variants[v]
	if !ok {
		return emitter.GeneratedFile{}, generr.New(generr.Internal, "no template for %s", v.id()).At(ep.ID)
	}

	data := classData{
		Package:        opts.BasePackage,
		ClassName:      target.ClassName,
		Method:         ep.Method,
		Path:           ep.Path,
		BaseURL:        opts.BaseURL,
		UsesProperties: opts.Mode == emitter.NewProject,
	}

	schemaNames := map[string]string{}
	names := methodNames(scenarios)
	for i, sc := range scenarios {
		tc := testCase{
			Name:        names[i],
			DisplayName: displayName(ep, sc),
			Inputs:      sc.Inputs,
			ContentType: sc.Inputs.ContentType,
			HasBody:     sc.Inputs.HasBody,
			Status:      statusMatcher(sc.Expect),
		}
		if tc.HasBody {
			body, err := bodyText(sc.Inputs)
			if err != nil {
				return emitter.GeneratedFile{}, generr.Wrap(generr.Internal, err, "encode body of %s", sc.Name).At(ep.ID)
			}
			tc.Body = body
		}
		if sc.Placeholder {
			tc.Disabled = fmt.Sprintf("no input derived for response %s", sc.Expect)
			data.UsesDisabled = true
		}
		if sc.Expect.Status == 0 {
			data.UsesRange = true
		}
		if r, ok := ep.Response(sc.Expect.Declared); ok && r.Schema != nil && isJSON(r.ContentType) {
			name, seen := schemaNames[r.Status]
			if !seen {
				doc, err := json.Marshal(reg.JSONSchema(r.Schema))
				if err != nil {
					return emitter.GeneratedFile{}, generr.Wrap(generr.Internal, err, "encode schema for %s", r.Status).At(ep.ID)
				}
				name = "RESPONSE_" + strings.ToUpper(r.Status) + "_SCHEMA"
				schemaNames[r.Status] = name
				data.Schemas = append(data.Schemas, schemaConst{Name: name, JSON: string(doc)})
			}
			tc.Schema = name
			data.UsesSchema = true
		}
		data.Tests = append(data.Tests, tc)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "class", data); err != nil {
		return emitter.GeneratedFile{}, generr.Wrap(generr.Internal, err, "render %s", target.Path).At(ep.ID)
	}
	return emitter.GeneratedFile{Path: target.Path, Content: buf.Bytes(), TemplateID: v.id()}, nil
}

func displayName(ep *spec.Endpoint, sc scenario.TestScenario) string {
	label := sc.Description
	if label == "" {
		label = sc.Name
	}
	return fmt.Sprintf("%s %s [%s] %s", ep.Method, ep.Path, sc.Category, label)
}

func statusMatcher(e scenario.Expectation) string {
	if e.Status != 0 {
		return strconv.Itoa(e.Status)
	}
	lo := e.Class * 100
	return fmt.Sprintf("allOf(greaterThanOrEqualTo(%d), lessThan(%d))", lo, lo+100)
}

// bodyText is the literal request body. JSON bodies are encoded with sorted
// keys; a string body for a non-JSON media type is sent as is.
func bodyText(in scenario.Inputs) (string, error) {
	if in.RawBody != "" {
		return in.RawBody, nil
	}
	if s, ok := in.Body.(string); ok && !isJSON(in.ContentType) {
		return s, nil
	}
	b, err := json.Marshal(in.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.Contains(ct, "json")
}

// javaString quotes s as a Java string literal.
func javaString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			// Octal, not \u: unicode escapes are decoded before lexing.
			if r < 0x20 {
				fmt.Fprintf(&b, `\%03o`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
