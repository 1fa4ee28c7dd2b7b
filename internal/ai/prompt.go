package ai

import (
	"bytes"
	"embed"
	"strings"
	"text/template"

	json "github.com/goccy/go-json"

	"github.com/mark3labs/spec2test/internal/scenario"
	"github.com/mark3labs/spec2test/internal/spec"
)

const (
	DefaultScenarioCount = 5
	DefaultGuidelines    = "Prioritize practical API test coverage and avoid duplicate scenarios."
	noBusinessRules      = "- No additional business rules provided."
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var prompts = template.Must(template.New("prompts").ParseFS(templateFS, "templates/*.tmpl"))

type promptParam struct {
	Name     string
	In       spec.Location
	Required bool
	Schema   string
}

type promptBody struct {
	ContentType string
	Required    bool
	Schema      string
}

type promptExisting struct {
	Name     string
	Category scenario.Category
	Expect   string
}

type promptData struct {
	Method        string
	Path          string
	OperationID   string
	Summary       string
	Description   string
	Parameters    []promptParam
	Body          *promptBody
	Responses     []spec.Response
	Existing      []promptExisting
	BusinessRules string
	ScenarioCount int
	Rules         string
}

// renderPrompt returns the system and user messages for one endpoint.
func renderPrompt(reg *spec.Registry, ep *spec.Endpoint, existing []scenario.TestScenario, rules []string, count int, guidelines string) (string, string, error) {
	data := promptData{
		Method:        ep.Method,
		Path:          ep.Path,
		OperationID:   ep.OperationID,
		Summary:       ep.Summary,
		Description:   ep.Description,
		Responses:     ep.Responses,
		BusinessRules: formatBusinessRules(rules),
		ScenarioCount: count,
		Rules:         guidelines,
	}
	for _, p := range ep.Parameters {
		data.Parameters = append(data.Parameters, promptParam{
			Name: p.Name, In: p.In, Required: p.Required, Schema: schemaText(reg, p.Schema),
		})
	}
	if rb := ep.RequestBody; rb != nil {
		data.Body = &promptBody{ContentType: rb.ContentType, Required: rb.Required, Schema: schemaText(reg, rb.Schema)}
	}
	for _, sc := range existing {
		data.Existing = append(data.Existing, promptExisting{Name: sc.Name, Category: sc.Category, Expect: sc.Expect.String()})
	}

	var system, user bytes.Buffer
	if err := prompts.ExecuteTemplate(&system, "system.tmpl", nil); err != nil {
		return "", "", err
	}
	if err := prompts.ExecuteTemplate(&user, "scenarios.tmpl", data); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(system.String()), strings.TrimSpace(user.String()), nil
}

func formatBusinessRules(rules []string) string {
	if len(rules) == 0 {
		return noBusinessRules
	}
	var b strings.Builder
	for _, r := range rules {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func schemaText(reg *spec.Registry, n *spec.SchemaNode) string {
	if n == nil {
		return "{}"
	}
	b, err := json.Marshal(reg.JSONSchema(n))
	if err != nil {
		return "{}"
	}
	return string(b)
}
