package emitter

import (
	"bytes"
	"embed"
	"strings"
	"text/template"

	"github.com/mark3labs/spec2test/internal/generr"
)

const (
	DefaultBaseURL     = "http://localhost:8080"
	DefaultProjectName = "generated-api-tests"
	defaultJavaVersion = 17

	// projectMarker is the scaffold file that identifies a spec2test project.
	projectMarker = "src/test/resources/spec2test.properties"
)

//go:embed scaffold/*.tmpl
var scaffoldFS embed.FS

var scaffoldTemplates = template.Must(template.New("scaffold").ParseFS(scaffoldFS, "scaffold/*.tmpl"))

// ScaffoldOptions parameterize the new-project skeleton.
type ScaffoldOptions struct {
	ProjectName string
	BasePackage string
	BaseURL     string
	Title       string // API title, informational
	JavaVersion int
}

// PackagePath is the base package as a directory path.
func (o ScaffoldOptions) PackagePath() string {
	return strings.ReplaceAll(o.BasePackage, ".", "/")
}

var scaffoldFiles = []struct {
	path     string
	template string
}{
	{".gitignore", "gitignore.tmpl"},
	{"README.md", "README.md.tmpl"},
	{"build.gradle", "build.gradle.tmpl"},
	{"settings.gradle", "settings.gradle.tmpl"},
	{projectMarker, "spec2test.properties.tmpl"},
}

// Scaffold renders the non-generated files of a new project.
func Scaffold(opts ScaffoldOptions) ([]GeneratedFile, error) {
	if strings.TrimSpace(opts.ProjectName) == "" {
		opts.ProjectName = DefaultProjectName
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.JavaVersion == 0 {
		opts.JavaVersion = defaultJavaVersion
	}
	out := make([]GeneratedFile, 0, len(scaffoldFiles))
	for _, f := range scaffoldFiles {
		var buf bytes.Buffer
		if err := scaffoldTemplates.ExecuteTemplate(&buf, f.template, opts); err != nil {
			return nil, generr.Wrap(generr.Internal, err, "render %s", f.path).At(f.path)
		}
		out = append(out, GeneratedFile{Path: f.path, Content: buf.Bytes(), TemplateID: "scaffold/" + f.template})
	}
	return out, nil
}
