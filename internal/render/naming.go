package render

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mark3labs/spec2test/internal/generr"
	"github.com/mark3labs/spec2test/internal/scenario"
	"github.com/mark3labs/spec2test/internal/spec"
)

var (
	wordPattern    = regexp.MustCompile(`[A-Za-z0-9]+`)
	packagePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

var javaKeywords = map[string]bool{
	"abstract": true, "assert": true, "boolean": true, "break": true, "byte": true, "case": true,
	"catch": true, "char": true, "class": true, "const": true, "continue": true, "default": true,
	"do": true, "double": true, "else": true, "enum": true, "extends": true, "final": true,
	"finally": true, "float": true, "for": true, "goto": true, "if": true, "implements": true,
	"import": true, "instanceof": true, "int": true, "interface": true, "long": true, "native": true,
	"new": true, "package": true, "private": true, "protected": true, "public": true, "return": true,
	"short": true, "static": true, "strictfp": true, "super": true, "switch": true, "synchronized": true,
	"this": true, "throw": true, "throws": true, "transient": true, "try": true, "void": true,
	"volatile": true, "while": true, "true": true, "false": true, "null": true, "var": true,
	"record": true, "yield": true,
}

// pascal joins the ASCII alphanumeric runs of s, upper-casing the first
// letter of each run and keeping the rest. Casers are not safe for
// concurrent use, so each call builds its own.
func pascal(s string) string {
	title := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, w := range wordPattern.FindAllString(s, -1) {
		b.WriteString(title.String(w))
	}
	return b.String()
}

// ClassName derives the test class for an endpoint: the operationId when it
// yields an identifier, else the method followed by the path segments.
func ClassName(ep *spec.Endpoint) string {
	name := pascal(ep.OperationID)
	if name == "" {
		var b strings.Builder
		b.WriteString(cases.Title(language.Und).String(ep.Method))
		for _, seg := range strings.Split(ep.Path, "/") {
			if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
				b.WriteString("By")
				seg = strings.Trim(seg, "{}")
			}
			b.WriteString(pascal(seg))
		}
		name = b.String()
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "Op" + name
	}
	return name + "Test"
}

// methodNames assigns each scenario a unique Java method name, suffixing
// repeats in order.
func methodNames(scenarios []scenario.TestScenario) []string {
	title := cases.Title(language.Und, cases.NoLower)
	taken := map[string]bool{}
	out := make([]string, len(scenarios))
	for i, sc := range scenarios {
		base := scenario.LowerCamel(sc.Name)
		if base == "" {
			base = "scenario"
		}
		if base[0] >= '0' && base[0] <= '9' || javaKeywords[base] {
			base = "test" + title.String(base)
		}
		name := base
		for n := 2; taken[name]; n++ {
			name = base + strconv.Itoa(n)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

// ValidatePackage checks a dotted Java package name.
func ValidatePackage(pkg string) error {
	if !packagePattern.MatchString(pkg) {
		return generr.New(generr.InvalidInput, "invalid base package %q", pkg)
	}
	for _, part := range strings.Split(pkg, ".") {
		if javaKeywords[part] {
			return generr.New(generr.InvalidInput, "invalid base package %q: %q is a Java keyword", pkg, part)
		}
	}
	return nil
}
