package ai

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// BusinessRules holds free-text requirements per endpoint path. They are
// passed to the model verbatim.
type BusinessRules struct {
	byPath map[string][]string
	order  []string
}

func NewBusinessRules() *BusinessRules {
	return &BusinessRules{byPath: map[string][]string{}}
}

// Add records a rule for path. Blank values are ignored.
func (r *BusinessRules) Add(path, rule string) {
	path, rule = strings.TrimSpace(path), strings.TrimSpace(rule)
	if path == "" || rule == "" {
		return
	}
	if _, ok := r.byPath[path]; !ok {
		r.order = append(r.order, path)
	}
	r.byPath[path] = append(r.byPath[path], rule)
}

// For returns the rules of path. A trailing slash is ignored when no exact
// entry exists.
func (r *BusinessRules) For(path string) []string {
	if r == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	if rules := r.byPath[path]; len(rules) > 0 {
		return append([]string(nil), rules...)
	}
	want := trimTrailingSlash(path)
	for _, p := range r.order {
		if trimTrailingSlash(p) == want {
			return append([]string(nil), r.byPath[p]...)
		}
	}
	return nil
}

// Paths returns the paths with rules in insertion order.
func (r *BusinessRules) Paths() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

func trimTrailingSlash(p string) string {
	p = strings.TrimSpace(p)
	if len(p) > 1 {
		return strings.TrimSuffix(p, "/")
	}
	return p
}

// LoadBusinessRules reads a context file. Files ending in .json hold a map of
// path to rule or rule list, optionally nested under "rulesByEndpointPath";
// anything else is read as Markdown.
func LoadBusinessRules(path string) (*BusinessRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context file %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseBusinessRulesJSON(data)
	}
	return ParseBusinessRulesMarkdown(string(data)), nil
}

func ParseBusinessRulesJSON(data []byte) (*BusinessRules, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid JSON context content: %w", err)
	}
	if nested, ok := root["rulesByEndpointPath"].(map[string]any); ok {
		root = nested
	}
	// JSON objects are unordered once decoded; sort for stable prompts.
	paths := make([]string, 0, len(root))
	for p := range root {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	rules := NewBusinessRules()
	for _, p := range paths {
		switch v := root[p].(type) {
		case string:
			rules.Add(p, v)
		case []any:
			for _, item := range v {
				if item != nil {
					rules.Add(p, fmt.Sprint(item))
				}
			}
		}
	}
	return rules, nil
}

var headingPrefix = regexp.MustCompile(`^#+\s*`)

// ParseBusinessRulesMarkdown reads "# /path" headings followed by "- rule" or
// "* rule" bullets, and standalone "- /path: rule" lines.
func ParseBusinessRulesMarkdown(content string) *BusinessRules {
	rules := NewBusinessRules()
	current := ""
	for _, raw := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if heading := strings.TrimSpace(headingPrefix.ReplaceAllString(line, "")); looksLikePath(heading) {
				current = heading
			}
			continue
		}
		if colon := strings.IndexByte(line, ':'); strings.HasPrefix(line, "-") && colon > 1 {
			maybePath := strings.TrimSpace(line[1:colon])
			maybeRule := strings.TrimSpace(line[colon+1:])
			if looksLikePath(maybePath) && maybeRule != "" {
				rules.Add(maybePath, maybeRule)
				continue
			}
		}
		if (strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ")) && current != "" {
			rules.Add(current, line[2:])
		}
	}
	return rules
}

func looksLikePath(s string) bool {
	return strings.HasPrefix(s, "/")
}
