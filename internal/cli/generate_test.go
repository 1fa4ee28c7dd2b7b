package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/spec2test/internal/generr"
)

// captureConfig runs the root command with args and returns the resolved
// generate config. Tests using it must not run in parallel: they swap the
// package-level runner.
func captureConfig(t *testing.T, args ...string) (*GenerateConfig, error) {
	t.Helper()
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	var captured *GenerateConfig
	generateRunner = func(ctx context.Context, cfg *GenerateConfig) error {
		captured = cfg
		return nil
	}
	t.Cleanup(func() { generateRunner = runGenerate })

	root.SetArgs(args)
	err := root.Execute()
	return captured, err
}

func TestGenerateConfigFromFlags(t *testing.T) {
	captured, err := captureConfig(t,
		"--verbose",
		"generate",
		"--spec", "spec.yaml",
		"--output", "./build",
		"--mode", "embedded",
		"--base-package", "org.acme.it",
		"--base-url", "https://staging.example.com",
		"--ai",
		"--ai-timeout", "30s",
		"--ai-provider", "Anthropic",
		"--ai-model", "claude",
		"--ai-base-url", "http://proxy",
		"--ai-cache", "cache.db",
		"--context", "rules.md",
		"--overwrite",
		"--workers", "3",
		"--include-tags", "foo,bar",
		"--exclude-tags", "baz",
		"--methods", "get",
		"--events", "JSON",
		"--dry-run",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if captured == nil {
		t.Fatalf("expected config to be captured")
	}

	checks := []struct {
		name      string
		got, want string
	}{
		{"spec", captured.Spec, "spec.yaml"},
		{"output", captured.Output, "./build"},
		{"mode", captured.Mode, "merge"},
		{"base package", captured.BasePackage, "org.acme.it"},
		{"base url", captured.BaseURL, "https://staging.example.com"},
		{"ai provider", captured.AIProvider, "anthropic"},
		{"ai model", captured.AIModel, "claude"},
		{"ai base url", captured.AIBaseURL, "http://proxy"},
		{"ai cache", captured.AICache, "cache.db"},
		{"context", captured.Context, "rules.md"},
		{"events", captured.Events, "json"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %q want %q", c.name, c.got, c.want)
		}
	}
	if !captured.AI || !captured.Overwrite || !captured.DryRun || !captured.Verbose {
		t.Errorf("expected ai, overwrite, dry-run and verbose to be set: %+v", captured)
	}
	if captured.AITimeout != 30*time.Second {
		t.Errorf("ai timeout mismatch: got %s", captured.AITimeout)
	}
	if captured.Workers != 3 {
		t.Errorf("workers mismatch: got %d", captured.Workers)
	}
	if want := []string{"foo", "bar"}; !equalStringSlices(captured.IncludeTags, want) {
		t.Errorf("include tags mismatch: got %v", captured.IncludeTags)
	}
	if want := []string{"baz"}; !equalStringSlices(captured.ExcludeTags, want) {
		t.Errorf("exclude tags mismatch: got %v", captured.ExcludeTags)
	}
	if want := []string{"get"}; !equalStringSlices(captured.Methods, want) {
		t.Errorf("methods mismatch: got %v", captured.Methods)
	}
}

func TestGenerateConfigDefaults(t *testing.T) {
	captured, err := captureConfig(t, "generate", "--spec", "spec.yaml")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if captured.Mode != "new-project" {
		t.Errorf("mode: got %q", captured.Mode)
	}
	if captured.Output != "generated-api-tests" {
		t.Errorf("output: got %q", captured.Output)
	}
	if captured.BasePackage != "com.example.api" || captured.BaseURL != "http://localhost:8080" {
		t.Errorf("java defaults: got %q %q", captured.BasePackage, captured.BaseURL)
	}
	if captured.AITimeout != 15*time.Second {
		t.Errorf("ai timeout: got %s", captured.AITimeout)
	}
	if captured.Events != "auto" || captured.AI {
		t.Errorf("events/ai defaults: got %q %v", captured.Events, captured.AI)
	}
}

func TestGenerateConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := strings.TrimSpace(`spec: config-spec.yaml
output: from-config
mode: standalone
base_package: com.cfg
includeTags:
  - cfgFoo
excludeTags: cfgBar
ai: true
aiTimeout: 5
workers: "2"
dryRun: true
overwrite: false
verbose: true
`) + "\n"

	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	captured, err := captureConfig(t,
		"--config", configPath,
		"generate",
		"--spec", "flag-spec.yaml",
		"--include-tags", "flagTag",
		"--dry-run=false",
		"--overwrite",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if captured == nil {
		t.Fatalf("expected config to be captured")
	}

	if captured.Spec != "flag-spec.yaml" {
		t.Errorf("spec: want %q got %q", "flag-spec.yaml", captured.Spec)
	}
	if captured.Output != "from-config" {
		t.Errorf("output: want from-config got %q", captured.Output)
	}
	if captured.Mode != "new-project" {
		t.Errorf("mode: want new-project got %q", captured.Mode)
	}
	if captured.BasePackage != "com.cfg" {
		t.Errorf("base package: got %q", captured.BasePackage)
	}
	if want := []string{"flagTag"}; !equalStringSlices(captured.IncludeTags, want) {
		t.Errorf("include tags: want %v got %v", want, captured.IncludeTags)
	}
	if want := []string{"cfgBar"}; !equalStringSlices(captured.ExcludeTags, want) {
		t.Errorf("exclude tags: want %v got %v", want, captured.ExcludeTags)
	}
	if !captured.AI {
		t.Errorf("expected ai true from config file")
	}
	if captured.AITimeout != 5*time.Second {
		t.Errorf("ai timeout: got %s", captured.AITimeout)
	}
	if captured.Workers != 2 {
		t.Errorf("workers: got %d", captured.Workers)
	}
	if captured.DryRun {
		t.Errorf("expected dry-run false after flag override")
	}
	if !captured.Overwrite {
		t.Errorf("expected overwrite true after flag override")
	}
	if !captured.Verbose {
		t.Errorf("expected verbose true from config file")
	}
	if captured.ConfigPath != configPath {
		t.Errorf("config path mismatch: got %q", captured.ConfigPath)
	}
}

func TestGenerateConfigRejected(t *testing.T) {
	tmpDir := t.TempDir()
	unknown := filepath.Join(tmpDir, "bad.yaml")
	if err := os.WriteFile(unknown, []byte("unknown: value\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	withKey := filepath.Join(tmpDir, "key.yaml")
	if err := os.WriteFile(withKey, []byte("apiKey: sk-secret\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown key", []string{"--config", unknown, "generate", "--spec", "spec.yaml"}, "unknown field"},
		{"api key in file", []string{"--config", withKey, "generate", "--spec", "spec.yaml"}, "not allowed"},
		{"missing spec", []string{"generate"}, "--spec is required"},
		{"bad mode", []string{"generate", "--spec", "s.yaml", "--mode", "inline"}, "unsupported --mode"},
		{"merge without output", []string{"generate", "--spec", "s.yaml", "--mode", "merge"}, "--output is required"},
		{"bad package", []string{"generate", "--spec", "s.yaml", "--base-package", "com.class"}, "invalid base package"},
		{"bad events", []string{"generate", "--spec", "s.yaml", "--events", "xml"}, "unsupported --events"},
		{"bad provider", []string{"generate", "--spec", "s.yaml", "--ai-provider", "gemini"}, "unsupported --ai-provider"},
		{"negative workers", []string{"generate", "--spec", "s.yaml", "--workers", "-1"}, "must not be negative"},
		{"tag overlap", []string{"generate", "--spec", "s.yaml", "--include-tags", "a", "--exclude-tags", "a"}, "overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := captureConfig(t, tt.args...)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !errors.Is(err, ErrUsage) {
				t.Fatalf("expected usage error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("unexpected error message: %v", err)
			}
		})
	}
}

func TestRunError(t *testing.T) {
	t.Parallel()
	ge := generr.New(generr.UnresolvedReference, "unresolved reference #/components/schemas/Missing").
		At("/tmp/openapi.yaml").WithPointer("#/paths/~1pets/get")
	err := runError(ge, "/tmp/out")
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %T", err)
	}
	for _, want := range []string{"UnresolvedReference:", "Location: /tmp/openapi.yaml", "Pointer: #/paths/~1pets/get"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %q", want, err.Error())
		}
	}

	ioErr := runError(generr.New(generr.IOFailure, "write failed"), "/tmp/out")
	if errors.Is(ioErr, ErrUsage) || !generr.Is(ioErr, generr.IOFailure) {
		t.Errorf("IOFailure should stay a runtime error: %v", ioErr)
	}
	if ExitCode(ioErr) != 1 || ExitCode(err) != 2 {
		t.Errorf("exit codes: got %d and %d", ExitCode(ioErr), ExitCode(err))
	}
	if got := ExitCode(runError(generr.New(generr.Canceled, "run canceled"), "/tmp/out")); got != 130 {
		t.Errorf("canceled exit code: got %d", got)
	}
}

func TestSanitizeProjectName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"My API Tests": "my-api-tests",
		"..":           "",
		"svc_v2.it":    "svc_v2.it",
		"  ":           "",
	}
	for in, want := range tests {
		if got := sanitizeProjectName(in); got != want {
			t.Errorf("sanitizeProjectName(%q) = %q, want %q", in, got, want)
		}
	}
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
