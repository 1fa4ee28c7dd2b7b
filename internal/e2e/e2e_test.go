package e2e

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	cli "github.com/mark3labs/spec2test/internal/cli"
)

// minimal OpenAPI v3 spec with a single endpoint
const minimalSpec = "" +
	"openapi: 3.0.0\n" +
	"info:\n" +
	"  title: E2E Sample\n" +
	"  version: '1.0.0'\n" +
	"paths:\n" +
	"  /pets:\n" +
	"    get:\n" +
	"      summary: List pets\n" +
	"      tags: [read]\n" +
	"      parameters:\n" +
	"        - {in: query, name: tag, schema: {type: string}}\n" +
	"        - {in: query, name: limit, schema: {type: integer, minimum: 1, maximum: 50}}\n" +
	"      responses:\n" +
	"        '200':\n" +
	"          description: ok\n" +
	"          content:\n" +
	"            application/json:\n" +
	"              schema:\n" +
	"                type: array\n" +
	"                items:\n" +
	"                  type: string\n" +
	"        '400':\n" +
	"          description: bad request\n"

func writeTempSpec(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "spec.yaml")
	if err := os.WriteFile(p, []byte(minimalSpec), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return p
}

func runCLI(t *testing.T, args ...string) {
	t.Helper()
	root := cli.NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--events", "none"))
	if err := root.Execute(); err != nil {
		t.Fatalf("cli execute %v: %v", args, err)
	}
}

// freshOut returns a not yet existing output directory. Every call shares
// the base name so generated project names match across runs.
func freshOut(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "api-tests")
}

func digestDir(t *testing.T, dir string) (files []string, sum string) {
	t.Helper()
	var list []string
	h := sha256.New()
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		list = append(list, rel)
		// hash path + contents to be robust
		_, _ = h.Write([]byte(rel))
		b, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		_, _ = h.Write(b)
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	sort.Strings(list)
	return list, hex.EncodeToString(h.Sum(nil))
}

const testClass = "src/test/java/com/example/api/GetPetsTest.java"

func TestE2E_Generate_Deterministic(t *testing.T) {
	t.Parallel()
	spec := writeTempSpec(t)
	dir1 := freshOut(t)
	dir2 := freshOut(t)

	runCLI(t, "generate", "--spec", spec, "--output", dir1)
	runCLI(t, "generate", "--spec", spec, "--output", dir2, "--workers", "1")

	files1, sum1 := digestDir(t, dir1)
	files2, sum2 := digestDir(t, dir2)
	if !slicesEqual(files1, files2) || sum1 != sum2 {
		t.Fatalf("generated outputs differ between runs\nfiles1=%v\nfiles2=%v\nsum1=%s\nsum2=%s", files1, files2, sum1, sum2)
	}

	want := []string{
		".gitignore",
		"README.md",
		"build.gradle",
		"settings.gradle",
		testClass,
		"src/test/resources/spec2test.properties",
	}
	if !slicesEqual(files1, want) {
		t.Fatalf("unexpected file set: %v", files1)
	}

	src := readFile(t, filepath.Join(dir1, testClass))
	for _, s := range []string{"@Test", "matchesJsonSchema(RESPONSE_200_SCHEMA)", ".statusCode(400)", "[boundary]"} {
		if !strings.Contains(src, s) {
			t.Errorf("test class missing %q", s)
		}
	}
	if strings.Contains(src, "@Disabled") {
		t.Errorf("every declared response should have a derived input")
	}

	// Optional: build the generated project when Gradle and network are available
	if os.Getenv("SPEC2TEST_E2E_ONLINE") == "1" && haveCmd("gradle") {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		cmd := exec.CommandContext(ctx, "gradle", "compileTestJava", "--offline")
		cmd.Dir = dir1
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("gradle build skipped (likely offline or missing deps): %v\n%s", err, string(out))
		}
	}
}

func TestE2E_Merge_IdempotentAndPreserving(t *testing.T) {
	t.Parallel()
	spec := writeTempSpec(t)
	dir := t.TempDir()
	own := map[string]string{
		"build.gradle":                         "// hand-written build\n",
		"src/test/java/com/acme/Existing.java": "package com.acme;\nclass Existing {}\n",
	}
	for rel, content := range own {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	runCLI(t, "generate", "--spec", spec, "--output", dir, "--mode", "merge")
	files1, sum1 := digestDir(t, dir)
	st1, err := os.Stat(filepath.Join(dir, testClass))
	if err != nil {
		t.Fatalf("stat generated class: %v", err)
	}

	runCLI(t, "generate", "--spec", spec, "--output", dir, "--mode", "merge")
	files2, sum2 := digestDir(t, dir)
	if !slicesEqual(files1, files2) || sum1 != sum2 {
		t.Fatalf("second merge changed the tree\nfiles1=%v\nfiles2=%v", files1, files2)
	}
	st2, err := os.Stat(filepath.Join(dir, testClass))
	if err != nil {
		t.Fatalf("stat generated class: %v", err)
	}
	if !st1.ModTime().Equal(st2.ModTime()) {
		t.Errorf("unchanged class was rewritten")
	}

	for rel, content := range own {
		if got := readFile(t, filepath.Join(dir, rel)); got != content {
			t.Errorf("%s modified by merge: %q", rel, got)
		}
	}
	if !slicesEqual(files1, []string{"build.gradle", "src/test/java/com/acme/Existing.java", testClass}) {
		t.Errorf("merge wrote unexpected files: %v", files1)
	}
	src := readFile(t, filepath.Join(dir, testClass))
	if strings.Contains(src, "java.util.Properties") {
		t.Errorf("merge-mode class should not read spec2test.properties")
	}
}

func TestE2E_UnreachableAIDegrades(t *testing.T) {
	t.Setenv("SPEC2TEST_AI_API_KEY", "")
	spec := writeTempSpec(t)
	plain := freshOut(t)
	withAI := freshOut(t)

	runCLI(t, "generate", "--spec", spec, "--output", plain)
	runCLI(t, "generate", "--spec", spec, "--output", withAI,
		"--ai", "--ai-provider", "ollama", "--ai-base-url", "http://127.0.0.1:1/v1", "--ai-timeout", "5s")

	_, sumPlain := digestDir(t, plain)
	_, sumAI := digestDir(t, withAI)
	if sumPlain != sumAI {
		t.Fatalf("output with an unreachable AI service differs from the rule-based output")
	}
}

func TestE2E_AIProposalsAreCached(t *testing.T) {
	t.Setenv("SPEC2TEST_AI_API_KEY", "")
	t.Setenv("SPEC2TEST_AI_MODEL", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OPENAI_API_KEY", "sk-e2e")

	reply := `[{"name": "filter by tag", "description": "Only dogs", "expectedStatus": 200, "inputs": {"query": {"tag": "dog"}}}]`
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		body, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl_e2e",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "```json\n" + reply + "\n```"},
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))

	spec := writeTempSpec(t)
	cache := filepath.Join(t.TempDir(), "cache", "ai.db")
	first := freshOut(t)
	args := []string{"generate", "--spec", spec, "--ai", "--ai-provider", "openai", "--ai-base-url", srv.URL + "/v1", "--ai-cache", cache}

	runCLI(t, append(args, "--output", first)...)
	if calls.Load() != 1 {
		t.Fatalf("expected one provider call, got %d", calls.Load())
	}
	src := readFile(t, filepath.Join(first, testClass))
	for _, s := range []string{"void filterByTag() {", "[ai-suggested] Only dogs", `.queryParam("tag", "dog")`} {
		if !strings.Contains(src, s) {
			t.Errorf("test class missing %q", s)
		}
	}

	// The provider is gone; the cached reply must reproduce the output.
	srv.Close()
	second := freshOut(t)
	runCLI(t, append(args, "--output", second)...)
	_, sum1 := digestDir(t, first)
	_, sum2 := digestDir(t, second)
	if sum1 != sum2 {
		t.Fatalf("cached run differs from the original AI run")
	}
	if calls.Load() != 1 {
		t.Fatalf("cached run reached the provider")
	}
}

func haveCmd(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func slicesEqual(a, b []string) bool {
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
