package spec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/spec2test/internal/generr"
)

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option { return func(s *Settings) { s.BackoffBase = d } }

// Load reads a single OpenAPI 3.0 or Swagger 2.0 document and returns its
// normalized, reference-free form.
//
// input may be a filesystem path or an http/https URL. file:// URLs are
// blocked. External references are never followed.
func Load(ctx context.Context, input string, opts ...Option) (*Document, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, generr.New(generr.InvalidInput, "spec: input is empty")
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	raw, location, err := readInput(ctx, input, settings)
	if err != nil {
		return nil, err
	}
	return parse(ctx, raw, location)
}

// LoadData normalizes an in-memory document.
func LoadData(ctx context.Context, data []byte) (*Document, error) {
	return parse(ctx, data, "<inline>")
}

func readInput(ctx context.Context, input string, settings Settings) ([]byte, string, error) {
	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && (u.Host != "" || strings.EqualFold(u.Scheme, "file"))
	if isURL {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "file" {
			return nil, input, generr.New(generr.InvalidInput, "spec: file:// URLs are blocked").At(input)
		}
		if scheme != "http" && scheme != "https" {
			return nil, input, generr.New(generr.InvalidInput, "spec: unsupported URL scheme %q (only http/https allowed)", scheme).At(input)
		}
		raw, err := fetchWithRetry(ctx, input, settings)
		if err != nil {
			return nil, input, generr.Wrap(generr.InvalidInput, err, "fetch %s", input).At(input)
		}
		return raw, input, nil
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, input, generr.Wrap(generr.InvalidInput, err, "resolve path").At(input)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, abs, generr.Wrap(generr.InvalidInput, err, "read file %s", abs).At(abs)
	}
	return raw, abs, nil
}

func parse(ctx context.Context, raw []byte, location string) (*Document, error) {
	var root any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, generr.Wrap(generr.MalformedDocument, err, "parse spec").At(location)
	}
	tree, ok := stringKeys(root).(map[string]any)
	if !ok {
		return nil, generr.New(generr.MalformedDocument, "spec: document root must be a mapping").At(location)
	}

	version, major, err := detectSpecVersion(tree)
	if err != nil {
		var ge *generr.Error
		if errors.As(err, &ge) {
			ge.Location = location
		}
		return nil, err
	}

	if err := checkRefs(tree); err != nil {
		err.Location = location
		return nil, err
	}

	if major == 2 {
		repairV2Operations(tree)
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, generr.Wrap(generr.MalformedDocument, err, "encode spec").At(location)
	}
	if major == 2 {
		data, err = convertV2ToV3(data)
		if err != nil {
			return nil, generr.Wrap(generr.MalformedDocument, err, "convert v2 to v3").At(location)
		}
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, mapValidateOrParseErr(err, location)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, mapValidateOrParseErr(err, location)
	}

	out, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	out.SourceVersion = version
	return out, nil
}

// detectSpecVersion returns the declared version and its major number. Only
// OpenAPI 3.0.x and Swagger 2.0 are accepted.
func detectSpecVersion(root map[string]any) (string, int, error) {
	if v, ok := root["openapi"]; ok {
		s := versionString(v)
		if s == "3" || strings.HasPrefix(s, "3.0") {
			return s, 3, nil
		}
		return s, 0, generr.New(generr.UnsupportedVersion, "spec: unsupported OpenAPI version %q (expected 3.0.x)", s).WithPointer("#/openapi")
	}
	if v, ok := root["swagger"]; ok {
		s := versionString(v)
		if s == "2" || s == "2.0" {
			return s, 2, nil
		}
		return s, 0, generr.New(generr.UnsupportedVersion, "spec: unsupported Swagger version %q (expected 2.0)", s).WithPointer("#/swagger")
	}
	return "", 0, generr.New(generr.MalformedDocument, "spec: missing version (expected 'openapi: 3.0.x' or 'swagger: 2.0')")
}

func versionString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprint(v)
	}
}

func convertV2ToV3(data []byte) ([]byte, error) {
	var v2 openapi2.T
	if err := json.Unmarshal(data, &v2); err != nil {
		return nil, err
	}
	v3, err := openapi2conv.ToV3(&v2)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v3)
}

// stringKeys converts YAML maps with non-string keys (e.g. unquoted status
// codes) into map[string]any so the tree can be re-encoded as JSON.
func stringKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = stringKeys(child)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	case []any:
		for i, child := range val {
			val[i] = stringKeys(child)
		}
		return val
	default:
		return v
	}
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	var lastErr error
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		body, retry, err := fetchOnce(ctx, client, rawURL)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

func fetchOnce(ctx context.Context, client *http.Client, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		return body, false, err
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("transient http error %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return nil, false, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func mapValidateOrParseErr(err error, location string) error {
	return &generr.Error{
		Code:     generr.MalformedDocument,
		Message:  "spec: " + err.Error(),
		Location: location,
		Pointer:  extractJSONPointer(err),
		Cause:    err,
	}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'\"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	if me, ok := err.(openapi3.MultiError); ok {
		if len(me) > 0 {
			return extractJSONPointer(me[0])
		}
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
		if se.SchemaField != "" {
			return se.SchemaField
		}
	}
	if m := jsonPtrRe.FindString(err.Error()); m != "" {
		return m
	}
	return ""
}
