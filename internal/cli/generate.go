package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/mark3labs/spec2test/internal/ai"
	"github.com/mark3labs/spec2test/internal/emitter"
	"github.com/mark3labs/spec2test/internal/engine"
	"github.com/mark3labs/spec2test/internal/generr"
	"github.com/mark3labs/spec2test/internal/render"
	"github.com/mark3labs/spec2test/internal/scenario"
	"github.com/mark3labs/spec2test/internal/spec"
)

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Spec        string
	Output      string
	Mode        string
	BasePackage string
	BaseURL     string

	AI         bool
	AITimeout  time.Duration
	AIProvider string
	AIModel    string
	AIBaseURL  string
	AICache    string
	Context    string

	Overwrite   bool
	Workers     int
	IncludeTags []string
	ExcludeTags []string
	Methods     []string
	Events      string
	ConfigPath  string
	DryRun      bool
	Verbose     bool
}

const (
	eventsAuto = "auto"
	eventsText = "text"
	eventsJSON = "json"
	eventsNone = "none"
)

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		Mode:        emitter.NewProject.String(),
		BasePackage: render.DefaultBasePackage,
		BaseURL:     emitter.DefaultBaseURL,
		AITimeout:   scenario.DefaultTimeout,
		Events:      eventsAuto,
	}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate JUnit 5 / RestAssured tests from an OpenAPI document",
		Long: "Generate a JUnit 5 / RestAssured test suite from an OpenAPI 3.0 or Swagger 2.0 document. " +
			"Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  spec2test generate --spec openapi.yaml --output ./api-tests
  spec2test generate --spec openapi.yaml --output ./existing-project --mode merge
  spec2test --config spec2test.yaml generate --ai --ai-provider openai --context rules.md`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("spec", "", "Path or http(s) URL of the OpenAPI/Swagger document")
	flags.StringP("output", "o", "", "Output directory (defaults to "+emitter.DefaultProjectName+" for new projects)")
	flags.String("mode", "", "Output mode: new-project or merge")
	flags.String("base-package", "", "Java package of the generated test classes")
	flags.String("base-url", "", "Base URL the generated tests target by default")
	flags.Bool("ai", false, "Augment rule-based scenarios with AI proposals")
	flags.Duration("ai-timeout", 0, "Per-endpoint time box for AI proposals")
	flags.String("ai-provider", "", "AI provider: openai, ollama or anthropic")
	flags.String("ai-model", "", "AI model name")
	flags.String("ai-base-url", "", "AI API base URL")
	flags.String("ai-cache", "", "SQLite file caching AI replies")
	flags.String("context", "", "Business rules file (Markdown or JSON) fed to the AI prompt")
	flags.Bool("overwrite", false, "Allow a new project in a non-empty directory")
	flags.Int("workers", 0, "Endpoints processed concurrently (0 = by CPU count)")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
	flags.StringSlice("methods", nil, "Only include these HTTP methods")
	flags.String("events", "", "Progress events: auto, text, json or none")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	strs := map[string]*string{
		"spec":         &cfg.Spec,
		"output":       &cfg.Output,
		"mode":         &cfg.Mode,
		"base-package": &cfg.BasePackage,
		"base-url":     &cfg.BaseURL,
		"ai-provider":  &cfg.AIProvider,
		"ai-model":     &cfg.AIModel,
		"ai-base-url":  &cfg.AIBaseURL,
		"ai-cache":     &cfg.AICache,
		"context":      &cfg.Context,
		"events":       &cfg.Events,
	}
	for name, dst := range strs {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(value)
	}

	bools := map[string]*bool{
		"ai":        &cfg.AI,
		"overwrite": &cfg.Overwrite,
		"dry-run":   &cfg.DryRun,
		"verbose":   &cfg.Verbose,
	}
	for name, dst := range bools {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = value
	}

	lists := map[string]*[]string{
		"include-tags": &cfg.IncludeTags,
		"exclude-tags": &cfg.ExcludeTags,
		"methods":      &cfg.Methods,
	}
	for name, dst := range lists {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetStringSlice(name)
		if err != nil {
			return err
		}
		*dst = sanitizeTags(value)
	}

	if flags.Changed("ai-timeout") {
		value, err := flags.GetDuration("ai-timeout")
		if err != nil {
			return err
		}
		cfg.AITimeout = value
	}
	if flags.Changed("workers") {
		value, err := flags.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Workers = value
	}

	return nil
}

func (c *GenerateConfig) normalize() {
	c.Spec = strings.TrimSpace(c.Spec)
	c.Output = strings.TrimSpace(c.Output)
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.BasePackage = strings.TrimSpace(c.BasePackage)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.AIProvider = strings.ToLower(strings.TrimSpace(c.AIProvider))
	c.AIModel = strings.TrimSpace(c.AIModel)
	c.AIBaseURL = strings.TrimSpace(c.AIBaseURL)
	c.AICache = strings.TrimSpace(c.AICache)
	c.Context = strings.TrimSpace(c.Context)
	c.Events = strings.ToLower(strings.TrimSpace(c.Events))
	if c.Events == "" {
		c.Events = eventsAuto
	}
	c.IncludeTags = sanitizeTags(c.IncludeTags)
	c.ExcludeTags = sanitizeTags(c.ExcludeTags)
	c.Methods = sanitizeTags(c.Methods)
	if c.BasePackage == "" {
		c.BasePackage = render.DefaultBasePackage
	}
	if c.BaseURL == "" {
		c.BaseURL = emitter.DefaultBaseURL
	}
}

func (c *GenerateConfig) validate() error {
	if c.Spec == "" {
		return newUsageError("generate: --spec is required (set via flag or config file)")
	}

	mode, err := emitter.ParseMode(c.Mode)
	if err != nil {
		return newUsageError(fmt.Sprintf("generate: unsupported --mode %q (allowed: new-project, merge)", c.Mode))
	}
	c.Mode = mode.String()
	if c.Output == "" {
		if mode == emitter.Merge {
			return newUsageError("generate: --output is required in merge mode")
		}
		c.Output = emitter.DefaultProjectName
	}

	if err := render.ValidatePackage(c.BasePackage); err != nil {
		return newUsageError("generate: " + err.Error())
	}

	switch c.Events {
	case eventsAuto, eventsText, eventsJSON, eventsNone:
	default:
		return newUsageError(fmt.Sprintf("generate: unsupported --events %q (allowed: auto, text, json, none)", c.Events))
	}

	if c.Workers < 0 {
		return newUsageError("generate: --workers must not be negative")
	}
	if c.AITimeout <= 0 {
		return newUsageError("generate: --ai-timeout must be positive")
	}
	switch c.AIProvider {
	case "", ai.ProviderOpenAI, ai.ProviderOllama, ai.ProviderAnthropic:
	default:
		return newUsageError(fmt.Sprintf("generate: unsupported --ai-provider %q (allowed: openai, ollama, anthropic)", c.AIProvider))
	}

	overlap := intersect(c.IncludeTags, c.ExcludeTags)
	if len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("generate: include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}

	return nil
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	logger := newLogger(os.Stderr, cfg.Verbose)
	mode, err := emitter.ParseMode(cfg.Mode)
	if err != nil {
		return newUsageError(err.Error())
	}

	absOut := cfg.Output
	if ap, err := filepath.Abs(cfg.Output); err == nil {
		absOut = ap
	}

	rc := engine.RunContext{
		Config: engine.Config{
			SpecPath:    cfg.Spec,
			OutputDir:   absOut,
			Mode:        mode,
			BasePackage: cfg.BasePackage,
			BaseURL:     cfg.BaseURL,
			ProjectName: sanitizeProjectName(filepath.Base(absOut)),
			AIEnabled:   cfg.AI,
			AITimeout:   cfg.AITimeout,
			Overwrite:   cfg.Overwrite,
			DryRun:      cfg.DryRun,
			Workers:     cfg.Workers,
			IncludeTags: cfg.IncludeTags,
			ExcludeTags: cfg.ExcludeTags,
			Methods:     cfg.Methods,
		},
		Sink:   eventSink(cfg.Events, os.Stdout, logger, cfg.Verbose),
		Logger: logger,
	}

	if cfg.AI {
		factory, closeAI, err := newProposerFactory(cfg, logger)
		if err != nil {
			return err
		}
		defer closeAI()
		rc.Proposer = factory
	}

	sum, err := engine.Run(ctx, rc)
	if err != nil {
		return runError(err, absOut)
	}

	if cfg.DryRun {
		printPlan(os.Stdout, absOut, sum.Emit.Planned)
		return nil
	}
	logger.Info("generation finished",
		"output", absOut,
		"endpoints", sum.Endpoints,
		"scenarios", sum.Scenarios,
		"proposed", sum.Proposed,
		"written", sum.Emit.Written,
	)
	return nil
}

// newProposerFactory wires the AI proposer. A provider that cannot be
// configured from the environment does not fail the run: every endpoint
// reports the reason and keeps its rule-based scenarios.
func newProposerFactory(cfg *GenerateConfig, logger *slog.Logger) (engine.ProposerFactory, func(), error) {
	var rules *ai.BusinessRules
	if cfg.Context != "" {
		r, err := ai.LoadBusinessRules(cfg.Context)
		if err != nil {
			return nil, nil, newUsageError(fmt.Sprintf("generate: %v", err))
		}
		rules = r
	}

	aiCfg, err := ai.ConfigFromEnv(cfg.AIProvider, cfg.AIModel, cfg.AIBaseURL, os.Getenv)
	if err != nil {
		return nil, nil, newUsageError(fmt.Sprintf("generate: %v", err))
	}
	gen, genErr := ai.NewGenerator(aiCfg)
	if genErr != nil {
		logger.Warn("AI augmentation unavailable", "provider", aiCfg.Provider, "error", genErr)
		unavailable := scenario.ProposerFunc(func(context.Context, *spec.Endpoint, []scenario.TestScenario) ([]scenario.TestScenario, error) {
			return nil, genErr
		})
		return func(*spec.Registry) scenario.Proposer { return unavailable }, func() {}, nil
	}

	var cache *ai.Cache
	if cfg.AICache != "" {
		c, err := ai.OpenCache(cfg.AICache)
		if err != nil {
			return nil, nil, newUsageError(fmt.Sprintf("generate: open AI cache %s: %v", cfg.AICache, err))
		}
		cache = c
	}
	closeFn := func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close AI cache", "error", err)
		}
	}

	factory := func(schemas *spec.Registry) scenario.Proposer {
		return ai.NewProposer(gen, schemas,
			ai.WithBusinessRules(rules),
			ai.WithCache(cache, aiCfg.Provider, aiCfg.Model),
			ai.WithLogger(logger),
		)
	}
	return factory, closeFn, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// eventSink picks the progress format. auto means text on a terminal and
// JSON lines otherwise.
func eventSink(format string, out *os.File, logger *slog.Logger, verbose bool) engine.Sink {
	var sink engine.Sink
	switch format {
	case eventsText:
		sink = engine.Text(out)
	case eventsJSON:
		sink = engine.JSONLines(out)
	case eventsNone:
		sink = engine.Discard
	default:
		if term.IsTerminal(int(out.Fd())) {
			sink = engine.Text(out)
		} else {
			sink = engine.JSONLines(out)
		}
	}
	if verbose {
		return engine.Multi(sink, engine.Slog(logger))
	}
	return sink
}

func printPlan(w io.Writer, outDir string, planned []emitter.PlannedFile) {
	fmt.Fprintf(w, "Planned writes to %s (%d files):\n", outDir, len(planned))
	for _, p := range planned {
		fmt.Fprintf(w, "- %s (%s, %d bytes)\n", p.RelPath, p.Action, p.Size)
	}
}

// runError turns engine failures into user-facing messages. Problems with the
// inputs or the destination become usage errors.
func runError(err error, outDir string) error {
	var ge *generr.Error
	if !errors.As(err, &ge) {
		return err
	}
	msg := fmt.Sprintf("%s: %s", ge.Code, ge.Message)
	if ge.Location != "" {
		msg = fmt.Sprintf("%s\nLocation: %s", msg, ge.Location)
	}
	if ge.Pointer != "" {
		msg = fmt.Sprintf("%s\nPointer: %s", msg, ge.Pointer)
	}
	switch ge.Code {
	case generr.DestinationNotEmpty:
		return newUsageError(fmt.Sprintf("%s\nHint: choose a different --output, use --overwrite, or --mode merge.", msg))
	case generr.IOFailure:
		return fmt.Errorf("output error for %s: %s: %w", outDir, msg, err)
	case generr.Canceled, generr.Internal:
		return fmt.Errorf("%s: %w", msg, err)
	default:
		return newUsageError(msg)
	}
}

func sanitizeProjectName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "-.")
	return out
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}
