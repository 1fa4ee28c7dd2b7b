package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const defaultConfigFile = "spec2test.yaml"

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample spec2test configuration file",
		Long:  "Scaffold a commented spec2test configuration file that documents available options.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", defaultConfigFile, "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = defaultConfigFile
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	content := strings.TrimSpace(sampleConfigYAML) + "\n"

	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# spec2test configuration (YAML or JSON)
# All fields are optional. Command-line flags override config values.

# Path or URL to the OpenAPI 3.0 / Swagger 2.0 document (http/https or local file).
# spec: ./openapi.yaml

# Output directory. Defaults to generated-api-tests for new projects.
# output: ./api-tests

# new-project writes a complete Gradle project; merge adds test classes to an
# existing one and leaves every other file alone.
# mode: new-project

# Java package of the generated test classes.
# basePackage: com.example.api

# Base URL the tests target. Override at test time with -Dspec2test.baseUrl=...
# baseUrl: http://localhost:8080

# Only include operations with these tags / methods (comma-separated or list).
# includeTags: [public,read]
# excludeTags: [internal]
# methods: [GET, POST]

# Allow a new project in a non-empty directory.
# overwrite: false

# Endpoints processed concurrently; 0 sizes the pool by CPU count.
# workers: 0

# AI augmentation. API keys are read from the environment only
# (SPEC2TEST_AI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY).
# ai: false
# aiProvider: ollama        # openai | ollama | anthropic
# aiModel: llama3.1
# aiBaseUrl: http://localhost:11434/v1
# aiTimeout: 15s
# aiCache: .spec2test/ai-cache.db

# Business rules (Markdown or JSON) added to the AI prompt per endpoint path.
# context: ./business-rules.md

# Progress events on stdout: auto (text on a terminal, JSON lines otherwise),
# text, json or none.
# events: auto

# Preview planned outputs without writing files.
# dryRun: false

# Enable verbose logging.
# verbose: false
`
