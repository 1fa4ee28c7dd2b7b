// Package engine runs one generation: load the document, build the model,
// synthesize scenarios per endpoint, render test classes and commit them.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/spec2test/internal/emitter"
	"github.com/mark3labs/spec2test/internal/generr"
	"github.com/mark3labs/spec2test/internal/render"
	"github.com/mark3labs/spec2test/internal/scenario"
	"github.com/mark3labs/spec2test/internal/spec"
)

// Config holds the settings of a single run.
type Config struct {
	SpecPath  string
	OutputDir string
	Mode      emitter.Mode

	BasePackage string
	BaseURL     string
	ProjectName string

	AIEnabled bool
	AITimeout time.Duration

	Overwrite bool
	DryRun    bool
	Workers   int

	IncludeTags []string
	ExcludeTags []string
	Methods     []string

	HTTPTimeout time.Duration
	MaxRetries  int
}

// ProposerFactory builds the scenario proposer once the schema registry of
// the run is known.
type ProposerFactory func(schemas *spec.Registry) scenario.Proposer

// RunContext is everything a run needs besides its configuration.
type RunContext struct {
	Config   Config
	Proposer ProposerFactory
	Sink     Sink
	Logger   *slog.Logger
	Now      func() time.Time
}

// Summary describes a completed run.
type Summary struct {
	Title     string
	Endpoints int
	Scenarios int
	Proposed  int
	Skipped   int
	Emit      *emitter.Result
}

// Run executes the pipeline. Either every planned file is committed or the
// output directory is left as it was.
func Run(ctx context.Context, rc RunContext) (*Summary, error) {
	if rc.Sink == nil {
		rc.Sink = Discard
	}
	if rc.Now == nil {
		rc.Now = time.Now
	}
	if rc.Logger == nil {
		rc.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	events := &lockedSink{sink: rc.Sink, now: rc.Now}

	events.Emit(Event{Kind: RunStarted, Location: rc.Config.SpecPath})
	sum, err := run(ctx, rc, events)
	if err != nil {
		fail := Event{Kind: RunFailed, ErrorKind: string(generr.CodeOf(err)), Message: err.Error()}
		if ge, ok := asGenErr(err); ok {
			fail.Location = ge.Location
		}
		events.Emit(fail)
		return nil, err
	}
	events.Emit(Event{Kind: RunCompleted, FileCount: len(sum.Emit.Planned)})
	return sum, nil
}

func run(ctx context.Context, rc RunContext, events Sink) (*Summary, error) {
	cfg := rc.Config
	if cfg.SpecPath == "" {
		return nil, generr.New(generr.InvalidInput, "no OpenAPI document given")
	}
	if cfg.OutputDir == "" {
		return nil, generr.New(generr.InvalidInput, "no output directory given")
	}
	if cfg.Mode == 0 {
		cfg.Mode = emitter.NewProject
	}

	var loadOpts []spec.Option
	if cfg.HTTPTimeout > 0 {
		loadOpts = append(loadOpts, spec.WithHTTPTimeout(cfg.HTTPTimeout))
	}
	if cfg.MaxRetries > 0 {
		loadOpts = append(loadOpts, spec.WithMaxRetries(cfg.MaxRetries))
	}
	doc, err := spec.Load(ctx, cfg.SpecPath, loadOpts...)
	if err != nil {
		return nil, err
	}
	model, err := spec.BuildModel(ctx, doc,
		spec.WithIncludeTags(cfg.IncludeTags),
		spec.WithExcludeTags(cfg.ExcludeTags),
		spec.WithMethods(cfg.Methods),
	)
	if err != nil {
		return nil, err
	}
	rc.Logger.Debug("model built", "title", model.Title, "endpoints", len(model.Endpoints))

	if cfg.BasePackage == "" {
		cfg.BasePackage = render.DefaultBasePackage
	}
	renderOpts := render.Options{BasePackage: cfg.BasePackage, BaseURL: cfg.BaseURL, Mode: cfg.Mode}
	targets, err := render.Plan(model.Endpoints, renderOpts)
	if err != nil {
		return nil, err
	}

	synthOpts := []scenario.Option{scenario.WithLogger(rc.Logger)}
	if cfg.AITimeout > 0 {
		synthOpts = append(synthOpts, scenario.WithTimeout(cfg.AITimeout))
	}
	if cfg.AIEnabled && rc.Proposer != nil {
		if p := rc.Proposer(model.Schemas); p != nil {
			synthOpts = append(synthOpts, scenario.WithProposer(p))
		}
	}
	synth := scenario.New(model.Schemas, synthOpts...)

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers(ctx)
	}

	files := make([]emitter.GeneratedFile, len(model.Endpoints))
	results := make([]scenario.Result, len(model.Endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ep := range model.Endpoints {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := synth.Synthesize(gctx, ep)
			if res.SkipReason != "" {
				events.Emit(Event{Kind: AISkipped, EndpointID: ep.ID, Reason: res.SkipReason})
			}
			f, err := render.Render(model.Schemas, ep, res.Scenarios, targets[i], renderOpts)
			if err != nil {
				return err
			}
			files[i] = f
			results[i] = res
			events.Emit(Event{Kind: EndpointProcessed, EndpointID: ep.ID, ScenarioCount: len(res.Scenarios)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, canceled(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}

	res, err := emitter.Emit(ctx, files, emitter.Options{
		OutDir:    cfg.OutputDir,
		Mode:      cfg.Mode,
		Overwrite: cfg.Overwrite,
		DryRun:    cfg.DryRun,
		Logger:    rc.Logger,
		Scaffold: emitter.ScaffoldOptions{
			ProjectName: cfg.ProjectName,
			BasePackage: renderOpts.BasePackage,
			BaseURL:     cfg.BaseURL,
			Title:       model.Title,
		},
	})
	if err != nil {
		return nil, err
	}

	sum := &Summary{Title: model.Title, Endpoints: len(model.Endpoints), Emit: res}
	for _, r := range results {
		sum.Scenarios += len(r.Scenarios)
		sum.Proposed += r.Proposed
		if r.SkipReason != "" {
			sum.Skipped++
		}
	}
	return sum, nil
}

func canceled(err error) error {
	if _, ok := asGenErr(err); ok {
		return err
	}
	if generr.CodeOf(err) == generr.Canceled {
		return generr.Wrap(generr.Canceled, err, "run canceled")
	}
	return err
}

func asGenErr(err error) (*generr.Error, bool) {
	var ge *generr.Error
	ok := errors.As(err, &ge)
	return ge, ok
}
