package ai

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/spec2test/internal/scenario"
	"github.com/mark3labs/spec2test/internal/spec"
)

// Proposer implements scenario.Proposer on top of a Generator. Replies that
// parse are stored in the optional Cache and reused on later runs.
type Proposer struct {
	gen        Generator
	schemas    *spec.Registry
	rules      *BusinessRules
	cache      *Cache
	provider   string
	model      string
	count      int
	guidelines string
	logger     *slog.Logger
}

type ProposerOption func(*Proposer)

func WithBusinessRules(r *BusinessRules) ProposerOption {
	return func(p *Proposer) { p.rules = r }
}

// WithCache enables reply caching. provider and model are part of the key.
func WithCache(c *Cache, provider, model string) ProposerOption {
	return func(p *Proposer) {
		p.cache = c
		p.provider = provider
		p.model = model
	}
}

func WithScenarioCount(n int) ProposerOption {
	return func(p *Proposer) {
		if n > 0 {
			p.count = n
		}
	}
}

func WithGuidelines(s string) ProposerOption {
	return func(p *Proposer) {
		if s != "" {
			p.guidelines = s
		}
	}
}

func WithLogger(l *slog.Logger) ProposerOption {
	return func(p *Proposer) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewProposer(gen Generator, schemas *spec.Registry, opts ...ProposerOption) *Proposer {
	p := &Proposer{
		gen:        gen,
		schemas:    schemas,
		count:      DefaultScenarioCount,
		guidelines: DefaultGuidelines,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ scenario.Proposer = (*Proposer)(nil)

func (p *Proposer) Propose(ctx context.Context, ep *spec.Endpoint, existing []scenario.TestScenario) ([]scenario.TestScenario, error) {
	system, prompt, err := renderPrompt(p.schemas, ep, existing, p.rules.For(ep.Path), p.count, p.guidelines)
	if err != nil {
		return nil, err
	}

	key := ""
	if p.cache != nil {
		key = CacheKey(p.provider, p.model, system, prompt)
		reply, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			p.logger.Warn("ai cache read failed", "endpoint", ep.ID, "err", err)
		} else if ok {
			if out, err := parseReply(reply, ep, existing); err == nil {
				p.logger.Debug("ai cache hit", "endpoint", ep.ID)
				return out, nil
			}
		}
	}

	reply, err := p.gen.Generate(ctx, system, prompt)
	if err != nil {
		return nil, err
	}
	out, err := parseReply(reply, ep, existing)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		if err := p.cache.Put(ctx, key, p.provider, p.model, reply); err != nil {
			p.logger.Warn("ai cache write failed", "endpoint", ep.ID, "err", err)
		}
	}
	return out, nil
}
