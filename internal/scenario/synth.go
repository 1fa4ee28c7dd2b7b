package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/mark3labs/spec2test/internal/spec"
)

// DefaultTimeout bounds one Propose call.
const DefaultTimeout = 15 * time.Second

// Proposer suggests additional scenarios for an endpoint. Implementations may
// be slow, nondeterministic or unavailable; their output is advisory.
type Proposer interface {
	Propose(ctx context.Context, ep *spec.Endpoint, existing []TestScenario) ([]TestScenario, error)
}

type ProposerFunc func(ctx context.Context, ep *spec.Endpoint, existing []TestScenario) ([]TestScenario, error)

func (f ProposerFunc) Propose(ctx context.Context, ep *spec.Endpoint, existing []TestScenario) ([]TestScenario, error) {
	return f(ctx, ep, existing)
}

// Synthesizer combines the rule set with an optional Proposer.
type Synthesizer struct {
	reg      *spec.Registry
	proposer Proposer
	timeout  time.Duration
	logger   *slog.Logger
}

type Option func(*Synthesizer)

func WithProposer(p Proposer) Option { return func(s *Synthesizer) { s.proposer = p } }
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(reg *spec.Registry, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		reg:     reg,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the scenario set for one endpoint. SkipReason is set when the
// proposal stage was attempted and discarded.
type Result struct {
	Scenarios  []TestScenario
	Proposed   int
	SkipReason string
}

// Synthesize never fails: proposal errors degrade to the rule-based set.
func (s *Synthesizer) Synthesize(ctx context.Context, ep *spec.Endpoint) Result {
	rules := Rules(s.reg, ep)
	if s.proposer == nil {
		return Result{Scenarios: rules}
	}

	proposed, err := s.propose(ctx, ep, rules)
	if err != nil {
		reason := skipReason(ctx, err, s.timeout)
		s.logger.Debug("proposal discarded", "endpoint", ep.ID, "reason", reason)
		return Result{Scenarios: rules, SkipReason: reason}
	}
	merged, accepted := s.merge(ep, rules, proposed)
	return Result{Scenarios: merged, Proposed: accepted}
}

func skipReason(ctx context.Context, err error, timeout time.Duration) string {
	switch {
	case ctx.Err() != nil:
		return "run canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", timeout)
	default:
		return err.Error()
	}
}

// propose runs the Proposer under the time box. The call is abandoned, not
// awaited, once the box closes.
func (s *Synthesizer) propose(ctx context.Context, ep *spec.Endpoint, existing []TestScenario) ([]TestScenario, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		scenarios []TestScenario
		err       error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("proposer panicked: %v", r)}
			}
		}()
		out, err := s.proposer.Propose(ctx, ep, append([]TestScenario(nil), existing...))
		done <- outcome{scenarios: out, err: err}
	}()

	select {
	case o := <-done:
		return o.scenarios, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// merge appends proposed scenarios after the rule set. A proposal is dropped
// when its expectation is unusable, its key is already present, or an
// existing scenario has the same inputs and expectation. A proposal that
// targets a placeholder's status replaces the placeholder.
func (s *Synthesizer) merge(ep *spec.Endpoint, rules, proposed []TestScenario) ([]TestScenario, int) {
	keys := map[string]bool{}
	outcomes := map[string]bool{}
	for _, sc := range rules {
		keys[sc.Key()] = true
		outcomes[outcomeKey(sc)] = true
	}

	replaced := map[int]bool{}
	var accepted []TestScenario
	for _, sc := range proposed {
		sc.EndpointID = ep.ID
		sc.Category = AISuggested
		sc.Placeholder = false
		if sc.Name = LowerCamel(sc.Name); sc.Name == "" {
			sc.Name = "suggested"
		}
		if !sc.Expect.Valid() {
			s.logger.Debug("proposal dropped", "endpoint", ep.ID, "name", sc.Name, "reason", "invalid expectation")
			continue
		}
		if keys[sc.Key()] || outcomes[outcomeKey(sc)] {
			s.logger.Debug("proposal dropped", "endpoint", ep.ID, "name", sc.Name, "reason", "duplicate")
			continue
		}
		keys[sc.Key()] = true
		outcomes[outcomeKey(sc)] = true
		for i, rule := range rules {
			if rule.Placeholder && !replaced[i] && rule.Expect.Matches(sc.Expect) {
				replaced[i] = true
				if sc.Expect.Declared == "" {
					sc.Expect.Declared = rule.Expect.Declared
				}
				break
			}
		}
		accepted = append(accepted, sc)
	}
	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].Key() < accepted[j].Key() })

	out := make([]TestScenario, 0, len(rules)+len(accepted))
	for i, sc := range rules {
		if !replaced[i] {
			out = append(out, sc)
		}
	}
	return append(out, accepted...), len(accepted)
}

func outcomeKey(sc TestScenario) string {
	return inputsFingerprint(sc.Inputs) + "|" + sc.Expect.String()
}
