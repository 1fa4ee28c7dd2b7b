package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Sink receives run events. Engine calls are serialized, so implementations
// need no locking of their own unless they are shared between runs.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans events out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}

// JSONLines writes one JSON object per event: {"event": kind, "time": ..., fields...}.
func JSONLines(w io.Writer) Sink {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return SinkFunc(func(e Event) {
		rec := e.Fields()
		rec["event"] = string(e.Kind)
		rec["time"] = e.Time.UTC().Format(time.RFC3339Nano)
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(rec)
	})
}

// Text writes short human-readable lines.
func Text(w io.Writer) Sink {
	var mu sync.Mutex
	return SinkFunc(func(e Event) {
		var line string
		switch e.Kind {
		case RunStarted:
			line = fmt.Sprintf("generating tests from %s", e.Location)
		case EndpointProcessed:
			line = fmt.Sprintf("  %s: %d scenarios", e.EndpointID, e.ScenarioCount)
		case AISkipped:
			line = fmt.Sprintf("  warning: AI augmentation skipped for %s: %s", e.EndpointID, e.Reason)
		case RunCompleted:
			line = fmt.Sprintf("done: %d files", e.FileCount)
		case RunFailed:
			line = fmt.Sprintf("failed [%s]: %s", e.ErrorKind, e.Message)
		default:
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, line)
	})
}

// Slog logs events: failures at error, skipped augmentation at warn, the
// rest at info.
func Slog(logger *slog.Logger) Sink {
	return SinkFunc(func(e Event) {
		if logger == nil {
			return
		}
		level := slog.LevelInfo
		switch e.Kind {
		case AISkipped:
			level = slog.LevelWarn
		case RunFailed:
			level = slog.LevelError
		}
		fields := e.Fields()
		args := make([]any, 0, 2*len(fields))
		for _, k := range sortedKeys(fields) {
			args = append(args, k, fields[k])
		}
		logger.Log(context.Background(), level, string(e.Kind), args...)
	})
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of kind k in arrival order.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// lockedSink serializes calls from the worker pool.
type lockedSink struct {
	mu   sync.Mutex
	sink Sink
	now  func() time.Time
}

func (l *lockedSink) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink.Emit(e)
}
