package engine

import (
	"time"
)

type Kind string

const (
	RunStarted        Kind = "run-started"
	EndpointProcessed Kind = "endpoint-processed"
	AISkipped         Kind = "ai-augmentation-skipped"
	RunCompleted      Kind = "run-completed"
	RunFailed         Kind = "run-failed"
)

// Event is one progress or result notification. Only the fields of its Kind
// are meaningful.
type Event struct {
	Kind          Kind
	Time          time.Time
	EndpointID    string
	ScenarioCount int
	Reason        string
	FileCount     int
	ErrorKind     string
	Message       string
	Location      string
}

// Fields returns the payload of the event as it is published.
func (e Event) Fields() map[string]any {
	switch e.Kind {
	case RunStarted:
		return map[string]any{"spec": e.Location}
	case EndpointProcessed:
		return map[string]any{"endpointId": e.EndpointID, "scenarioCount": e.ScenarioCount}
	case AISkipped:
		return map[string]any{"endpointId": e.EndpointID, "reason": e.Reason}
	case RunCompleted:
		return map[string]any{"fileCount": e.FileCount}
	case RunFailed:
		f := map[string]any{"errorKind": e.ErrorKind, "message": e.Message}
		if e.Location != "" {
			f["location"] = e.Location
		}
		return f
	default:
		return map[string]any{}
	}
}
