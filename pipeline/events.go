// ABOUTME: Lifecycle event types published by the pipeline controller during a run.
// ABOUTME: Events are immutable once constructed and fan out through the Broadcaster.
package pipeline

import "time"

// EventType identifies the kind of pipeline lifecycle event.
type EventType string

const (
	// EventInit carries the current snapshot as the first message on a fresh
	// subscription; it is emitted by the transport layer, not the worker.
	EventInit EventType = "init"

	EventPipelineStarted   EventType = "pipeline_started"
	EventStageStarted      EventType = "stage_started"
	EventStageCompleted    EventType = "stage_completed"
	EventMetricsUpdate     EventType = "metrics_update"
	EventPipelineStopping  EventType = "pipeline_stopping"
	EventPipelineStopped   EventType = "pipeline_stopped"
	EventPipelineCompleted EventType = "pipeline_completed"
	EventPipelineError     EventType = "pipeline_error"
)

// Event is one lifecycle event. Data must not be mutated after publication.
type Event struct {
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent constructs an event stamped with the current time.
func NewEvent(t EventType, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}
