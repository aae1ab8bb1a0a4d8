package taskset

import "time"

// EventType identifies what happened to a task. Values are the wire form
// written to the event log.
type EventType string

const (
	EventTaskCreated    EventType = "TaskCreated"
	EventTaskReady      EventType = "TaskReady"
	EventTaskAssigned   EventType = "TaskAssigned"
	EventRunnerStarted  EventType = "RunnerStarted"
	EventRunnerFinished EventType = "RunnerFinished"
	EventTaskCompleted  EventType = "TaskCompleted"
	EventTaskFailed     EventType = "TaskFailed"
	EventTaskUpdated    EventType = "TaskUpdated"
)

// Valid reports whether t is a recognized event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTaskCreated, EventTaskReady, EventTaskAssigned,
		EventRunnerStarted, EventRunnerFinished,
		EventTaskCompleted, EventTaskFailed, EventTaskUpdated:
		return true
	}
	return false
}

// EventForState maps a transition target state to the event type that
// records it.
func EventForState(to TaskState) EventType {
	switch to {
	case StateReady:
		return EventTaskReady
	case StateRunning:
		return EventTaskAssigned
	case StateDone:
		return EventTaskCompleted
	case StateFailed:
		return EventTaskFailed
	default:
		return EventTaskUpdated
	}
}

// Event is one line of the append-only per-spec history.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	SpecName  string         `json:"spec_name"`
	TaskID    string         `json:"task_id"`
	Type      EventType      `json:"event_type"`
	Details   map[string]any `json:"details,omitempty"`
}
