package crew

import "time"

type EventKind string

const (
	EventCrewStarted   EventKind = "crew_started"
	EventTaskStarted   EventKind = "task_started"
	EventToolUsed      EventKind = "tool_used"
	EventToolFailed    EventKind = "tool_failed"
	EventTaskCompleted EventKind = "task_completed"
	EventCrewCompleted EventKind = "crew_completed"
	EventCrewFailed    EventKind = "crew_failed"
)

// Event is emitted synchronously while a crew runs.
type Event struct {
	Kind     EventKind
	Crew     string
	Task     string
	Agent    string
	Message  string
	Duration time.Duration
}

// Observer receives crew events. It must not block for long.
type Observer func(Event)
