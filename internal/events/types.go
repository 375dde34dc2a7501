package events

// EventType represents the type of event.
type EventType string

const (
	// Step lifecycle
	EventStepStarted   EventType = "workflow.step.started"
	EventStepCompleted EventType = "workflow.step.completed"

	// Thread lifecycle
	EventThreadParked    EventType = "workflow.thread.parked"
	EventThreadCompleted EventType = "workflow.thread.completed"
	EventThreadFailed    EventType = "workflow.thread.failed"
	EventThreadRecovered EventType = "workflow.thread.recovered"

	// Degraded capabilities
	EventSearchDegraded    EventType = "workflow.search.degraded"
	EventValidatorFailOpen EventType = "workflow.validator.fail_open"

	// Internal (analytics/tracing)
	EventLLMCall EventType = "internal.llm.call"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceEngine   EventSource = "engine"
	SourceResearch EventSource = "research"
	SourceModels   EventSource = "models"
	SourceRecovery EventSource = "recovery"
	SourceGateway  EventSource = "gateway"
)
