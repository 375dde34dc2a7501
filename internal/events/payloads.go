package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// STEP EVENTS
// =============================================================================

type StepStartedPayload struct {
	Step      string `json:"step"`
	Superstep int    `json:"superstep"`
}

func (StepStartedPayload) EventType() EventType { return EventStepStarted }

type StepCompletedPayload struct {
	Step     string        `json:"step"`
	Seq      int64         `json:"seq"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

func (StepCompletedPayload) EventType() EventType { return EventStepCompleted }

// =============================================================================
// THREAD EVENTS
// =============================================================================

type ThreadParkedPayload struct {
	Pending       string `json:"pending"`
	Seq           int64  `json:"seq"`
	RevisionCount int    `json:"revision_count"`
	IsValid       bool   `json:"is_valid"`
}

func (ThreadParkedPayload) EventType() EventType { return EventThreadParked }

type ThreadCompletedPayload struct {
	Seq           int64 `json:"seq"`
	RevisionCount int   `json:"revision_count"`
}

func (ThreadCompletedPayload) EventType() EventType { return EventThreadCompleted }

type ThreadFailedPayload struct {
	Seq   int64  `json:"seq"`
	Step  string `json:"step,omitempty"`
	Error string `json:"error"`
}

func (ThreadFailedPayload) EventType() EventType { return EventThreadFailed }

type ThreadRecoveredPayload struct {
	Phase   string `json:"phase"`
	Pending string `json:"pending,omitempty"`
}

func (ThreadRecoveredPayload) EventType() EventType { return EventThreadRecovered }

// =============================================================================
// DEGRADATION EVENTS
// =============================================================================

type SearchDegradedPayload struct {
	Step  string `json:"step"`
	Query string `json:"query"`
	Error string `json:"error"`
}

func (SearchDegradedPayload) EventType() EventType { return EventSearchDegraded }

type ValidatorFailOpenPayload struct {
	Error string `json:"error"`
}

func (ValidatorFailOpenPayload) EventType() EventType { return EventValidatorFailOpen }

// =============================================================================
// INTERNAL EVENTS
// =============================================================================

type LLMCallPayload struct {
	Phase        string        `json:"phase"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider,omitempty"`
	Step         string        `json:"step,omitempty"`
	TokensInput  int           `json:"tokens_input,omitempty"`
	TokensOutput int           `json:"tokens_output,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return NewEvent(payload.EventType(), source, toMap(payload))
}

func NewTypedEventWithThread(source EventSource, payload EventPayload, threadID string) Event {
	return NewEventWithThread(payload.EventType(), source, toMap(payload), threadID)
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
