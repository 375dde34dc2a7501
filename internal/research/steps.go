package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dohr-michael/quill/internal/checkpoint"
	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/events"
)

// Node names.
const (
	WebResearcher      = "web_researcher"
	AcademicResearcher = "academic_researcher"
	Writer             = "writer"
	Validator          = "validator"
	Refiner            = "refiner"
	HumanReview        = "human_review"
)

// Placeholders substituted for degraded research.
const (
	noWebResults          = "No web results found."
	academicUnavailable   = "Academic search unavailable."
	noAcademicResults     = "No specific academic papers found."
	notFoundToken         = "No results found"
)

var errNoResults = errors.New("no results")

// notFound reports a search that ran but returned nothing usable.
func notFound(results string) bool {
	return strings.TrimSpace(results) == "" || strings.Contains(results, notFoundToken)
}

// Steps binds the step functions to their dependencies.
type Steps struct {
	deps Deps
}

// NewSteps validates deps and applies defaults.
func NewSteps(deps Deps) (*Steps, error) {
	deps = deps.withDefaults()
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("research steps: %w", err)
	}
	return &Steps{deps: deps}, nil
}

func (s *Steps) WebResearch(ctx context.Context, state checkpoint.State) (checkpoint.Update, error) {
	query := state.Query()
	results, err := s.deps.Web.Search(ctx, query)
	switch {
	case err != nil:
		s.degraded(ctx, WebResearcher, query, err)
		results = "Search failed: " + err.Error()
	case notFound(results):
		s.degraded(ctx, WebResearcher, query, errNoResults)
		results = noWebResults
	}

	return checkpoint.Update{
		ResearchData: fmt.Sprintf("\n--- WEB RESULTS (%s) ---\n%s\n", query, results),
		Messages:     []string{"Web search completed: " + query},
	}, nil
}

func (s *Steps) AcademicResearch(ctx context.Context, state checkpoint.State) (checkpoint.Update, error) {
	query := state.Query()
	results, err := s.deps.Academic.Search(ctx, query)
	switch {
	case err != nil:
		s.degraded(ctx, AcademicResearcher, query, err)
		results = academicUnavailable
	case notFound(results):
		s.degraded(ctx, AcademicResearcher, query, errNoResults)
		results = noAcademicResults
	}

	return checkpoint.Update{
		ResearchData: fmt.Sprintf("\n--- ACADEMIC RESULTS (%s) ---\n%s\n", query, results),
		Messages:     []string{"Academic search completed: " + query},
	}, nil
}

func (s *Steps) degraded(ctx context.Context, step, query string, cause error) {
	err := fmt.Errorf("%s: %w: %v", step, ErrSearchUnavailable, cause)
	slog.Warn("research degraded", "thread_id", events.ThreadIDFromContext(ctx), "step", step, "query", query, "error", err)
	s.deps.publish(ctx, events.SearchDegradedPayload{Step: step, Query: query, Error: cause.Error()})
}

// Write replaces the draft and consumes the feedback.
func (s *Steps) Write(ctx context.Context, state checkpoint.State) (checkpoint.Update, error) {
	prompt := writerPrompt(state.Task, state.ResearchData, state.Draft, state.Feedback)
	draft, err := s.deps.Writer.Generate(ctx, prompt)
	if err != nil {
		return checkpoint.Update{}, &GenerationError{Step: Writer, Err: err}
	}
	return checkpoint.Update{
		Draft:    checkpoint.Ptr(draft),
		Feedback: checkpoint.Ptr(""),
		Messages: []string{"Draft written/updated"},
	}, nil
}

func (s *Steps) Validate(ctx context.Context, state checkpoint.State) (checkpoint.Update, error) {
	prompt := validatorPrompt(state.Task, state.Draft, s.deps.DraftLimit)
	response, err := s.deps.Validator.Generate(ctx, prompt)

	var valid bool
	var msg string
	switch {
	case err != nil && s.deps.ValidatorPolicy == config.ValidatorFailClosed:
		slog.Warn("validator unavailable, failing closed", "thread_id", events.ThreadIDFromContext(ctx), "error", err)
		valid, msg = false, "Validator: Unavailable, revision required"
	case err != nil:
		slog.Warn("validator unavailable, failing open", "thread_id", events.ThreadIDFromContext(ctx), "error", err)
		s.deps.publish(ctx, events.ValidatorFailOpenPayload{Error: err.Error()})
		valid, msg = true, "Validator: Unavailable, passed to human review"
	default:
		valid = parseVerdict(response)
		msg = "Validator: Passed"
		if !valid {
			msg = "Validator: Failed, revision required"
		}
	}

	return checkpoint.Update{
		IsValid:  checkpoint.Ptr(valid),
		Messages: []string{msg},
	}, nil
}

func (s *Steps) Refine(ctx context.Context, state checkpoint.State) (checkpoint.Update, error) {
	feedback := state.Feedback
	if feedback == "" {
		feedback = DefaultRefineFeedback
	}
	response, err := s.deps.Refiner.Generate(ctx, refinerPrompt(state.Task, feedback))
	if err != nil {
		return checkpoint.Update{}, &GenerationError{Step: Refiner, Err: err}
	}
	query := cleanQuery(response)
	if query == "" {
		return checkpoint.Update{}, &GenerationError{Step: Refiner, Err: errors.New("empty query")}
	}

	rev := state.RevisionCount + 1
	return checkpoint.Update{
		RefinedQuery:  checkpoint.Ptr(query),
		RevisionCount: checkpoint.Ptr(rev),
		Messages:      []string{fmt.Sprintf("Refiner: Generated new query '%s' (Revision %d)", query, rev)},
	}, nil
}

// HumanReview is the passive interrupt marker.
func (s *Steps) HumanReview(context.Context, checkpoint.State) (checkpoint.Update, error) {
	return checkpoint.Update{}, nil
}
