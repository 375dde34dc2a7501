// Package research holds the steps, routers and topology of the research
// workflow: parallel web and academic research, drafting, validation,
// refinement and the human review checkpoint.
package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/events"
)

// ErrSearchUnavailable marks a degraded research step. It is logged and
// published, never returned from a step.
var ErrSearchUnavailable = errors.New("search unavailable")

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Searcher returns raw text results for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// GenerationError reports a failed text generation.
type GenerationError struct {
	Step string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: generation failed: %v", e.Step, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Deps are the capabilities and settings injected into the steps.
type Deps struct {
	Writer    Generator
	Validator Generator
	Refiner   Generator
	Web       Searcher
	Academic  Searcher
	Bus       *events.Bus // optional

	RevisionBound   int
	ValidatorPolicy string // config.ValidatorFailOpen or config.ValidatorFailClosed
	DraftLimit      int
	Topology        string // config.TopologyParallel or config.TopologySequential
}

// WithGenerator sets the same generator for every LLM-backed step.
func (d Deps) WithGenerator(g Generator) Deps {
	d.Writer, d.Validator, d.Refiner = g, g, g
	return d
}

func (d Deps) withDefaults() Deps {
	if d.RevisionBound <= 0 {
		d.RevisionBound = config.DefaultRevisionBound
	}
	if d.ValidatorPolicy == "" {
		d.ValidatorPolicy = config.ValidatorFailOpen
	}
	if d.DraftLimit <= 0 {
		d.DraftLimit = config.DefaultValidatorDraftLimit
	}
	if d.Topology == "" {
		d.Topology = config.TopologyParallel
	}
	return d
}

func (d Deps) validate() error {
	var errs []error
	if d.Writer == nil || d.Validator == nil || d.Refiner == nil {
		errs = append(errs, errors.New("writer, validator and refiner generators are required"))
	}
	if d.Web == nil || d.Academic == nil {
		errs = append(errs, errors.New("web and academic searchers are required"))
	}
	return errors.Join(errs...)
}

func (d Deps) publish(ctx context.Context, payload events.EventPayload) {
	if d.Bus == nil {
		return
	}
	d.Bus.Publish(events.NewTypedEventWithThread(events.SourceResearch, payload, events.ThreadIDFromContext(ctx)))
}
