package research

import (
	"fmt"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/workflow"
)

// NewGraph builds the research topology:
//
//	start -> {web_researcher, academic_researcher} -> writer -> validator
//	validator -> human_review | refiner
//	human_review -> terminate | refiner          (interrupt before)
//	refiner -> {web_researcher, academic_researcher}
//
// The sequential topology chains web_researcher -> academic_researcher -> writer instead.
func NewGraph(deps Deps) (*workflow.Graph, error) {
	steps, err := NewSteps(deps)
	if err != nil {
		return nil, err
	}
	d := steps.deps

	b := workflow.NewBuilder().
		AddNode(WebResearcher, workflow.PhaseResearching, steps.WebResearch).
		AddNode(AcademicResearcher, workflow.PhaseResearching, steps.AcademicResearch).
		AddNode(Writer, workflow.PhaseWriting, steps.Write).
		AddNode(Validator, workflow.PhaseValidating, steps.Validate).
		AddNode(Refiner, workflow.PhaseRefining, steps.Refine).
		AddNode(HumanReview, workflow.PhaseParked, steps.HumanReview)

	switch d.Topology {
	case config.TopologyParallel:
		b.AddEdge(workflow.Start, WebResearcher).
			AddEdge(workflow.Start, AcademicResearcher).
			AddJoin([]string{WebResearcher, AcademicResearcher}, Writer).
			AddEdge(Refiner, WebResearcher).
			AddEdge(Refiner, AcademicResearcher)
	case config.TopologySequential:
		b.AddEdge(workflow.Start, WebResearcher).
			AddEdge(WebResearcher, AcademicResearcher).
			AddEdge(AcademicResearcher, Writer).
			AddEdge(Refiner, WebResearcher)
	default:
		return nil, fmt.Errorf("unknown topology %q", d.Topology)
	}

	return b.AddEdge(Writer, Validator).
		AddConditional(Validator, ValidationRouter(d.RevisionBound), HumanReview, Refiner).
		AddConditional(HumanReview, HumanRouter, workflow.Terminate, Refiner).
		InterruptBefore(HumanReview).
		MinSupersteps(config.MinMaxSteps(d.RevisionBound, d.Topology)).
		Compile()
}
