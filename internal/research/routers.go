package research

import (
	"strings"

	"github.com/dohr-michael/quill/internal/checkpoint"
	"github.com/dohr-michael/quill/internal/workflow"
)

// ValidationRouter sends valid drafts, and drafts past the revision bound, to
// human review. Anything else goes back to the refiner.
func ValidationRouter(bound int) workflow.Router {
	return func(s checkpoint.State) string {
		if s.IsValid || s.RevisionCount >= bound {
			return HumanReview
		}
		return Refiner
	}
}

// HumanRouter ends the thread when the feedback approves it.
func HumanRouter(s checkpoint.State) string {
	if strings.Contains(strings.ToLower(s.Feedback), "approve") {
		return workflow.Terminate
	}
	return Refiner
}
