package research

import (
	"fmt"
	"strings"
)

const noPreviousDraft = "No previous draft."

// DefaultRefineFeedback is the issue handed to the refiner when no human feedback exists.
const DefaultRefineFeedback = "Draft failed validation."

func writerPrompt(task, research, draft, feedback string) string {
	if draft == "" {
		draft = noPreviousDraft
	}
	return fmt.Sprintf(`You are an expert technical writer.

**Original Task:** %s

**Collected Research Data:**
%s

**Previous Draft (if any):**
%s

**User Feedback (if any):**
%s

**Instructions:**
1. Produce a comprehensive, well-structured research report in Markdown format (use headers, bullet points, etc.).
2. Strictly address any provided feedback.
3. Synthesize information into a cohesive narrative; do not merely append new content.
4. Cite sources where relevant (e.g., [Source: Web] or [Source: Academic]).
`, task, research, draft, feedback)
}

func validatorPrompt(task, draft string, limit int) string {
	return fmt.Sprintf(`You are a rigorous Quality Assurance Editor.

**Task:** %s
**Draft (truncated for evaluation):** %s

**Evaluation Criteria:**
1. Does the draft directly and fully address the user's task?
2. Is the content substantial and non-empty?
3. Is the draft logically structured and well-organized?

Respond strictly with "PASS" or "FAIL" only.
`, task, truncate(draft, limit))
}

func refinerPrompt(task, feedback string) string {
	return fmt.Sprintf(`The current research draft requires improvement.

**Original Task:** %s
**Issue/Feedback:** %s

Generate one concise, specific search query (different from previous queries) that targets missing information or resolves the identified issue.

Output only the query string.
`, task, feedback)
}

// truncate keeps the first limit characters of s.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// parseVerdict reads a validator response. FAIL wins over PASS and anything
// else is a failure.
func parseVerdict(response string) bool {
	r := strings.ToUpper(response)
	if strings.Contains(r, "FAIL") {
		return false
	}
	return strings.Contains(r, "PASS")
}

// cleanQuery strips surrounding whitespace and double quotes from a generated query.
func cleanQuery(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
}
