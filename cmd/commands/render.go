package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/dohr-michael/quill/internal/workflow"
)

const (
	defaultWrapWidth = 100
	logTail          = 5
)

// renderMarkdown renders md for a terminal. Non-terminal output is passed through.
func renderMarkdown(md string, plain bool) string {
	fd := int(os.Stdout.Fd())
	if plain || !term.IsTerminal(fd) {
		return md
	}

	width := defaultWrapWidth
	if w, _, err := term.GetSize(fd); err == nil && w > 0 && w < width {
		width = w
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// printResult writes the outcome of a run or an inspect.
func printResult(w io.Writer, res *workflow.Result, plain bool) {
	cp := res.Checkpoint
	s := cp.State

	fmt.Fprintf(w, "Thread:   %s\n", res.ThreadID)
	if res.Pending != "" {
		fmt.Fprintf(w, "Phase:    %s (pending: %s)\n", res.Phase, res.Pending)
	} else {
		fmt.Fprintf(w, "Phase:    %s\n", res.Phase)
	}
	if res.Phase == workflow.PhaseNew {
		return
	}
	fmt.Fprintf(w, "Task:     %s\n", s.Task)
	fmt.Fprintf(w, "Revision: %d  Valid: %t  Seq: %d\n", s.RevisionCount, s.IsValid, cp.Seq)

	if len(s.Messages) > 0 {
		fmt.Fprintln(w, "\nLog:")
		tail := s.Messages
		if len(tail) > logTail {
			tail = tail[len(tail)-logTail:]
		}
		for _, m := range tail {
			fmt.Fprintf(w, "  - %s\n", m)
		}
	}

	if s.Draft != "" && (res.Phase == workflow.PhaseParked || res.Phase == workflow.PhaseTerminated) {
		fmt.Fprintln(w, "\nDraft:")
		fmt.Fprintln(w, strings.TrimRight(renderMarkdown(s.Draft, plain), "\n"))
	}

	if res.Phase == workflow.PhaseParked {
		fmt.Fprintf(w, "\nNext: quill approve %s  |  quill revise %s \"<feedback>\"\n", res.ThreadID, res.ThreadID)
	}
}
