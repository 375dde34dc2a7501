// Package checkpoint persists the durable state of research threads: one
// snapshot per thread, the pending step frontier and an immutable history of
// every committed write.
package checkpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskImmutable is returned when an update tries to change the task of a thread.
	ErrTaskImmutable = errors.New("task is immutable once set")
	// ErrRevisionRegressed is returned when an update lowers the revision count.
	ErrRevisionRegressed = errors.New("revision count cannot decrease")
)

// State is the snapshot shared by every step of a thread.
type State struct {
	Task          string   `json:"task"`
	ResearchData  string   `json:"research_data"`
	Draft         string   `json:"draft"`
	IsValid       bool     `json:"is_valid"`
	Feedback      string   `json:"feedback"`
	RevisionCount int      `json:"revision_count"`
	RefinedQuery  string   `json:"refined_query"`
	Messages      []string `json:"messages"`
}

// Query returns the search query for the next research pass.
func (s State) Query() string {
	if s.RefinedQuery != "" {
		return s.RefinedQuery
	}
	return s.Task
}

// Update is a partial write produced by a step.
//
// Pointer fields replace the current value when non-nil. ResearchData and
// Messages are appended.
type Update struct {
	Task          *string  `json:"task,omitempty"`
	ResearchData  string   `json:"research_data,omitempty"`
	Draft         *string  `json:"draft,omitempty"`
	IsValid       *bool    `json:"is_valid,omitempty"`
	Feedback      *string  `json:"feedback,omitempty"`
	RevisionCount *int     `json:"revision_count,omitempty"`
	RefinedQuery  *string  `json:"refined_query,omitempty"`
	Messages      []string `json:"messages,omitempty"`
}

// IsZero reports whether the update changes nothing.
func (u Update) IsZero() bool {
	return u.Task == nil && u.ResearchData == "" && u.Draft == nil && u.IsValid == nil &&
		u.Feedback == nil && u.RevisionCount == nil && u.RefinedQuery == nil && len(u.Messages) == 0
}

// Ptr returns a pointer to v, for building updates.
func Ptr[T any](v T) *T { return &v }

// Merge applies u to s and returns the new state. s is not modified.
func Merge(s State, u Update) (State, error) {
	if u.Task != nil && s.Task != "" && *u.Task != s.Task {
		return s, fmt.Errorf("merge: %w", ErrTaskImmutable)
	}
	if u.RevisionCount != nil && *u.RevisionCount < s.RevisionCount {
		return s, fmt.Errorf("merge: %w: %d < %d", ErrRevisionRegressed, *u.RevisionCount, s.RevisionCount)
	}

	out := s
	out.Messages = append([]string(nil), s.Messages...)

	if u.Task != nil {
		out.Task = *u.Task
	}
	out.ResearchData += u.ResearchData
	if u.Draft != nil {
		out.Draft = *u.Draft
	}
	if u.IsValid != nil {
		out.IsValid = *u.IsValid
	}
	if u.Feedback != nil {
		out.Feedback = *u.Feedback
	}
	if u.RevisionCount != nil {
		out.RevisionCount = *u.RevisionCount
	}
	if u.RefinedQuery != nil {
		out.RefinedQuery = *u.RefinedQuery
	}
	out.Messages = append(out.Messages, u.Messages...)
	return out, nil
}
