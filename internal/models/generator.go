package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/quill/internal/events"
)

// ErrEmptyCompletion is returned when a model answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// UsageRecorder accumulates token usage per thread.
type UsageRecorder interface {
	Record(threadID string, input, output int)
}

// ChatGenerator adapts a chat model to the research.Generator interface.
// The model is resolved on first use so read-only commands never need credentials.
type ChatGenerator struct {
	resolve  func(ctx context.Context) (model.BaseChatModel, error)
	provider string
	step     string
	bus      *events.Bus
	usage    UsageRecorder
}

// NewGenerator returns a generator for the named registry provider.
// An empty provider selects the registry default.
func NewGenerator(reg *Registry, provider, step string, bus *events.Bus) *ChatGenerator {
	if provider == "" {
		provider = reg.DefaultName()
	}
	return &ChatGenerator{
		resolve:  func(ctx context.Context) (model.BaseChatModel, error) { return reg.Get(ctx, provider) },
		provider: provider,
		step:     step,
		bus:      bus,
	}
}

// NewModelGenerator wraps an already constructed chat model.
func NewModelGenerator(m model.BaseChatModel, provider, step string, bus *events.Bus) *ChatGenerator {
	return &ChatGenerator{
		resolve:  func(context.Context) (model.BaseChatModel, error) { return m, nil },
		provider: provider,
		step:     step,
		bus:      bus,
	}
}

// WithUsage records the token usage of every completed call into r
// before Generate returns.
func (g *ChatGenerator) WithUsage(r UsageRecorder) *ChatGenerator {
	g.usage = r
	return g
}

// Generate sends prompt as a single user message and returns the reply text.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m, err := g.resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("model %s: %w", g.provider, err)
	}

	g.publish(ctx, events.LLMCallPayload{Phase: "request", Provider: g.provider, Step: g.step})

	start := time.Now()
	msg, err := m.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	elapsed := time.Since(start)

	if err != nil {
		err = HandleError(err)
		g.publish(ctx, events.LLMCallPayload{
			Phase:    "error",
			Provider: g.provider,
			Step:     g.step,
			Duration: elapsed,
			Error:    err.Error(),
		})
		slog.Warn("llm call failed", "provider", g.provider, "step", g.step, "error", err)
		return "", err
	}

	payload := events.LLMCallPayload{
		Phase:    "response",
		Provider: g.provider,
		Step:     g.step,
		Duration: elapsed,
	}
	if msg != nil && msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		payload.TokensInput = msg.ResponseMeta.Usage.PromptTokens
		payload.TokensOutput = msg.ResponseMeta.Usage.CompletionTokens
	}
	if g.usage != nil {
		g.usage.Record(events.ThreadIDFromContext(ctx), payload.TokensInput, payload.TokensOutput)
	}
	g.publish(ctx, payload)
	slog.Debug("llm call", "provider", g.provider, "step", g.step, "duration", elapsed,
		"tokens_in", payload.TokensInput, "tokens_out", payload.TokensOutput)

	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return msg.Content, nil
}

func (g *ChatGenerator) publish(ctx context.Context, p events.LLMCallPayload) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(events.NewTypedEventWithThread(events.SourceModels, p, events.ThreadIDFromContext(ctx)))
}
