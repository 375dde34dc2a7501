package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/quill/internal/checkpoint"
	"github.com/dohr-michael/quill/internal/guard"
	"github.com/dohr-michael/quill/internal/workflow"
)

var tools = []toolSpec{
	{
		Name:        "start_or_resume",
		Description: "Start a research thread with input as the task, or resume a parked thread with input as review feedback (\"approve\" to finish).",
		Parameters: map[string]paramSpec{
			"thread_id": {Type: "string", Description: "Thread identifier", Required: true},
			"input":     {Type: "string", Description: "Task for a new thread, feedback for a parked one", Required: true},
		},
	},
	{
		Name:        "inspect",
		Description: "Return the phase, pending step and state of a thread without running it.",
		Parameters: map[string]paramSpec{
			"thread_id": {Type: "string", Description: "Thread identifier", Required: true},
		},
	},
	{
		Name:        "list_threads",
		Description: "List known threads, most recently updated first.",
		Parameters:  map[string]paramSpec{},
	},
}

type threadArgs struct {
	ThreadID string `json:"thread_id"`
	Input    string `json:"input"`
}

// threadOutput is the JSON text returned by the thread tools.
type threadOutput struct {
	ThreadID string         `json:"thread_id"`
	Phase    workflow.Phase `json:"phase"`
	Pending  string         `json:"pending,omitempty"`
	Seq      int64          `json:"seq"`
	checkpoint.State
}

func toOutput(res *workflow.Result) threadOutput {
	return threadOutput{
		ThreadID: res.ThreadID,
		Phase:    res.Phase,
		Pending:  res.Pending,
		Seq:      res.Checkpoint.Seq,
		State:    res.Checkpoint.State,
	}
}

type handlers struct {
	runner *guard.Runner
}

// NewMCPServer creates an MCP server exposing the workflow entry points.
func NewMCPServer(runner *guard.Runner, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "quill",
		Version: version,
	}, nil)

	h := &handlers{runner: runner}
	byName := map[string]mcpsdk.ToolHandler{
		"start_or_resume": h.startOrResume,
		"inspect":         h.inspect,
		"list_threads":    h.listThreads,
	}
	for _, spec := range tools {
		server.AddTool(toolSpecToMCPTool(spec), byName[spec.Name])
		slog.Debug("mcp tool registered", "tool", spec.Name)
	}
	return server
}

func (h *handlers) startOrResume(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return toolError(err), nil
	}
	res, err := h.runner.StartOrResume(ctx, args.ThreadID, args.Input)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(toOutput(res))
}

func (h *handlers) inspect(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return toolError(err), nil
	}
	res, err := h.runner.Inspect(ctx, args.ThreadID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(toOutput(res))
}

func (h *handlers) listThreads(ctx context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	list, err := h.runner.Engine().Store().List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(list)
}

func parseArgs(req *mcpsdk.CallToolRequest) (threadArgs, error) {
	var args threadArgs
	if req.Params != nil && len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return args, fmt.Errorf("parse arguments: %w", err)
		}
	}
	if strings.TrimSpace(args.ThreadID) == "" {
		return args, fmt.Errorf("thread_id is required")
	}
	return args, nil
}

func toolError(err error) *mcpsdk.CallToolResult {
	slog.Debug("mcp tool error", "error", err)
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}

func jsonResult(v any) (*mcpsdk.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil
}
