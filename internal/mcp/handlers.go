package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/tablesnap/internal/errors"
	"github.com/hpungsan/tablesnap/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	env *ops.Env
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(env *ops.Env) *Handlers {
	return &Handlers{env: env}
}

// TakeRequest represents the arguments for snapshot_take.
type TakeRequest struct {
	Label   string    `json:"label"`
	Tables  tableList `json:"tables,omitempty"`
	Hashing *bool     `json:"hashing,omitempty"`
	Cursor  *bool     `json:"cursor,omitempty"`
}

// CompareRequest represents the arguments for snapshot_compare.
type CompareRequest struct {
	Label      string    `json:"label,omitempty"`
	Against    string    `json:"against,omitempty"`
	Tables     tableList `json:"tables,omitempty"`
	Hashing    *bool     `json:"hashing,omitempty"`
	Format     string    `json:"format,omitempty"`
	Output     string    `json:"output,omitempty"`
	NoTruncate bool      `json:"no_truncate,omitempty"`
	NoRecord   bool      `json:"no_record,omitempty"`
}

// CapturesRequest represents the arguments for snapshot_captures.
type CapturesRequest struct {
	Label string `json:"label,omitempty"`
}

// RunListRequest represents the arguments for run_list.
type RunListRequest struct {
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// RunFetchRequest represents the arguments for run_fetch.
type RunFetchRequest struct {
	ID         string `json:"id"`
	Format     string `json:"format,omitempty"`
	NoTruncate bool   `json:"no_truncate,omitempty"`
}

// RunPurgeRequest represents the arguments for run_purge.
type RunPurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// HandleTake handles the snapshot_take tool call.
func (h *Handlers) HandleTake(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TakeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Snapshot(ctx, h.env, ops.SnapshotInput{
		Label:   input.Label,
		Tables:  input.Tables,
		Hashing: input.Hashing,
		Cursor:  input.Cursor,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCompare handles the snapshot_compare tool call.
func (h *Handlers) HandleCompare(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CompareRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Compare(ctx, h.env, ops.CompareInput{
		Label:      input.Label,
		Against:    input.Against,
		Tables:     input.Tables,
		Hashing:    input.Hashing,
		Format:     input.Format,
		Output:     input.Output,
		NoTruncate: input.NoTruncate,
		NoRecord:   input.NoRecord,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptures handles the snapshot_captures tool call.
func (h *Handlers) HandleCaptures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CapturesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Captures(h.env, ops.CapturesInput{Label: input.Label})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRunList handles the run_list tool call.
func (h *Handlers) HandleRunList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Runs(h.env.DB, ops.RunsInput{
		Before: input.Before,
		After:  input.After,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRunFetch handles the run_fetch tool call.
func (h *Handlers) HandleRunFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunFetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchRun(h.env.DB, ops.FetchRunInput{
		ID:         input.ID,
		Format:     input.Format,
		NoTruncate: input.NoTruncate,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRunPurge handles the run_purge tool call.
func (h *Handlers) HandleRunPurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunPurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(h.env.DB, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult creates an MCP error result from any error.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var tsErr *errors.TablesnapError
	if stderrors.As(err, &tsErr) {
		message := tsErr.Message
		// Keep wrapper context such as "table users: "
		if prefix := strings.TrimSuffix(err.Error(), tsErr.Error()); prefix != err.Error() {
			message = prefix + message
		}
		errorObj := map[string]any{
			"code":    tsErr.Code,
			"message": message,
			"status":  tsErr.Status,
		}
		if tsErr.Code != errors.ErrInternal && tsErr.Details != nil {
			errorObj["details"] = tsErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
