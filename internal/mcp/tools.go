package mcp

import "github.com/mark3labs/mcp-go/mcp"

func boolPtr(b bool) *bool { return &b }

var takeToolDef = mcp.NewTool("snapshot_take",
	mcp.WithDescription("Capture the configured source database under a label, replacing the label's previous captures."),
	mcp.WithString("label", mcp.Description(`Label to capture under, e.g. "before" or "after"`), mcp.Required()),
	mcp.WithString("tables", mcp.Description("Comma-separated tables (optional, defaults to config, then every table)")),
	mcp.WithBoolean("hashing", mcp.Description("Store row fingerprints instead of full rows (optional, defaults to config)")),
	mcp.WithBoolean("cursor", mcp.Description("Read tables with keyset pagination (optional, defaults to config)")),
)

var compareToolDef = mcp.NewTool("snapshot_compare",
	mcp.WithDescription(`Compare two labels' captures table by table. With only "label", "before" compares against "after" and any other label is compared against "before".`),
	mcp.WithString("label", mcp.Description(`Label to compare (optional, defaults to "before")`)),
	mcp.WithString("against", mcp.Description("Explicit counterpart label (optional)")),
	mcp.WithString("tables", mcp.Description("Comma-separated tables to compare (optional)")),
	mcp.WithBoolean("hashing", mcp.Description("Compare fingerprints instead of full rows (optional, defaults to config)")),
	mcp.WithString("format", mcp.Description("Report format"), mcp.Enum("text", "json", "markdown", "html")),
	mcp.WithString("output", mcp.Description("Write the report to this file instead of returning it (optional)")),
	mcp.WithBoolean("no_truncate", mcp.Description("Print long values in full")),
	mcp.WithBoolean("no_record", mcp.Description("Do not record the run in history")),
)

var capturesToolDef = mcp.NewTool("snapshot_captures",
	mcp.WithDescription("List labels and captured tables on disk with their sizes."),
	mcp.WithString("label", mcp.Description("Only this label (optional)")),
	mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
)

var runListToolDef = mcp.NewTool("run_list",
	mcp.WithDescription("List recorded comparison runs, newest first."),
	mcp.WithString("before", mcp.Description("Filter by before label (optional)")),
	mcp.WithString("after", mcp.Description("Filter by after label (optional)")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Page offset (default 0)")),
	mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
)

var runFetchToolDef = mcp.NewTool("run_fetch",
	mcp.WithDescription("Fetch a recorded comparison run and render its report."),
	mcp.WithString("id", mcp.Description("Run ID"), mcp.Required()),
	mcp.WithString("format", mcp.Description("Report format"), mcp.Enum("text", "json", "markdown", "html")),
	mcp.WithBoolean("no_truncate", mcp.Description("Print long values in full")),
	mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
)

var runPurgeToolDef = mcp.NewTool("run_purge",
	mcp.WithDescription("Permanently delete recorded comparison runs."),
	mcp.WithNumber("older_than_days", mcp.Description("Only runs recorded more than N days ago (optional, omit to purge all)")),
	mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
)
