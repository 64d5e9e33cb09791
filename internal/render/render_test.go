package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/compare"
	"github.com/hpungsan/tablesnap/internal/diff"
	"github.com/hpungsan/tablesnap/internal/errors"
)

func sampleResult() *compare.Result {
	users := &diff.Delta{
		Table: "users",
		Mode:  capture.ModeFull,
		Inserted: map[string]diff.Entry{
			"3": {Row: capture.Row{"id": json.Number("3"), "name": "c"}},
		},
		Deleted: map[string]diff.Entry{
			"1": {Row: capture.Row{"id": json.Number("1"), "name": "a", "note": nil}},
		},
		Updated: []diff.Update{{
			Key:    "2",
			Before: diff.Entry{Row: capture.Row{"id": json.Number("2"), "name": "b", "age": json.Number("30")}},
			After:  diff.Entry{Row: capture.Row{"id": json.Number("2"), "name": "b", "age": json.Number("31")}},
		}},
	}
	return &compare.Result{
		Before: "before",
		After:  "after",
		Mode:   capture.ModeFull,
		Tables: map[string]*diff.Delta{"users": users},
		Outcomes: []compare.Outcome{
			{Table: "legacy", Status: compare.StatusSkipped, Reason: compare.ReasonMissingCounterpart},
			{Table: "users", Status: compare.StatusCompared, Stats: users.Stats()},
		},
		Totals: users.Stats(),
	}
}

func TestRender_TextPlain(t *testing.T) {
	out, err := String(sampleResult(), DefaultOptions())
	require.NoError(t, err)

	want := strings.Join([]string{
		"",
		"► Table: users",
		"  + Inserts (1)",
		"    → [3] id=3, name=c",
		"  - Deletes (1)",
		"    → [1] id=1, name=a, note=NULL",
		"  * Updates (1)",
		"    → [2]",
		"       age: 30 → 31",
		"",
		"before vs after: 1 table changed, 1 inserted, 1 deleted, 1 updated, 1 table skipped",
		"",
	}, "\n")
	require.Equal(t, want, out)
}

func TestRender_TextColorStrips(t *testing.T) {
	opts := DefaultOptions()
	opts.Color = true
	colored, err := String(sampleResult(), opts)
	require.NoError(t, err)
	require.Contains(t, colored, "\033[1;34m► Table: users\033[0m")

	plain, err := String(sampleResult(), DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, plain, StripANSI(colored))
}

func TestRender_NoChanges(t *testing.T) {
	res := &compare.Result{Before: "before", After: "after", Tables: map[string]*diff.Delta{}}

	out, err := String(res, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, "No changes detected.\n", out)
}

func TestRender_Truncation(t *testing.T) {
	long := strings.Repeat("x", 60)
	res := &compare.Result{
		Before: "before",
		After:  "after",
		Tables: map[string]*diff.Delta{"docs": {
			Mode: capture.ModeFull,
			Updated: []diff.Update{{
				Key:    "1",
				Before: diff.Entry{Row: capture.Row{"body": long}},
				After:  diff.Entry{Row: capture.Row{"body": "short"}},
			}},
		}},
	}

	out, err := String(res, DefaultOptions())
	require.NoError(t, err)
	require.Contains(t, out, "body: "+strings.Repeat("x", 37)+"… → short")

	opts := DefaultOptions()
	opts.Truncate = false
	out, err = String(res, opts)
	require.NoError(t, err)
	require.Contains(t, out, "body: "+long+" → short")
}

func TestRender_TextHashingUpdate(t *testing.T) {
	res := &compare.Result{
		Before: "before",
		After:  "after",
		Mode:   capture.ModeHashing,
		Tables: map[string]*diff.Delta{"orders": {
			Mode:     capture.ModeHashing,
			Inserted: map[string]diff.Entry{"9": {Fingerprint: "ffee"}},
			Updated: []diff.Update{{
				Key:    "5",
				Before: diff.Entry{Fingerprint: "h1"},
				After:  diff.Entry{Fingerprint: "h2"},
			}},
		}},
	}

	out, err := String(res, DefaultOptions())
	require.NoError(t, err)
	require.Contains(t, out, "    → [9] fingerprint=ffee\n")
	require.Contains(t, out, "    → [5]\n       fingerprint: h1 → h2\n")
}

func TestRender_JSON(t *testing.T) {
	opts := DefaultOptions()
	opts.Format = FormatJSON
	out, err := String(sampleResult(), opts)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, "before", decoded["before"])
	tables := decoded["tables"].(map[string]any)
	users := tables["users"].(map[string]any)
	require.Len(t, users["updated"], 1)
}

func TestRender_MarkdownAndHTML(t *testing.T) {
	md := Markdown(sampleResult())
	require.Contains(t, md, "# before → after")
	require.Contains(t, md, "## users")
	require.Contains(t, md, "| 2 | age | 30 | 31 |")
	require.Contains(t, md, "| legacy | missing_counterpart |")

	opts := DefaultOptions()
	opts.Format = FormatHTML
	html, err := String(sampleResult(), opts)
	require.NoError(t, err)
	require.Contains(t, html, "<table>")
	require.Contains(t, html, "<h2>users</h2>")
	require.Contains(t, html, "<td>age</td>")
}

func TestRender_NullVersusAbsentColumn(t *testing.T) {
	d := &diff.Delta{
		Table: "notes",
		Mode:  capture.ModeFull,
		Updated: []diff.Update{{
			Key:    "1",
			Before: diff.Entry{Row: capture.Row{"id": json.Number("1"), "note": nil}},
			After:  diff.Entry{Row: capture.Row{"id": json.Number("1")}},
		}},
	}
	res := &compare.Result{
		Before: "before",
		After:  "after",
		Mode:   capture.ModeFull,
		Tables: map[string]*diff.Delta{"notes": d},
		Totals: d.Stats(),
	}

	out, err := String(res, DefaultOptions())
	require.NoError(t, err)
	require.Contains(t, out, "    → [1]\n       note: NULL → (absent)\n")

	require.Contains(t, Markdown(res), "| 1 | note | NULL | *(absent)* |")
}

func TestMarkdown_EscapesCells(t *testing.T) {
	require.Equal(t, `a\|b c`, cell("a|b\nc"))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{"text", "text"},
		{json.Number("1.50"), "1.50"},
		{true, "true"},
		{2.5, "2.5"},
		{int64(7), "7"},
		{[]any{"a", json.Number("1")}, `["a",1]`},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatValue(tt.in))
	}
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 40))
	require.Equal(t, "héllo …", truncate("héllo world", 9))
	require.Equal(t, strings.Repeat("é", 40), truncate(strings.Repeat("é", 40), 40))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "JSON": FormatJSON, "md": FormatMarkdown, "html": FormatHTML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseFormat("yaml")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
