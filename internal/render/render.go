// Package render turns a comparison result into text, JSON, markdown or HTML.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/tablesnap/internal/compare"
	"github.com/hpungsan/tablesnap/internal/errors"
)

// Format names an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// DefaultMaxWidth is the value width beyond which text output truncates.
const DefaultMaxWidth = 40

// absent stands in for a column one side of an update does not have.
const absent = "(absent)"

// Options controls rendering.
type Options struct {
	Format   Format
	Color    bool
	Truncate bool
	MaxWidth int
}

// DefaultOptions returns plain, truncated text output.
func DefaultOptions() Options {
	return Options{Format: FormatText, Truncate: true, MaxWidth: DefaultMaxWidth}
}

// ParseFormat validates a format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatMarkdown, FormatHTML:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid format %q: must be text, json, markdown or html", s))
	}
}

// IsTerminal reports whether f is attached to a terminal, the default for
// coloured output.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render writes res to w in the configured format.
func Render(w io.Writer, res *compare.Result, opts Options) error {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	switch opts.Format {
	case "", FormatText:
		return writeText(w, res, opts)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(res))
		return err
	case FormatHTML:
		return HTML(w, Markdown(res))
	default:
		return errors.NewInvalidRequest(fmt.Sprintf("invalid format %q", opts.Format))
	}
}

var markdownHTML = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML converts a markdown report to HTML.
func HTML(w io.Writer, md string) error {
	return markdownHTML.Convert([]byte(md), w)
}

// ansiPattern matches SGR escape sequences.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI removes colour escape sequences.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// String renders res into a string.
func String(res *compare.Result, opts Options) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, res, opts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatValue renders a cell value: scalars as text, nil as NULL, objects
// and arrays as compact JSON.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if max <= 3 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "…"
}
