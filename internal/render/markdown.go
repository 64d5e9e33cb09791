package render

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/tablesnap/internal/compare"
	"github.com/hpungsan/tablesnap/internal/diff"
)

// Markdown renders res as a markdown report. Values are never truncated.
func Markdown(res *compare.Result) string {
	var b strings.Builder
	if res == nil {
		b.WriteString("No changes detected.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "# %s → %s\n\n", cell(res.Before), cell(res.After))
	fmt.Fprintf(&b, "Mode: **%s** · %s changed · %s inserted · %s deleted · %s updated\n\n",
		res.Mode, plural(len(res.Tables), "table"),
		humanize.Comma(int64(res.Totals.Inserted)),
		humanize.Comma(int64(res.Totals.Deleted)),
		humanize.Comma(int64(res.Totals.Updated)))

	if !res.Changed() {
		b.WriteString("No changes detected.\n")
	}
	for _, name := range res.TableNames() {
		markdownTable(&b, name, res.Tables[name])
	}

	if skipped := res.Skipped(); len(skipped) > 0 {
		b.WriteString("## Skipped tables\n\n| table | reason | detail |\n|---|---|---|\n")
		for _, o := range skipped {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(o.Table), o.Reason, cell(o.Error))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func markdownTable(b *strings.Builder, name string, d *diff.Delta) {
	fmt.Fprintf(b, "## %s\n\n", cell(name))

	entries := func(title string, keys []string, m map[string]diff.Entry) {
		if len(keys) == 0 {
			return
		}
		fmt.Fprintf(b, "### %s (%d)\n\n| key | row |\n|---|---|\n", title, len(keys))
		for _, k := range keys {
			fmt.Fprintf(b, "| %s | %s |\n", cell(k), cell(entryText(m[k])))
		}
		b.WriteString("\n")
	}
	entries("Inserts", d.InsertedKeys(), d.Inserted)
	entries("Deletes", d.DeletedKeys(), d.Deleted)

	if len(d.Updated) == 0 {
		return
	}
	fmt.Fprintf(b, "### Updates (%d)\n\n| key | column | before | after |\n|---|---|---|---|\n", len(d.Updated))
	for _, u := range d.Updated {
		if u.Before.Row == nil && u.After.Row == nil {
			fmt.Fprintf(b, "| %s | *fingerprint* | %s | %s |\n", cell(u.Key), u.Before.Fingerprint, u.After.Fingerprint)
			continue
		}
		cols := u.Columns()
		for _, ch := range cols {
			fmt.Fprintf(b, "| %s | %s | %s | %s |\n", cell(u.Key), cell(ch.Column), cell(FormatValue(ch.Before)), cell(FormatValue(ch.After)))
		}
		if len(cols) == 0 {
			onlyBefore, onlyAfter := diff.OneSidedColumns(u.Before.Row, u.After.Row)
			for _, c := range onlyBefore {
				fmt.Fprintf(b, "| %s | %s | %s | *%s* |\n", cell(u.Key), cell(c), cell(FormatValue(u.Before.Row[c])), absent)
			}
			for _, c := range onlyAfter {
				fmt.Fprintf(b, "| %s | %s | *%s* | %s |\n", cell(u.Key), cell(c), absent, cell(FormatValue(u.After.Row[c])))
			}
		}
	}
	b.WriteString("\n")
}

func entryText(e diff.Entry) string {
	if e.Row == nil {
		return "fingerprint=" + e.Fingerprint
	}
	cols := e.Row.Columns()
	pairs := make([]string, len(cols))
	for i, c := range cols {
		pairs[i] = c + "=" + FormatValue(e.Row[c])
	}
	return strings.Join(pairs, ", ")
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

// cell escapes a value for a markdown table cell.
func cell(s string) string {
	return cellReplacer.Replace(s)
}
