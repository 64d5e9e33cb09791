package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/compare"
	"github.com/hpungsan/tablesnap/internal/diff"
)

// ANSI colour codes.
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiTable  = "\033[1;34m"
	ansiInsert = "\033[32m"
	ansiDelete = "\033[31m"
	ansiUpdate = "\033[33m"
)

type palette struct {
	reset, bold, table, ins, del, upd string
}

func paletteFor(color bool) palette {
	if !color {
		return palette{}
	}
	return palette{ansiReset, ansiBold, ansiTable, ansiInsert, ansiDelete, ansiUpdate}
}

type textWriter struct {
	w    *bufio.Writer
	opts Options
	c    palette
}

func writeText(out io.Writer, res *compare.Result, opts Options) error {
	t := &textWriter{w: bufio.NewWriter(out), opts: opts, c: paletteFor(opts.Color)}

	if res == nil || !res.Changed() {
		fmt.Fprintf(t.w, "%sNo changes detected.%s\n", t.c.bold, t.c.reset)
	} else {
		for _, name := range res.TableNames() {
			t.table(name, res.Tables[name])
		}
		fmt.Fprintln(t.w)
	}
	if res != nil {
		t.summary(res)
	}
	return t.w.Flush()
}

func (t *textWriter) value(v any) string {
	s := FormatValue(v)
	if t.opts.Truncate {
		s = truncate(s, t.opts.MaxWidth)
	}
	return s
}

func (t *textWriter) table(name string, d *diff.Delta) {
	fmt.Fprintf(t.w, "\n%s► Table: %s%s\n", t.c.table, name, t.c.reset)

	if n := len(d.Inserted); n > 0 {
		fmt.Fprintf(t.w, "  %s+ Inserts (%d)%s\n", t.c.ins, n, t.c.reset)
		for _, key := range d.InsertedKeys() {
			fmt.Fprintf(t.w, "    %s→ [%s]%s %s\n", t.c.ins, key, t.c.reset, t.entry(d.Inserted[key]))
		}
	}

	if n := len(d.Deleted); n > 0 {
		fmt.Fprintf(t.w, "  %s- Deletes (%d)%s\n", t.c.del, n, t.c.reset)
		for _, key := range d.DeletedKeys() {
			fmt.Fprintf(t.w, "    %s→ [%s]%s %s\n", t.c.del, key, t.c.reset, t.entry(d.Deleted[key]))
		}
	}

	if n := len(d.Updated); n > 0 {
		fmt.Fprintf(t.w, "  %s* Updates (%d)%s\n", t.c.upd, n, t.c.reset)
		for _, u := range d.Updated {
			fmt.Fprintf(t.w, "    %s→ [%s]%s\n", t.c.upd, u.Key, t.c.reset)
			if d.Mode == capture.ModeHashing || (u.Before.Row == nil && u.After.Row == nil) {
				fmt.Fprintf(t.w, "       fingerprint: %s → %s\n", u.Before.Fingerprint, u.After.Fingerprint)
				continue
			}
			cols := u.Columns()
			for _, ch := range cols {
				fmt.Fprintf(t.w, "       %s: %s → %s\n", ch.Column, t.value(ch.Before), t.value(ch.After))
			}
			if len(cols) == 0 {
				onlyBefore, onlyAfter := diff.OneSidedColumns(u.Before.Row, u.After.Row)
				for _, c := range onlyBefore {
					fmt.Fprintf(t.w, "       %s: %s → %s\n", c, t.value(u.Before.Row[c]), absent)
				}
				for _, c := range onlyAfter {
					fmt.Fprintf(t.w, "       %s: %s → %s\n", c, absent, t.value(u.After.Row[c]))
				}
			}
		}
	}
}

// entry formats an inserted or deleted row as col=val pairs.
func (t *textWriter) entry(e diff.Entry) string {
	if e.Row == nil {
		return "fingerprint=" + e.Fingerprint
	}
	cols := e.Row.Columns()
	pairs := make([]string, len(cols))
	for i, c := range cols {
		pairs[i] = c + "=" + t.value(e.Row[c])
	}
	return strings.Join(pairs, ", ")
}

func (t *textWriter) summary(res *compare.Result) {
	skipped := len(res.Skipped())
	if !res.Changed() && skipped == 0 {
		return
	}
	fmt.Fprintf(t.w, "%s%s vs %s:%s %s changed, %s inserted, %s deleted, %s updated",
		t.c.bold, res.Before, res.After, t.c.reset,
		plural(len(res.Tables), "table"),
		humanize.Comma(int64(res.Totals.Inserted)),
		humanize.Comma(int64(res.Totals.Deleted)),
		humanize.Comma(int64(res.Totals.Updated)),
	)
	if skipped > 0 {
		fmt.Fprintf(t.w, ", %s skipped", plural(skipped, "table"))
	}
	fmt.Fprintln(t.w)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
