// Package compare runs a comparison between two labels: it selects the tables
// both labels captured, diffs each one and aggregates the deltas.
package compare

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/diff"
	"github.com/hpungsan/tablesnap/internal/errors"
)

// Default labels used when only one side of a comparison is named.
const (
	LabelBefore = "before"
	LabelAfter  = "after"
)

// DefaultWorkers bounds how many tables are diffed at once.
const DefaultWorkers = 4

// Options configures one comparison run.
type Options struct {
	Before    string
	After     string
	Tables    []string // empty compares every table both labels captured
	Mode      capture.Mode
	KeyColumn string
	Workers   int
}

// Loader provides captures. *capture.Store satisfies it.
type Loader interface {
	Tables(label string) ([]string, error)
	Load(label, table string, mode capture.Mode, key string) (*capture.Capture, error)
}

// Status is the outcome class of one table.
type Status string

const (
	StatusCompared Status = "compared"
	StatusSkipped  Status = "skipped"
)

// Reason explains why a table was skipped.
type Reason string

const (
	ReasonNotCaptured        Reason = "not_captured"
	ReasonMissingCounterpart Reason = "missing_counterpart"
	ReasonMissingCapture     Reason = "missing_capture"
	ReasonMalformedCapture   Reason = "malformed_capture"
	ReasonLoadFailed         Reason = "load_failed"
	ReasonCancelled          Reason = "cancelled"
)

// Outcome records what happened to one table during a run.
type Outcome struct {
	Table   string     `json:"table"`
	Status  Status     `json:"status"`
	Reason  Reason     `json:"reason,omitempty"`
	Error   string     `json:"error,omitempty"`
	Stats   diff.Stats `json:"stats"`
	Dropped int        `json:"dropped,omitempty"`
}

// Skipped reports whether the table was not compared.
func (o Outcome) Skipped() bool {
	return o.Status == StatusSkipped
}

// Result is the aggregate of a comparison run.
type Result struct {
	Before   string                 `json:"before"`
	After    string                 `json:"after"`
	Mode     capture.Mode           `json:"mode"`
	Tables   map[string]*diff.Delta `json:"tables"`
	Outcomes []Outcome              `json:"outcomes"`
	Totals   diff.Stats             `json:"totals"`
}

// TableNames returns the changed tables in sorted order.
func (r *Result) TableNames() []string {
	names := make([]string, 0, len(r.Tables))
	for name := range r.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Changed reports whether any table differs.
func (r *Result) Changed() bool {
	return len(r.Tables) > 0
}

// Skipped returns the outcomes of tables that were not compared.
func (r *Result) Skipped() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Skipped() {
			out = append(out, o)
		}
	}
	return out
}

// PairFor resolves the two sides of a comparison from a label and an
// optional explicit counterpart. Comparing "before" defaults to "after";
// comparing any other label treats it as the newer side against "before".
func PairFor(label, against string) (before, after string) {
	label = strings.TrimSpace(label)
	against = strings.TrimSpace(against)
	if label == "" {
		label = LabelBefore
	}
	if against != "" {
		return label, against
	}
	if label == LabelBefore {
		return LabelBefore, LabelAfter
	}
	return LabelBefore, label
}

func (o *Options) normalize() error {
	if err := capture.ValidateName("before label", o.Before); err != nil {
		return err
	}
	if err := capture.ValidateName("after label", o.After); err != nil {
		return err
	}
	mode, err := capture.ParseMode(string(o.Mode))
	if err != nil {
		return err
	}
	o.Mode = mode
	o.KeyColumn = strings.TrimSpace(o.KeyColumn)
	if o.KeyColumn == "" {
		o.KeyColumn = "id"
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Workers > 64 {
		return errors.NewInvalidRequest(fmt.Sprintf("workers must be between 1 and 64, got %d", o.Workers))
	}
	return nil
}

// Run compares every selected table. Per-table problems become skipped
// outcomes; an error is returned only when the run cannot start.
func Run(ctx context.Context, loader Loader, opts Options, obs Observer) (*Result, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if obs == nil {
		obs = nopObserver{}
	}

	beforeTables, err := loader.Tables(opts.Before)
	if err != nil {
		return nil, err
	}
	afterTables, err := loader.Tables(opts.After)
	if err != nil {
		return nil, err
	}

	selected, skipped := selectTables(beforeTables, afterTables, opts.Tables)

	outcomes := make([]Outcome, len(selected))
	deltas := make([]*diff.Delta, len(selected))

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i, table := range selected {
		if ctx.Err() != nil {
			outcomes[i] = cancelled(table)
			continue
		}
		g.Go(func() error {
			outcomes[i], deltas[i] = compareTable(ctx, loader, opts, table)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{
		Before: opts.Before,
		After:  opts.After,
		Mode:   opts.Mode,
		Tables: make(map[string]*diff.Delta),
	}
	for i, o := range outcomes {
		res.Totals.Add(o.Stats)
		if d := deltas[i]; d != nil && !d.Empty() {
			res.Tables[o.Table] = d
		}
	}

	res.Outcomes = append(skipped, outcomes...)
	sort.SliceStable(res.Outcomes, func(i, j int) bool { return res.Outcomes[i].Table < res.Outcomes[j].Table })

	for _, o := range res.Outcomes {
		if o.Skipped() {
			obs.TableSkipped(o)
		} else {
			obs.TableCompared(o)
		}
	}
	return res, nil
}

// selectTables intersects both labels' tables and applies the filter.
// Tables left out for availability reasons come back as skipped outcomes.
func selectTables(before, after, filter []string) (selected []string, skipped []Outcome) {
	inBefore := toSet(before)
	inAfter := toSet(after)

	var candidates []string
	if wanted := normalizeFilter(filter); len(wanted) > 0 {
		candidates = wanted
	} else {
		seen := make(map[string]struct{}, len(inBefore)+len(inAfter))
		for _, t := range append(append([]string{}, before...), after...) {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			candidates = append(candidates, t)
		}
		sort.Strings(candidates)
	}

	for _, t := range candidates {
		_, b := inBefore[t]
		_, a := inAfter[t]
		switch {
		case b && a:
			selected = append(selected, t)
		case !b && !a:
			skipped = append(skipped, Outcome{Table: t, Status: StatusSkipped, Reason: ReasonNotCaptured})
		default:
			skipped = append(skipped, Outcome{Table: t, Status: StatusSkipped, Reason: ReasonMissingCounterpart})
		}
	}
	return selected, skipped
}

func compareTable(ctx context.Context, loader Loader, opts Options, table string) (Outcome, *diff.Delta) {
	if ctx.Err() != nil {
		return cancelled(table), nil
	}

	before, err := loader.Load(opts.Before, table, opts.Mode, opts.KeyColumn)
	if err != nil {
		return loadFailure(table, err), nil
	}
	after, err := loader.Load(opts.After, table, opts.Mode, opts.KeyColumn)
	if err != nil {
		return loadFailure(table, err), nil
	}

	d := diff.Table(before, after, opts.Mode)
	d.Table = table
	return Outcome{
		Table:   table,
		Status:  StatusCompared,
		Stats:   d.Stats(),
		Dropped: before.Dropped + after.Dropped,
	}, d
}

func loadFailure(table string, err error) Outcome {
	reason := ReasonLoadFailed
	switch {
	case errors.Is(err, errors.ErrCaptureNotFound):
		reason = ReasonMissingCapture
	case errors.Is(err, errors.ErrMalformedCapture):
		reason = ReasonMalformedCapture
	}
	return Outcome{Table: table, Status: StatusSkipped, Reason: reason, Error: err.Error()}
}

func cancelled(table string) Outcome {
	return Outcome{Table: table, Status: StatusSkipped, Reason: ReasonCancelled}
}

func normalizeFilter(filter []string) []string {
	seen := make(map[string]struct{}, len(filter))
	var out []string
	for _, t := range filter {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
