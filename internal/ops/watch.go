package ops

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/hpungsan/tablesnap/internal/compare"
	"github.com/hpungsan/tablesnap/internal/errors"
)

// WatchInput contains parameters for the Watch operation.
type WatchInput struct {
	Schedule string   // required, standard 5-field cron expression or @every/@hourly descriptor
	Baseline string   // optional, defaults to "before"
	Label    string   // optional label re-captured on every tick, defaults to "after"
	Tables   []string // optional, defaults to config tables
	Hashing  *bool    // optional, overrides use_hashing

	// OnTick is called after every tick with its result or error.
	OnTick func(*WatchTickOutput, error)
}

// WatchTickOutput contains the result of one watch tick.
type WatchTickOutput struct {
	Snapshot *SnapshotOutput `json:"snapshot"`
	Compare  *CompareOutput  `json:"compare"`
}

func (in *WatchInput) normalize() error {
	in.Schedule = strings.TrimSpace(in.Schedule)
	if in.Schedule == "" {
		return errors.NewInvalidRequest("schedule is required")
	}
	if _, err := cron.ParseStandard(in.Schedule); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid schedule %q: %v", in.Schedule, err))
	}
	return in.labels()
}

// labels applies the default labels.
func (in *WatchInput) labels() error {
	in.Baseline = strings.TrimSpace(in.Baseline)
	if in.Baseline == "" {
		in.Baseline = compare.LabelBefore
	}
	in.Label = strings.TrimSpace(in.Label)
	if in.Label == "" {
		in.Label = compare.LabelAfter
	}
	if in.Label == in.Baseline {
		return errors.NewInvalidRequest("watch label must differ from the baseline")
	}
	return nil
}

// WatchTick re-captures the watched label and compares it against the
// baseline, recording the run.
func WatchTick(ctx context.Context, env *Env, input WatchInput) (*WatchTickOutput, error) {
	if err := input.labels(); err != nil {
		return nil, err
	}
	snap, err := Snapshot(ctx, env, SnapshotInput{
		Label:   input.Label,
		Tables:  input.Tables,
		Hashing: input.Hashing,
	})
	if err != nil {
		return nil, err
	}
	cmp, err := Compare(ctx, env, CompareInput{
		Label:   input.Baseline,
		Against: input.Label,
		Tables:  input.Tables,
		Hashing: input.Hashing,
	})
	if err != nil {
		return nil, err
	}
	return &WatchTickOutput{Snapshot: snap, Compare: cmp}, nil
}

// Watch runs WatchTick on the schedule until ctx is done. A tick still
// running when the next one is due causes that next one to be skipped.
func Watch(ctx context.Context, env *Env, input WatchInput) error {
	if err := input.normalize(); err != nil {
		return err
	}
	logger := env.logger().With("schedule", input.Schedule, "baseline", input.Baseline, "label", input.Label)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
	_, err := c.AddFunc(input.Schedule, func() {
		out, err := WatchTick(ctx, env, input)
		if err != nil {
			logger.Error("watch tick failed", "error", err)
		} else {
			logger.Info("watch tick",
				"run_id", out.Compare.RunID,
				"changed_tables", len(out.Compare.Changed),
				"inserted", out.Compare.Totals.Inserted,
				"deleted", out.Compare.Totals.Deleted,
				"updated", out.Compare.Totals.Updated,
			)
		}
		if input.OnTick != nil {
			input.OnTick(out, err)
		}
	})
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid schedule %q: %v", input.Schedule, err))
	}

	logger.Info("watching")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("watch stopped")
	return nil
}

// cronLogger routes scheduler messages to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
