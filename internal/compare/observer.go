package compare

import "log/slog"

// Observer is notified of each table's outcome once a run finishes, in
// table order.
type Observer interface {
	TableSkipped(Outcome)
	TableCompared(Outcome)
}

type nopObserver struct{}

func (nopObserver) TableSkipped(Outcome)  {}
func (nopObserver) TableCompared(Outcome) {}

// LogObserver writes outcomes to a structured logger: skips as warnings,
// comparisons at info level.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver returns an observer backed by logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) TableSkipped(out Outcome) {
	attrs := []any{"table", out.Table, "reason", string(out.Reason)}
	if out.Error != "" {
		attrs = append(attrs, "error", out.Error)
	}
	o.Logger.Warn("table skipped", attrs...)
}

func (o *LogObserver) TableCompared(out Outcome) {
	attrs := []any{
		"table", out.Table,
		"inserted", out.Stats.Inserted,
		"deleted", out.Stats.Deleted,
		"updated", out.Stats.Updated,
		"unchanged", out.Stats.Unchanged,
	}
	if out.Dropped > 0 {
		o.Logger.Warn("rows without key ignored", "table", out.Table, "dropped", out.Dropped)
	}
	o.Logger.Info("table compared", attrs...)
}
