package ops

import (
	"context"
	"time"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/db"
	"github.com/hpungsan/tablesnap/internal/errors"
	"github.com/hpungsan/tablesnap/internal/extract"
)

// SnapshotInput contains parameters for the Snapshot operation.
type SnapshotInput struct {
	Label   string   // required
	Tables  []string // optional, defaults to config tables, then every table
	Hashing *bool    // optional, overrides use_hashing
	Cursor  *bool    // optional, overrides use_cursor
}

// SnapshotTable reports one captured table.
type SnapshotTable struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
	Bytes int64  `json:"bytes"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// SnapshotOutput contains the result of the Snapshot operation.
type SnapshotOutput struct {
	Label   string          `json:"label"`
	Mode    capture.Mode    `json:"mode"`
	Tables  []SnapshotTable `json:"tables"`
	Rows    int             `json:"rows"`
	Bytes   int64           `json:"bytes"`
	Failed  int             `json:"failed"`
	TakenAt int64           `json:"taken_at"`
}

// Snapshot captures the source's tables under a label, replacing whatever
// the label held before, and records each table in history.
func Snapshot(ctx context.Context, env *Env, input SnapshotInput) (*SnapshotOutput, error) {
	if err := capture.ValidateName("label", input.Label); err != nil {
		return nil, err
	}

	mode := env.modeFor(input.Hashing)
	useCursor := env.Config.UseCursor
	if input.Cursor != nil {
		useCursor = *input.Cursor
	}

	src, err := env.openSource(ctx)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	snap := &extract.Snapshotter{Source: src, Store: env.Store, Logger: env.logger()}
	results, err := snap.Take(ctx, input.Label, extract.TakeOptions{
		Tables:    env.tablesFor(input.Tables),
		Mode:      mode,
		KeyColumn: env.Config.KeyColumn,
		Scan:      extract.ScanOptions{Cursor: useCursor, PageSize: env.Config.PageSize},
	})
	if err != nil {
		return nil, err
	}

	out := &SnapshotOutput{
		Label:   input.Label,
		Mode:    mode,
		Tables:  make([]SnapshotTable, 0, len(results)),
		TakenAt: time.Now().Unix(),
	}
	for _, r := range results {
		st := SnapshotTable{Table: r.Table, Rows: r.Rows, Bytes: r.Bytes, Path: r.Path}
		if r.Err != nil {
			st.Error = r.Err.Error()
			out.Failed++
		}
		out.Rows += r.Rows
		out.Bytes += r.Bytes
		out.Tables = append(out.Tables, st)
	}

	if env.DB != nil {
		if err := recordSnapshot(env, out); err != nil {
			return nil, err
		}
	}

	if ctx.Err() != nil {
		return out, errors.NewCancelled("snapshot")
	}
	return out, nil
}

// recordSnapshot replaces the label's history records with this snapshot.
func recordSnapshot(env *Env, out *SnapshotOutput) error {
	if _, err := db.DeleteSnapshots(env.DB, out.Label); err != nil {
		return err
	}
	for _, t := range out.Tables {
		rec := &db.SnapshotRecord{
			Label:   out.Label,
			Table:   t.Table,
			Mode:    string(out.Mode),
			Rows:    t.Rows,
			Bytes:   t.Bytes,
			Path:    t.Path,
			TakenAt: out.TakenAt,
		}
		if t.Error != "" {
			msg := t.Error
			rec.Error = &msg
		}
		if err := db.InsertSnapshot(env.DB, rec); err != nil {
			return err
		}
	}
	return nil
}
