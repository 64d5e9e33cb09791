package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/compare"
	"github.com/hpungsan/tablesnap/internal/db"
	"github.com/hpungsan/tablesnap/internal/diff"
	"github.com/hpungsan/tablesnap/internal/errors"
	"github.com/hpungsan/tablesnap/internal/render"
)

// CompareInput contains parameters for the Compare operation.
type CompareInput struct {
	Label      string   // optional, defaults to "before"
	Against    string   // optional explicit counterpart
	Tables     []string // optional filter, defaults to config tables
	Hashing    *bool    // optional, overrides use_hashing
	Format     string   // text (default), json, markdown, html
	Output     string   // optional report file; empty returns the report inline
	Color      bool     // colour the inline text report
	ForceColor bool     // keep colour in the report file too
	NoTruncate bool
	NoRecord   bool // skip recording the run in history
}

// CompareOutput contains the result of the Compare operation.
type CompareOutput struct {
	RunID   string            `json:"run_id,omitempty"`
	Before  string            `json:"before"`
	After   string            `json:"after"`
	Mode    capture.Mode      `json:"mode"`
	Totals  diff.Stats        `json:"totals"`
	Changed []string          `json:"changed"`
	Skipped []compare.Outcome `json:"skipped,omitempty"`
	Output  string            `json:"output,omitempty"`
	Report  string            `json:"report,omitempty"`

	Result *compare.Result `json:"-"`
}

// Compare diffs two labels' captures, renders the report and records the
// run. Tables that cannot be compared are reported as skipped; an error
// is returned only when the run cannot start or the report cannot be written.
// A run that cannot be recorded is logged and returned without a RunID.
func Compare(ctx context.Context, env *Env, input CompareInput) (*CompareOutput, error) {
	format, err := render.ParseFormat(input.Format)
	if err != nil {
		return nil, err
	}
	if input.Output != "" {
		if err := ValidateOutputPath(input.Output); err != nil {
			return nil, err
		}
	}

	before, after := compare.PairFor(input.Label, input.Against)
	res, err := compare.Run(ctx, env.Store, compare.Options{
		Before:    before,
		After:     after,
		Tables:    env.tablesFor(input.Tables),
		Mode:      env.modeFor(input.Hashing),
		KeyColumn: env.Config.KeyColumn,
		Workers:   env.Config.Workers,
	}, compare.NewLogObserver(env.logger()))
	if err != nil {
		return nil, err
	}

	opts := render.DefaultOptions()
	opts.Format = format
	opts.Truncate = !input.NoTruncate
	opts.Color = input.Color
	if input.Output != "" {
		opts.Color = input.ForceColor
	}
	report, err := render.String(res, opts)
	if err != nil {
		return nil, err
	}

	out := &CompareOutput{
		Before:  res.Before,
		After:   res.After,
		Mode:    res.Mode,
		Totals:  res.Totals,
		Changed: res.TableNames(),
		Skipped: res.Skipped(),
		Result:  res,
	}

	if input.Output != "" {
		if err := writeReport(input.Output, []byte(report)); err != nil {
			return nil, err
		}
		out.Output = input.Output
	} else {
		out.Report = report
	}

	if !input.NoRecord && env.DB != nil {
		id, err := recordRun(env, res)
		if err != nil {
			env.logger().Warn("failed to record run", "error", err)
		} else {
			out.RunID = id
		}
	}

	env.logger().Info("comparison finished",
		"before", res.Before,
		"after", res.After,
		"changed_tables", len(out.Changed),
		"skipped_tables", len(out.Skipped),
		"run_id", out.RunID,
	)
	return out, nil
}

// recordRun stores res in the run history and returns the run ID.
func recordRun(env *Env, res *compare.Result) (string, error) {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	tables := make([]string, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		if !o.Skipped() {
			tables = append(tables, o.Table)
		}
	}

	run := &db.RunRecord{
		RunSummary: db.RunSummary{
			Before:   res.Before,
			After:    res.After,
			Mode:     string(res.Mode),
			Tables:   tables,
			Inserted: res.Totals.Inserted,
			Deleted:  res.Totals.Deleted,
			Updated:  res.Totals.Updated,
			Skipped:  len(res.Skipped()),
		},
		ResultJSON: string(resultJSON),
	}
	if err := db.InsertRun(env.DB, run); err != nil {
		return "", err
	}
	return run.ID, nil
}

// writeReport writes data to path through a temp file and a rename, so an
// existing report survives a failed write.
func writeReport(path string, data []byte) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create report file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close report file: %w", err))
	}
	file = nil

	// refuse to replace a symlink planted at the destination since validation
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("output path must not be a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest(fmt.Sprintf("%s already exists; overwriting is not supported on Windows", filepath.Base(path)))
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize report: %w", err))
	}

	success = true
	return nil
}
