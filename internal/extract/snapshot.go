package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/errors"
	"github.com/hpungsan/tablesnap/internal/logging"
)

// TakeOptions configures one snapshot.
type TakeOptions struct {
	Tables    []string // empty snapshots every table of the source
	Mode      capture.Mode
	KeyColumn string
	Scan      ScanOptions
}

// TableSnapshot reports the capture written for one table.
type TableSnapshot struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
	Bytes int64  `json:"bytes"`
	Path  string `json:"path,omitempty"`
	Err   error  `json:"-"`
}

// Snapshotter writes captures of a source's tables into a store.
type Snapshotter struct {
	Source Source
	Store  *capture.Store
	Logger *slog.Logger
}

// Take replaces every capture under label with fresh ones. A table that
// fails is reported in its TableSnapshot and does not stop the others;
// an error is returned only when the snapshot cannot start.
func (s *Snapshotter) Take(ctx context.Context, label string, opts TakeOptions) ([]TableSnapshot, error) {
	if err := capture.ValidateName("label", label); err != nil {
		return nil, err
	}
	if opts.KeyColumn == "" {
		opts.KeyColumn = "id"
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	tables := opts.Tables
	if len(tables) == 0 {
		var err error
		tables, err = s.Source.Tables(ctx)
		if err != nil {
			return nil, err
		}
	}
	for _, t := range tables {
		if err := capture.ValidateName("table", t); err != nil {
			return nil, err
		}
	}

	logger.Info("clearing previous captures", "label", label)
	if err := s.Store.Clear(label); err != nil {
		return nil, err
	}

	results := make([]TableSnapshot, 0, len(tables))
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			results = append(results, TableSnapshot{Table: table, Err: errors.NewCancelled("snapshot")})
			continue
		}
		ts := s.takeTable(ctx, label, table, opts)
		if ts.Err != nil {
			logger.Warn("table snapshot failed", "label", label, "table", table, "error", ts.Err)
		} else {
			logger.Info("table captured", "label", label, "table", table, "rows", ts.Rows, "bytes", ts.Bytes)
		}
		results = append(results, ts)
	}
	return results, nil
}

func (s *Snapshotter) takeTable(ctx context.Context, label, table string, opts TakeOptions) TableSnapshot {
	ts := TableSnapshot{Table: table}

	w, err := s.Store.Create(capture.Header{
		Table:   table,
		Label:   label,
		Mode:    opts.Mode,
		Key:     opts.KeyColumn,
		TakenAt: time.Now().Unix(),
	})
	if err != nil {
		ts.Err = err
		return ts
	}

	err = s.Source.Scan(ctx, table, opts.KeyColumn, opts.Scan, func(row capture.Row) error {
		if opts.Mode != capture.ModeHashing {
			return w.Write(row)
		}
		id, ok := row[opts.KeyColumn]
		if !ok {
			return fmt.Errorf("row has no key column %q", opts.KeyColumn)
		}
		h, err := capture.Fingerprint(row)
		if err != nil {
			return err
		}
		return w.Write(capture.HashedRow{ID: id, Hash: h})
	})
	if err != nil {
		w.Abort()
		ts.Err = err
		return ts
	}

	size, err := w.Close()
	if err != nil {
		ts.Err = err
		return ts
	}
	ts.Rows = w.Rows()
	ts.Bytes = size
	ts.Path = w.Path()
	return ts
}
