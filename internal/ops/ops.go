// Package ops implements the tablesnap operations shared by the CLI, the
// MCP server and the web viewer. Each operation takes an XInput and returns
// an *XOutput.
package ops

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/config"
	"github.com/hpungsan/tablesnap/internal/extract"
	"github.com/hpungsan/tablesnap/internal/logging"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// SourceOpener connects to the configured snapshot source.
type SourceOpener func(ctx context.Context, cfg config.Source) (extract.Source, error)

// Env carries the dependencies operations run against.
type Env struct {
	DB     *sql.DB
	Config *config.Config
	Store  *capture.Store
	Logger *slog.Logger

	// OpenSource defaults to extract.Open.
	OpenSource SourceOpener
}

// NewEnv wires an Env for baseDir. The capture store lives in the
// configured snapshot directory.
func NewEnv(database *sql.DB, cfg *config.Config, baseDir string, logger *slog.Logger) *Env {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Env{
		DB:         database,
		Config:     cfg,
		Store:      capture.NewStore(cfg.ResolveSnapshotDir(baseDir)),
		Logger:     logger,
		OpenSource: extract.Open,
	}
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

func (e *Env) openSource(ctx context.Context) (extract.Source, error) {
	if e.OpenSource == nil {
		return extract.Open(ctx, e.Config.Source)
	}
	return e.OpenSource(ctx, e.Config.Source)
}

// pageBounds applies limit defaults and bounds.
func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

// modeFor resolves the comparison mode: an explicit request wins over config.
func (e *Env) modeFor(hashing *bool) capture.Mode {
	if hashing != nil {
		return capture.ModeFor(*hashing)
	}
	return capture.ModeFor(e.Config.UseHashing)
}

// tablesFor returns the requested tables, or the configured ones.
func (e *Env) tablesFor(requested []string) []string {
	var out []string
	for _, t := range requested {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		return out
	}
	return e.Config.Tables
}

// SplitTables parses a comma-separated table list.
func SplitTables(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
