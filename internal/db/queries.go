package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/tablesnap/internal/errors"
)

// SnapshotRecord is one table captured under one label.
type SnapshotRecord struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Table   string  `json:"table"`
	Mode    string  `json:"mode"`
	Rows    int     `json:"rows"`
	Bytes   int64   `json:"bytes"`
	Path    string  `json:"path"`
	Error   *string `json:"error,omitempty"`
	TakenAt int64   `json:"taken_at"`
}

// RunSummary describes a comparison run without its full result.
type RunSummary struct {
	ID        string   `json:"id"`
	Before    string   `json:"before"`
	After     string   `json:"after"`
	Mode      string   `json:"mode"`
	Tables    []string `json:"tables"`
	Inserted  int      `json:"inserted"`
	Deleted   int      `json:"deleted"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	CreatedAt int64    `json:"created_at"`
}

// RunRecord is a stored comparison run. ResultJSON holds the rendered
// JSON of the full comparison result.
type RunRecord struct {
	RunSummary
	ResultJSON string `json:"-"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Before string
	After  string
}

// NewID returns a new ULID string.
func NewID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return id.String(), nil
}

// InsertSnapshot records a captured table. ID and TakenAt are filled in
// when empty.
func InsertSnapshot(db *sql.DB, s *SnapshotRecord) error {
	if s.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		s.ID = id
	}
	if s.TakenAt == 0 {
		s.TakenAt = time.Now().Unix()
	}

	_, err := db.Exec(`
		INSERT INTO snapshots (id, label, table_name, mode, row_count, bytes, path, error, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Label, s.Table, s.Mode, s.Rows, s.Bytes, s.Path, toNullString(s.Error), s.TakenAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListSnapshots returns snapshot records, newest first. An empty label
// lists every label.
func ListSnapshots(db *sql.DB, label string) ([]SnapshotRecord, error) {
	query := `
		SELECT id, label, table_name, mode, row_count, bytes, path, error, taken_at
		FROM snapshots
	`
	var args []any
	if label != "" {
		query += " WHERE label = ?"
		args = append(args, label)
	}
	query += " ORDER BY taken_at DESC, label ASC, table_name ASC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var (
			s      SnapshotRecord
			errMsg sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Label, &s.Table, &s.Mode, &s.Rows, &s.Bytes, &s.Path, &errMsg, &s.TakenAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		s.Error = fromNullString(errMsg)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// DeleteSnapshots removes the records of a label, or of every label when
// label is empty. Returns the number of records removed.
func DeleteSnapshots(db *sql.DB, label string) (int, error) {
	query := "DELETE FROM snapshots"
	var args []any
	if label != "" {
		query += " WHERE label = ?"
		args = append(args, label)
	}
	result, err := db.Exec(query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// InsertRun records a comparison run. ID and CreatedAt are filled in when
// empty.
func InsertRun(db *sql.DB, r *RunRecord) error {
	if r.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		r.ID = id
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}
	tables := r.Tables
	if tables == nil {
		tables = []string{}
	}
	tablesJSON, err := json.Marshal(tables)
	if err != nil {
		return errors.NewInternal(err)
	}

	_, err = db.Exec(`
		INSERT INTO runs (
			id, before_label, after_label, mode, tables_json,
			inserted, deleted, updated, skipped, result_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Before, r.After, r.Mode, string(tablesJSON),
		r.Inserted, r.Deleted, r.Updated, r.Skipped, r.ResultJSON, r.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetRun retrieves a run with its stored result.
func GetRun(db *sql.DB, id string) (*RunRecord, error) {
	row := db.QueryRow(`
		SELECT id, before_label, after_label, mode, tables_json,
			inserted, deleted, updated, skipped, created_at, result_json
		FROM runs
		WHERE id = ?
	`, id)

	var (
		r          RunRecord
		tablesJSON string
	)
	err := row.Scan(
		&r.ID, &r.Before, &r.After, &r.Mode, &tablesJSON,
		&r.Inserted, &r.Deleted, &r.Updated, &r.Skipped, &r.CreatedAt, &r.ResultJSON,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("run", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := json.Unmarshal([]byte(tablesJSON), &r.Tables); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &r, nil
}

// ListRuns returns run summaries, newest first, plus the total count
// matching the filter.
func ListRuns(db *sql.DB, filter RunFilter, limit, offset int) ([]RunSummary, int, error) {
	where := " WHERE 1=1"
	var args []any
	if filter.Before != "" {
		where += " AND before_label = ?"
		args = append(args, filter.Before)
	}
	if filter.After != "" {
		where += " AND after_label = ?"
		args = append(args, filter.After)
	}

	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT id, before_label, after_label, mode, tables_json,
			inserted, deleted, updated, skipped, created_at
		FROM runs` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	items := []RunSummary{}
	for rows.Next() {
		var (
			s          RunSummary
			tablesJSON string
		)
		if err := rows.Scan(
			&s.ID, &s.Before, &s.After, &s.Mode, &tablesJSON,
			&s.Inserted, &s.Deleted, &s.Updated, &s.Skipped, &s.CreatedAt,
		); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		if err := json.Unmarshal([]byte(tablesJSON), &s.Tables); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return items, total, nil
}

// PurgeRuns deletes runs created before the given Unix time. Returns the
// number of runs deleted.
func PurgeRuns(db *sql.DB, before int64) (int, error) {
	result, err := db.Exec("DELETE FROM runs WHERE created_at < ?", before)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
