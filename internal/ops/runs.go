package ops

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/hpungsan/tablesnap/internal/compare"
	"github.com/hpungsan/tablesnap/internal/db"
	"github.com/hpungsan/tablesnap/internal/errors"
	"github.com/hpungsan/tablesnap/internal/render"
)

// RunsInput contains parameters for the Runs operation.
type RunsInput struct {
	Before string // optional filter
	After  string // optional filter
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// RunsOutput contains the result of the Runs operation.
type RunsOutput struct {
	Items      []db.RunSummary `json:"items"`
	Pagination Pagination      `json:"pagination"`
	Sort       string          `json:"sort"`
}

// Runs lists recorded comparison runs, newest first.
func Runs(database *sql.DB, input RunsInput) (*RunsOutput, error) {
	limit, offset := pageBounds(input.Limit, input.Offset)

	items, total, err := db.ListRuns(database, db.RunFilter{
		Before: strings.TrimSpace(input.Before),
		After:  strings.TrimSpace(input.After),
	}, limit, offset)
	if err != nil {
		return nil, err
	}

	return &RunsOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}

// FetchRunInput contains parameters for the FetchRun operation.
type FetchRunInput struct {
	ID         string // required
	Format     string // text (default), json, markdown, html
	NoTruncate bool
}

// FetchRunOutput contains the result of the FetchRun operation.
type FetchRunOutput struct {
	db.RunSummary
	Report string `json:"report"`

	Result *compare.Result `json:"-"`
}

// FetchRun retrieves a recorded run and renders its report.
func FetchRun(database *sql.DB, input FetchRunInput) (*FetchRunOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	format, err := render.ParseFormat(input.Format)
	if err != nil {
		return nil, err
	}

	run, err := db.GetRun(database, id)
	if err != nil {
		return nil, err
	}
	res, err := DecodeResult(run.ResultJSON)
	if err != nil {
		return nil, err
	}

	opts := render.DefaultOptions()
	opts.Format = format
	opts.Truncate = !input.NoTruncate
	report, err := render.String(res, opts)
	if err != nil {
		return nil, err
	}

	return &FetchRunOutput{
		RunSummary: run.RunSummary,
		Report:     report,
		Result:     res,
	}, nil
}

// DecodeResult parses a stored comparison result. Numbers stay json.Number
// so values render exactly as they were captured.
func DecodeResult(data string) (*compare.Result, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var res compare.Result
	if err := dec.Decode(&res); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &res, nil
}
