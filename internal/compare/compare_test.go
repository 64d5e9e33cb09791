package compare

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tablesnap/internal/capture"
	"github.com/hpungsan/tablesnap/internal/errors"
)

// fakeLoader serves captures from memory.
type fakeLoader struct {
	mu       sync.Mutex
	tables   map[string][]string
	captures map[string]*capture.Capture // label/table
	failures map[string]error            // label/table
	tableErr error
	loads    int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		tables:   make(map[string][]string),
		captures: make(map[string]*capture.Capture),
		failures: make(map[string]error),
	}
}

func (f *fakeLoader) add(label, table string, rows map[string]capture.Row) {
	c := capture.NewCapture(table, label, capture.ModeFull)
	for k, r := range rows {
		c.Rows[k] = r
	}
	f.tables[label] = append(f.tables[label], table)
	f.captures[label+"/"+table] = c
}

func (f *fakeLoader) fail(label, table string, err error) {
	f.tables[label] = append(f.tables[label], table)
	f.failures[label+"/"+table] = err
}

func (f *fakeLoader) Tables(label string) ([]string, error) {
	if f.tableErr != nil {
		return nil, f.tableErr
	}
	return f.tables[label], nil
}

func (f *fakeLoader) Load(label, table string, mode capture.Mode, key string) (*capture.Capture, error) {
	f.mu.Lock()
	f.loads++
	f.mu.Unlock()
	if err := f.failures[label+"/"+table]; err != nil {
		return nil, err
	}
	c, ok := f.captures[label+"/"+table]
	if !ok {
		return nil, errors.NewCaptureNotFound(label, table)
	}
	return c, nil
}

// recorder collects observer notifications.
type recorder struct {
	skipped  []Outcome
	compared []Outcome
}

func (r *recorder) TableSkipped(o Outcome)  { r.skipped = append(r.skipped, o) }
func (r *recorder) TableCompared(o Outcome) { r.compared = append(r.compared, o) }

func opts() Options {
	return Options{Before: "before", After: "after"}
}

func TestRun_ClassifiesAndAggregates(t *testing.T) {
	l := newFakeLoader()
	l.add("before", "users", map[string]capture.Row{"1": {"name": "a"}, "2": {"name": "b"}})
	l.add("after", "users", map[string]capture.Row{"2": {"name": "b"}, "3": {"name": "c"}})
	l.add("before", "orders", map[string]capture.Row{"1": {"total": "5"}})
	l.add("after", "orders", map[string]capture.Row{"1": {"total": "5"}})

	rec := &recorder{}
	res, err := Run(context.Background(), l, opts(), rec)
	require.NoError(t, err)

	require.Equal(t, []string{"users"}, res.TableNames(), "unchanged tables are omitted")
	require.Equal(t, []string{"3"}, res.Tables["users"].InsertedKeys())
	require.Equal(t, []string{"1"}, res.Tables["users"].DeletedKeys())
	require.Equal(t, "users", res.Tables["users"].Table)

	require.Len(t, res.Outcomes, 2)
	require.Equal(t, "orders", res.Outcomes[0].Table)
	require.Equal(t, StatusCompared, res.Outcomes[0].Status)
	require.Equal(t, 1, res.Outcomes[0].Stats.Unchanged)

	require.Equal(t, 1, res.Totals.Inserted)
	require.Equal(t, 1, res.Totals.Deleted)
	require.Equal(t, 2, res.Totals.Unchanged)
	require.True(t, res.Changed())

	require.Len(t, rec.compared, 2)
	require.Empty(t, rec.skipped)
}

func TestRun_MissingCounterpartIsSkippedNotDeleted(t *testing.T) {
	l := newFakeLoader()
	l.add("before", "users", map[string]capture.Row{"1": {"name": "a"}})
	l.add("before", "legacy", map[string]capture.Row{"1": {"x": "y"}})
	l.add("after", "users", map[string]capture.Row{"1": {"name": "a"}})
	l.add("after", "fresh", map[string]capture.Row{"1": {"x": "y"}})

	rec := &recorder{}
	res, err := Run(context.Background(), l, opts(), rec)
	require.NoError(t, err)

	require.False(t, res.Changed())
	require.Len(t, rec.skipped, 2)
	require.Equal(t, "fresh", rec.skipped[0].Table)
	require.Equal(t, ReasonMissingCounterpart, rec.skipped[0].Reason)
	require.Equal(t, "legacy", rec.skipped[1].Table)
	require.Equal(t, ReasonMissingCounterpart, rec.skipped[1].Reason)
}

func TestRun_TableFilter(t *testing.T) {
	l := newFakeLoader()
	for _, label := range []string{"before", "after"} {
		l.add(label, "users", map[string]capture.Row{"1": {"v": label}})
		l.add(label, "orders", map[string]capture.Row{"1": {"v": label}})
	}

	o := opts()
	o.Tables = []string{" users ", "ghost", "users", ""}
	rec := &recorder{}
	res, err := Run(context.Background(), l, o, rec)
	require.NoError(t, err)

	require.Equal(t, []string{"users"}, res.TableNames())
	require.Len(t, res.Outcomes, 2)
	require.Equal(t, "ghost", res.Outcomes[0].Table)
	require.Equal(t, ReasonNotCaptured, res.Outcomes[0].Reason)
	require.Len(t, rec.skipped, 1)
}

func TestRun_LoadFailuresAreIsolated(t *testing.T) {
	l := newFakeLoader()
	l.add("before", "users", map[string]capture.Row{"1": {"v": "a"}})
	l.add("after", "users", map[string]capture.Row{"1": {"v": "b"}})
	l.add("before", "broken", map[string]capture.Row{})
	l.fail("after", "broken", errors.NewMalformedCapture("after", "broken", fmt.Errorf("unexpected EOF")))
	l.add("before", "vanished", map[string]capture.Row{})
	l.fail("after", "vanished", errors.NewCaptureNotFound("after", "vanished"))
	l.add("before", "locked", map[string]capture.Row{})
	l.fail("after", "locked", errors.NewInternal(fmt.Errorf("permission denied")))

	res, err := Run(context.Background(), l, opts(), nil)
	require.NoError(t, err)

	require.Equal(t, []string{"users"}, res.TableNames())
	reasons := make(map[string]Reason)
	for _, o := range res.Skipped() {
		reasons[o.Table] = o.Reason
		require.NotEmpty(t, o.Error)
	}
	require.Equal(t, map[string]Reason{
		"broken":   ReasonMalformedCapture,
		"vanished": ReasonMissingCapture,
		"locked":   ReasonLoadFailed,
	}, reasons)
}

func TestRun_EmptyCaptureYieldsAllInserts(t *testing.T) {
	l := newFakeLoader()
	l.add("before", "users", map[string]capture.Row{})
	l.add("after", "users", map[string]capture.Row{"1": {"v": "a"}, "2": {"v": "b"}})

	res, err := Run(context.Background(), l, opts(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, res.Tables["users"].InsertedKeys())
}

func TestRun_SetupFailures(t *testing.T) {
	t.Run("unreadable labels", func(t *testing.T) {
		l := newFakeLoader()
		l.tableErr = errors.NewInternal(fmt.Errorf("permission denied"))

		_, err := Run(context.Background(), l, opts(), nil)
		require.Error(t, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		l := newFakeLoader()
		cases := []Options{
			{Before: "", After: "after"},
			{Before: "before", After: "../etc"},
			{Before: "before", After: "after", Mode: "md5"},
			{Before: "before", After: "after", Workers: 1000},
		}
		for _, o := range cases {
			_, err := Run(context.Background(), l, o, nil)
			require.True(t, errors.Is(err, errors.ErrInvalidRequest), "options %+v: %v", o, err)
		}
	})
}

func TestRun_CancelledContext(t *testing.T) {
	l := newFakeLoader()
	for i := 0; i < 5; i++ {
		table := fmt.Sprintf("t%d", i)
		l.add("before", table, map[string]capture.Row{"1": {"v": "a"}})
		l.add("after", table, map[string]capture.Row{"1": {"v": "b"}})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, l, opts(), nil)
	require.NoError(t, err)
	require.False(t, res.Changed())
	require.Len(t, res.Outcomes, 5)
	for _, o := range res.Outcomes {
		require.Equal(t, ReasonCancelled, o.Reason)
	}
	require.Zero(t, l.loads)
}

func TestRun_ParallelMatchesSerial(t *testing.T) {
	l := newFakeLoader()
	for i := 0; i < 20; i++ {
		table := fmt.Sprintf("t%02d", i)
		l.add("before", table, map[string]capture.Row{"1": {"v": "a"}, "2": {"v": "b"}})
		l.add("after", table, map[string]capture.Row{"1": {"v": fmt.Sprint(i % 2)}, "3": {"v": "c"}})
	}

	serial := opts()
	serial.Workers = 1
	parallel := opts()
	parallel.Workers = 8

	a, err := Run(context.Background(), l, serial, nil)
	require.NoError(t, err)
	b, err := Run(context.Background(), l, parallel, nil)
	require.NoError(t, err)

	require.Equal(t, a.Outcomes, b.Outcomes)
	require.Equal(t, a.Totals, b.Totals)
	require.Equal(t, a.TableNames(), b.TableNames())
}

func TestRun_WithStore(t *testing.T) {
	s := capture.NewStore(t.TempDir())
	write := func(label, table string, rows ...capture.Row) {
		w, err := s.Create(capture.Header{Table: table, Label: label, Mode: capture.ModeFull, Key: "id"})
		require.NoError(t, err)
		for _, r := range rows {
			require.NoError(t, w.Write(r))
		}
		_, err = w.Close()
		require.NoError(t, err)
	}
	write("before", "users", capture.Row{"id": 1, "name": "a", "age": 30})
	write("after", "users", capture.Row{"id": 1, "name": "a", "age": 31})

	// A truncated file on one side is skipped, the rest still compares.
	write("before", "orders", capture.Row{"id": 1})
	require.NoError(t, os.MkdirAll(filepath.Join(s.Dir(), "after"), 0755))
	require.NoError(t, os.WriteFile(s.Path("after", "orders"), []byte{0x1f, 0x8b}, 0644))

	res, err := Run(context.Background(), s, opts(), nil)
	require.NoError(t, err)

	require.Equal(t, []string{"users"}, res.TableNames())
	upd := res.Tables["users"].Updated
	require.Len(t, upd, 1)
	require.Equal(t, "1", upd[0].Key)
	cols := upd[0].Columns()
	require.Len(t, cols, 1)
	require.Equal(t, "age", cols[0].Column)

	require.Len(t, res.Skipped(), 1)
	require.Equal(t, ReasonMalformedCapture, res.Skipped()[0].Reason)
}

func TestRun_BinaryValuesStayDistinct(t *testing.T) {
	before := capture.Row{"id": 1, "data": string([]byte{0xff, 0x01})}
	after := capture.Row{"id": 1, "data": string([]byte{0xfe, 0x01})}

	for _, mode := range []capture.Mode{capture.ModeFull, capture.ModeHashing} {
		t.Run(string(mode), func(t *testing.T) {
			s := capture.NewStore(t.TempDir())
			for label, row := range map[string]capture.Row{"before": before, "after": after} {
				w, err := s.Create(capture.Header{Table: "files", Label: label, Mode: mode, Key: "id"})
				require.NoError(t, err)
				if mode == capture.ModeHashing {
					h, err := capture.Fingerprint(row)
					require.NoError(t, err)
					require.NoError(t, w.Write(capture.HashedRow{ID: 1, Hash: h}))
				} else {
					require.NoError(t, w.Write(row))
				}
				_, err = w.Close()
				require.NoError(t, err)
			}

			o := opts()
			o.Mode = mode
			res, err := Run(context.Background(), s, o, nil)
			require.NoError(t, err)
			require.Equal(t, []string{"files"}, res.TableNames())
			require.Equal(t, 1, res.Totals.Updated)
		})
	}
}

func TestRun_MissingLabelDirectoryIsEmpty(t *testing.T) {
	s := capture.NewStore(t.TempDir())

	res, err := Run(context.Background(), s, opts(), nil)
	require.NoError(t, err)
	require.False(t, res.Changed())
	require.Empty(t, res.Outcomes)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLogObserver(slog.New(slog.NewTextHandler(&buf, nil)))

	obs.TableSkipped(Outcome{Table: "legacy", Status: StatusSkipped, Reason: ReasonMissingCounterpart})
	obs.TableCompared(Outcome{Table: "users", Status: StatusCompared, Dropped: 2})

	out := buf.String()
	require.Contains(t, out, "level=WARN msg=\"table skipped\" table=legacy reason=missing_counterpart")
	require.Contains(t, out, "dropped=2")
	require.Equal(t, 3, strings.Count(out, "\n"))
}

func TestPairFor(t *testing.T) {
	tests := []struct {
		label, against string
		before, after  string
	}{
		{"before", "", "before", "after"},
		{"", "", "before", "after"},
		{"after", "", "before", "after"},
		{"release-2", "", "before", "release-2"},
		{"release-1", "release-2", "release-1", "release-2"},
	}
	for _, tt := range tests {
		b, a := PairFor(tt.label, tt.against)
		require.Equal(t, tt.before, b, "PairFor(%q, %q)", tt.label, tt.against)
		require.Equal(t, tt.after, a, "PairFor(%q, %q)", tt.label, tt.against)
	}
}
