package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tablesnap/internal/config"
	"github.com/hpungsan/tablesnap/internal/db"
	"github.com/hpungsan/tablesnap/internal/errors"
)

func TestSnapshot_RecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, 2)
	env.exec(t, `CREATE TABLE audit (id INTEGER PRIMARY KEY, note TEXT)`)

	out, err := Snapshot(context.Background(), env.Env, SnapshotInput{Label: "before"})
	require.NoError(t, err)
	require.Len(t, out.Tables, 2)

	records, err := db.ListSnapshots(env.DB, "before")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// A second snapshot of the label replaces its records
	_, err = Snapshot(context.Background(), env.Env, SnapshotInput{Label: "before", Tables: []string{"users"}})
	require.NoError(t, err)
	records, err = db.ListSnapshots(env.DB, "before")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "users", records[0].Table)
	require.Equal(t, 2, records[0].Rows)
}

func TestSnapshot_FailedTableIsReported(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, 1)

	out, err := Snapshot(context.Background(), env.Env, SnapshotInput{
		Label:  "before",
		Tables: []string{"users", "ghost"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, out.Failed)
	require.Empty(t, out.Tables[0].Error)
	require.NotEmpty(t, out.Tables[1].Error)

	records, err := db.ListSnapshots(env.DB, "before")
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestSnapshot_ConfigTables(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, 1)
	env.exec(t, `CREATE TABLE audit (id INTEGER PRIMARY KEY)`)
	env.Config.Tables = []string{"audit"}

	out, err := Snapshot(context.Background(), env.Env, SnapshotInput{Label: "before"})
	require.NoError(t, err)
	require.Len(t, out.Tables, 1)
	require.Equal(t, "audit", out.Tables[0].Table)
}

func TestSnapshot_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := Snapshot(context.Background(), env.Env, SnapshotInput{Label: ""})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	env.Config.Source = config.Source{Driver: "oracle", DSN: "x"}
	_, err = Snapshot(context.Background(), env.Env, SnapshotInput{Label: "before"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}
