package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tablesnap/internal/db"
	"github.com/hpungsan/tablesnap/internal/errors"
)

func TestClear_All(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedUsers(t, 1)
	for _, label := range []string{"before", "after"} {
		_, err := Snapshot(ctx, env.Env, SnapshotInput{Label: label})
		require.NoError(t, err)
	}
	gitignore := filepath.Join(env.Store.Dir(), ".gitignore")
	require.NoError(t, os.WriteFile(gitignore, []byte("*\n"), 0644))

	out, err := Clear(env.Env, ClearInput{All: true})
	require.NoError(t, err)
	require.Equal(t, 2, out.Records)

	labels, err := env.Store.Labels()
	require.NoError(t, err)
	require.Empty(t, labels)
	require.FileExists(t, gitignore)

	records, err := db.ListSnapshots(env.DB, "")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestClear_InvalidInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		input ClearInput
	}{
		{"nothing", ClearInput{}},
		{"both", ClearInput{Label: "before", All: true}},
		{"bad label", ClearInput{Label: "../x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Clear(env.Env, tt.input)
			require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
		})
	}
}

func TestCaptures_SingleLabel(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, 1)
	_, err := Snapshot(context.Background(), env.Env, SnapshotInput{Label: "before"})
	require.NoError(t, err)

	out, err := Captures(env.Env, CapturesInput{Label: "before"})
	require.NoError(t, err)
	require.Len(t, out.Labels, 1)
	require.Len(t, out.Labels[0].Tables, 1)
	require.Equal(t, "users", out.Labels[0].Tables[0].Table)

	out, err = Captures(env.Env, CapturesInput{Label: "never"})
	require.NoError(t, err)
	require.Empty(t, out.Labels[0].Tables)
}
