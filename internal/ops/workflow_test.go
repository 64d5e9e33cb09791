package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tablesnap/internal/compare"
	"github.com/hpungsan/tablesnap/internal/diff"
)

// TestFullWorkflow exercises the snapshot lifecycle:
// snapshot → mutate → snapshot → compare → runs → fetch → clear → purge
func TestFullWorkflow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedUsers(t, 3)

	// 1. Baseline
	snap, err := Snapshot(ctx, env.Env, SnapshotInput{Label: "before"})
	require.NoError(t, err)
	require.Equal(t, 0, snap.Failed)
	require.Equal(t, 3, snap.Rows)
	require.Len(t, snap.Tables, 1)

	// 2. Mutate and re-capture
	env.exec(t, `UPDATE users SET email = 'new@example.com' WHERE id = 2`)
	env.exec(t, `DELETE FROM users WHERE id = 3`)
	env.exec(t, `INSERT INTO users (id, name, email) VALUES (4, 'user-4', 'u4@example.com')`)
	_, err = Snapshot(ctx, env.Env, SnapshotInput{Label: "after"})
	require.NoError(t, err)

	// 3. Compare before → after
	cmp, err := Compare(ctx, env.Env, CompareInput{Label: "before"})
	require.NoError(t, err)
	require.Equal(t, "before", cmp.Before)
	require.Equal(t, "after", cmp.After)
	require.Equal(t, diff.Stats{Inserted: 1, Deleted: 1, Updated: 1, Unchanged: 1}, cmp.Totals)
	require.Equal(t, []string{"users"}, cmp.Changed)
	require.Empty(t, cmp.Skipped)
	require.NotEmpty(t, cmp.RunID)
	require.Contains(t, cmp.Report, "► Table: users")
	require.Contains(t, cmp.Report, "email: u2@example.com → new@example.com")

	// 4. Runs lists the recorded run
	runs, err := Runs(env.DB, RunsInput{})
	require.NoError(t, err)
	require.Len(t, runs.Items, 1)
	require.Equal(t, cmp.RunID, runs.Items[0].ID)
	require.Equal(t, 1, runs.Items[0].Updated)
	require.Equal(t, []string{"users"}, runs.Items[0].Tables)

	// 5. Fetch renders the stored result
	fetched, err := FetchRun(env.DB, FetchRunInput{ID: cmp.RunID, Format: "markdown"})
	require.NoError(t, err)
	require.Contains(t, fetched.Report, "## users")
	require.Equal(t, cmp.Totals, fetched.Result.Totals)

	// 6. Captures shows both labels
	caps, err := Captures(env.Env, CapturesInput{})
	require.NoError(t, err)
	require.Len(t, caps.Labels, 2)
	require.Equal(t, "after", caps.Labels[0].Label)
	require.Equal(t, "before", caps.Labels[1].Label)
	require.Greater(t, caps.Labels[1].Bytes, int64(0))

	// 7. Clearing one side turns the table into a skip, not an error
	cleared, err := Clear(env.Env, ClearInput{Label: "before"})
	require.NoError(t, err)
	require.Equal(t, 1, cleared.Records)

	cmp, err = Compare(ctx, env.Env, CompareInput{})
	require.NoError(t, err)
	require.Len(t, cmp.Skipped, 1)
	require.Equal(t, compare.ReasonMissingCounterpart, cmp.Skipped[0].Reason)
	require.Contains(t, cmp.Report, "No changes detected.")

	// 8. Purge removes every run
	purged, err := Purge(env.DB, PurgeInput{})
	require.NoError(t, err)
	require.Equal(t, 2, purged.Purged)

	runs, err = Runs(env.DB, RunsInput{})
	require.NoError(t, err)
	require.Empty(t, runs.Items)
}

// TestHashingWorkflow detects the same keys with fingerprints only.
func TestHashingWorkflow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.Config.UseHashing = true
	env.seedUsers(t, 4)

	_, err := Snapshot(ctx, env.Env, SnapshotInput{Label: "before", Cursor: boolPtr(true)})
	require.NoError(t, err)
	env.exec(t, `UPDATE users SET name = 'renamed' WHERE id = 1`)
	_, err = Snapshot(ctx, env.Env, SnapshotInput{Label: "after"})
	require.NoError(t, err)

	cmp, err := Compare(ctx, env.Env, CompareInput{Format: "json"})
	require.NoError(t, err)
	require.Equal(t, "hashing", string(cmp.Mode))
	require.Equal(t, diff.Stats{Updated: 1, Unchanged: 3}, cmp.Totals)

	upd := cmp.Result.Tables["users"].Updated[0]
	require.Equal(t, "1", upd.Key)
	require.Nil(t, upd.Before.Row)
	require.NotEqual(t, upd.Before.Fingerprint, upd.After.Fingerprint)
	require.Contains(t, cmp.Report, `"fingerprint"`)
}
