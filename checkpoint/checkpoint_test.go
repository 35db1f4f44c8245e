package checkpoint

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalesfsp/horunner"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

func sampleTrials(n int) []horunner.TrialRecord {
	now := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	h := horunner.NewHistory()

	for i := 0; i < n; i++ {
		r := horunner.OK(float64(i) / 10)
		if i%3 == 2 {
			r = horunner.Fail()
		}

		h.Insert(horunner.TrialRecord{
			ID:         "trial-" + string(rune('a'+i)),
			Slot:       i % 2,
			Params:     horunner.Params{"x": float64(i), "lr": 0.01},
			Result:     r,
			StartedAt:  now.Add(time.Duration(i) * time.Second),
			FinishedAt: now.Add(time.Duration(i)*time.Second + time.Millisecond),
		})
	}

	return h.Snapshot()
}

func assertSameTrials(t *testing.T, want, got []horunner.TrialRecord) {
	t.Helper()

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("trials mismatch (-want +got):\n%s", diff)
	}
}

//////
// JSON file.
//////

func TestFileSinkSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")

	sink := NewFileSink(path)
	assert.Equal(t, path, sink.Path())

	trials := sampleTrials(5)

	require.NoError(t, sink.Save(context.Background(), trials[:3]))
	require.NoError(t, sink.Save(context.Background(), trials))
	require.NoError(t, sink.Close())

	got, err := LoadFile(path)
	require.NoError(t, err)
	assertSameTrials(t, trials, got)

	// No temp file is left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSinkSavesNonFiniteLoss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")

	trials := horunner.NewHistory(
		horunner.TrialRecord{ID: "nan", Result: horunner.OK(math.NaN())},
		horunner.TrialRecord{ID: "a", Result: horunner.OK(1)},
	).Snapshot()

	require.NoError(t, NewFileSink(path).Save(context.Background(), trials))

	got, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, horunner.StatusFail, got[0].Result.Status)
	assert.Nil(t, got[0].Result.Loss)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))

	_, err = LoadFile(bad)
	assert.Error(t, err)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version":2,"trials":[]}`), 0o600))

	_, err = LoadFile(future)
	assert.ErrorContains(t, err, "unsupported version")
}

//////
// SQLite.
//////

func TestSQLiteSinkAppendsOnly(t *testing.T) {
	ctx := context.Background()

	sink, err := NewSQLiteSink(ctx, ":memory:", "run-1", quietLogger())
	require.NoError(t, err)
	defer sink.Close()

	assert.Equal(t, "run-1", sink.RunID())

	trials := sampleTrials(6)

	// Saving overlapping snapshots must not duplicate or rewrite rows.
	require.NoError(t, sink.Save(ctx, trials[:2]))
	require.NoError(t, sink.Save(ctx, trials[:4]))
	require.NoError(t, sink.Save(ctx, trials))
	require.NoError(t, sink.Save(ctx, trials))

	got, err := sink.Load(ctx, "run-1")
	require.NoError(t, err)
	assertSameTrials(t, trials, got)

	latest, err := sink.LoadLatest(ctx)
	require.NoError(t, err)
	assertSameTrials(t, trials, latest)

	none, err := sink.Load(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteLoadRejectsBadTimestamps(t *testing.T) {
	ctx := context.Background()

	for _, column := range []string{"started_at", "finished_at"} {
		t.Run(column, func(t *testing.T) {
			sink, err := NewSQLiteSink(ctx, ":memory:", "run-1", quietLogger())
			require.NoError(t, err)
			defer sink.Close()

			require.NoError(t, sink.Save(ctx, sampleTrials(2)))

			_, err = sink.db.ExecContext(ctx, "UPDATE trials SET "+column+" = 'yesterday' WHERE idx = 1")
			require.NoError(t, err)

			_, err = sink.Load(ctx, "run-1")
			assert.ErrorContains(t, err, column)
		})
	}
}

func TestSQLiteSinkEmpty(t *testing.T) {
	ctx := context.Background()

	sink, err := NewSQLiteSink(ctx, ":memory:", "", nil)
	require.NoError(t, err)
	defer sink.Close()

	assert.NotEmpty(t, sink.RunID())

	latest, err := sink.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = NewSQLiteSink(ctx, "", "", nil)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestSQLiteLatestRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	first, err := NewSQLiteSink(ctx, path, "first", quietLogger())
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, sampleTrials(2)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteSink(ctx, path, "second", quietLogger())
	require.NoError(t, err)
	require.NoError(t, second.Save(ctx, sampleTrials(4)))
	require.NoError(t, second.Close())

	got, err := Load(ctx, path, quietLogger())
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

//////
// Dispatch.
//////

func TestIsSQLite(t *testing.T) {
	assert.True(t, IsSQLite("a.db"))
	assert.True(t, IsSQLite("a.SQLite"))
	assert.True(t, IsSQLite("dir/a.sqlite3"))
	assert.False(t, IsSQLite("a.json"))
	assert.False(t, IsSQLite("a"))
}

func TestOpenAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := Open(ctx, "", nil)
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = Load(ctx, "", nil)
	assert.ErrorIs(t, err, ErrEmptyPath)

	for _, name := range []string{"run.json", "run.db"} {
		path := filepath.Join(dir, name)

		sink, err := Open(ctx, path, quietLogger())
		require.NoError(t, err, name)

		trials := sampleTrials(3)
		require.NoError(t, sink.Save(ctx, trials), name)
		require.NoError(t, sink.Close(), name)

		got, err := Load(ctx, path, quietLogger())
		require.NoError(t, err, name)
		assertSameTrials(t, trials, got)
	}
}

func TestCheckpointedRunResumes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "run.db")

	sink, err := Open(ctx, path, quietLogger())
	require.NoError(t, err)

	space := horunner.NewSpace(horunner.Uniform("x", horunner.ParameterRange[float64]{Min: -1, Max: 1}))

	config := horunner.DefaultConfig()
	config.Seed = 1
	config.Concurrency = 2
	config.TargetTrialCount = 4
	config.PollInterval = time.Millisecond
	config.Logger = quietLogger()
	config.Space = space
	config.Engine = horunner.NewRandomEngine(space)
	config.Checkpointer = sink
	config.Evaluator = horunner.EvaluatorFunc(func(_ context.Context, p horunner.Params) (horunner.Result, error) {
		return horunner.OK(p["x"] * p["x"]), nil
	})

	history, err := horunner.Run(ctx, config)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	saved, err := Load(ctx, path, quietLogger())
	require.NoError(t, err)
	assertSameTrials(t, history.Snapshot(), saved)

	config.InitialHistory = saved
	config.TargetTrialCount = 6
	config.Checkpointer = nil

	resumed, err := horunner.Run(ctx, config)
	require.NoError(t, err)
	assert.Equal(t, 6, resumed.Len())
}
