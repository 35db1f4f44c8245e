package horunner

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryInsertAssignsIndices(t *testing.T) {
	h := NewHistory(
		TrialRecord{ID: "a", Index: 7, Params: Params{"x": 1}, Result: OK(1)},
		TrialRecord{ID: "b", Index: 7, Params: Params{"x": 2}, Result: Fail()},
	)

	h.Insert(TrialRecord{ID: "c", Params: Params{"x": 3}, Result: OK(0.5)})

	trials := h.Snapshot()
	require.Len(t, trials, 3)

	for i, tr := range trials {
		assert.Equal(t, i, tr.Index)
	}

	assert.Equal(t, []string{"a", "b", "c"}, []string{trials[0].ID, trials[1].ID, trials[2].ID})
}

func TestHistoryOKAndBest(t *testing.T) {
	h := NewHistory()

	_, ok := h.Best()
	assert.False(t, ok)

	h.Insert(
		TrialRecord{ID: "a", Result: OK(3)},
		TrialRecord{ID: "b", Result: Fail()},
		TrialRecord{ID: "c", Result: OK(1)},
		TrialRecord{ID: "d", Result: Result{Status: StatusPending}},
	)

	okTrials := h.OK()
	require.Len(t, okTrials, 2)
	assert.Equal(t, "a", okTrials[0].ID)
	assert.Equal(t, "c", okTrials[1].ID)

	best, ok := h.Best()
	require.True(t, ok)
	assert.Equal(t, "c", best.ID)
	assert.Equal(t, 1.0, *best.Result.Loss)
}

func TestHistoryStoresNonFiniteLossAsFailure(t *testing.T) {
	h := NewHistory(
		TrialRecord{ID: "nan", Result: OK(math.NaN())},
		TrialRecord{ID: "a", Result: OK(1)},
		TrialRecord{ID: "inf", Result: OK(math.Inf(-1))},
	)

	trials := h.Snapshot()
	require.Len(t, trials, 3)
	assert.Equal(t, Fail(), trials[0].Result)
	assert.Equal(t, Fail(), trials[2].Result)

	best, ok := h.Best()
	require.True(t, ok)
	assert.Equal(t, "a", best.ID)
	assert.Len(t, h.OK(), 1)
}

func TestResultNormalize(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name string
		in   Result
		want Result
	}{
		{"zero value", Result{}, Fail()},
		{"unknown status", Result{Status: "exploded"}, Fail()},
		{"ok without loss", Result{Status: StatusOK}, Fail()},
		{"nan loss", OK(nan), Fail()},
		{"infinite loss", OK(math.Inf(1)), Fail()},
		{"fail keeps no loss", Result{Status: StatusFail, Loss: OK(2).Loss}, Fail()},
		{"pending", Result{Status: StatusPending}, Result{Status: StatusPending}},
		{"nan variance dropped", Result{Status: StatusOK, Loss: OK(2).Loss, LossVariance: &nan}, OK(2)},
		{"ok", OK(2), OK(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.normalize())
		})
	}
}

func TestHistorySnapshotIsolation(t *testing.T) {
	h := NewHistory(TrialRecord{Params: Params{"x": 1}, Result: OK(1)})

	snap := h.Snapshot()
	snap[0].Params["x"] = 42
	*snap[0].Result.Loss = 42

	again := h.Snapshot()
	assert.Equal(t, 1.0, again[0].Params["x"])
	assert.Equal(t, 1.0, *again[0].Result.Loss)

	// Inserted records are copied too.
	rec := TrialRecord{Params: Params{"x": 2}, Result: OK(2)}
	h.Insert(rec)
	rec.Params["x"] = 99

	assert.Equal(t, 2.0, h.Snapshot()[1].Params["x"])
}

func TestHistoryConcurrentReaders(t *testing.T) {
	h := NewHistory()

	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < 100; i++ {
				snap := h.Snapshot()

				// A snapshot is never a partial batch.
				assert.Zero(t, len(snap)%2)
			}
		}()
	}

	for i := 0; i < 50; i++ {
		h.Insert(TrialRecord{Result: OK(1)}, TrialRecord{Result: Fail()})
	}

	wg.Wait()

	assert.Equal(t, 100, h.Len())
}
