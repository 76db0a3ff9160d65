package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enspipe/enspipe/internal/ctxlog"
)

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRunOrdersResultsByIndex(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	delays := make([]time.Duration, 16)
	for i := range delays {
		delays[i] = time.Duration(rng.Intn(5)) * time.Millisecond
	}

	results := Run(testCtx(), 4, len(delays), false, func(_ context.Context, i int) (string, error) {
		time.Sleep(delays[i])
		return fmt.Sprintf("member-%d", i), nil
	})

	require.Len(t, results, len(delays))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("member-%d", i), r.Value)
		assert.NoError(t, r.Err)
	}
}

func TestRunNonStrictCapturesEveryFailure(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32

	results := Run(testCtx(), 2, 8, false, func(_ context.Context, i int) (int, error) {
		ran.Add(1)
		if i%2 == 1 {
			return 0, boom
		}
		return i * 10, nil
	})

	assert.Equal(t, int32(8), ran.Load())
	assert.Equal(t, []int{1, 3, 5, 7}, Failed(results))
	assert.Equal(t, 20, results[2].Value)

	err := Summarize(results)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "4 of 8 members failed")
}

func TestRunStrictSkipsPendingAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	// One worker forces serial execution so members after the failure are
	// guaranteed to still be pending when the group context cancels.
	results := Run(testCtx(), 1, 5, true, func(_ context.Context, i int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		return i, nil
	})

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	for i := 2; i < 5; i++ {
		assert.ErrorIs(t, results[i].Err, context.Canceled, "member %d", i)
	}
}

func TestSummarizeWrapsRealFailureOverCancellation(t *testing.T) {
	boom := errors.New("boom")
	// A strict run can record a cancellation at a lower index than the
	// failure that triggered it. The summary must still name the failure.
	results := []Result[int]{
		{Index: 0, Err: context.Canceled},
		{Index: 1, Err: boom},
		{Index: 2, Err: context.Canceled},
	}

	err := Summarize(results)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestSummarizeAllCanceled(t *testing.T) {
	results := []Result[int]{{Index: 0, Err: context.Canceled}}
	assert.ErrorIs(t, Summarize(results), context.Canceled)
}

func TestSummarizeAllOK(t *testing.T) {
	results := Run(testCtx(), 3, 4, false, func(_ context.Context, i int) (int, error) {
		return i, nil
	})
	assert.NoError(t, Summarize(results))
	assert.Empty(t, Failed(results))
}
