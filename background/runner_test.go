package background

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerExecutesTasks(t *testing.T) {
	r := NewRunner(2, 8, testLogger())

	var done atomic.Int64
	for i := 0; i < 5; i++ {
		ok := r.Submit("count", func() error {
			done.Add(1)
			return nil
		})
		require.True(t, ok)
	}

	r.Close()
	assert.Equal(t, int64(5), done.Load())
	assert.Equal(t, int64(0), r.Dropped())
}

func TestRunnerDropsWhenFull(t *testing.T) {
	r := NewRunner(1, 1, testLogger())

	var release sync.WaitGroup
	release.Add(1)
	started := make(chan struct{})

	// occupy the single worker
	require.True(t, r.Submit("block", func() error {
		close(started)
		release.Wait()
		return nil
	}))
	<-started

	// fill the queue, then overflow it
	require.True(t, r.Submit("queued", func() error { return nil }))
	assert.False(t, r.Submit("dropped", func() error { return nil }))
	assert.Equal(t, int64(1), r.Dropped())

	release.Done()
	r.Close()
}

func TestRunnerRejectsAfterClose(t *testing.T) {
	r := NewRunner(1, 1, testLogger())
	r.Close()
	assert.False(t, r.Submit("late", func() error { return nil }))

	// closing twice is safe
	r.Close()
}

func TestRunnerLogsTaskErrors(t *testing.T) {
	r := NewRunner(1, 4, testLogger())

	var calls atomic.Int64
	require.True(t, r.Submit("fails", func() error {
		calls.Add(1)
		return errors.New("boom")
	}))
	require.True(t, r.Submit("succeeds", func() error {
		calls.Add(1)
		return nil
	}))

	r.Close()
	// a failing task does not stop the worker
	assert.Equal(t, int64(2), calls.Load())
}
