package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResetter struct {
	resetAllCount   int
	resetStaleCount int
	staleOlderThan  time.Duration
	err             error
}

func (m *mockResetter) ResetAll(ctx context.Context) (int, error) {
	m.resetAllCount++
	return 3, m.err
}

func (m *mockResetter) ResetStale(ctx context.Context, olderThan time.Duration) (int, error) {
	m.resetStaleCount++
	m.staleOlderThan = olderThan
	return 1, m.err
}

func TestNewDailyCreditResetTask(t *testing.T) {
	ctx := context.Background()

	t.Run("run resets every account", func(t *testing.T) {
		resetter := &mockResetter{}
		task := NewDailyCreditResetTask(resetter, 0, 0, 24*time.Hour)

		require.NoError(t, task.Run(ctx))
		assert.Equal(t, 1, resetter.resetAllCount)
		assert.Zero(t, resetter.resetStaleCount)
	})

	t.Run("catch-up resets only stale accounts", func(t *testing.T) {
		resetter := &mockResetter{}
		task := NewDailyCreditResetTask(resetter, 0, 0, 24*time.Hour)

		require.NoError(t, task.CatchUp(ctx))
		assert.Equal(t, 1, resetter.resetStaleCount)
		assert.Equal(t, 24*time.Hour, resetter.staleOlderThan)
		assert.Zero(t, resetter.resetAllCount)
	})

	t.Run("trigger time is carried onto the task", func(t *testing.T) {
		task := NewDailyCreditResetTask(&mockResetter{}, 4, 30, 24*time.Hour)
		assert.Equal(t, "daily_credit_reset", task.Name)
		assert.Equal(t, 4, task.Hour)
		assert.Equal(t, 30, task.Minute)
	})

	t.Run("store errors are surfaced", func(t *testing.T) {
		resetter := &mockResetter{err: errors.New("connection refused")}
		task := NewDailyCreditResetTask(resetter, 0, 0, 24*time.Hour)

		assert.Error(t, task.Run(ctx))
		assert.Error(t, task.CatchUp(ctx))
	})
}
