package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/campusvote/internal/model"
)

func strPtr(s string) *string { return &s }

func TestElectionDefaults(t *testing.T) {
	env := newTestEnv(t, true)

	cfg, err := env.elections.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusUpcoming, cfg.Status)
	assert.Equal(t, model.VisibilityLive, cfg.ResultsVisibility)
}

func TestElectionUpdate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)

	cfg, err := env.elections.Update(ctx, ElectionUpdate{
		Title:             strPtr("  SUG 2026  "),
		Status:            strPtr("active"),
		ResultsVisibility: strPtr("after_close"),
	})
	require.NoError(t, err)
	assert.Equal(t, "SUG 2026", cfg.Title)
	assert.Equal(t, model.StatusOngoing, cfg.Status)
	assert.False(t, cfg.LastUpdated.IsZero())

	// 未提供的字段保持不变
	cfg, err = env.elections.Update(ctx, ElectionUpdate{Description: strPtr("Annual vote")})
	require.NoError(t, err)
	assert.Equal(t, "SUG 2026", cfg.Title)
	assert.Equal(t, model.VisibilityAfterClose, cfg.ResultsVisibility)

	stored, err := env.elections.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Annual vote", stored.Description)
}

func TestElectionUpdateRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)

	_, err := env.elections.Update(ctx, ElectionUpdate{Status: strPtr("paused")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.elections.Update(ctx, ElectionUpdate{ResultsVisibility: strPtr("public")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	start := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = env.elections.Update(ctx, ElectionUpdate{StartDate: &start, EndDate: &end})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestApplySchedule(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)

	now := env.clock.Now()
	start := now.Add(time.Hour)
	end := now.Add(2 * time.Hour)
	_, err := env.elections.Update(ctx, ElectionUpdate{StartDate: &start, EndDate: &end})
	require.NoError(t, err)

	// 未开启自动切换
	changed, err := env.elections.ApplySchedule(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	auto := true
	_, err = env.elections.Update(ctx, ElectionUpdate{AutoTransition: &auto})
	require.NoError(t, err)

	changed, err = env.elections.ApplySchedule(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "still before start")

	env.elections.now = func() time.Time { return start.Add(time.Minute) }
	changed, err = env.elections.ApplySchedule(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	cfg, err := env.elections.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOngoing, cfg.Status)

	env.elections.now = func() time.Time { return end }
	changed, err = env.elections.ApplySchedule(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	cfg, err = env.elections.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, cfg.Status)
}

func TestElectionWatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)

	var seen []model.ElectionStatus
	sub, err := env.elections.Watch(ctx, func(cfg *model.ElectionConfig) {
		seen = append(seen, cfg.Status)
	})
	require.NoError(t, err)

	env.openElection(t)
	sub.Unsubscribe()
	env.setStatus(t, "Completed")

	assert.Equal(t, []model.ElectionStatus{model.StatusOngoing}, seen)
}
