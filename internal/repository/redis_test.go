package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/campusvote/internal/model"
)

func newTestRedis(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo, err := newRedisRepository(context.Background(), client, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo, mr
}

func TestRedisSessionSlidingTTL(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRedis(t)

	s := &model.Session{ID: "sid1", UID: "u1", Role: model.RoleStudent, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.SaveSession(ctx, s, time.Hour))

	mr.FastForward(50 * time.Minute)
	got, err := repo.TouchSession(ctx, "sid1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UID)
	assert.Equal(t, model.RoleStudent, got.Role)

	// 续期后再过50分钟仍有效
	mr.FastForward(50 * time.Minute)
	_, err = repo.TouchSession(ctx, "sid1", time.Hour)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = repo.TouchSession(ctx, "sid1", time.Hour)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisTouchSessionReloadsFlushedScript(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRedis(t)

	require.NoError(t, repo.SaveSession(ctx, &model.Session{ID: "sid2", UID: "u2"}, time.Hour))
	require.NoError(t, repo.Client().ScriptFlush(ctx).Err())

	got, err := repo.TouchSession(ctx, "sid2", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "u2", got.UID)
}

func TestRedisDeleteSession(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRedis(t)

	require.NoError(t, repo.SaveSession(ctx, &model.Session{ID: "sid3", UID: "u3"}, time.Hour))
	require.NoError(t, repo.DeleteSession(ctx, "sid3"))
	_, err := repo.TouchSession(ctx, "sid3", time.Hour)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisResultsCache(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRedis(t)

	_, ok, err := repo.GetResults(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	res := &model.Results{
		Positions: []model.PositionResult{{
			Position:   "President",
			Candidates: []model.CandidateCount{{CandidateID: "p1", Votes: 2}},
			TotalVotes: 2,
		}},
		TotalVoters: 2,
	}
	require.NoError(t, repo.SetResults(ctx, res))

	got, ok, err := repo.GetResults(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Positions[0].TotalVotes)

	require.NoError(t, repo.InvalidateResults(ctx))
	_, ok, err = repo.GetResults(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetResults(ctx, res))
	mr.FastForward(2 * time.Minute)
	_, ok, _ = repo.GetResults(ctx)
	assert.False(t, ok)
}
