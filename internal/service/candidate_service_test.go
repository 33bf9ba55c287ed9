package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)

	created, err := env.candidates.AddCandidates(ctx, []CandidateInput{
		{Name: " Jane Doe ", Position: "Treasurer", Manifesto: "Balanced books"},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	id := created[0].ID
	require.NotEmpty(t, id)

	// 管理员列表
	all, err := env.candidates.ListCandidates(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Jane Doe", all[0].Name)
	assert.Equal(t, "Treasurer", all[0].Position)

	// 学生选票
	b, err := env.candidates.Ballot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Treasurer"}, b.Positions())
	require.Len(t, b.Candidates("Treasurer"), 1)
	assert.Equal(t, id, b.Candidates("Treasurer")[0].ID)

	got, err := env.candidates.GetCandidate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Balanced books", got.Manifesto)
}

func TestListCandidatesByPosition(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	env.seedCandidates(t)

	president, err := env.candidates.ListCandidates(ctx, "president")
	require.NoError(t, err)
	require.Len(t, president, 2)
	assert.Equal(t, "Ada", president[0].Name)
	assert.Equal(t, "Ben", president[1].Name)

	positions, err := env.candidates.Positions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"President", "Treasurer"}, positions)

	none, err := env.candidates.ListCandidates(ctx, "Secretary")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAddCandidatesValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)

	_, err := env.candidates.AddCandidates(ctx, nil)
	assert.ErrorIs(t, err, ErrNoCandidates)

	_, err = env.candidates.AddCandidates(ctx, []CandidateInput{
		{Name: "Ok", Position: "President"},
		{Name: "", Position: "President"},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	all, err := env.candidates.ListCandidates(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all, "a rejected batch writes nothing")
}

func TestAddCandidatesAfterDeadline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)

	deadline := env.clock.Now().Add(-time.Minute)
	_, err := env.elections.Update(ctx, ElectionUpdate{CandidateDeadline: &deadline})
	require.NoError(t, err)

	_, err = env.candidates.AddCandidate(ctx, CandidateInput{Name: "Late", Position: "President"})
	assert.ErrorIs(t, err, ErrCandidateDeadline)
}

func TestRemoveCandidate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	c := env.seedCandidates(t)

	require.NoError(t, env.candidates.RemoveCandidate(ctx, c["Ben"].ID))
	_, err := env.candidates.GetCandidate(ctx, c["Ben"].ID)
	assert.ErrorIs(t, err, ErrCandidateNotFound)

	err = env.candidates.RemoveCandidate(ctx, c["Ben"].ID)
	assert.ErrorIs(t, err, ErrCandidateNotFound)
	assert.Equal(t, "Candidate not found.", UserMessage(err))
}

func TestUploadImage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	c := env.seedCandidates(t)
	id := c["Ada"].ID

	updated, err := env.candidates.UploadImage(ctx, id, "image/png", bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(updated.ImageURL, "memory://"+id+"/"))

	key := strings.TrimPrefix(updated.ImageURL, "memory://")
	data, contentType, ok := env.images.Get(key)
	require.True(t, ok)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", contentType)

	stored, err := env.candidates.GetCandidate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, updated.ImageURL, stored.ImageURL)

	_, err = env.candidates.UploadImage(ctx, id, "image/png", strings.NewReader(strings.Repeat("x", 17)))
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = env.candidates.UploadImage(ctx, id, "text/plain", strings.NewReader("hi"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.candidates.UploadImage(ctx, "missing", "image/png", strings.NewReader("hi"))
	assert.ErrorIs(t, err, ErrCandidateNotFound)
}
