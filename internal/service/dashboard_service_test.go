package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentDashboard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	st := env.registerStudent(t, "21/0166", "jane@uni.edu")
	c := env.seedCandidates(t)

	d, err := env.dashboard.Student(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "21/0166", d.Student.Profile.MatricNumber)
	assert.False(t, d.HasVoted)
	assert.False(t, d.CanVote, "election has not started")

	env.openElection(t)
	d, err = env.dashboard.Student(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, d.CanVote)

	_, err = env.votes.SubmitVote(ctx, st.ID, completeBallot(c))
	require.NoError(t, err)
	d, err = env.dashboard.Student(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, d.HasVoted)
	assert.False(t, d.CanVote)
}

func TestAdminDashboard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	a := env.registerStudent(t, "21/0001", "a@uni.edu")
	env.registerStudent(t, "21/0002", "b@uni.edu")
	env.registerStudent(t, "22/0003", "c@uni.edu")
	c := env.seedCandidates(t)
	env.openElection(t)

	_, err := env.votes.SubmitVote(ctx, a.ID, completeBallot(c))
	require.NoError(t, err)

	d, err := env.dashboard.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, d.RegisteredVoters)
	assert.Equal(t, 1, d.VotesCast)
	assert.Equal(t, 3, d.Candidates)
	assert.Equal(t, 2, d.Positions)
	assert.Equal(t, 33.3, d.Turnout())
}

func TestRegisteredVotersSearch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	env.registerStudent(t, "21/0001", "a@uni.edu")
	env.registerStudent(t, "CSC/21/0002", "b@uni.edu")
	env.registerStudent(t, "22/0003", "c@uni.edu")

	all, err := env.dashboard.RegisteredVoters(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := env.dashboard.RegisteredVoters(ctx, "csc")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b@uni.edu", found[0].Profile.Email)

	found, err = env.dashboard.RegisteredVoters(ctx, "21/")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
