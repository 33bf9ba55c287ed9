package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/campusvote/internal/ballot"
	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/repository"
)

func completeBallot(c map[string]*model.Candidate) map[string]string {
	return map[string]string{
		"President": c["Ada"].ID,
		"Treasurer": c["Jane Doe"].ID,
	}
}

func TestSubmitVoteOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	c := env.seedCandidates(t)
	env.openElection(t)

	state, err := env.votes.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.NotVoted, state)

	rec, err := env.votes.SubmitVote(ctx, "s1", completeBallot(c))
	require.NoError(t, err)
	assert.True(t, rec.Submitted)
	assert.Equal(t, "s1", rec.StudentID)

	state, err = env.votes.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.Submitted, state)

	n, err := env.store.CountSubmittedVotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, "s1", env.publisher.events[0].StudentID)
	assert.Equal(t, []string{"President", "Treasurer"}, env.publisher.events[0].Positions)
}

func TestSubmitVoteSecondAttemptRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	c := env.seedCandidates(t)
	env.openElection(t)

	_, err := env.votes.SubmitVote(ctx, "s1", completeBallot(c))
	require.NoError(t, err)

	other := map[string]string{"President": c["Ben"].ID, "Treasurer": c["Jane Doe"].ID}
	_, err = env.votes.SubmitVote(ctx, "s1", other)
	assert.ErrorIs(t, err, repository.ErrAlreadyVoted)
	assert.Equal(t, MsgAlreadyVoted, UserMessage(err))

	votes, err := env.store.ListSubmittedVotes(ctx)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, c["Ada"].ID, votes[0].PositionSelections["President"])
}

func TestSubmitVoteConcurrentOnlyOneSucceeds(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	c := env.seedCandidates(t)
	env.openElection(t)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.votes.SubmitVote(ctx, "s1", completeBallot(c))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrAlreadyVoted)
	}
	assert.Equal(t, 1, successes)

	n, err := env.store.CountSubmittedVotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmitVoteElectionGate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	c := env.seedCandidates(t)

	_, err := env.votes.SubmitVote(ctx, "s1", completeBallot(c))
	assert.ErrorIs(t, err, ballot.ErrVotingNotStarted)

	env.setStatus(t, "Completed")
	_, err = env.votes.SubmitVote(ctx, "s1", completeBallot(c))
	assert.ErrorIs(t, err, ballot.ErrVotingClosed)
	assert.Equal(t, "Voting has ended for this election.", UserMessage(err))

	voted, err := env.votes.HasVoted(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestSubmitVoteEndDatePassed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	c := env.seedCandidates(t)
	env.openElection(t)

	end := env.clock.Now()
	start := end.Add(-time.Hour)
	_, err := env.elections.Update(ctx, ElectionUpdate{StartDate: &start, EndDate: &end})
	require.NoError(t, err)

	_, err = env.votes.SubmitVote(ctx, "s1", completeBallot(c))
	assert.ErrorIs(t, err, ballot.ErrVotingClosed)
}

func TestSubmitVoteInvalidBallot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	c := env.seedCandidates(t)
	env.openElection(t)

	tests := []struct {
		name       string
		selections map[string]string
		incomplete bool
	}{
		{"missing position", map[string]string{"President": c["Ada"].ID}, true},
		{"blank selection", map[string]string{"President": c["Ada"].ID, "Treasurer": "  "}, true},
		{"wrong position", map[string]string{"President": c["Jane Doe"].ID, "Treasurer": c["Jane Doe"].ID}, false},
		{"extra position", map[string]string{"President": c["Ada"].ID, "Treasurer": c["Jane Doe"].ID, "Secretary": "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.votes.SubmitVote(ctx, "s1", tt.selections)
			var verr *ballot.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.incomplete, verr.Incomplete())
			if tt.incomplete {
				assert.Equal(t, MsgIncompleteVote, UserMessage(err))
			}
		})
	}

	voted, err := env.votes.HasVoted(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestSubmitVoteNoCandidates(t *testing.T) {
	env := newTestEnv(t, true)
	env.openElection(t)

	_, err := env.votes.SubmitVote(context.Background(), "s1", map[string]string{})
	assert.ErrorIs(t, err, ballot.ErrNoOpenPositions)
}

func TestSubmitVotePublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	c := env.seedCandidates(t)
	env.openElection(t)
	env.publisher.err = errors.New("broker down")

	_, err := env.votes.SubmitVote(ctx, "s1", completeBallot(c))
	require.NoError(t, err)

	res, err := env.results.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalVoters)
}

func TestVotingStateSubmitting(t *testing.T) {
	env := newTestEnv(t, true)
	env.votes.begin("s1")

	state, err := env.votes.State(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.Submitting, state)

	env.votes.end("s1")
	state, err = env.votes.State(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.NotVoted, state)
}

func TestProcessVoteEventRefreshesResults(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, true)
	c := env.seedCandidates(t)
	require.NoError(t, env.results.Start(ctx))
	t.Cleanup(env.results.Stop)

	updates, sub := env.results.Subscribe()
	defer sub.Unsubscribe()

	// 模拟其它实例写入的投票
	require.NoError(t, env.store.RecordVote(ctx, &model.VoteRecord{
		StudentID:          "remote",
		PositionSelections: completeBallot(c),
		Submitted:          true,
		Timestamp:          env.clock.Now(),
	}))
	require.NoError(t, env.votes.ProcessVoteEvent(ctx, &model.VoteEvent{StudentID: "remote"}))

	require.Eventually(t, func() bool {
		select {
		case res := <-updates:
			return res != nil && res.TotalVoters == 1
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
