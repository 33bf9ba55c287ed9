package tally

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/campusvote/internal/model"
)

func votesFor(position, candidateID string, n int, offset int) []*model.VoteRecord {
	out := make([]*model.VoteRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &model.VoteRecord{
			StudentID:          fmt.Sprintf("s%d", offset+i),
			PositionSelections: map[string]string{position: candidateID},
			Submitted:          true,
			Timestamp:          time.Unix(int64(offset+i), 0),
		})
	}
	return out
}

func TestComputeTotalsAndLeader(t *testing.T) {
	candidates := []*model.Candidate{
		{ID: "cand3", Name: "C", Position: "A"},
		{ID: "cand1", Name: "A", Position: "A"},
		{ID: "cand2", Name: "B", Position: "A"},
	}
	var votes []*model.VoteRecord
	votes = append(votes, votesFor("A", "cand1", 5, 0)...)
	votes = append(votes, votesFor("A", "cand2", 3, 100)...)

	res := Compute(candidates, votes, time.Now())

	a, ok := res.Position("A")
	require.True(t, ok)
	assert.Equal(t, 8, a.TotalVotes)

	leader, ok := a.Leader()
	require.True(t, ok)
	assert.Equal(t, "cand1", leader.CandidateID)

	got := map[string]int{}
	for _, c := range a.Candidates {
		got[c.CandidateID] = c.Votes
	}
	assert.Equal(t, map[string]int{"cand1": 5, "cand2": 3, "cand3": 0}, got)
	assert.Equal(t, []string{"cand1", "cand2", "cand3"}, []string{a.Candidates[0].CandidateID, a.Candidates[1].CandidateID, a.Candidates[2].CandidateID})
	assert.Equal(t, 8, res.TotalVoters)
}

func TestComputeMultiplePositions(t *testing.T) {
	candidates := []*model.Candidate{
		{ID: "p1", Position: "President"},
		{ID: "t1", Position: "Treasurer"},
		{ID: "t2", Position: "Treasurer"},
	}
	votes := []*model.VoteRecord{
		{StudentID: "s1", Submitted: true, PositionSelections: map[string]string{"President": "p1", "Treasurer": "t2"}},
		{StudentID: "s2", Submitted: true, PositionSelections: map[string]string{"President": "p1", "Treasurer": "t1"}},
		// 未知职位被忽略，未知候选人仍计入职位总数
		{StudentID: "s3", Submitted: true, PositionSelections: map[string]string{"Mascot": "m1", "Treasurer": "gone"}},
	}

	res := Compute(candidates, votes, time.Now())
	require.Len(t, res.Positions, 2)
	assert.Equal(t, "President", res.Positions[0].Position)
	assert.Equal(t, 2, res.Positions[0].TotalVotes)
	assert.Equal(t, 3, res.Positions[1].TotalVotes)
	assert.Equal(t, 3, res.TotalVoters)

	_, ok := res.Positions[1].Leader()
	assert.False(t, ok, "t1 and t2 are tied")
}

func TestComputeIgnoresUnsubmittedAndDuplicates(t *testing.T) {
	candidates := []*model.Candidate{
		{ID: "c1", Position: "A"},
		{ID: "c2", Position: "A"},
	}
	votes := []*model.VoteRecord{
		{StudentID: "s1", Submitted: true, Timestamp: time.Unix(20, 0), PositionSelections: map[string]string{"A": "c2"}},
		{StudentID: "s1", Submitted: true, Timestamp: time.Unix(10, 0), PositionSelections: map[string]string{"A": "c1"}},
		{StudentID: "s2", Submitted: false, PositionSelections: map[string]string{"A": "c2"}},
		nil,
	}

	res := Compute(candidates, votes, time.Now())
	a, _ := res.Position("A")
	assert.Equal(t, 1, a.TotalVotes)
	assert.Equal(t, "c1", a.Candidates[0].CandidateID)
	assert.Equal(t, 1, a.Candidates[0].Votes)
	assert.Equal(t, 1, res.TotalVoters)
}

func TestComputeEmpty(t *testing.T) {
	res := Compute(nil, nil, time.Now())
	assert.Empty(t, res.Positions)
	assert.NotNil(t, res.Positions)
	assert.Equal(t, 0, res.TotalVoters)
}
