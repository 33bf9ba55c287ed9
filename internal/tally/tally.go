// Package tally 从完整的投票集合重新计算每个职位的票数。
//
// 每次变化都做全量重算，复杂度 O(votes × positions)，适用于单一院校规模的选举。
package tally

import (
	"sort"
	"time"

	"github.com/lvdashuaibi/campusvote/internal/model"
)

// Compute 按候选人列表首次出现的职位顺序生成结果
func Compute(candidates []*model.Candidate, votes []*model.VoteRecord, now time.Time) *model.Results {
	index := make(map[string]int)
	results := make([]model.PositionResult, 0)

	for _, c := range candidates {
		i, ok := index[c.Position]
		if !ok {
			i = len(results)
			index[c.Position] = i
			results = append(results, model.PositionResult{Position: c.Position})
		}
		results[i].Candidates = append(results[i].Candidates, model.CandidateCount{
			CandidateID: c.ID,
			Name:        c.Name,
			ImageURL:    c.ImageURL,
		})
	}

	counted := dedupe(votes)
	for _, v := range counted {
		for pos, candidateID := range v.PositionSelections {
			i, ok := index[pos]
			if !ok {
				continue
			}
			results[i].TotalVotes++
			for j := range results[i].Candidates {
				if results[i].Candidates[j].CandidateID == candidateID {
					results[i].Candidates[j].Votes++
					break
				}
			}
		}
	}

	for i := range results {
		cs := results[i].Candidates
		sort.SliceStable(cs, func(a, b int) bool { return cs[a].Votes > cs[b].Votes })
	}

	return &model.Results{
		Positions:   results,
		TotalVoters: len(counted),
		UpdatedAt:   now,
	}
}

// dedupe 只统计已提交的记录，同一学生多条记录时保留时间最早的一条
func dedupe(votes []*model.VoteRecord) []*model.VoteRecord {
	first := make(map[string]*model.VoteRecord, len(votes))
	order := make([]string, 0, len(votes))
	for _, v := range votes {
		if v == nil || !v.Submitted {
			continue
		}
		prev, ok := first[v.StudentID]
		if !ok {
			order = append(order, v.StudentID)
			first[v.StudentID] = v
			continue
		}
		if v.Timestamp.Before(prev.Timestamp) {
			first[v.StudentID] = v
		}
	}

	out := make([]*model.VoteRecord, 0, len(order))
	for _, id := range order {
		out = append(out, first[id])
	}
	return out
}
