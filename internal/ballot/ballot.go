package ballot

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lvdashuaibi/campusvote/internal/model"
)

var (
	ErrNoOpenPositions  = errors.New("no open positions")
	ErrVotingNotStarted = errors.New("voting has not started")
	ErrVotingClosed     = errors.New("voting is closed")
)

// ValidationError 选票不完整或包含无效选择
type ValidationError struct {
	Missing    []string // 未选择的职位
	Unknown    []string // 不存在的职位
	Mismatched []string // 选择的候选人不属于该职位
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing selection for "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown positions "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Mismatched) > 0 {
		parts = append(parts, "candidate not standing for "+strings.Join(e.Mismatched, ", "))
	}
	return "invalid ballot: " + strings.Join(parts, "; ")
}

// Incomplete 仅缺少选择时为 true
func (e *ValidationError) Incomplete() bool {
	return len(e.Missing) > 0 && len(e.Unknown) == 0 && len(e.Mismatched) == 0
}

// Ballot 按职位分组的候选人，职位顺序为候选人列表中首次出现的顺序
type Ballot struct {
	positions  []string
	byPosition map[string][]*model.Candidate
}

func New(candidates []*model.Candidate) *Ballot {
	b := &Ballot{byPosition: make(map[string][]*model.Candidate)}
	for _, c := range candidates {
		if _, ok := b.byPosition[c.Position]; !ok {
			b.positions = append(b.positions, c.Position)
		}
		b.byPosition[c.Position] = append(b.byPosition[c.Position], c)
	}
	return b
}

func (b *Ballot) Positions() []string {
	out := make([]string, len(b.positions))
	copy(out, b.positions)
	return out
}

func (b *Ballot) Candidates(position string) []*model.Candidate {
	return b.byPosition[position]
}

// Validate 每个职位恰好一个非空选择，且候选人必须属于该职位
func (b *Ballot) Validate(selections map[string]string) error {
	if len(b.positions) == 0 {
		return ErrNoOpenPositions
	}

	verr := &ValidationError{}
	for _, pos := range b.positions {
		id, ok := selections[pos]
		if !ok || strings.TrimSpace(id) == "" {
			verr.Missing = append(verr.Missing, pos)
			continue
		}
		if !b.stands(pos, id) {
			verr.Mismatched = append(verr.Mismatched, pos)
		}
	}
	for pos := range selections {
		if _, ok := b.byPosition[pos]; !ok {
			verr.Unknown = append(verr.Unknown, pos)
		}
	}
	sort.Strings(verr.Unknown)

	if len(verr.Missing)+len(verr.Unknown)+len(verr.Mismatched) > 0 {
		return verr
	}
	return nil
}

func (b *Ballot) stands(position, candidateID string) bool {
	for _, c := range b.byPosition[position] {
		if c.ID == candidateID {
			return true
		}
	}
	return false
}

// CheckOpen 选举状态为 Ongoing 且当前时间在起止时间内才允许投票
func CheckOpen(cfg *model.ElectionConfig, now time.Time) error {
	switch cfg.Status {
	case model.StatusUpcoming:
		return ErrVotingNotStarted
	case model.StatusCompleted:
		return ErrVotingClosed
	case model.StatusOngoing:
	default:
		return fmt.Errorf("%w: status %q", ErrVotingClosed, cfg.Status)
	}

	if !cfg.StartDate.IsZero() && now.Before(cfg.StartDate) {
		return ErrVotingNotStarted
	}
	if !cfg.EndDate.IsZero() && !now.Before(cfg.EndDate) {
		return ErrVotingClosed
	}
	return nil
}
