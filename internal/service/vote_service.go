package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/internal/ballot"
	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/repository"
)

// VotePublisher 投票事件发布，由 kafka.Producer 实现
type VotePublisher interface {
	PublishVoteEvent(ctx context.Context, event *model.VoteEvent) error
}

type VoteService struct {
	votes      repository.VoteRepository
	candidates *CandidateService
	elections  *ElectionService
	producer   VotePublisher
	results    *ResultService

	mu       sync.Mutex
	inflight map[string]int // studentId -> 本实例正在进行的提交数
	now      func() time.Time
}

// NewVoteService producer 和 results 可以为 nil
func NewVoteService(
	votes repository.VoteRepository,
	candidates *CandidateService,
	elections *ElectionService,
	producer VotePublisher,
	results *ResultService,
) *VoteService {
	return &VoteService{
		votes:      votes,
		candidates: candidates,
		elections:  elections,
		producer:   producer,
		results:    results,
		inflight:   make(map[string]int),
		now:        time.Now,
	}
}

// SubmitVote 校验选举状态和选票后以 studentId 为键原子写入；重复提交返回 repository.ErrAlreadyVoted
func (s *VoteService) SubmitVote(ctx context.Context, studentID string, selections map[string]string) (*model.VoteRecord, error) {
	if studentID == "" {
		return nil, ErrUnauthenticated
	}

	s.begin(studentID)
	defer s.end(studentID)

	cfg, err := s.elections.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := ballot.CheckOpen(cfg, s.now()); err != nil {
		return nil, err
	}

	b, err := s.candidates.Ballot(ctx)
	if err != nil {
		return nil, err
	}
	cleaned := make(map[string]string, len(selections))
	for pos, id := range selections {
		cleaned[pos] = strings.TrimSpace(id)
	}
	if err := b.Validate(cleaned); err != nil {
		return nil, err
	}

	// 只读预检查，真正的唯一性由 RecordVote 保证
	voted, err := s.votes.HasVoted(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("查询投票状态失败: %w", err)
	}
	if voted {
		return nil, repository.ErrAlreadyVoted
	}

	rec := &model.VoteRecord{
		StudentID:          studentID,
		PositionSelections: cleaned,
		Submitted:          true,
		Timestamp:          s.now(),
	}
	if err := s.votes.RecordVote(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrAlreadyVoted) {
			return nil, err
		}
		return nil, fmt.Errorf("保存投票失败: %w", err)
	}
	zap.S().Infof("学生 %s 投票成功, 职位数: %d", studentID, len(cleaned))

	s.publish(ctx, rec)
	if s.results != nil {
		s.results.Invalidate(ctx)
		s.results.Notify()
	}
	return rec, nil
}

func (s *VoteService) publish(ctx context.Context, rec *model.VoteRecord) {
	if s.producer == nil {
		return
	}
	positions := make([]string, 0, len(rec.PositionSelections))
	for pos := range rec.PositionSelections {
		positions = append(positions, pos)
	}
	sort.Strings(positions)

	event := &model.VoteEvent{StudentID: rec.StudentID, Positions: positions, VotedAt: rec.Timestamp}
	// 投票已落库，事件只用于通知其它实例刷新结果
	if err := s.producer.PublishVoteEvent(ctx, event); err != nil {
		zap.S().Warnf("发送投票事件到Kafka失败: %v", err)
	}
}

func (s *VoteService) begin(studentID string) {
	s.mu.Lock()
	s.inflight[studentID]++
	s.mu.Unlock()
}

func (s *VoteService) end(studentID string) {
	s.mu.Lock()
	if s.inflight[studentID] <= 1 {
		delete(s.inflight, studentID)
	} else {
		s.inflight[studentID]--
	}
	s.mu.Unlock()
}

func (s *VoteService) HasVoted(ctx context.Context, studentID string) (bool, error) {
	voted, err := s.votes.HasVoted(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("查询投票状态失败: %w", err)
	}
	return voted, nil
}

// State 已有投票记录时为 Submitted，本实例正在提交时为 Submitting
func (s *VoteService) State(ctx context.Context, studentID string) (model.VotingState, error) {
	voted, err := s.HasVoted(ctx, studentID)
	if err != nil {
		return "", err
	}
	if voted {
		return model.Submitted, nil
	}

	s.mu.Lock()
	n := s.inflight[studentID]
	s.mu.Unlock()
	if n > 0 {
		return model.Submitting, nil
	}
	return model.NotVoted, nil
}

// ProcessVoteEvent Kafka消费者回调：其它实例有新投票时刷新本地结果
func (s *VoteService) ProcessVoteEvent(ctx context.Context, event *model.VoteEvent) error {
	if s.results == nil {
		return nil
	}
	zap.S().Debugf("收到投票事件: student=%s", event.StudentID)
	s.results.Notify()
	return nil
}
