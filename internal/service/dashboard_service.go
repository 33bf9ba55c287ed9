package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lvdashuaibi/campusvote/internal/ballot"
	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/repository"
)

// StudentDashboard 学生首页数据
type StudentDashboard struct {
	Student  *model.Student
	Election *model.ElectionConfig
	HasVoted bool
	CanVote  bool
}

// AdminDashboard 管理员首页统计
type AdminDashboard struct {
	Election         *model.ElectionConfig
	RegisteredVoters int
	VotesCast        int
	Candidates       int
	Positions        int
}

// Turnout 投票率百分比，保留一位小数
func (d *AdminDashboard) Turnout() float64 {
	if d.RegisteredVoters == 0 {
		return 0
	}
	v := float64(d.VotesCast) / float64(d.RegisteredVoters) * 100
	return float64(int64(v*10+0.5)) / 10
}

type DashboardService struct {
	auth       *AuthService
	accounts   repository.AccountRepository
	votes      repository.VoteRepository
	candidates *CandidateService
	elections  *ElectionService
	now        func() time.Time
}

func NewDashboardService(
	auth *AuthService,
	accounts repository.AccountRepository,
	votes repository.VoteRepository,
	candidates *CandidateService,
	elections *ElectionService,
) *DashboardService {
	return &DashboardService{
		auth:       auth,
		accounts:   accounts,
		votes:      votes,
		candidates: candidates,
		elections:  elections,
		now:        time.Now,
	}
}

func (s *DashboardService) Student(ctx context.Context, uid string) (*StudentDashboard, error) {
	acct, err := s.auth.LookupAccount(ctx, uid)
	if err != nil {
		return nil, err
	}
	student, ok := acct.(*model.Student)
	if !ok {
		return nil, ErrForbidden
	}

	cfg, err := s.elections.Get(ctx)
	if err != nil {
		return nil, err
	}
	voted, err := s.votes.HasVoted(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("查询投票状态失败: %w", err)
	}
	return &StudentDashboard{
		Student:  student,
		Election: cfg,
		HasVoted: voted,
		CanVote:  !voted && ballot.CheckOpen(cfg, s.now()) == nil,
	}, nil
}

func (s *DashboardService) Admin(ctx context.Context) (*AdminDashboard, error) {
	cfg, err := s.elections.Get(ctx)
	if err != nil {
		return nil, err
	}
	students, err := s.accounts.CountStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计注册学生失败: %w", err)
	}
	votes, err := s.votes.CountSubmittedVotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("统计投票数失败: %w", err)
	}
	b, err := s.candidates.Ballot(ctx)
	if err != nil {
		return nil, err
	}

	n := 0
	for _, pos := range b.Positions() {
		n += len(b.Candidates(pos))
	}
	return &AdminDashboard{
		Election:         cfg,
		RegisteredVoters: students,
		VotesCast:        votes,
		Candidates:       n,
		Positions:        len(b.Positions()),
	}, nil
}

// RegisteredVoters 注册学生列表，search 按学号子串过滤（忽略大小写）
func (s *DashboardService) RegisteredVoters(ctx context.Context, search string) ([]*model.Student, error) {
	recs, err := s.accounts.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取学生列表失败: %w", err)
	}

	recs = repository.FilterStudents(recs, search)
	out := make([]*model.Student, 0, len(recs))
	for _, rec := range recs {
		acct, err := rec.Account()
		if err != nil {
			continue
		}
		if st, ok := acct.(*model.Student); ok {
			out = append(out, st)
		}
	}
	return out, nil
}
