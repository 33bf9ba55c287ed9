package repository

import (
	"context"
	"errors"

	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/subscription"
)

var (
	ErrNotFound      = errors.New("记录不存在")
	ErrAlreadyExists = errors.New("记录已存在")

	// ErrAlreadyVoted votes/{studentId} 已存在
	ErrAlreadyVoted = errors.New("该学生已投票")

	ErrInvalidVoteRecord = errors.New("投票记录格式无效")
)

// AccountRepository accounts 与 loginIds 集合
type AccountRepository interface {
	GetAccount(ctx context.Context, uid string) (*model.AccountRecord, error)
	CreateAccount(ctx context.Context, rec *model.AccountRecord) error
	ListStudents(ctx context.Context) ([]*model.AccountRecord, error)
	CountStudents(ctx context.Context) (int, error)

	// ReserveLoginID 原子占用学号/工号，已被占用时返回 ErrAlreadyExists
	ReserveLoginID(ctx context.Context, rec *model.LoginID) error
	GetLoginID(ctx context.Context, key string) (*model.LoginID, error)
	ReleaseLoginID(ctx context.Context, key string) error
}

// CandidateRepository candidates 集合
type CandidateRepository interface {
	// CreateCandidate 生成ID并写回 c.ID
	CreateCandidate(ctx context.Context, c *model.Candidate) error
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)
	// ListCandidates 按创建时间升序
	ListCandidates(ctx context.Context) ([]*model.Candidate, error)
	UpdateCandidateImage(ctx context.Context, id, imageURL string) error
	DeleteCandidate(ctx context.Context, id string) error
}

// ElectionRepository election/status 单例文档
type ElectionRepository interface {
	GetElection(ctx context.Context) (*model.ElectionConfig, error)
	SaveElection(ctx context.Context, cfg *model.ElectionConfig) error
}

// VoteRepository votes 集合
type VoteRepository interface {
	// RecordVote 以 studentId 为键原子插入，已存在时返回 ErrAlreadyVoted
	RecordVote(ctx context.Context, v *model.VoteRecord) error
	HasVoted(ctx context.Context, studentID string) (bool, error)
	ListSubmittedVotes(ctx context.Context) ([]*model.VoteRecord, error)
	CountSubmittedVotes(ctx context.Context) (int, error)
}

// VoteWatcher 可推送投票变化的存储实现
type VoteWatcher interface {
	WatchVotes(ctx context.Context, onChange func()) (subscription.Subscription, error)
}

// CandidateWatcher 可推送候选人变化的存储实现
type CandidateWatcher interface {
	WatchCandidates(ctx context.Context, onChange func()) (subscription.Subscription, error)
}

// ElectionWatcher 可推送选举配置变化的存储实现
type ElectionWatcher interface {
	WatchElection(ctx context.Context, fn func(*model.ElectionConfig)) (subscription.Subscription, error)
}

// Store 文档数据库
type Store interface {
	AccountRepository
	CandidateRepository
	ElectionRepository
	VoteRepository
	Close() error
}

// decodeVote 存储边界校验
func decodeVote(v *model.VoteRecord) (*model.VoteRecord, error) {
	if err := model.Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}
