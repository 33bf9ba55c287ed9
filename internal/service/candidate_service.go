package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/ballot"
	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/objectstore"
	"github.com/lvdashuaibi/campusvote/internal/repository"
)

// CandidateInput 管理员填写的候选人信息
type CandidateInput struct {
	Name      string `validate:"required,max=120"`
	Position  string `validate:"required,max=120"`
	Manifesto string `validate:"max=5000"`
	ImageURL  string `validate:"omitempty,url"`
}

type CandidateService struct {
	candidates    repository.CandidateRepository
	elections     *ElectionService
	images        objectstore.ImageStore
	maxImageBytes int64
	now           func() time.Time
}

func NewCandidateService(
	candidates repository.CandidateRepository,
	elections *ElectionService,
	images objectstore.ImageStore,
	storageCfg config.StorageConfig,
) *CandidateService {
	return &CandidateService{
		candidates:    candidates,
		elections:     elections,
		images:        images,
		maxImageBytes: storageCfg.MaxImageBytes,
		now:           time.Now,
	}
}

// AddCandidates 批量提交暂存的候选人；先全部校验，再逐个写入
// 中途写入失败时返回已写入的候选人和错误
func (s *CandidateService) AddCandidates(ctx context.Context, inputs []CandidateInput) ([]*model.Candidate, error) {
	if len(inputs) == 0 {
		return nil, ErrNoCandidates
	}

	cfg, err := s.elections.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.CandidateRegistrationOpen(s.now()) {
		return nil, ErrCandidateDeadline
	}

	pending := make([]*model.Candidate, 0, len(inputs))
	for i, in := range inputs {
		in.Name = strings.TrimSpace(in.Name)
		in.Position = strings.TrimSpace(in.Position)
		if err := model.Validate(in); err != nil {
			return nil, fmt.Errorf("%w: 第 %d 个候选人: %v", ErrInvalidInput, i+1, err)
		}
		pending = append(pending, &model.Candidate{
			Name:      in.Name,
			Position:  in.Position,
			Manifesto: in.Manifesto,
			ImageURL:  in.ImageURL,
		})
	}

	created := make([]*model.Candidate, 0, len(pending))
	for _, c := range pending {
		c.CreatedAt = s.now()
		if err := s.candidates.CreateCandidate(ctx, c); err != nil {
			return created, fmt.Errorf("保存候选人 %s 失败: %w", c.Name, err)
		}
		created = append(created, c)
	}
	zap.S().Infof("已添加 %d 个候选人", len(created))
	return created, nil
}

func (s *CandidateService) AddCandidate(ctx context.Context, in CandidateInput) (*model.Candidate, error) {
	created, err := s.AddCandidates(ctx, []CandidateInput{in})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// UploadImage 上传候选人照片并更新 imageUrl
func (s *CandidateService) UploadImage(ctx context.Context, id, contentType string, r io.Reader) (*model.Candidate, error) {
	c, err := s.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: 不支持的文件类型 %q", ErrInvalidInput, contentType)
	}

	body := r
	if s.maxImageBytes > 0 {
		data, err := io.ReadAll(io.LimitReader(r, s.maxImageBytes+1))
		if err != nil {
			return nil, fmt.Errorf("读取图片失败: %w", err)
		}
		if int64(len(data)) > s.maxImageBytes {
			return nil, ErrImageTooLarge
		}
		body = bytes.NewReader(data)
	}

	key := fmt.Sprintf("%s/%s", id, uuid.NewString())
	url, err := s.images.Put(ctx, key, contentType, body)
	if err != nil {
		return nil, err
	}
	if err := s.candidates.UpdateCandidateImage(ctx, id, url); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCandidateNotFound
		}
		return nil, fmt.Errorf("更新候选人照片失败: %w", err)
	}
	c.ImageURL = url
	return c, nil
}

func (s *CandidateService) RemoveCandidate(ctx context.Context, id string) error {
	err := s.candidates.DeleteCandidate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrCandidateNotFound
	}
	if err != nil {
		return fmt.Errorf("删除候选人失败: %w", err)
	}
	zap.S().Infof("候选人已删除: %s", id)
	return nil
}

func (s *CandidateService) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	c, err := s.candidates.GetCandidate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCandidateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取候选人失败: %w", err)
	}
	return c, nil
}

// ListCandidates position 为空时返回全部，否则按职位过滤（忽略大小写）
func (s *CandidateService) ListCandidates(ctx context.Context, position string) ([]*model.Candidate, error) {
	all, err := s.candidates.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取候选人列表失败: %w", err)
	}
	position = strings.TrimSpace(position)
	if position == "" {
		return all, nil
	}

	var out []*model.Candidate
	for _, c := range all {
		if strings.EqualFold(c.Position, position) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *CandidateService) Positions(ctx context.Context) ([]string, error) {
	b, err := s.Ballot(ctx)
	if err != nil {
		return nil, err
	}
	return b.Positions(), nil
}

func (s *CandidateService) Ballot(ctx context.Context) (*ballot.Ballot, error) {
	all, err := s.ListCandidates(ctx, "")
	if err != nil {
		return nil, err
	}
	return ballot.New(all), nil
}
