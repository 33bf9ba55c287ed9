package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/repository"
	"github.com/lvdashuaibi/campusvote/internal/subscription"
)

// ElectionUpdate 选举设置的部分更新，nil 字段保持不变
type ElectionUpdate struct {
	Title             *string
	Description       *string
	Instructions      *string
	Status            *string
	StartDate         *time.Time
	EndDate           *time.Time
	CandidateDeadline *time.Time
	ResultsVisibility *string
	AutoTransition    *bool
}

type ElectionService struct {
	elections repository.ElectionRepository
	now       func() time.Time
}

func NewElectionService(elections repository.ElectionRepository) *ElectionService {
	return &ElectionService{elections: elections, now: time.Now}
}

// Get 尚未配置时返回默认配置
func (s *ElectionService) Get(ctx context.Context) (*model.ElectionConfig, error) {
	cfg, err := s.elections.GetElection(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return model.DefaultElection(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取选举配置失败: %w", err)
	}
	return cfg, nil
}

func (s *ElectionService) Update(ctx context.Context, u ElectionUpdate) (*model.ElectionConfig, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	if u.Title != nil {
		cfg.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		cfg.Description = *u.Description
	}
	if u.Instructions != nil {
		cfg.Instructions = *u.Instructions
	}
	if u.Status != nil {
		st, err := model.ParseElectionStatus(*u.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		cfg.Status = st
	}
	if u.StartDate != nil {
		cfg.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		cfg.EndDate = *u.EndDate
	}
	if u.CandidateDeadline != nil {
		cfg.CandidateDeadline = *u.CandidateDeadline
	}
	if u.ResultsVisibility != nil {
		v, err := model.ParseResultsVisibility(*u.ResultsVisibility)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		cfg.ResultsVisibility = v
	}
	if u.AutoTransition != nil {
		cfg.AutoTransition = *u.AutoTransition
	}

	if err := cfg.CheckDates(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := model.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	cfg.LastUpdated = s.now()

	if err := s.elections.SaveElection(ctx, cfg); err != nil {
		return nil, fmt.Errorf("保存选举配置失败: %w", err)
	}
	zap.S().Infof("选举配置已更新: status=%s visibility=%s", cfg.Status, cfg.ResultsVisibility)
	return cfg, nil
}

// ApplySchedule 开启自动切换时按起止时间更新状态，返回状态是否改变
func (s *ElectionService) ApplySchedule(ctx context.Context) (bool, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	if !cfg.AutoTransition {
		return false, nil
	}

	next := cfg.StatusAt(s.now())
	if next == cfg.Status {
		return false, nil
	}
	prev := cfg.Status
	cfg.Status = next
	cfg.LastUpdated = s.now()
	if err := s.elections.SaveElection(ctx, cfg); err != nil {
		return false, fmt.Errorf("保存选举状态失败: %w", err)
	}
	zap.S().Infof("选举状态自动切换: %s -> %s", prev, next)
	return true, nil
}

// Watch 选举配置变化时回调 fn；存储不支持实时订阅时返回 ErrWatchUnsupported
func (s *ElectionService) Watch(ctx context.Context, fn func(*model.ElectionConfig)) (subscription.Subscription, error) {
	w, ok := s.elections.(repository.ElectionWatcher)
	if !ok {
		return nil, ErrWatchUnsupported
	}
	return w.WatchElection(ctx, fn)
}
