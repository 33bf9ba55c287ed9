package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/repository"
	"github.com/lvdashuaibi/campusvote/internal/subscription"
	"github.com/lvdashuaibi/campusvote/internal/tally"
)

// ResultCache 计票结果缓存，由 RedisRepository 实现
type ResultCache interface {
	GetResults(ctx context.Context) (*model.Results, bool, error)
	SetResults(ctx context.Context, res *model.Results) error
	InvalidateResults(ctx context.Context) error
}

// ResultService 保存最新计票结果，收到变化信号后全量重算并推送给订阅者
type ResultService struct {
	candidates repository.CandidateRepository
	votes      repository.VoteRepository
	elections  *ElectionService
	cache      ResultCache

	mu      sync.RWMutex
	current *model.Results

	refreshMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan *model.Results
	nextID int

	dirty   chan struct{}
	watches subscription.Scope
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewResultService(
	candidates repository.CandidateRepository,
	votes repository.VoteRepository,
	elections *ElectionService,
	cache ResultCache,
) *ResultService {
	return &ResultService{
		candidates: candidates,
		votes:      votes,
		elections:  elections,
		cache:      cache,
		subs:       make(map[int]chan *model.Results),
		dirty:      make(chan struct{}, 1),
		now:        time.Now,
	}
}

// Start 订阅存储的投票和候选人变化，并启动重算协程
func (s *ResultService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	if w, ok := s.votes.(repository.VoteWatcher); ok {
		sub, err := w.WatchVotes(ctx, s.Notify)
		if err != nil {
			return fmt.Errorf("订阅投票变化失败: %w", err)
		}
		s.watches.Add(sub)
	}
	if w, ok := s.candidates.(repository.CandidateWatcher); ok {
		sub, err := w.WatchCandidates(ctx, s.Notify)
		if err != nil {
			return fmt.Errorf("订阅候选人变化失败: %w", err)
		}
		s.watches.Add(sub)
	}

	s.Notify()
	zap.S().Info("计票结果服务已启动")
	return nil
}

// Notify 标记结果需要重算，多次信号合并为一次
func (s *ResultService) Notify() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *ResultService) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.dirty:
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				zap.S().Warnf("重算计票结果失败: %v", err)
			}
		}
	}
}

// Refresh 立即全量重算，写入缓存并推送给订阅者
func (s *ResultService) Refresh(ctx context.Context) (*model.Results, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	candidates, err := s.candidates.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取候选人失败: %w", err)
	}
	votes, err := s.votes.ListSubmittedVotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取投票记录失败: %w", err)
	}
	res := tally.Compute(candidates, votes, s.now())

	s.mu.Lock()
	s.current = res
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SetResults(ctx, res); err != nil {
			zap.S().Warnf("缓存计票结果失败: %v", err)
		}
	}
	s.broadcast(res)
	return res, nil
}

// Current 依次使用本地结果、Redis缓存，都没有时重算
func (s *ResultService) Current(ctx context.Context) (*model.Results, error) {
	s.mu.RLock()
	res := s.current
	s.mu.RUnlock()
	if res != nil {
		return res, nil
	}

	if s.cache != nil {
		cached, ok, err := s.cache.GetResults(ctx)
		if err != nil {
			zap.S().Warnf("读取结果缓存失败: %v", err)
		} else if ok {
			return cached, nil
		}
	}
	return s.Refresh(ctx)
}

// Invalidate 丢弃缓存的结果，其它实例下次读取时重算
func (s *ResultService) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateResults(ctx); err != nil {
		zap.S().Warnf("清除结果缓存失败: %v", err)
	}
}

// CanView 管理员始终可见；学生按 resultsVisibility 判断
func (s *ResultService) CanView(ctx context.Context, p *Principal) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if p.IsAdmin() {
		return nil
	}

	cfg, err := s.elections.Get(ctx)
	if err != nil {
		return err
	}
	switch cfg.ResultsVisibility {
	case model.VisibilityHidden:
		return ErrResultsNotVisible
	case model.VisibilityAfterClose:
		if cfg.Status != model.StatusCompleted {
			return ErrResultsNotVisible
		}
		return nil
	}

	voted, err := s.votes.HasVoted(ctx, p.UID)
	if err != nil {
		return fmt.Errorf("查询投票状态失败: %w", err)
	}
	if !voted {
		return ErrResultsRequireVote
	}
	return nil
}

func (s *ResultService) View(ctx context.Context, p *Principal) (*model.Results, error) {
	if err := s.CanView(ctx, p); err != nil {
		return nil, err
	}
	return s.Current(ctx)
}

// Subscribe 返回只保留最新结果的通道；当前已有结果时立即推送一次
func (s *ResultService) Subscribe() (<-chan *model.Results, subscription.Subscription) {
	ch := make(chan *model.Results, 1)

	// 先登记再读取当前结果，之后的 broadcast 一定能送达
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.RLock()
	if s.current != nil {
		ch <- s.current
	}
	s.mu.RUnlock()
	s.subMu.Unlock()

	return ch, subscription.New(func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	})
}

func (s *ResultService) broadcast(res *model.Results) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		// 订阅者来不及读取时用新结果替换旧结果
		select {
		case ch <- res:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- res:
			default:
			}
		}
	}
}

// SubscriberCount 当前订阅者数量
func (s *ResultService) SubscriberCount() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

// Stop 取消存储订阅并关闭所有订阅通道
func (s *ResultService) Stop() {
	s.watches.Close()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.subMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subMu.Unlock()
	zap.S().Info("计票结果服务已停止")
}
