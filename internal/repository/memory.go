package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/subscription"
)

// MemoryStore 进程内存储，用于本地开发与测试
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]*model.AccountRecord
	loginIDs   map[string]*model.LoginID
	candidates map[string]*model.Candidate
	election   *model.ElectionConfig
	votes      map[string]*model.VoteRecord

	watchMu       sync.Mutex
	nextWatch     int
	voteWatchers  map[int]func()
	candWatchers  map[int]func()
	electWatchers map[int]func(*model.ElectionConfig)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[string]*model.AccountRecord),
		loginIDs:      make(map[string]*model.LoginID),
		candidates:    make(map[string]*model.Candidate),
		votes:         make(map[string]*model.VoteRecord),
		voteWatchers:  make(map[int]func()),
		candWatchers:  make(map[int]func()),
		electWatchers: make(map[int]func(*model.ElectionConfig)),
	}
}

func (s *MemoryStore) GetAccount(ctx context.Context, uid string) (*model.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.accounts[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, rec *model.AccountRecord) error {
	if err := model.Validate(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[rec.UID]; ok {
		return ErrAlreadyExists
	}
	cp := *rec
	s.accounts[rec.UID] = &cp
	return nil
}

func (s *MemoryStore) ListStudents(ctx context.Context) ([]*model.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.AccountRecord, 0)
	for _, rec := range s.accounts {
		if rec.Role == model.RoleStudent {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UID < out[j].UID
	})
	return out, nil
}

func (s *MemoryStore) CountStudents(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.accounts {
		if rec.Role == model.RoleStudent {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ReserveLoginID(ctx context.Context, rec *model.LoginID) error {
	if err := model.Validate(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loginIDs[rec.Key]; ok {
		return ErrAlreadyExists
	}
	cp := *rec
	s.loginIDs[rec.Key] = &cp
	return nil
}

func (s *MemoryStore) GetLoginID(ctx context.Context, key string) (*model.LoginID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.loginIDs[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ReleaseLoginID(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loginIDs, key)
	return nil
}

func (s *MemoryStore) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	if err := model.Validate(c); err != nil {
		return err
	}
	s.mu.Lock()
	c.ID = uuid.NewString()
	cp := *c
	s.candidates[c.ID] = &cp
	s.mu.Unlock()

	s.notifyCandidates()
	return nil
}

func (s *MemoryStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCandidates(ctx context.Context) ([]*model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		cp := *c
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateCandidateImage(ctx context.Context, id, imageURL string) error {
	s.mu.Lock()
	c, ok := s.candidates[id]
	if ok {
		c.ImageURL = imageURL
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.notifyCandidates()
	return nil
}

func (s *MemoryStore) DeleteCandidate(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.candidates[id]
	delete(s.candidates, id)
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.notifyCandidates()
	return nil
}

func (s *MemoryStore) GetElection(ctx context.Context) (*model.ElectionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.election == nil {
		return nil, ErrNotFound
	}
	cp := *s.election
	return &cp, nil
}

func (s *MemoryStore) SaveElection(ctx context.Context, cfg *model.ElectionConfig) error {
	if err := model.Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	cp := *cfg
	s.election = &cp
	s.mu.Unlock()

	s.watchMu.Lock()
	fns := make([]func(*model.ElectionConfig), 0, len(s.electWatchers))
	for _, fn := range s.electWatchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()
	for _, fn := range fns {
		c := cp
		fn(&c)
	}
	return nil
}

// RecordVote 检查与写入在同一把锁内完成
func (s *MemoryStore) RecordVote(ctx context.Context, v *model.VoteRecord) error {
	if _, err := decodeVote(v); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.votes[v.StudentID]; ok {
		s.mu.Unlock()
		return ErrAlreadyVoted
	}
	cp := *v
	cp.PositionSelections = copySelections(v.PositionSelections)
	s.votes[v.StudentID] = &cp
	s.mu.Unlock()

	s.notifyVotes()
	return nil
}

func (s *MemoryStore) HasVoted(ctx context.Context, studentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.votes[studentID]
	return ok && v.Submitted, nil
}

func (s *MemoryStore) ListSubmittedVotes(ctx context.Context) ([]*model.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.VoteRecord, 0, len(s.votes))
	for _, v := range s.votes {
		if !v.Submitted {
			continue
		}
		cp := *v
		cp.PositionSelections = copySelections(v.PositionSelections)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) CountSubmittedVotes(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, v := range s.votes {
		if v.Submitted {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) WatchVotes(ctx context.Context, onChange func()) (subscription.Subscription, error) {
	return s.addWatcher(func(id int) { s.voteWatchers[id] = onChange }, func(id int) { delete(s.voteWatchers, id) }), nil
}

func (s *MemoryStore) WatchCandidates(ctx context.Context, onChange func()) (subscription.Subscription, error) {
	return s.addWatcher(func(id int) { s.candWatchers[id] = onChange }, func(id int) { delete(s.candWatchers, id) }), nil
}

// WatchElection 立即推送一次当前配置，与 Firestore 快照监听一致
func (s *MemoryStore) WatchElection(ctx context.Context, fn func(*model.ElectionConfig)) (subscription.Subscription, error) {
	sub := s.addWatcher(func(id int) { s.electWatchers[id] = fn }, func(id int) { delete(s.electWatchers, id) })
	if cfg, err := s.GetElection(ctx); err == nil {
		fn(cfg)
	}
	return sub, nil
}

func (s *MemoryStore) addWatcher(add func(int), remove func(int)) subscription.Subscription {
	s.watchMu.Lock()
	s.nextWatch++
	id := s.nextWatch
	add(id)
	s.watchMu.Unlock()

	return subscription.New(func() {
		s.watchMu.Lock()
		remove(id)
		s.watchMu.Unlock()
	})
}

func (s *MemoryStore) notifyVotes() {
	s.watchMu.Lock()
	fns := make([]func(), 0, len(s.voteWatchers))
	for _, fn := range s.voteWatchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *MemoryStore) notifyCandidates() {
	s.watchMu.Lock()
	fns := make([]func(), 0, len(s.candWatchers))
	for _, fn := range s.candWatchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *MemoryStore) Close() error { return nil }

func copySelections(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// matchesSearch 学号子串匹配，不区分大小写
func matchesSearch(rec *model.AccountRecord, search string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(rec.MatricNumber), strings.ToLower(search))
}

// FilterStudents 按学号搜索学生列表
func FilterStudents(recs []*model.AccountRecord, search string) []*model.AccountRecord {
	search = strings.TrimSpace(search)
	out := make([]*model.AccountRecord, 0, len(recs))
	for _, rec := range recs {
		if matchesSearch(rec, search) {
			out = append(out, rec)
		}
	}
	return out
}
