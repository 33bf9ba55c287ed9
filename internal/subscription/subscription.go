// Package subscription 管理实时订阅的释放。每次订阅返回一个句柄，句柄被收集到
// 会话级 Scope 中，登出或连接断开时统一释放。
package subscription

import (
	"sort"
	"sync"
)

// Subscription 订阅句柄，Unsubscribe 可重复调用
type Subscription interface {
	Unsubscribe()
}

type funcSubscription struct {
	once sync.Once
	fn   func()
}

func (s *funcSubscription) Unsubscribe() {
	s.once.Do(s.fn)
}

// New 用释放函数构造订阅句柄
func New(fn func()) Subscription {
	if fn == nil {
		fn = func() {}
	}
	return &funcSubscription{fn: fn}
}

// Scope 一组随同一生命周期释放的订阅。零值可用。
type Scope struct {
	mu      sync.Mutex
	subs    map[int]Subscription
	nextID  int
	closed  bool
	onEmpty func()
}

// Add 加入订阅并返回包装后的句柄，释放该句柄时订阅同时移出 Scope。
// Scope 已关闭时立即释放。
func (s *Scope) Add(sub Subscription) Subscription {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return sub
	}
	if s.subs == nil {
		s.subs = make(map[int]Subscription)
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	return New(func() {
		sub.Unsubscribe()
		s.remove(id)
	})
}

func (s *Scope) remove(id int) {
	s.mu.Lock()
	if _, ok := s.subs[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subs, id)
	empty := len(s.subs) == 0 && !s.closed
	onEmpty := s.onEmpty
	s.mu.Unlock()

	if empty && onEmpty != nil {
		onEmpty()
	}
}

// Len 当前持有的订阅数
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close 按加入的逆序释放所有订阅
func (s *Scope) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	s.mu.Unlock()

	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	for _, id := range ids {
		subs[id].Unsubscribe()
	}
}

// Registry 按会话ID索引的 Scope 集合，Scope 为空时自动移除
type Registry struct {
	mu     sync.Mutex
	scopes map[string]*Scope
}

func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string]*Scope)}
}

// Add 把订阅挂到会话下，返回的句柄释放时从会话中移除
func (r *Registry) Add(sessionID string, sub Subscription) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.scopes[sessionID]
	if !ok {
		sc = &Scope{}
		sc.onEmpty = func() { r.drop(sessionID, sc) }
		r.scopes[sessionID] = sc
	}
	return sc.Add(sub)
}

// drop 移除仍为空的 Scope；会话已被释放或替换时不做任何事
func (r *Registry) drop(sessionID string, sc *Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scopes[sessionID] == sc && sc.Len() == 0 {
		delete(r.scopes, sessionID)
	}
}

// Len 会话当前持有的订阅数
func (r *Registry) Len(sessionID string) int {
	r.mu.Lock()
	sc, ok := r.scopes[sessionID]
	r.mu.Unlock()

	if !ok {
		return 0
	}
	return sc.Len()
}

// Sessions 持有订阅的会话数
func (r *Registry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}

// Release 释放会话的全部订阅
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	sc, ok := r.scopes[sessionID]
	delete(r.scopes, sessionID)
	r.mu.Unlock()

	if ok {
		sc.Close()
	}
}

// Close 关闭全部会话的订阅，服务退出时调用
func (r *Registry) Close() {
	r.mu.Lock()
	scopes := r.scopes
	r.scopes = make(map[string]*Scope)
	r.mu.Unlock()

	for _, sc := range scopes {
		sc.Close()
	}
}
