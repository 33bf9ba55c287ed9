package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lvdashuaibi/campusvote/config"
)

// Lock 分布式锁接口
type Lock interface {
	// AcquireLock 获取分布式锁
	// etcd 实现的有效期由租约决定，ttl 只作为请求超时
	// 返回值：bool表示是否成功获取锁，error表示获取过程中的错误
	AcquireLock(ctx context.Context, lockName string, ttl time.Duration) (bool, error)

	// RefreshLock 刷新锁的过期时间，锁已丢失时返回 false
	RefreshLock(ctx context.Context, lockName string, ttl time.Duration) (bool, error)

	// ReleaseLock 释放分布式锁
	ReleaseLock(ctx context.Context, lockName string) error

	// ReleaseAllLocks 释放所有持有的锁
	ReleaseAllLocks(ctx context.Context)

	// Close 关闭分布式锁客户端
	Close() error
}

// New 按 lock.driver 创建锁实现
func New(cfg *config.Config) (Lock, error) {
	switch cfg.Lock.Driver {
	case "etcd":
		return NewETCDLock(cfg.ETCD)
	case "redis":
		return NewRedLock(cfg.Redis, cfg.Lock)
	case "none":
		return NewLocalLock(), nil
	}
	return nil, fmt.Errorf("未知的分布式锁驱动: %s", cfg.Lock.Driver)
}

// LocalLock 单实例部署时使用的进程内锁
type LocalLock struct {
	mu    sync.Mutex
	locks map[string]time.Time // 锁名 -> 过期时间
	now   func() time.Time
}

func NewLocalLock() *LocalLock {
	return &LocalLock{locks: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLock) AcquireLock(ctx context.Context, lockName string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if exp, ok := l.locks[lockName]; ok && l.now().Before(exp) {
		return false, nil
	}
	l.locks[lockName] = l.now().Add(ttl)
	return true, nil
}

func (l *LocalLock) RefreshLock(ctx context.Context, lockName string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	exp, ok := l.locks[lockName]
	if !ok || !l.now().Before(exp) {
		delete(l.locks, lockName)
		return false, nil
	}
	l.locks[lockName] = l.now().Add(ttl)
	return true, nil
}

func (l *LocalLock) ReleaseLock(ctx context.Context, lockName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, lockName)
	return nil
}

func (l *LocalLock) ReleaseAllLocks(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks = make(map[string]time.Time)
}

func (l *LocalLock) Close() error { return nil }
