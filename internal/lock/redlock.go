package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/config"
)

const (
	// 只刷新/释放自己持有的锁
	refreshScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	unlockScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

type RedLock struct {
	clients    []*redis.Client
	addrs      []string
	retries    int
	retryDelay time.Duration

	mu    sync.Mutex
	locks map[string]string // key是锁名，value是token值
}

// NewRedLock 连接 redis.lock_addresses 中的每个独立节点
func NewRedLock(rcfg config.RedisConfig, lcfg config.LockConfig) (*RedLock, error) {
	if len(rcfg.LockAddresses) == 0 {
		return nil, fmt.Errorf("redis.lock_addresses 不能为空")
	}

	ctx, cancel := context.WithTimeout(context.Background(), lcfg.Timeout)
	defer cancel()

	var clients []*redis.Client
	for _, addr := range rcfg.LockAddresses {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     rcfg.Password,
			DB:           rcfg.DB,
			PoolSize:     rcfg.PoolSize,
			MaxRetries:   rcfg.MaxRetries,
			DialTimeout:  rcfg.Timeout,
			ReadTimeout:  rcfg.Timeout,
			WriteTimeout: rcfg.Timeout,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			for _, c := range clients {
				c.Close()
			}
			client.Close()
			return nil, fmt.Errorf("Redis锁节点 %s 连接测试失败: %w", addr, err)
		}
		clients = append(clients, client)
	}

	return newRedLock(clients, rcfg.LockAddresses, lcfg.RetryCount), nil
}

func newRedLock(clients []*redis.Client, addrs []string, retries int) *RedLock {
	if retries < 1 {
		retries = 1
	}
	return &RedLock{
		clients:    clients,
		addrs:      addrs,
		retries:    retries,
		retryDelay: 100 * time.Millisecond,
		locks:      make(map[string]string),
	}
}

func (r *RedLock) quorum() int {
	return len(r.clients)/2 + 1
}

// AcquireLock Redlock算法: 在多数节点 SETNX 成功且耗时小于有效期才算获取成功
func (r *RedLock) AcquireLock(ctx context.Context, lockName string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locks[lockName]; ok {
		return false, fmt.Errorf("锁 %s 已被当前实例持有", lockName)
	}

	token := uuid.NewString()
	for attempt := 0; attempt < r.retries; attempt++ {
		success := 0
		start := time.Now()

		for i, client := range r.clients {
			ok, err := client.SetNX(ctx, lockName, token, ttl).Result()
			if err != nil {
				zap.S().Warnf("在节点 %s 获取锁 %s 失败: %v", r.addrs[i], lockName, err)
				continue
			}
			if ok {
				success++
			}
		}

		validity := ttl - time.Since(start)
		if success >= r.quorum() && validity > 0 {
			r.locks[lockName] = token
			zap.S().Debugf("获取锁 %s 成功", lockName)
			return true, nil
		}

		r.unlockAll(ctx, lockName, token)

		if attempt < r.retries-1 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}
	}
	return false, nil
}

func (r *RedLock) RefreshLock(ctx context.Context, lockName string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.locks[lockName]
	if !ok {
		return false, nil
	}

	success := 0
	for i, client := range r.clients {
		result, err := client.Eval(ctx, refreshScript, []string{lockName}, token, ttl.Milliseconds()).Int64()
		if err != nil {
			zap.S().Warnf("在节点 %s 刷新锁 %s 失败: %v", r.addrs[i], lockName, err)
			continue
		}
		if result == 1 {
			success++
		}
	}

	if success >= r.quorum() {
		return true, nil
	}

	r.unlockAll(ctx, lockName, token)
	delete(r.locks, lockName)
	return false, nil
}

func (r *RedLock) ReleaseLock(ctx context.Context, lockName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.locks[lockName]
	if !ok {
		return nil
	}
	r.unlockAll(ctx, lockName, token)
	delete(r.locks, lockName)
	return nil
}

// unlockAll 在所有节点上释放锁
func (r *RedLock) unlockAll(ctx context.Context, lockName, token string) {
	for i, client := range r.clients {
		if err := client.Eval(ctx, unlockScript, []string{lockName}, token).Err(); err != nil {
			zap.S().Warnf("在节点 %s 释放锁 %s 失败: %v", r.addrs[i], lockName, err)
		}
	}
}

func (r *RedLock) ReleaseAllLocks(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, token := range r.locks {
		r.unlockAll(ctx, name, token)
	}
	r.locks = make(map[string]string)
}

// Close 关闭分布式锁客户端
func (r *RedLock) Close() error {
	r.ReleaseAllLocks(context.Background())

	for _, client := range r.clients {
		if err := client.Close(); err != nil {
			zap.S().Warnf("关闭Redis客户端失败: %v", err)
		}
	}
	return nil
}
