package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/config"
)

const defaultTTL = 10 * time.Second // 未配置 etcd.session_ttl 时的租约时长

// EtcdLock 基于租约的 etcd 分布式锁
type EtcdLock struct {
	client *clientv3.Client
	ttl    int64                 // 租约秒数
	mu     sync.Mutex            // 保护locks的互斥锁
	locks  map[string]*lockEntry // 当前持有的锁
}

type lockEntry struct {
	leaseID clientv3.LeaseID
	key     string
	cancel  context.CancelFunc // 用于停止自动续约
}

func NewETCDLock(cfg config.ETCDConfig) (*EtcdLock, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("创建etcd客户端失败: %w", err)
	}

	ttl := cfg.SessionTTL
	if ttl < time.Second {
		ttl = defaultTTL
	}
	return &EtcdLock{
		client: cli,
		ttl:    int64(ttl / time.Second),
		locks:  make(map[string]*lockEntry),
	}, nil
}

func lockKey(lockName string) string {
	return "/locks/" + lockName
}

// AcquireLock 仅当键不存在时写入，键绑定租约，进程崩溃后随租约过期
func (el *EtcdLock) AcquireLock(ctx context.Context, lockName string, timeout time.Duration) (bool, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	if _, ok := el.locks[lockName]; ok {
		return false, fmt.Errorf("锁 %s 已被当前实例持有", lockName)
	}

	key := lockKey(lockName)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	grantResp, err := el.client.Grant(ctx, el.ttl)
	if err != nil {
		return false, fmt.Errorf("创建租约失败: %w", err)
	}

	txnResp, err := el.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, "", clientv3.WithLease(grantResp.ID))).
		Commit()
	if err != nil {
		el.client.Revoke(context.Background(), grantResp.ID)
		return false, fmt.Errorf("事务执行失败: %w", err)
	}
	if !txnResp.Succeeded {
		el.client.Revoke(context.Background(), grantResp.ID)
		return false, nil
	}

	keepAliveCtx, keepAliveCancel := context.WithCancel(context.Background())
	go el.keepAlive(keepAliveCtx, lockName, grantResp.ID)

	el.locks[lockName] = &lockEntry{
		leaseID: grantResp.ID,
		key:     key,
		cancel:  keepAliveCancel,
	}
	return true, nil
}

func (el *EtcdLock) RefreshLock(ctx context.Context, lockName string, timeout time.Duration) (bool, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	entry, ok := el.locks[lockName]
	if !ok {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := el.client.KeepAliveOnce(ctx, entry.leaseID); err != nil {
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			entry.cancel()
			delete(el.locks, lockName)
			return false, nil
		}
		return false, fmt.Errorf("续约失败: %w", err)
	}
	return true, nil
}

func (el *EtcdLock) ReleaseLock(ctx context.Context, lockName string) error {
	el.mu.Lock()
	defer el.mu.Unlock()

	return el.releaseLock(ctx, lockName)
}

func (el *EtcdLock) ReleaseAllLocks(ctx context.Context) {
	el.mu.Lock()
	defer el.mu.Unlock()

	for lockName := range el.locks {
		if err := el.releaseLock(ctx, lockName); err != nil {
			zap.S().Warnf("释放锁 %s 失败: %v", lockName, err)
		}
	}
}

func (el *EtcdLock) Close() error {
	el.ReleaseAllLocks(context.Background())
	return el.client.Close()
}

// keepAlive 每半个租约周期续约一次
func (el *EtcdLock) keepAlive(ctx context.Context, lockName string, leaseID clientv3.LeaseID) {
	ticker := time.NewTicker(time.Duration(el.ttl) * time.Second / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := el.client.KeepAliveOnce(ctx, leaseID); err != nil {
				if ctx.Err() == nil {
					zap.S().Warnf("锁 %s 自动续约失败: %v", lockName, err)
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (el *EtcdLock) releaseLock(ctx context.Context, lockName string) error {
	entry, ok := el.locks[lockName]
	if !ok {
		return nil
	}

	entry.cancel()
	delete(el.locks, lockName)

	if _, err := el.client.Delete(ctx, entry.key); err != nil {
		return fmt.Errorf("删除键失败: %w", err)
	}
	if _, err := el.client.Revoke(ctx, entry.leaseID); err != nil {
		return fmt.Errorf("释放租约失败: %w", err)
	}
	return nil
}
