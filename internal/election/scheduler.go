// Package election 按配置的起止时间自动切换选举状态，集群内同一时刻只有一个实例执行。
package election

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/lock"
)

const (
	SchedulerLockName = "campusvote:election:scheduler:lock"
)

// Transitioner 由 service.ElectionService 实现
type Transitioner interface {
	ApplySchedule(ctx context.Context) (bool, error)
}

type Scheduler struct {
	elections Transitioner
	lock      lock.Lock
	interval  time.Duration
	lockTTL   time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewScheduler(elections Transitioner, distributedLock lock.Lock, cfg config.ElectionConfig, lockCfg config.LockConfig) *Scheduler {
	interval := cfg.SchedulerInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ttl := lockCfg.Timeout
	if ttl <= 0 {
		ttl = interval
	}
	return &Scheduler{
		elections: elections,
		lock:      distributedLock,
		interval:  interval,
		lockTTL:   ttl,
		stopChan:  make(chan struct{}),
	}
}

// Start 启动定时器，每个周期竞争一次调度锁
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				return
			case <-s.stopChan:
				zap.S().Info("选举调度器已停止")
				return
			}
		}
	}()

	zap.S().Infof("选举调度器已启动，检查间隔: %v", s.interval)
}

// RunOnce 获取锁后执行一次状态检查，未获取到锁时跳过；返回状态是否改变
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	acquired, err := s.lock.AcquireLock(ctx, SchedulerLockName, s.lockTTL)
	if err != nil {
		zap.S().Warnf("获取选举调度锁失败: %v", err)
		return false
	}
	if !acquired {
		zap.S().Debug("选举调度锁由其它实例持有，跳过本次检查")
		return false
	}
	defer func() {
		if err := s.lock.ReleaseLock(ctx, SchedulerLockName); err != nil {
			zap.S().Warnf("释放选举调度锁失败: %v", err)
		}
	}()

	changed, err := s.elections.ApplySchedule(ctx)
	if err != nil {
		zap.S().Warnf("检查选举状态失败: %v", err)
		return false
	}
	return changed
}

// Stop 停止定时器并等待当前检查结束
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
