package election

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/lock"
)

type countingTransitioner struct {
	calls   int32
	changed bool
	err     error
}

func (c *countingTransitioner) ApplySchedule(ctx context.Context) (bool, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.changed, c.err
}

func TestRunOnceAppliesScheduleUnderLock(t *testing.T) {
	ctx := context.Background()
	l := lock.NewLocalLock()
	tr := &countingTransitioner{changed: true}
	s := NewScheduler(tr, l, config.ElectionConfig{SchedulerInterval: time.Minute}, config.LockConfig{Timeout: time.Minute})

	assert.True(t, s.RunOnce(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&tr.calls))

	// 锁已释放，可以再次获取
	ok, err := l.AcquireLock(ctx, SchedulerLockName, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	l := lock.NewLocalLock()
	ok, err := l.AcquireLock(ctx, SchedulerLockName, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	tr := &countingTransitioner{changed: true}
	s := NewScheduler(tr, l, config.ElectionConfig{}, config.LockConfig{})

	assert.False(t, s.RunOnce(ctx))
	assert.Equal(t, int32(0), atomic.LoadInt32(&tr.calls))
}

func TestRunOnceReportsTransitionError(t *testing.T) {
	tr := &countingTransitioner{err: errors.New("store unavailable")}
	s := NewScheduler(tr, lock.NewLocalLock(), config.ElectionConfig{}, config.LockConfig{})

	assert.False(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&tr.calls))
}

func TestStartStop(t *testing.T) {
	tr := &countingTransitioner{}
	s := NewScheduler(tr, lock.NewLocalLock(), config.ElectionConfig{SchedulerInterval: 10 * time.Millisecond}, config.LockConfig{})

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&tr.calls) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	n := atomic.LoadInt32(&tr.calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, atomic.LoadInt32(&tr.calls))
}
