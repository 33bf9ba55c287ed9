package subscription

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionUnsubscribeOnce(t *testing.T) {
	calls := 0
	sub := New(func() { calls++ })
	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 1, calls)

	New(nil).Unsubscribe()
}

func TestScopeCloseReleasesInReverseOrder(t *testing.T) {
	var order []int
	sc := &Scope{}
	for i := 0; i < 3; i++ {
		i := i
		sc.Add(New(func() { order = append(order, i) }))
	}
	assert.Equal(t, 3, sc.Len())

	sc.Close()
	assert.Equal(t, []int{2, 1, 0}, order)
	assert.Equal(t, 0, sc.Len())

	// 关闭后加入的订阅立即释放
	released := false
	sc.Add(New(func() { released = true }))
	assert.True(t, released)
}

func TestScopeHandleRemovesItself(t *testing.T) {
	sc := &Scope{}
	calls := 0
	for i := 0; i < 100; i++ {
		h := sc.Add(New(func() { calls++ }))
		h.Unsubscribe()
		h.Unsubscribe()
	}
	assert.Equal(t, 100, calls)
	assert.Equal(t, 0, sc.Len())

	// 已释放的句柄不会在 Close 时再次释放
	sc.Close()
	assert.Equal(t, 100, calls)
}

func TestScopeHandleAfterClose(t *testing.T) {
	sc := &Scope{}
	calls := 0
	h := sc.Add(New(func() { calls++ }))
	sc.Close()
	h.Unsubscribe()
	assert.Equal(t, 1, calls)
}

func TestRegistryRelease(t *testing.T) {
	reg := NewRegistry()
	a, b := 0, 0
	reg.Add("s1", New(func() { a++ }))
	reg.Add("s1", New(func() { a++ }))
	reg.Add("s2", New(func() { b++ }))
	assert.Equal(t, 2, reg.Len("s1"))
	assert.Equal(t, 2, reg.Sessions())

	reg.Release("s1")
	assert.Equal(t, 2, a)
	assert.Equal(t, 0, b)
	assert.Equal(t, 0, reg.Len("s1"))

	// 未知会话无副作用
	reg.Release("missing")

	reg.Close()
	assert.Equal(t, 1, b)
	assert.Equal(t, 2, a)
	assert.Equal(t, 0, reg.Sessions())
}

func TestRegistryDropsEmptySessions(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 100; i++ {
		h := reg.Add("s1", New(nil))
		assert.Equal(t, 1, reg.Len("s1"))
		h.Unsubscribe()
	}
	assert.Equal(t, 0, reg.Len("s1"))
	assert.Equal(t, 0, reg.Sessions())

	// 其中一个句柄释放后会话仍保留其余订阅
	h1 := reg.Add("s1", New(nil))
	h2 := reg.Add("s1", New(nil))
	h1.Unsubscribe()
	assert.Equal(t, 1, reg.Len("s1"))
	assert.Equal(t, 1, reg.Sessions())

	// 会话释放后再释放句柄不影响新会话
	reg.Release("s1")
	h3 := reg.Add("s1", New(nil))
	h2.Unsubscribe()
	assert.Equal(t, 1, reg.Len("s1"))
	h3.Unsubscribe()
	assert.Equal(t, 0, reg.Sessions())
}

func TestRegistryConcurrentAddRelease(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				reg.Add("s1", New(nil)).Unsubscribe()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, reg.Sessions())
}
