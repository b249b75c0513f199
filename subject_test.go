package rxgo_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	rxgo "github.com/xinjiayu/rxgo/v2"
)

func TestPublishSubject(t *testing.T) {
	t.Run("只收到订阅之后的值", func(t *testing.T) {
		subject := rxgo.NewPublishSubject[int]()
		subject.OnNext(1)

		r := newRecorder[int]()
		subject.Subscribe(r)
		subject.OnNext(2)
		subject.OnNext(3)
		subject.OnCompleted()
		subject.OnNext(4)

		assert.Equal(t, []int{2, 3}, r.Values())
		assert.True(t, r.Completed())
		assert.False(t, subject.HasObservers())
	})

	t.Run("终止后订阅立即收到终止通知", func(t *testing.T) {
		boom := errors.New("boom")
		subject := rxgo.NewPublishSubject[int]()
		subject.OnError(boom)
		subject.OnCompleted()

		r := newRecorder[int]()
		subject.Subscribe(r)
		assert.Equal(t, boom, r.Err())
		assert.Equal(t, 1, r.Terminals())
	})

	t.Run("取消订阅", func(t *testing.T) {
		subject := rxgo.NewPublishSubject[int]()
		r1 := newRecorder[int]()
		r2 := newRecorder[int]()
		d1 := subject.Subscribe(r1)
		subject.Subscribe(r2)
		assert.Equal(t, 2, subject.ObserverCount())

		subject.OnNext(1)
		d1.Dispose()
		subject.OnNext(2)

		assert.Equal(t, []int{1}, r1.Values())
		assert.Equal(t, []int{1, 2}, r2.Values())
		assert.Equal(t, 1, subject.ObserverCount())
	})

	t.Run("订阅者在回调中取消其他订阅", func(t *testing.T) {
		subject := rxgo.NewPublishSubject[int]()
		r2 := newRecorder[int]()
		var d2 rxgo.Disposable
		subject.Subscribe(rxgo.NewObserver(func(int) { d2.Dispose() }, nil, nil))
		d2 = subject.Subscribe(r2)

		subject.OnNext(1)
		subject.OnNext(2)
		assert.Empty(t, r2.Values())
	})

	t.Run("回调中订阅不会死锁", func(t *testing.T) {
		subject := rxgo.NewPublishSubject[int]()
		late := newRecorder[int]()
		subscribed := false
		subject.Subscribe(rxgo.NewObserver(func(int) {
			if !subscribed {
				subscribed = true
				subject.Subscribe(late)
			}
		}, nil, nil))

		subject.OnNext(1)
		subject.OnNext(2)
		assert.Equal(t, []int{2}, late.Values())
	})

	t.Run("释放后不再投递", func(t *testing.T) {
		subject := rxgo.NewPublishSubject[int]()
		r := newRecorder[int]()
		subject.Subscribe(r)
		subject.Dispose()
		subject.OnNext(1)
		subject.OnCompleted()

		assert.True(t, subject.IsDisposed())
		assert.Empty(t, r.Values())
		assert.Equal(t, 0, r.Terminals())
	})

	t.Run("并发发送", func(t *testing.T) {
		subject := rxgo.NewPublishSubject[int]()
		r := newRecorder[int]()
		rxgo.Synchronize[int](subject).Subscribe(r)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					subject.OnNext(j)
				}
			}()
		}
		wg.Wait()
		assert.Len(t, r.Values(), 400)
	})
}

func TestBehaviorSubject(t *testing.T) {
	t.Run("订阅时收到当前值", func(t *testing.T) {
		subject := rxgo.NewBehaviorSubject(0)
		r1 := newRecorder[int]()
		subject.Subscribe(r1)

		subject.OnNext(1)
		subject.OnNext(2)

		r2 := newRecorder[int]()
		subject.Subscribe(r2)
		subject.OnNext(3)

		assert.Equal(t, []int{0, 1, 2, 3}, r1.Values())
		assert.Equal(t, []int{2, 3}, r2.Values())

		v, ok := subject.GetValue()
		assert.True(t, ok)
		assert.Equal(t, 3, v)
	})

	t.Run("完成后订阅只收到完成", func(t *testing.T) {
		subject := rxgo.NewBehaviorSubject("a")
		subject.OnCompleted()

		r := newRecorder[string]()
		subject.Subscribe(r)
		assert.Empty(t, r.Values())
		assert.True(t, r.Completed())

		v, ok := subject.GetValue()
		assert.True(t, ok)
		assert.Equal(t, "a", v)
	})

	t.Run("错误后没有当前值", func(t *testing.T) {
		subject := rxgo.NewBehaviorSubject(1)
		subject.OnError(errors.New("boom"))

		_, ok := subject.GetValue()
		assert.False(t, ok)
	})
}

func TestReplaySubject(t *testing.T) {
	t.Run("重放有限数量", func(t *testing.T) {
		subject := rxgo.NewReplaySubject[int](2)
		subject.OnNext(1)
		subject.OnNext(2)
		subject.OnNext(3)

		r := newRecorder[int]()
		subject.Subscribe(r)
		subject.OnNext(4)

		assert.Equal(t, []int{2, 3, 4}, r.Values())
		assert.Equal(t, []int{3, 4}, subject.GetBufferedValues())
	})

	t.Run("不限数量", func(t *testing.T) {
		subject := rxgo.NewReplaySubject[int](0)
		for i := 1; i <= 5; i++ {
			subject.OnNext(i)
		}
		subject.OnCompleted()

		r := newRecorder[int]()
		subject.Subscribe(r)
		assert.Equal(t, []int{1, 2, 3, 4, 5}, r.Values())
		assert.True(t, r.Completed())
	})

	t.Run("时间窗口", func(t *testing.T) {
		s := rxgo.NewVirtualTimeScheduler()
		subject := rxgo.NewReplaySubjectWithWindow[int](0, 100*time.Nanosecond, s)

		s.ScheduleAbsolute(10, func() { subject.OnNext(1) })
		s.ScheduleAbsolute(50, func() { subject.OnNext(2) })
		s.ScheduleAbsolute(120, func() { subject.OnNext(3) })

		r := newRecorder[int]()
		s.ScheduleAbsolute(140, func() { subject.Subscribe(r) })
		s.Start()

		assert.Equal(t, []int{2, 3}, r.Values())
	})

	t.Run("释放清空缓冲", func(t *testing.T) {
		subject := rxgo.NewReplaySubject[int](0)
		subject.OnNext(1)
		subject.Dispose()
		assert.Empty(t, subject.GetBufferedValues())
	})
}

func TestAsyncSubject(t *testing.T) {
	t.Run("完成时发送最后一个值", func(t *testing.T) {
		subject := rxgo.NewAsyncSubject[int]()
		r := newRecorder[int]()
		subject.Subscribe(r)

		subject.OnNext(1)
		subject.OnNext(2)
		assert.Empty(t, r.Values())

		subject.OnCompleted()
		assert.Equal(t, []int{2}, r.Values())
		assert.True(t, r.Completed())

		late := newRecorder[int]()
		subject.Subscribe(late)
		assert.Equal(t, []int{2}, late.Values())
		assert.True(t, late.Completed())

		v, ok := subject.GetValue()
		assert.True(t, ok)
		assert.Equal(t, 2, v)
	})

	t.Run("没有值时只完成", func(t *testing.T) {
		subject := rxgo.NewAsyncSubject[int]()
		subject.OnCompleted()

		r := newRecorder[int]()
		subject.Subscribe(r)
		assert.Empty(t, r.Values())
		assert.True(t, r.Completed())

		_, ok := subject.GetValue()
		assert.False(t, ok)
	})

	t.Run("错误丢弃值", func(t *testing.T) {
		boom := errors.New("boom")
		subject := rxgo.NewAsyncSubject[int]()
		r := newRecorder[int]()
		subject.Subscribe(r)

		subject.OnNext(1)
		subject.OnError(boom)
		assert.Empty(t, r.Values())
		assert.Equal(t, boom, r.Err())
	})
}

func TestSubjectDeliverySerialized(t *testing.T) {
	t.Run("终止通知等待进行中的值投递", func(t *testing.T) {
		subject := rxgo.NewPublishSubject[int]()
		entered := make(chan struct{})
		release := make(chan struct{})
		var inFlight atomic.Int32
		var overlapped atomic.Bool

		subject.Subscribe(rxgo.NewObserver(func(int) {
			inFlight.Add(1)
			close(entered)
			<-release
			inFlight.Add(-1)
		}, nil, func() {
			if inFlight.Load() != 0 {
				overlapped.Store(true)
			}
		}))

		go subject.OnNext(1)
		waitOrFail(t, entered)

		completed := make(chan struct{})
		go func() {
			subject.OnCompleted()
			close(completed)
		}()

		select {
		case <-completed:
			t.Fatal("OnCompleted returned while OnNext was still being delivered")
		case <-time.After(50 * time.Millisecond):
		}

		close(release)
		waitOrFail(t, completed)
		assert.False(t, overlapped.Load())
	})

	t.Run("新值不会越过当前值", func(t *testing.T) {
		subject := rxgo.NewBehaviorSubject(0)
		entered := make(chan struct{})
		release := make(chan struct{})

		var mu sync.Mutex
		var got []int
		go subject.Subscribe(rxgo.NewObserver(func(v int) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
			if v == 0 {
				close(entered)
				<-release
			}
		}, nil, nil))
		waitOrFail(t, entered)

		produced := make(chan struct{})
		go func() {
			subject.OnNext(1)
			close(produced)
		}()

		select {
		case <-produced:
			t.Fatal("OnNext delivered before the current value")
		case <-time.After(50 * time.Millisecond):
		}

		close(release)
		waitOrFail(t, produced)
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []int{0, 1}, got)
	})

	t.Run("重放完成之前新值等待", func(t *testing.T) {
		subject := rxgo.NewReplaySubject[int](0)
		subject.OnNext(1)
		subject.OnNext(2)
		entered := make(chan struct{})
		release := make(chan struct{})

		var mu sync.Mutex
		var got []int
		go subject.Subscribe(rxgo.NewObserver(func(v int) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
			if v == 1 {
				close(entered)
				<-release
			}
		}, nil, nil))
		waitOrFail(t, entered)

		produced := make(chan struct{})
		go func() {
			subject.OnNext(3)
			close(produced)
		}()

		select {
		case <-produced:
			t.Fatal("OnNext delivered during replay")
		case <-time.After(50 * time.Millisecond):
		}

		close(release)
		waitOrFail(t, produced)
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []int{1, 2, 3}, got)
	})

	t.Run("同一goroutine重入直接投递", func(t *testing.T) {
		subject := rxgo.NewPublishSubject[int]()
		r := newRecorder[int]()
		subject.Subscribe(rxgo.NewObserver(func(v int) {
			r.OnNext(v)
			if v < 3 {
				subject.OnNext(v + 1)
			} else {
				subject.OnCompleted()
			}
		}, nil, r.OnCompleted))

		done := make(chan struct{})
		go func() {
			subject.OnNext(1)
			close(done)
		}()
		waitOrFail(t, done)

		assert.Equal(t, []int{1, 2, 3}, r.Values())
		assert.True(t, r.Completed())
	})
}
