package rxgo_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petermattis/goid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rxgo "github.com/xinjiayu/rxgo/v2"
)

func waitOrFail(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestImmediateScheduler(t *testing.T) {
	ran := false
	rxgo.Immediate.Schedule(func() { ran = true })
	assert.True(t, ran)

	start := time.Now()
	rxgo.Immediate.ScheduleWithDelay(func() {}, 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestCurrentThreadScheduler(t *testing.T) {
	t.Run("嵌套调度排队执行", func(t *testing.T) {
		s := rxgo.NewCurrentThreadScheduler()
		var order []string

		assert.True(t, s.ScheduleRequired())
		s.Schedule(func() {
			order = append(order, "outer-start")
			assert.False(t, s.ScheduleRequired())
			s.Schedule(func() { order = append(order, "inner") })
			order = append(order, "outer-end")
		})
		assert.True(t, s.ScheduleRequired())

		assert.Equal(t, []string{"outer-start", "outer-end", "inner"}, order)
	})

	t.Run("深度递归不会栈溢出", func(t *testing.T) {
		s := rxgo.NewCurrentThreadScheduler()
		const depth = 100000
		n := 0
		rxgo.ScheduleRecursive(s, func(self func()) {
			n++
			if n < depth {
				self()
			}
		})
		assert.Equal(t, depth, n)
	})

	t.Run("各goroutine独立的队列", func(t *testing.T) {
		s := rxgo.NewCurrentThreadScheduler()
		var wg sync.WaitGroup
		var total atomic.Int32
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Schedule(func() {
					s.Schedule(func() { total.Add(1) })
					total.Add(1)
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(16), total.Load())
	})

	t.Run("取消排队中的动作", func(t *testing.T) {
		s := rxgo.NewCurrentThreadScheduler()
		ran := false
		s.Schedule(func() {
			d := s.Schedule(func() { ran = true })
			d.Dispose()
		})
		assert.False(t, ran)
	})
}

func TestNewThreadScheduler(t *testing.T) {
	t.Run("在新goroutine中执行", func(t *testing.T) {
		caller := goid.Get()
		done := make(chan struct{})
		var worker int64
		rxgo.NewThread.Schedule(func() {
			worker = goid.Get()
			close(done)
		})
		waitOrFail(t, done)
		assert.NotEqual(t, caller, worker)
	})

	t.Run("取消延迟任务", func(t *testing.T) {
		var ran atomic.Bool
		d := rxgo.NewThread.ScheduleWithDelay(func() { ran.Store(true) }, 50*time.Millisecond)
		d.Dispose()
		time.Sleep(100 * time.Millisecond)
		assert.False(t, ran.Load())
	})
}

func TestThreadPoolScheduler(t *testing.T) {
	t.Run("执行所有任务", func(t *testing.T) {
		s := rxgo.NewThreadPoolScheduler(4)
		defer s.Dispose()
		assert.Equal(t, 4, s.Workers())

		var wg sync.WaitGroup
		var count atomic.Int32
		for i := 0; i < 100; i++ {
			wg.Add(1)
			s.Schedule(func() {
				defer wg.Done()
				count.Add(1)
			})
		}
		wg.Wait()
		assert.Equal(t, int32(100), count.Load())
	})

	t.Run("panic不影响后续任务", func(t *testing.T) {
		s := rxgo.NewThreadPoolScheduler(1)
		defer s.Dispose()

		s.Schedule(func() { panic("boom") })
		done := make(chan struct{})
		s.Schedule(func() { close(done) })
		waitOrFail(t, done)
	})

	t.Run("默认worker数量", func(t *testing.T) {
		s := rxgo.NewThreadPoolScheduler(0)
		defer s.Dispose()
		assert.Positive(t, s.Workers())
	})

	t.Run("释放后不再执行", func(t *testing.T) {
		s := rxgo.NewThreadPoolScheduler(2)
		s.Dispose()
		assert.True(t, s.IsDisposed())

		ran := false
		d := s.Schedule(func() { ran = true })
		assert.True(t, d.IsDisposed())
		assert.False(t, ran)
	})

	t.Run("进程级线程池", func(t *testing.T) {
		assert.Same(t, rxgo.ThreadPool(), rxgo.ThreadPool())
	})
}

func TestEventLoopScheduler(t *testing.T) {
	s := rxgo.NewEventLoopScheduler()
	defer s.Dispose()

	var mu sync.Mutex
	var order []string
	var ids []int64
	done := make(chan struct{})
	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			ids = append(ids, goid.Get())
			if len(order) == 3 {
				close(done)
			}
		}
	}

	s.ScheduleWithDelay(record("late"), 40*time.Millisecond)
	s.ScheduleWithDelay(record("early"), 10*time.Millisecond)
	s.Schedule(record("now"))
	waitOrFail(t, done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"now", "early", "late"}, order)
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[1], ids[2])
}

func TestEventLoopSchedulerDispose(t *testing.T) {
	s := rxgo.NewEventLoopScheduler()
	var ran atomic.Bool
	s.ScheduleWithDelay(func() { ran.Store(true) }, 30*time.Millisecond)
	s.Dispose()
	assert.True(t, s.IsDisposed())

	time.Sleep(60 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestMonitoredScheduler(t *testing.T) {
	s := rxgo.NewMonitoredScheduler(rxgo.Immediate)

	s.Schedule(func() {})
	s.ScheduleWithDelay(func() {}, 0)
	assert.Panics(t, func() {
		s.Schedule(func() { panic("boom") })
	})

	assert.Equal(t, rxgo.SchedulerMetrics{
		TasksScheduled: 3,
		TasksCompleted: 2,
		TasksFailed:    1,
	}, s.Metrics())
}

func TestSchedulePeriodic(t *testing.T) {
	t.Run("按周期执行", func(t *testing.T) {
		s := rxgo.NewVirtualTimeScheduler()
		var ticks []int64
		d := rxgo.SchedulePeriodic(s, 10*time.Nanosecond, func() {
			ticks = append(ticks, s.Clock())
		})

		s.AdvanceTo(35)
		assert.Equal(t, []int64{10, 20, 30}, ticks)

		d.Dispose()
		s.AdvanceTo(100)
		assert.Equal(t, []int64{10, 20, 30}, ticks)
	})

	t.Run("非正周期panic", func(t *testing.T) {
		assert.Panics(t, func() {
			rxgo.SchedulePeriodic(rxgo.Immediate, 0, func() {})
		})
	})
}

func TestScheduleRecursiveWithDelay(t *testing.T) {
	s := rxgo.NewVirtualTimeScheduler()
	var clocks []int64
	rxgo.ScheduleRecursiveWithDelay(s, 10*time.Nanosecond, func(self func(time.Duration)) {
		clocks = append(clocks, s.Clock())
		if len(clocks) < 3 {
			self(20 * time.Nanosecond)
		}
	})
	s.Start()
	assert.Equal(t, []int64{10, 30, 50}, clocks)
}

func TestScheduleWithContext(t *testing.T) {
	t.Run("上下文取消后不执行", func(t *testing.T) {
		s := rxgo.NewVirtualTimeScheduler()
		ctx, cancel := context.WithCancel(context.Background())
		ran := false
		rxgo.ScheduleWithContext(ctx, s, func() { ran = true })

		cancel()
		s.Start()
		assert.False(t, ran)
	})

	t.Run("正常执行", func(t *testing.T) {
		s := rxgo.NewVirtualTimeScheduler()
		ran := false
		d := rxgo.ScheduleWithContext(context.Background(), s, func() { ran = true })
		s.Start()
		assert.True(t, ran)
		d.Dispose()
	})
}

func TestScheduleOnce(t *testing.T) {
	s := rxgo.NewVirtualTimeScheduler()
	var at int64
	rxgo.ScheduleOnce(s, func() { at = s.Clock() }, 25*time.Nanosecond)
	s.Start()
	require.Equal(t, int64(25), at)
}
