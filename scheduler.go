// Scheduler implementations for RxGo
// 实现调度器系统，支持不同的执行策略
package rxgo

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"

	"github.com/xinjiayu/rxgo/v2/internal/rxlog"
)

// ============================================================================
// 调度器接口
// ============================================================================

// Scheduler 调度器接口，控制任务执行时机和方式。
// 返回的 Disposable 用于取消尚未执行的任务。
type Scheduler interface {
	// Now 调度器的当前时间
	Now() time.Time
	// Schedule 调度一个任务
	Schedule(action func()) Disposable
	// ScheduleWithDelay 延迟调度一个任务
	ScheduleWithDelay(action func(), delay time.Duration) Disposable
	// ScheduleAt 在指定时刻调度一个任务
	ScheduleAt(action func(), dueTime time.Time) Disposable
}

// ============================================================================
// 调度队列
// ============================================================================

// scheduledItem 调度的动作，按 (due, seq) 排序
type scheduledItem struct {
	due      int64
	seq      uint64
	action   func()
	index    int
	disposed atomic.Bool
}

// Dispose 取消尚未执行的动作
func (it *scheduledItem) Dispose() { it.disposed.Store(true) }

// IsDisposed 检查是否已取消
func (it *scheduledItem) IsDisposed() bool { return it.disposed.Load() }

func (it *scheduledItem) invoke() {
	if !it.disposed.Load() {
		it.action()
	}
}

// scheduledQueue 优先队列：先按到期时间，再按插入顺序
type scheduledQueue struct {
	items []*scheduledItem
	seq   uint64
}

func (q *scheduledQueue) Len() int { return len(q.items) }

func (q *scheduledQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.due != b.due {
		return a.due < b.due
	}
	return a.seq < b.seq
}

func (q *scheduledQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *scheduledQueue) Push(x any) {
	it := x.(*scheduledItem)
	it.index = len(q.items)
	q.items = append(q.items, it)
}

func (q *scheduledQueue) Pop() any {
	n := len(q.items)
	it := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	it.index = -1
	return it
}

// enqueue 插入新动作
func (q *scheduledQueue) enqueue(due int64, action func()) *scheduledItem {
	q.seq++
	it := &scheduledItem{due: due, seq: q.seq, action: action}
	heap.Push(q, it)
	return it
}

// peek 返回最早的动作，跳过并移除已取消的动作
func (q *scheduledQueue) peek() *scheduledItem {
	for len(q.items) > 0 {
		it := q.items[0]
		if !it.IsDisposed() {
			return it
		}
		heap.Pop(q)
	}
	return nil
}

// dequeue 弹出最早的未取消动作
func (q *scheduledQueue) dequeue() *scheduledItem {
	it := q.peek()
	if it != nil {
		heap.Pop(q)
	}
	return it
}

// runSafely 在工作goroutine中执行动作，panic 被恢复并记录
func runSafely(name string, action func()) (failure error) {
	defer func() {
		if r := recover(); r != nil {
			failure = &PanicError{Value: r}
			rxlog.Error("scheduled action panicked", failure, "scheduler", name)
		}
	}()
	action()
	return nil
}

// ============================================================================
// 立即调度器 - Immediate Scheduler
// ============================================================================

// immediateScheduler 立即在当前goroutine中执行任务，延迟任务阻塞当前goroutine
type immediateScheduler struct{}

// NewImmediateScheduler 创建立即调度器
func NewImmediateScheduler() Scheduler {
	return &immediateScheduler{}
}

func (s *immediateScheduler) Now() time.Time { return time.Now() }

// Schedule 立即执行任务
func (s *immediateScheduler) Schedule(action func()) Disposable {
	action()
	return EmptyDisposable()
}

// ScheduleWithDelay 等待延迟后在当前goroutine中执行任务
func (s *immediateScheduler) ScheduleWithDelay(action func(), delay time.Duration) Disposable {
	if delay > 0 {
		time.Sleep(delay)
	}
	action()
	return EmptyDisposable()
}

// ScheduleAt 等待到指定时刻后执行任务
func (s *immediateScheduler) ScheduleAt(action func(), dueTime time.Time) Disposable {
	return s.ScheduleWithDelay(action, time.Until(dueTime))
}

// ============================================================================
// 当前线程调度器 - Current Thread Scheduler
// ============================================================================

// CurrentThreadScheduler 在当前goroutine上以蹦床方式执行任务：
// 第一个任务启动队列循环，循环中再调度的任务入队而不是递归执行。
type CurrentThreadScheduler struct {
	mu     sync.Mutex
	queues map[int64]*scheduledQueue
}

// NewCurrentThreadScheduler 创建当前线程调度器
func NewCurrentThreadScheduler() *CurrentThreadScheduler {
	return &CurrentThreadScheduler{
		queues: make(map[int64]*scheduledQueue),
	}
}

func (s *CurrentThreadScheduler) Now() time.Time { return time.Now() }

// ScheduleRequired 当前goroutine上没有运行中的蹦床时返回true
func (s *CurrentThreadScheduler) ScheduleRequired() bool {
	gid := goid.Get()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.queues[gid]
	return !running
}

// Schedule 在当前goroutine中调度任务
func (s *CurrentThreadScheduler) Schedule(action func()) Disposable {
	return s.ScheduleAt(action, time.Now())
}

// ScheduleWithDelay 延迟调度任务
func (s *CurrentThreadScheduler) ScheduleWithDelay(action func(), delay time.Duration) Disposable {
	return s.ScheduleAt(action, time.Now().Add(delay))
}

// ScheduleAt 在指定时刻调度任务
func (s *CurrentThreadScheduler) ScheduleAt(action func(), dueTime time.Time) Disposable {
	gid := goid.Get()

	s.mu.Lock()
	queue, running := s.queues[gid]
	if !running {
		queue = &scheduledQueue{}
		s.queues[gid] = queue
	}
	// 队列只被所属goroutine访问
	item := queue.enqueue(dueTime.UnixNano(), action)
	s.mu.Unlock()

	if running {
		return item
	}

	defer func() {
		s.mu.Lock()
		delete(s.queues, gid)
		s.mu.Unlock()
	}()

	for {
		next := queue.dequeue()
		if next == nil {
			return item
		}
		if wait := time.Until(time.Unix(0, next.due)); wait > 0 {
			time.Sleep(wait)
		}
		next.invoke()
	}
}

// ============================================================================
// 新线程调度器 - New Thread Scheduler
// ============================================================================

// newThreadScheduler 为每个任务创建新的goroutine
type newThreadScheduler struct{}

// NewNewThreadScheduler 创建新线程调度器
func NewNewThreadScheduler() Scheduler {
	return &newThreadScheduler{}
}

func (s *newThreadScheduler) Now() time.Time { return time.Now() }

// Schedule 在新goroutine中执行任务
func (s *newThreadScheduler) Schedule(action func()) Disposable {
	item := &scheduledItem{action: action}
	go runSafely("new-thread", item.invoke)
	return item
}

// ScheduleWithDelay 延迟在新goroutine中执行任务
func (s *newThreadScheduler) ScheduleWithDelay(action func(), delay time.Duration) Disposable {
	item := &scheduledItem{action: action}
	timer := time.AfterFunc(delay, func() {
		runSafely("new-thread", item.invoke)
	})

	return NewBaseDisposable(func() {
		item.Dispose()
		timer.Stop()
	})
}

// ScheduleAt 在指定时刻于新goroutine中执行任务
func (s *newThreadScheduler) ScheduleAt(action func(), dueTime time.Time) Disposable {
	return s.ScheduleWithDelay(action, time.Until(dueTime))
}

// ============================================================================
// 线程池调度器 - Thread Pool Scheduler
// ============================================================================

// ThreadPoolScheduler 使用固定大小的goroutine池执行任务
type ThreadPoolScheduler struct {
	workers   int
	taskQueue chan *scheduledItem
	ctx       context.Context
	cancel    context.CancelFunc
	disposed  atomic.Bool
}

// NewThreadPoolScheduler 创建线程池调度器
func NewThreadPoolScheduler(workers int) *ThreadPoolScheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	scheduler := &ThreadPoolScheduler{
		workers:   workers,
		taskQueue: make(chan *scheduledItem, workers*2), // 缓冲区大小为worker数量的2倍
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < workers; i++ {
		go scheduler.worker(i)
	}
	rxlog.Debug("thread pool started", "workers", workers)

	return scheduler
}

func (s *ThreadPoolScheduler) Now() time.Time { return time.Now() }

// Workers worker数量
func (s *ThreadPoolScheduler) Workers() int { return s.workers }

// Schedule 在线程池中执行任务
func (s *ThreadPoolScheduler) Schedule(action func()) Disposable {
	item := &scheduledItem{action: action}
	s.submit(item)
	return item
}

// ScheduleWithDelay 延迟在线程池中执行任务
func (s *ThreadPoolScheduler) ScheduleWithDelay(action func(), delay time.Duration) Disposable {
	item := &scheduledItem{action: action}
	timer := time.AfterFunc(delay, func() {
		s.submit(item)
	})

	return NewBaseDisposable(func() {
		item.Dispose()
		timer.Stop()
	})
}

// ScheduleAt 在指定时刻于线程池中执行任务
func (s *ThreadPoolScheduler) ScheduleAt(action func(), dueTime time.Time) Disposable {
	return s.ScheduleWithDelay(action, time.Until(dueTime))
}

func (s *ThreadPoolScheduler) submit(item *scheduledItem) {
	if s.disposed.Load() {
		item.Dispose()
		return
	}

	select {
	case s.taskQueue <- item:
	case <-s.ctx.Done():
		item.Dispose()
	}
}

// worker 工作goroutine
func (s *ThreadPoolScheduler) worker(id int) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case task := <-s.taskQueue:
			runSafely("thread-pool", task.invoke)
		}
	}
}

// Dispose 停止所有worker，排队中的任务不再执行
func (s *ThreadPoolScheduler) Dispose() {
	if s.disposed.CompareAndSwap(false, true) {
		s.cancel()
		rxlog.Debug("thread pool disposed", "workers", s.workers)
	}
}

// IsDisposed 检查是否已释放
func (s *ThreadPoolScheduler) IsDisposed() bool { return s.disposed.Load() }

// ============================================================================
// 事件循环调度器 - Event Loop Scheduler
// ============================================================================

// EventLoopScheduler 所有任务在同一个专用goroutine上按时间顺序执行
type EventLoopScheduler struct {
	mu       sync.Mutex
	queue    scheduledQueue
	started  bool
	disposed bool
	wake     chan struct{}
	done     chan struct{}
}

// NewEventLoopScheduler 创建事件循环调度器，goroutine 在第一次调度时启动
func NewEventLoopScheduler() *EventLoopScheduler {
	return &EventLoopScheduler{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *EventLoopScheduler) Now() time.Time { return time.Now() }

// Schedule 调度任务
func (s *EventLoopScheduler) Schedule(action func()) Disposable {
	return s.ScheduleAt(action, time.Now())
}

// ScheduleWithDelay 延迟调度任务
func (s *EventLoopScheduler) ScheduleWithDelay(action func(), delay time.Duration) Disposable {
	return s.ScheduleAt(action, time.Now().Add(delay))
}

// ScheduleAt 在指定时刻调度任务
func (s *EventLoopScheduler) ScheduleAt(action func(), dueTime time.Time) Disposable {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return EmptyDisposable()
	}
	item := s.queue.enqueue(dueTime.UnixNano(), action)
	if !s.started {
		s.started = true
		go s.run()
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return item
}

func (s *EventLoopScheduler) run() {
	for {
		s.mu.Lock()
		if s.disposed {
			s.mu.Unlock()
			return
		}
		next := s.queue.peek()
		wait := time.Duration(-1)
		if next != nil {
			wait = time.Until(time.Unix(0, next.due))
			if wait <= 0 {
				heap.Pop(&s.queue)
				s.mu.Unlock()
				runSafely("event-loop", next.invoke)
				continue
			}
		}
		s.mu.Unlock()

		if wait < 0 {
			select {
			case <-s.wake:
			case <-s.done:
				return
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wake:
		case <-s.done:
			timer.Stop()
			return
		}
		timer.Stop()
	}
}

// Dispose 停止事件循环，未执行的任务被丢弃
func (s *EventLoopScheduler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.queue.items = nil
	close(s.done)
}

// IsDisposed 检查是否已释放
func (s *EventLoopScheduler) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// ============================================================================
// 默认调度器
// ============================================================================

var (
	// Immediate 立即调度器实例
	Immediate Scheduler = NewImmediateScheduler()

	// CurrentThread 当前线程调度器实例
	CurrentThread = NewCurrentThreadScheduler()

	// NewThread 新线程调度器实例
	NewThread Scheduler = NewNewThreadScheduler()

	defaultThreadPool = sync.OnceValue(func() *ThreadPoolScheduler {
		return NewThreadPoolScheduler(GlobalConfig().ThreadPoolWorkers)
	})
)

// ThreadPool 返回进程级线程池调度器，首次调用时创建
func ThreadPool() *ThreadPoolScheduler {
	return defaultThreadPool()
}

// ============================================================================
// 调度器辅助函数
// ============================================================================

// ScheduleRecursive 递归调度：action 调用 self 再次调度自身，
// 每次递归都经由调度器排队，而不是直接递归调用。
func ScheduleRecursive(scheduler Scheduler, action func(self func())) Disposable {
	group := NewCompositeDisposable()

	var run func()
	self := func() {
		d := NewSingleAssignmentDisposable()
		group.Add(d)
		d.Set(scheduler.Schedule(func() {
			group.Remove(d)
			run()
		}))
	}
	run = func() { action(self) }

	self()
	return group
}

// ScheduleRecursiveWithDelay 带延迟的递归调度，self 参数为下一次的延迟
func ScheduleRecursiveWithDelay(scheduler Scheduler, delay time.Duration, action func(self func(time.Duration))) Disposable {
	group := NewCompositeDisposable()

	var run func()
	self := func(next time.Duration) {
		d := NewSingleAssignmentDisposable()
		group.Add(d)
		d.Set(scheduler.ScheduleWithDelay(func() {
			group.Remove(d)
			run()
		}, next))
	}
	run = func() { action(self) }

	self(delay)
	return group
}

// SchedulePeriodic 周期调度任务；到期时间按起点累加，不随执行时间漂移
func SchedulePeriodic(scheduler Scheduler, period time.Duration, action func()) Disposable {
	if period <= 0 {
		argumentOutOfRange("period", period)
	}

	serial := NewSerialDisposable()
	due := scheduler.Now().Add(period)

	var tick func()
	tick = func() {
		action()
		due = due.Add(period)
		serial.Set(scheduler.ScheduleAt(tick, due))
	}
	serial.Set(scheduler.ScheduleAt(tick, due))

	return serial
}

// ScheduleOnce 一次性调度任务
func ScheduleOnce(scheduler Scheduler, action func(), delay time.Duration) Disposable {
	return scheduler.ScheduleWithDelay(action, delay)
}

// ScheduleWithContext 带上下文调度任务，上下文取消后任务不再执行
func ScheduleWithContext(ctx context.Context, scheduler Scheduler, action func()) Disposable {
	d := scheduler.Schedule(func() {
		select {
		case <-ctx.Done():
			return
		default:
			action()
		}
	})

	stop := context.AfterFunc(ctx, d.Dispose)
	return NewBaseDisposable(func() {
		stop()
		d.Dispose()
	})
}

// ============================================================================
// 调度器性能监控
// ============================================================================

// SchedulerMetrics 调度器性能指标
type SchedulerMetrics struct {
	TasksScheduled int64
	TasksCompleted int64
	TasksFailed    int64
}

// MonitoredScheduler 带监控的调度器包装器
type MonitoredScheduler struct {
	scheduler Scheduler
	scheduled atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewMonitoredScheduler 创建带监控的调度器
func NewMonitoredScheduler(scheduler Scheduler) *MonitoredScheduler {
	return &MonitoredScheduler{scheduler: scheduler}
}

func (s *MonitoredScheduler) Now() time.Time { return s.scheduler.Now() }

// Schedule 调度任务并记录指标
func (s *MonitoredScheduler) Schedule(action func()) Disposable {
	return s.scheduler.Schedule(s.wrap(action))
}

// ScheduleWithDelay 延迟调度任务并记录指标
func (s *MonitoredScheduler) ScheduleWithDelay(action func(), delay time.Duration) Disposable {
	return s.scheduler.ScheduleWithDelay(s.wrap(action), delay)
}

// ScheduleAt 在指定时刻调度任务并记录指标
func (s *MonitoredScheduler) ScheduleAt(action func(), dueTime time.Time) Disposable {
	return s.scheduler.ScheduleAt(s.wrap(action), dueTime)
}

func (s *MonitoredScheduler) wrap(action func()) func() {
	s.scheduled.Add(1)
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.failed.Add(1)
				panic(r)
			}
			s.completed.Add(1)
		}()
		action()
	}
}

// Metrics 获取调度器指标
func (s *MonitoredScheduler) Metrics() SchedulerMetrics {
	return SchedulerMetrics{
		TasksScheduled: s.scheduled.Load(),
		TasksCompleted: s.completed.Load(),
		TasksFailed:    s.failed.Load(),
	}
}
