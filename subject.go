// Subject implementations for RxGo
// 实现Subject系统，包括PublishSubject、BehaviorSubject、ReplaySubject、AsyncSubject
package rxgo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"
)

// Subject 既是Observer又是Observable，用于多播
type Subject[T any] interface {
	Observer[T]
	Observable[T]
	// HasObservers 是否有订阅者
	HasObservers() bool
	// Dispose 释放主题，移除所有订阅者
	Dispose()
	// IsDisposed 检查是否已释放
	IsDisposed() bool
}

// ============================================================================
// 订阅者列表
// ============================================================================

// subjectObserver 订阅者条目，id 单调递增，active 为false后不再投递
type subjectObserver[T any] struct {
	id       uint64
	observer Observer[T]
	active   atomic.Bool
}

// deliveryGate 串行化一个Subject的所有投递：其他goroutine上的生产者阻塞等待，
// 同一goroutine在投递过程中重入时直接投递
type deliveryGate struct {
	mu    sync.Mutex
	owner atomic.Int64
}

func (g *deliveryGate) enter() (exit func()) {
	gid := goid.Get()
	if g.owner.Load() == gid {
		return func() {}
	}
	g.mu.Lock()
	g.owner.Store(gid)
	return func() {
		g.owner.Store(0)
		g.mu.Unlock()
	}
}

// subjectCore 所有Subject共享的订阅者列表与终止状态。
// observers 是不可变快照，修改时复制；投递在 gate 内、mu 外进行。
type subjectCore[T any] struct {
	gate      deliveryGate
	mu        sync.Mutex
	observers []*subjectObserver[T]
	nextID    uint64
	terminal  *Notification[T]
	disposed  bool
}

func (c *subjectCore[T]) addLocked(observer Observer[T]) *subjectObserver[T] {
	c.nextID++
	entry := &subjectObserver[T]{id: c.nextID, observer: observer}
	entry.active.Store(true)

	observers := make([]*subjectObserver[T], len(c.observers), len(c.observers)+1)
	copy(observers, c.observers)
	c.observers = append(observers, entry)
	return entry
}

func (c *subjectCore[T]) remove(entry *subjectObserver[T]) {
	entry.active.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.observers {
		if o.id == entry.id {
			observers := make([]*subjectObserver[T], 0, len(c.observers)-1)
			observers = append(observers, c.observers[:i]...)
			c.observers = append(observers, c.observers[i+1:]...)
			return
		}
	}
}

func (c *subjectCore[T]) subscription(entry *subjectObserver[T]) Disposable {
	return NewBaseDisposable(func() { c.remove(entry) })
}

// snapshot 当前订阅者；终止或释放后返回nil
func (c *subjectCore[T]) snapshot() []*subjectObserver[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminal != nil || c.disposed {
		return nil
	}
	return c.observers
}

// terminateLocked 记录终止通知并取出订阅者；已终止时返回false
func (c *subjectCore[T]) terminateLocked(n Notification[T]) ([]*subjectObserver[T], bool) {
	if c.terminal != nil || c.disposed {
		return nil, false
	}
	c.terminal = &n
	observers := c.observers
	c.observers = nil
	return observers, true
}

func (c *subjectCore[T]) hasObservers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers) > 0
}

func (c *subjectCore[T]) observerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}

func (c *subjectCore[T]) dispose() {
	c.mu.Lock()
	observers := c.observers
	c.disposed = true
	c.observers = nil
	c.mu.Unlock()

	for _, o := range observers {
		o.active.Store(false)
	}
}

func (c *subjectCore[T]) isDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func deliverNext[T any](observers []*subjectObserver[T], value T) {
	for _, o := range observers {
		if o.active.Load() {
			o.observer.OnNext(value)
		}
	}
}

func deliverTerminal[T any](observers []*subjectObserver[T], n Notification[T]) {
	for _, o := range observers {
		if o.active.CompareAndSwap(true, false) {
			n.Accept(o.observer)
		}
	}
}

// ============================================================================
// PublishSubject - 发布主题
// ============================================================================

// PublishSubject 发布主题，只向当前订阅者发送新的值
type PublishSubject[T any] struct {
	core subjectCore[T]
}

// NewPublishSubject 创建新的发布主题
func NewPublishSubject[T any]() *PublishSubject[T] {
	return &PublishSubject[T]{}
}

// Subscribe 订阅观察者；已终止时立即收到终止通知
func (ps *PublishSubject[T]) Subscribe(observer Observer[T]) Disposable {
	if observer == nil {
		argumentNil("observer")
	}

	c := &ps.core
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return EmptyDisposable()
	}
	if c.terminal != nil {
		n := *c.terminal
		c.mu.Unlock()
		n.Accept(observer)
		return EmptyDisposable()
	}
	entry := c.addLocked(observer)
	c.mu.Unlock()

	return c.subscription(entry)
}

// OnNext 发送下一个值
func (ps *PublishSubject[T]) OnNext(value T) {
	defer ps.core.gate.enter()()
	deliverNext(ps.core.snapshot(), value)
}

// OnError 发送错误
func (ps *PublishSubject[T]) OnError(err error) {
	ps.terminate(ErrorNotification[T](err))
}

// OnCompleted 发送完成
func (ps *PublishSubject[T]) OnCompleted() {
	ps.terminate(CompletedNotification[T]())
}

func (ps *PublishSubject[T]) terminate(n Notification[T]) {
	defer ps.core.gate.enter()()

	ps.core.mu.Lock()
	observers, ok := ps.core.terminateLocked(n)
	ps.core.mu.Unlock()
	if ok {
		deliverTerminal(observers, n)
	}
}

// HasObservers 是否有观察者
func (ps *PublishSubject[T]) HasObservers() bool { return ps.core.hasObservers() }

// ObserverCount 获取观察者数量
func (ps *PublishSubject[T]) ObserverCount() int { return ps.core.observerCount() }

// Dispose 释放资源
func (ps *PublishSubject[T]) Dispose() { ps.core.dispose() }

// IsDisposed 检查是否已释放
func (ps *PublishSubject[T]) IsDisposed() bool { return ps.core.isDisposed() }

// ============================================================================
// BehaviorSubject - 行为主题
// ============================================================================

// BehaviorSubject 行为主题，新订阅者先收到当前值
type BehaviorSubject[T any] struct {
	core  subjectCore[T]
	value T
}

// NewBehaviorSubject 创建新的行为主题
func NewBehaviorSubject[T any](initialValue T) *BehaviorSubject[T] {
	return &BehaviorSubject[T]{value: initialValue}
}

// Subscribe 订阅观察者，先发送当前值；发送完之前其他生产者的投递等待
func (bs *BehaviorSubject[T]) Subscribe(observer Observer[T]) Disposable {
	if observer == nil {
		argumentNil("observer")
	}

	c := &bs.core
	defer c.gate.enter()()
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return EmptyDisposable()
	}
	if c.terminal != nil {
		n := *c.terminal
		c.mu.Unlock()
		n.Accept(observer)
		return EmptyDisposable()
	}
	entry := c.addLocked(observer)
	value := bs.value
	c.mu.Unlock()

	if entry.active.Load() {
		observer.OnNext(value)
	}
	return c.subscription(entry)
}

// OnNext 更新当前值并发送
func (bs *BehaviorSubject[T]) OnNext(value T) {
	c := &bs.core
	defer c.gate.enter()()
	c.mu.Lock()
	if c.terminal != nil || c.disposed {
		c.mu.Unlock()
		return
	}
	bs.value = value
	observers := c.observers
	c.mu.Unlock()

	deliverNext(observers, value)
}

// OnError 发送错误
func (bs *BehaviorSubject[T]) OnError(err error) {
	bs.terminate(ErrorNotification[T](err))
}

// OnCompleted 发送完成
func (bs *BehaviorSubject[T]) OnCompleted() {
	bs.terminate(CompletedNotification[T]())
}

func (bs *BehaviorSubject[T]) terminate(n Notification[T]) {
	defer bs.core.gate.enter()()

	bs.core.mu.Lock()
	observers, ok := bs.core.terminateLocked(n)
	bs.core.mu.Unlock()
	if ok {
		deliverTerminal(observers, n)
	}
}

// GetValue 获取当前值；以错误终止或已释放时返回false
func (bs *BehaviorSubject[T]) GetValue() (T, bool) {
	bs.core.mu.Lock()
	defer bs.core.mu.Unlock()
	if bs.core.disposed || (bs.core.terminal != nil && bs.core.terminal.Kind() == KindError) {
		var zero T
		return zero, false
	}
	return bs.value, true
}

// HasObservers 是否有观察者
func (bs *BehaviorSubject[T]) HasObservers() bool { return bs.core.hasObservers() }

// Dispose 释放资源
func (bs *BehaviorSubject[T]) Dispose() { bs.core.dispose() }

// IsDisposed 检查是否已释放
func (bs *BehaviorSubject[T]) IsDisposed() bool { return bs.core.isDisposed() }

// ============================================================================
// ReplaySubject - 重放主题
// ============================================================================

type replayEntry[T any] struct {
	at    time.Time
	value T
}

// ReplaySubject 重放主题，向新订阅者重放缓冲的值
type ReplaySubject[T any] struct {
	core       subjectCore[T]
	bufferSize int
	window     time.Duration
	scheduler  Scheduler
	buffer     []replayEntry[T]
}

// NewReplaySubject 创建新的重放主题，bufferSize<=0 表示不限数量
func NewReplaySubject[T any](bufferSize int) *ReplaySubject[T] {
	return NewReplaySubjectWithWindow[T](bufferSize, 0, nil)
}

// NewReplaySubjectWithWindow 创建带时间窗口的重放主题，
// window<=0 表示不限时间，scheduler 为nil时使用 CurrentThread 的时钟
func NewReplaySubjectWithWindow[T any](bufferSize int, window time.Duration, scheduler Scheduler) *ReplaySubject[T] {
	if scheduler == nil {
		scheduler = CurrentThread
	}
	return &ReplaySubject[T]{
		bufferSize: bufferSize,
		window:     window,
		scheduler:  scheduler,
	}
}

// Subscribe 订阅观察者，先重放缓冲的值；重放完之前其他生产者的投递等待
func (rs *ReplaySubject[T]) Subscribe(observer Observer[T]) Disposable {
	if observer == nil {
		argumentNil("observer")
	}

	c := &rs.core
	defer c.gate.enter()()
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return EmptyDisposable()
	}
	rs.trimLocked()
	values := make([]T, len(rs.buffer))
	for i, e := range rs.buffer {
		values[i] = e.value
	}

	if c.terminal != nil {
		n := *c.terminal
		c.mu.Unlock()
		for _, v := range values {
			observer.OnNext(v)
		}
		n.Accept(observer)
		return EmptyDisposable()
	}
	entry := c.addLocked(observer)
	c.mu.Unlock()

	for _, v := range values {
		if !entry.active.Load() {
			break
		}
		observer.OnNext(v)
	}
	return c.subscription(entry)
}

// OnNext 缓冲并发送值
func (rs *ReplaySubject[T]) OnNext(value T) {
	c := &rs.core
	defer c.gate.enter()()
	c.mu.Lock()
	if c.terminal != nil || c.disposed {
		c.mu.Unlock()
		return
	}
	rs.buffer = append(rs.buffer, replayEntry[T]{at: rs.scheduler.Now(), value: value})
	rs.trimLocked()
	observers := c.observers
	c.mu.Unlock()

	deliverNext(observers, value)
}

// OnError 发送错误
func (rs *ReplaySubject[T]) OnError(err error) {
	rs.terminate(ErrorNotification[T](err))
}

// OnCompleted 发送完成
func (rs *ReplaySubject[T]) OnCompleted() {
	rs.terminate(CompletedNotification[T]())
}

func (rs *ReplaySubject[T]) terminate(n Notification[T]) {
	defer rs.core.gate.enter()()

	rs.core.mu.Lock()
	observers, ok := rs.core.terminateLocked(n)
	rs.core.mu.Unlock()
	if ok {
		deliverTerminal(observers, n)
	}
}

func (rs *ReplaySubject[T]) trimLocked() {
	if rs.bufferSize > 0 && len(rs.buffer) > rs.bufferSize {
		rs.buffer = append(rs.buffer[:0:0], rs.buffer[len(rs.buffer)-rs.bufferSize:]...)
	}
	if rs.window > 0 {
		cutoff := rs.scheduler.Now().Add(-rs.window)
		i := 0
		for i < len(rs.buffer) && rs.buffer[i].at.Before(cutoff) {
			i++
		}
		if i > 0 {
			rs.buffer = append(rs.buffer[:0:0], rs.buffer[i:]...)
		}
	}
}

// GetBufferedValues 获取缓冲的值
func (rs *ReplaySubject[T]) GetBufferedValues() []T {
	rs.core.mu.Lock()
	defer rs.core.mu.Unlock()
	rs.trimLocked()
	values := make([]T, len(rs.buffer))
	for i, e := range rs.buffer {
		values[i] = e.value
	}
	return values
}

// HasObservers 是否有观察者
func (rs *ReplaySubject[T]) HasObservers() bool { return rs.core.hasObservers() }

// Dispose 释放资源
func (rs *ReplaySubject[T]) Dispose() {
	rs.core.dispose()
	rs.core.mu.Lock()
	rs.buffer = nil
	rs.core.mu.Unlock()
}

// IsDisposed 检查是否已释放
func (rs *ReplaySubject[T]) IsDisposed() bool { return rs.core.isDisposed() }

// ============================================================================
// AsyncSubject - 异步主题
// ============================================================================

// AsyncSubject 异步主题，只在完成时发送最后一个值
type AsyncSubject[T any] struct {
	core     subjectCore[T]
	value    T
	hasValue bool
}

// NewAsyncSubject 创建新的异步主题
func NewAsyncSubject[T any]() *AsyncSubject[T] {
	return &AsyncSubject[T]{}
}

// Subscribe 订阅观察者；已完成时立即收到最后的值和完成通知
func (as *AsyncSubject[T]) Subscribe(observer Observer[T]) Disposable {
	if observer == nil {
		argumentNil("observer")
	}

	c := &as.core
	defer c.gate.enter()()
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return EmptyDisposable()
	}
	if c.terminal != nil {
		n := *c.terminal
		value, hasValue := as.value, as.hasValue
		c.mu.Unlock()
		if n.Kind() == KindCompleted && hasValue {
			observer.OnNext(value)
		}
		n.Accept(observer)
		return EmptyDisposable()
	}
	entry := c.addLocked(observer)
	c.mu.Unlock()

	return c.subscription(entry)
}

// OnNext 保存最后一个值
func (as *AsyncSubject[T]) OnNext(value T) {
	as.core.mu.Lock()
	defer as.core.mu.Unlock()
	if as.core.terminal != nil || as.core.disposed {
		return
	}
	as.value = value
	as.hasValue = true
}

// OnError 发送错误，丢弃保存的值
func (as *AsyncSubject[T]) OnError(err error) {
	n := ErrorNotification[T](err)
	defer as.core.gate.enter()()

	as.core.mu.Lock()
	observers, ok := as.core.terminateLocked(n)
	as.core.mu.Unlock()
	if ok {
		deliverTerminal(observers, n)
	}
}

// OnCompleted 发送最后一个值（如果有）和完成
func (as *AsyncSubject[T]) OnCompleted() {
	n := CompletedNotification[T]()
	defer as.core.gate.enter()()

	as.core.mu.Lock()
	observers, ok := as.core.terminateLocked(n)
	value, hasValue := as.value, as.hasValue
	as.core.mu.Unlock()
	if !ok {
		return
	}

	if hasValue {
		deliverNext(observers, value)
	}
	deliverTerminal(observers, n)
}

// GetValue 获取最后的值，仅在成功完成后可用
func (as *AsyncSubject[T]) GetValue() (T, bool) {
	as.core.mu.Lock()
	defer as.core.mu.Unlock()
	if as.core.terminal == nil || as.core.terminal.Kind() != KindCompleted || !as.hasValue {
		var zero T
		return zero, false
	}
	return as.value, true
}

// HasObservers 是否有观察者
func (as *AsyncSubject[T]) HasObservers() bool { return as.core.hasObservers() }

// Dispose 释放资源
func (as *AsyncSubject[T]) Dispose() { as.core.dispose() }

// IsDisposed 检查是否已释放
func (as *AsyncSubject[T]) IsDisposed() bool { return as.core.isDisposed() }

var (
	_ Subject[int] = (*PublishSubject[int])(nil)
	_ Subject[int] = (*BehaviorSubject[int])(nil)
	_ Subject[int] = (*ReplaySubject[int])(nil)
	_ Subject[int] = (*AsyncSubject[int])(nil)
)
