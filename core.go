// Package rxgo provides reactive programming primitives for Go
// 基于推送协议的响应式编程核心：通知、观察者、可观察序列与订阅协议
package rxgo

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"

	"github.com/xinjiayu/rxgo/v2/internal/rxlog"
)

// ============================================================================
// 通知
// ============================================================================

// Kind 通知类型
type Kind int

const (
	// KindNext 下一个值
	KindNext Kind = iota
	// KindError 错误（终止）
	KindError
	// KindCompleted 完成（终止）
	KindCompleted
)

func (k Kind) String() string {
	switch k {
	case KindNext:
		return "OnNext"
	case KindError:
		return "OnError"
	case KindCompleted:
		return "OnCompleted"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Notification 通知，Next/Error/Completed 三选一
type Notification[T any] struct {
	kind  Kind
	value T
	err   error
}

// NextNotification 创建值通知
func NextNotification[T any](value T) Notification[T] {
	return Notification[T]{kind: KindNext, value: value}
}

// ErrorNotification 创建错误通知
func ErrorNotification[T any](err error) Notification[T] {
	return Notification[T]{kind: KindError, err: err}
}

// CompletedNotification 创建完成通知
func CompletedNotification[T any]() Notification[T] {
	return Notification[T]{kind: KindCompleted}
}

// Kind 通知类型
func (n Notification[T]) Kind() Kind { return n.kind }

// Value 值，仅 KindNext 有意义
func (n Notification[T]) Value() T { return n.value }

// Err 错误，仅 KindError 有意义
func (n Notification[T]) Err() error { return n.err }

// IsTerminal 是否是终止通知
func (n Notification[T]) IsTerminal() bool { return n.kind != KindNext }

// Accept 将通知投递给观察者
func (n Notification[T]) Accept(observer Observer[T]) {
	switch n.kind {
	case KindNext:
		observer.OnNext(n.value)
	case KindError:
		observer.OnError(n.err)
	case KindCompleted:
		observer.OnCompleted()
	}
}

func (n Notification[T]) String() string {
	switch n.kind {
	case KindNext:
		return fmt.Sprintf("OnNext(%v)", n.value)
	case KindError:
		return fmt.Sprintf("OnError(%v)", n.err)
	}
	return "OnCompleted()"
}

// ============================================================================
// 观察者与可观察序列
// ============================================================================

// Observer 观察者：OnError/OnCompleted 之后不会再收到任何通知
type Observer[T any] interface {
	OnNext(value T)
	OnError(err error)
	OnCompleted()
}

// Observable 可观察序列
type Observable[T any] interface {
	// Subscribe 订阅观察者，返回的 Disposable 用于取消订阅
	Subscribe(observer Observer[T]) Disposable
}

// ObservableFunc 函数式Observable，不附加任何协议保护
type ObservableFunc[T any] func(observer Observer[T]) Disposable

// Subscribe 订阅观察者
func (f ObservableFunc[T]) Subscribe(observer Observer[T]) Disposable {
	return f(observer)
}

// funcObserver 由回调函数组成的观察者
type funcObserver[T any] struct {
	onNext      func(T)
	onError     func(error)
	onCompleted func()
}

// NewObserver 使用回调函数创建观察者，nil 回调被忽略
func NewObserver[T any](onNext func(T), onError func(error), onCompleted func()) Observer[T] {
	return &funcObserver[T]{onNext: onNext, onError: onError, onCompleted: onCompleted}
}

func (o *funcObserver[T]) OnNext(value T) {
	if o.onNext != nil {
		o.onNext(value)
	}
}

func (o *funcObserver[T]) OnError(err error) {
	if o.onError != nil {
		o.onError(err)
		return
	}
	rxlog.Warn("unhandled error in observer", "err", err)
}

func (o *funcObserver[T]) OnCompleted() {
	if o.onCompleted != nil {
		o.onCompleted()
	}
}

// SubscribeWithCallbacks 使用回调函数订阅
func SubscribeWithCallbacks[T any](source Observable[T], onNext func(T), onError func(error), onCompleted func()) Disposable {
	if source == nil {
		argumentNil("source")
	}
	return source.Subscribe(NewObserver(onNext, onError, onCompleted))
}

// ============================================================================
// 订阅协议
// ============================================================================

// autoDetachObserver 保证终止通知只投递一次，终止或释放后丢弃后续通知，并在终止时释放上游。
// 订阅函数返回之前上游的 Disposable 还拿不到，这段时间（订阅窗口）里直接发起的上游订阅
// 先挂在 adopted 上，下游同步终止或取消时一并释放。
type autoDetachObserver[T any] struct {
	observer Observer[T]
	upstream *SingleAssignmentDisposable
	stopped  atomic.Bool

	parent     subscribeWindow
	windowMu   sync.Mutex
	adopted    map[Disposable]struct{}
	open       atomic.Bool
	delivering atomic.Int32
}

func newAutoDetachObserver[T any](observer Observer[T]) *autoDetachObserver[T] {
	return &autoDetachObserver[T]{
		observer: observer,
		upstream: NewSingleAssignmentDisposable(),
	}
}

func (a *autoDetachObserver[T]) OnNext(value T) {
	if a.stopped.Load() {
		return
	}
	if a.open.Load() {
		a.delivering.Add(1)
		defer a.delivering.Add(-1)
	}
	a.observer.OnNext(value)
}

func (a *autoDetachObserver[T]) OnError(err error) {
	if !a.stopped.CompareAndSwap(false, true) {
		return
	}
	defer a.release()
	if a.open.Load() {
		a.delivering.Add(1)
		defer a.delivering.Add(-1)
	}
	a.observer.OnError(err)
}

func (a *autoDetachObserver[T]) OnCompleted() {
	if !a.stopped.CompareAndSwap(false, true) {
		return
	}
	defer a.release()
	if a.open.Load() {
		a.delivering.Add(1)
		defer a.delivering.Add(-1)
	}
	a.observer.OnCompleted()
}

// Dispose 停止投递并释放上游
func (a *autoDetachObserver[T]) Dispose() {
	a.stopped.Store(true)
	a.release()
}

// IsDisposed 检查是否已释放
func (a *autoDetachObserver[T]) IsDisposed() bool {
	return a.upstream.IsDisposed()
}

func (a *autoDetachObserver[T]) release() {
	a.upstream.Dispose()

	a.windowMu.Lock()
	adopted := a.adopted
	a.adopted = nil
	parent := a.parent
	a.windowMu.Unlock()
	for d := range adopted {
		d.Dispose()
	}

	if parent != nil {
		parent.forget(a)
	}
}

// run 在订阅窗口内执行订阅函数
func (a *autoDetachObserver[T]) run(subscribe func(observer Observer[T]) Disposable) {
	a.open.Store(true)
	pop := pushSubscribeWindow(a)
	upstream := func() Disposable {
		defer pop()
		return subscribe(a)
	}()

	a.windowMu.Lock()
	a.open.Store(false)
	a.adopted = nil
	a.windowMu.Unlock()

	a.upstream.Set(upstream)
}

// adopt 接管订阅窗口内直接发起的上游订阅；
// 正在向下游投递时发起的订阅不属于这个窗口，返回false
func (a *autoDetachObserver[T]) adopt(d Disposable) bool {
	if a.delivering.Load() > 0 {
		return false
	}

	a.windowMu.Lock()
	if !a.open.Load() {
		a.windowMu.Unlock()
		return false
	}
	if a.stopped.Load() {
		a.windowMu.Unlock()
		d.Dispose()
		return true
	}
	if a.adopted == nil {
		a.adopted = make(map[Disposable]struct{})
	}
	a.adopted[d] = struct{}{}
	a.windowMu.Unlock()
	return true
}

func (a *autoDetachObserver[T]) forget(d Disposable) {
	a.windowMu.Lock()
	delete(a.adopted, d)
	a.windowMu.Unlock()
}

// ============================================================================
// 订阅窗口
// ============================================================================

// subscribeWindow 正在执行订阅函数的订阅
type subscribeWindow interface {
	adopt(d Disposable) bool
	forget(d Disposable)
}

// subscribeWindows 每个goroutine上嵌套执行中的订阅窗口，栈只被所属goroutine修改
var subscribeWindows = struct {
	sync.Mutex
	stacks map[int64]*[]subscribeWindow
}{stacks: make(map[int64]*[]subscribeWindow)}

func pushSubscribeWindow(w subscribeWindow) (pop func()) {
	gid := goid.Get()

	subscribeWindows.Lock()
	stack, ok := subscribeWindows.stacks[gid]
	if !ok {
		stack = new([]subscribeWindow)
		subscribeWindows.stacks[gid] = stack
	}
	*stack = append(*stack, w)
	subscribeWindows.Unlock()

	return func() {
		subscribeWindows.Lock()
		*stack = (*stack)[:len(*stack)-1]
		if len(*stack) == 0 {
			delete(subscribeWindows.stacks, gid)
		}
		subscribeWindows.Unlock()
	}
}

// adoptBySubscribeWindow 由当前goroutine上最内层、没有在投递通知的订阅窗口接管 d。
// 例如 FlatMap 在外层源投递值时订阅内层源，内层订阅由 FlatMap 的窗口接管。
func adoptBySubscribeWindow(d Disposable) subscribeWindow {
	gid := goid.Get()

	subscribeWindows.Lock()
	stack, ok := subscribeWindows.stacks[gid]
	var windows []subscribeWindow
	if ok {
		windows = *stack
	}
	subscribeWindows.Unlock()

	for i := len(windows) - 1; i >= 0; i-- {
		if windows[i].adopt(d) {
			return windows[i]
		}
	}
	return nil
}

// detachedWindow 隔断外层订阅窗口：其中发起的订阅不归任何外层订阅者所有
type detachedWindow struct{}

func (detachedWindow) adopt(Disposable) bool { return true }
func (detachedWindow) forget(Disposable)     {}

// subscribeDetached 在外层订阅窗口之外订阅，用于多个订阅者共享的连接和独立的消费者
func subscribeDetached(subscribe func() Disposable) Disposable {
	pop := pushSubscribeWindow(detachedWindow{})
	defer pop()
	return subscribe()
}

// observerStopped 观察者是否已经不再接收通知，例如下游已经终止或取消
func observerStopped[T any](observer Observer[T]) bool {
	d, ok := observer.(Disposable)
	return ok && d.IsDisposed()
}

// createObservable Create 返回的Observable
type createObservable[T any] struct {
	subscribe func(observer Observer[T]) Disposable
}

// Create 从订阅函数创建Observable。
// 传给 subscribe 的观察者遵守推送协议：终止后的通知被丢弃，终止时释放 subscribe 返回的资源，
// 即使终止发生在 subscribe 返回之前。
func Create[T any](subscribe func(observer Observer[T]) Disposable) Observable[T] {
	if subscribe == nil {
		argumentNil("subscribe")
	}
	return &createObservable[T]{subscribe: subscribe}
}

// Subscribe 订阅观察者
func (c *createObservable[T]) Subscribe(observer Observer[T]) Disposable {
	if observer == nil {
		argumentNil("observer")
	}
	ad := newAutoDetachObserver(observer)
	// 最外层订阅放到蹦床上执行，使订阅在递归调度的发射开始前完成赋值
	if CurrentThread.ScheduleRequired() {
		CurrentThread.Schedule(func() {
			ad.run(c.subscribe)
		})
		return ad
	}
	if parent := adoptBySubscribeWindow(ad); parent != nil {
		ad.windowMu.Lock()
		ad.parent = parent
		ad.windowMu.Unlock()
	}
	ad.run(c.subscribe)
	return ad
}

// ============================================================================
// 串行投递
// ============================================================================

// serializedObserver 把多个来源的通知排成一个序列投递给下游。
// 同一时刻只有一个goroutine在投递，并发或重入的通知排队后由它依次转发，转发时不持有任何锁；
// 终止通知之后的通知被丢弃。
type serializedObserver[T any] struct {
	observer Observer[T]
	mu       sync.Mutex
	queue    []Notification[T]
	emitting bool
	done     bool
}

func newSerializedObserver[T any](observer Observer[T]) *serializedObserver[T] {
	return &serializedObserver[T]{observer: observer}
}

// push 只排队不投递，可以在调用者自己的锁内调用，释放锁后再调用 drain
func (s *serializedObserver[T]) push(n Notification[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	if n.IsTerminal() {
		s.done = true
	}
	s.queue = append(s.queue, n)
}

// drain 投递排队的通知；已经有goroutine在投递时直接返回，由它继续投递
func (s *serializedObserver[T]) drain() {
	s.mu.Lock()
	if s.emitting {
		s.mu.Unlock()
		return
	}
	s.emitting = true

	for {
		if len(s.queue) == 0 {
			s.emitting = false
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, n := range batch {
			n.Accept(s.observer)
		}
		s.mu.Lock()
	}
}

func (s *serializedObserver[T]) OnNext(value T) {
	s.push(NextNotification(value))
	s.drain()
}

func (s *serializedObserver[T]) OnError(err error) {
	s.push(ErrorNotification[T](err))
	s.drain()
}

func (s *serializedObserver[T]) OnCompleted() {
	s.push(CompletedNotification[T]())
	s.drain()
}

// AsObservable 隐藏源的具体类型（例如Subject），并附加协议保护
func AsObservable[T any](source Observable[T]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	return Create(func(observer Observer[T]) Disposable {
		return source.Subscribe(observer)
	})
}
