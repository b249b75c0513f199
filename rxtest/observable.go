package rxtest

import (
	"sync"

	rxgo "github.com/xinjiayu/rxgo/v2"
)

// ============================================================================
// 记录观察者
// ============================================================================

// TestableObserver 按虚拟时间记录收到的所有通知
type TestableObserver[T any] struct {
	scheduler *TestScheduler
	mu        sync.Mutex
	messages  []Recorded[T]
}

// CreateObserver 创建记录观察者
func CreateObserver[T any](s *TestScheduler) *TestableObserver[T] {
	return &TestableObserver[T]{scheduler: s}
}

func (o *TestableObserver[T]) record(n rxgo.Notification[T]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, Recorded[T]{Time: o.scheduler.Clock(), Value: n})
}

func (o *TestableObserver[T]) OnNext(value T) { o.record(rxgo.NextNotification(value)) }

func (o *TestableObserver[T]) OnError(err error) { o.record(rxgo.ErrorNotification[T](err)) }

func (o *TestableObserver[T]) OnCompleted() { o.record(rxgo.CompletedNotification[T]()) }

// Messages 收到的通知
func (o *TestableObserver[T]) Messages() []Recorded[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Recorded[T](nil), o.messages...)
}

// ============================================================================
// 订阅记录
// ============================================================================

// subscriptionLog 记录订阅区间
type subscriptionLog struct {
	mu            sync.Mutex
	subscriptions []Subscription
}

func (l *subscriptionLog) open(now int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscriptions = append(l.subscriptions, Subscription{Subscribe: now, Unsubscribe: Infinite})
	return len(l.subscriptions) - 1
}

func (l *subscriptionLog) close(index int, now int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscriptions[index].Unsubscribe = now
}

func (l *subscriptionLog) list() []Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Subscription(nil), l.subscriptions...)
}

// ============================================================================
// 热Observable
// ============================================================================

type hotObserver[T any] struct {
	observer rxgo.Observer[T]
	active   bool
}

// HotObservable 按绝对时间发射脚本中的通知，与订阅者何时到达无关
type HotObservable[T any] struct {
	scheduler *TestScheduler
	messages  []Recorded[T]
	log       subscriptionLog
	mu        sync.Mutex
	observers []*hotObserver[T]
}

// CreateHotObservable 创建热Observable，创建时即按绝对时间调度所有通知
func CreateHotObservable[T any](s *TestScheduler, messages ...Recorded[T]) *HotObservable[T] {
	h := &HotObservable[T]{
		scheduler: s,
		messages:  messages,
	}
	for _, m := range messages {
		n := m.Value
		s.ScheduleAbsolute(m.Time, func() {
			h.mu.Lock()
			observers := append([]*hotObserver[T](nil), h.observers...)
			h.mu.Unlock()

			for _, o := range observers {
				h.mu.Lock()
				active := o.active
				h.mu.Unlock()
				if active {
					n.Accept(o.observer)
				}
			}
		})
	}
	return h
}

// Subscribe 订阅，记录订阅区间
func (h *HotObservable[T]) Subscribe(observer rxgo.Observer[T]) rxgo.Disposable {
	entry := &hotObserver[T]{observer: observer, active: true}

	h.mu.Lock()
	h.observers = append(h.observers, entry)
	h.mu.Unlock()
	index := h.log.open(h.scheduler.Clock())

	return rxgo.NewBaseDisposable(func() {
		h.mu.Lock()
		entry.active = false
		for i, o := range h.observers {
			if o == entry {
				h.observers = append(h.observers[:i:i], h.observers[i+1:]...)
				break
			}
		}
		h.mu.Unlock()
		h.log.close(index, h.scheduler.Clock())
	})
}

// Subscriptions 所有订阅区间
func (h *HotObservable[T]) Subscriptions() []Subscription { return h.log.list() }

// Messages 脚本中的通知
func (h *HotObservable[T]) Messages() []Recorded[T] { return h.messages }

// ============================================================================
// 冷Observable
// ============================================================================

// ColdObservable 每次订阅都从订阅时刻起按相对时间重放脚本
type ColdObservable[T any] struct {
	scheduler *TestScheduler
	messages  []Recorded[T]
	log       subscriptionLog
}

// CreateColdObservable 创建冷Observable
func CreateColdObservable[T any](s *TestScheduler, messages ...Recorded[T]) *ColdObservable[T] {
	return &ColdObservable[T]{
		scheduler: s,
		messages:  messages,
	}
}

// Subscribe 订阅，按相对时间调度脚本；取消订阅时取消尚未发射的通知
func (c *ColdObservable[T]) Subscribe(observer rxgo.Observer[T]) rxgo.Disposable {
	index := c.log.open(c.scheduler.Clock())

	group := rxgo.NewCompositeDisposable()
	for _, m := range c.messages {
		n := m.Value
		group.Add(c.scheduler.ScheduleRelative(m.Time, func() {
			n.Accept(observer)
		}))
	}

	return rxgo.NewBaseDisposable(func() {
		c.log.close(index, c.scheduler.Clock())
		group.Dispose()
	})
}

// Subscriptions 所有订阅区间
func (c *ColdObservable[T]) Subscriptions() []Subscription { return c.log.list() }

// Messages 脚本中的通知
func (c *ColdObservable[T]) Messages() []Recorded[T] { return c.messages }
