// ConnectableObservable implementation for RxGo
// 实现ConnectableObservable，通过Subject共享一个上游订阅，支持多播
package rxgo

import (
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/xinjiayu/rxgo/v2/internal/rxlog"
)

// ConnectableObservable 可连接的Observable：订阅只挂到Subject上，Connect 时才订阅源
type ConnectableObservable[T any] interface {
	Observable[T]
	// Connect 连接到源；已连接时返回同一个连接，返回值为 *Connection
	Connect() Disposable
}

// ============================================================================
// 连接
// ============================================================================

// Connection 一次连接，释放后断开Subject与源的订阅
type Connection struct {
	id           string
	subscription *SingleAssignmentDisposable
	release      func(*Connection)
	disposed     atomic.Bool
}

// ID 连接标识，每次新连接都不同
func (c *Connection) ID() string { return c.id }

// Dispose 断开连接
func (c *Connection) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	c.release(c)
	c.subscription.Dispose()
	rxlog.Debug("connectable disconnected", "connection", c.id)
}

// IsDisposed 检查是否已断开
func (c *Connection) IsDisposed() bool { return c.disposed.Load() }

// ============================================================================
// ConnectableObservable 实现
// ============================================================================

// connectableObservable ConnectableObservable的核心实现
type connectableObservable[T any] struct {
	source     Observable[T]
	subject    Subject[T]
	mu         sync.Mutex
	connection *Connection
}

// Multicast 使用指定Subject创建可连接的Observable
func Multicast[T any](source Observable[T], subject Subject[T]) ConnectableObservable[T] {
	if source == nil {
		argumentNil("source")
	}
	if subject == nil {
		argumentNil("subject")
	}
	return &connectableObservable[T]{
		source:  AsObservable(source),
		subject: subject,
	}
}

// Subscribe 订阅观察者（挂到Subject上）
func (co *connectableObservable[T]) Subscribe(observer Observer[T]) Disposable {
	return co.subject.Subscribe(observer)
}

// Connect 开始发射数据给订阅者
func (co *connectableObservable[T]) Connect() Disposable {
	co.mu.Lock()
	if co.connection != nil {
		conn := co.connection
		co.mu.Unlock()
		return conn
	}
	conn := &Connection{
		id:           gonanoid.Must(),
		subscription: NewSingleAssignmentDisposable(),
		release:      co.release,
	}
	co.connection = conn
	co.mu.Unlock()

	rxlog.Debug("connectable connected", "connection", conn.id)
	conn.subscription.Set(subscribeDetached(func() Disposable {
		return co.source.Subscribe(co.subject)
	}))
	return conn
}

func (co *connectableObservable[T]) release(conn *Connection) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.connection == conn {
		co.connection = nil
	}
}

// Publish 使用PublishSubject多播
func Publish[T any](source Observable[T]) ConnectableObservable[T] {
	return Multicast[T](source, NewPublishSubject[T]())
}

// PublishValue 使用BehaviorSubject多播，订阅者先收到最近的值
func PublishValue[T any](source Observable[T], initialValue T) ConnectableObservable[T] {
	return Multicast[T](source, NewBehaviorSubject(initialValue))
}

// PublishLast 使用AsyncSubject多播，只发送最后一个值，并重放给终止后的订阅者
func PublishLast[T any](source Observable[T]) ConnectableObservable[T] {
	return Multicast[T](source, NewAsyncSubject[T]())
}

// Replay 使用ReplaySubject多播
func Replay[T any](source Observable[T], bufferSize int, window time.Duration, scheduler Scheduler) ConnectableObservable[T] {
	return Multicast[T](source, NewReplaySubjectWithWindow[T](bufferSize, window, scheduler))
}

// MulticastWithSelector 每次订阅创建新的Subject，selector 定义共享源上的查询，
// 查询订阅后立即连接
func MulticastWithSelector[T, R any](source Observable[T], subjectFactory func() Subject[T], selector func(Observable[T]) Observable[R]) Observable[R] {
	if source == nil {
		argumentNil("source")
	}
	if subjectFactory == nil {
		argumentNil("subjectFactory")
	}
	if selector == nil {
		argumentNil("selector")
	}

	return Create(func(observer Observer[R]) Disposable {
		connectable := Multicast(source, subjectFactory())
		subscription := selector(connectable).Subscribe(observer)
		connection := connectable.Connect()
		return NewCompositeDisposable(subscription, connection)
	})
}

// ============================================================================
// 自动连接
// ============================================================================

// refCountObservable 第一个订阅者到来时连接，最后一个离开时断开
type refCountObservable[T any] struct {
	source     ConnectableObservable[T]
	mu         sync.Mutex
	count      int
	connection *SingleAssignmentDisposable
}

// RefCount 返回一个自动连接/断开的Observable
func RefCount[T any](source ConnectableObservable[T]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	rc := &refCountObservable[T]{source: source}
	return Create(rc.subscribe)
}

func (rc *refCountObservable[T]) subscribe(observer Observer[T]) Disposable {
	subscription := rc.source.Subscribe(observer)

	rc.mu.Lock()
	rc.count++
	var connection *SingleAssignmentDisposable
	if rc.count == 1 {
		connection = NewSingleAssignmentDisposable()
		rc.connection = connection
	}
	rc.mu.Unlock()

	if connection != nil {
		connection.Set(rc.source.Connect())
	}

	return NewBaseDisposable(func() {
		subscription.Dispose()

		rc.mu.Lock()
		rc.count--
		var last Disposable
		if rc.count == 0 {
			last = rc.connection
			rc.connection = nil
		}
		rc.mu.Unlock()

		if last != nil {
			last.Dispose()
		}
	})
}

// AutoConnect 当有指定数量的订阅者时自动连接，之后不再断开；
// subscriberCount<=0 时立即连接。onConnect 可为nil，用于获取连接以便手动断开
func AutoConnect[T any](source ConnectableObservable[T], subscriberCount int, onConnect func(Disposable)) Observable[T] {
	if source == nil {
		argumentNil("source")
	}

	connect := func() {
		connection := source.Connect()
		if onConnect != nil {
			onConnect(connection)
		}
	}

	if subscriberCount <= 0 {
		connect()
		return source
	}

	var count atomic.Int64
	return Create(func(observer Observer[T]) Disposable {
		subscription := source.Subscribe(observer)
		if count.Add(1) == int64(subscriberCount) {
			connect()
		}
		return subscription
	})
}
