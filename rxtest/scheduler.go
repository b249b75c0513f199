package rxtest

import (
	rxgo "github.com/xinjiayu/rxgo/v2"
)

// 默认的测试时间点
const (
	// Created 创建被测Observable的时刻
	Created int64 = 100
	// Subscribed 订阅的时刻
	Subscribed int64 = 200
	// Disposed 取消订阅的时刻
	Disposed int64 = 1000
)

// TestScheduler 测试调度器：到期时间不晚于当前时钟的动作在下一个tick执行
type TestScheduler struct {
	*rxgo.VirtualTimeScheduler
}

// NewTestScheduler 创建测试调度器
func NewTestScheduler() *TestScheduler {
	return &TestScheduler{
		VirtualTimeScheduler: rxgo.NewVirtualTimeScheduler(rxgo.WithPastDueDelay(1)),
	}
}

// Start 在 Created 创建、Subscribed 订阅、Disposed 取消订阅，运行调度器到 Disposed 并返回记录
func Start[T any](s *TestScheduler, create func() rxgo.Observable[T]) *TestableObserver[T] {
	return StartWithTiming(s, create, Created, Subscribed, Disposed)
}

// StartWithDisposed 使用自定义取消订阅时刻
func StartWithDisposed[T any](s *TestScheduler, create func() rxgo.Observable[T], disposed int64) *TestableObserver[T] {
	return StartWithTiming(s, create, Created, Subscribed, disposed)
}

// StartWithTiming 使用自定义的创建、订阅、取消订阅时刻；
// 调度器只运行到 disposed，之后的动作（例如没有取消的周期任务）留在队列中
func StartWithTiming[T any](s *TestScheduler, create func() rxgo.Observable[T], created, subscribed, disposed int64) *TestableObserver[T] {
	var (
		source       rxgo.Observable[T]
		subscription rxgo.Disposable
	)
	observer := CreateObserver[T](s)

	s.ScheduleAbsolute(created, func() {
		source = create()
	})
	s.ScheduleAbsolute(subscribed, func() {
		subscription = source.Subscribe(observer)
	})
	s.ScheduleAbsolute(disposed, func() {
		subscription.Dispose()
	})

	s.StartUntil(disposed)
	return observer
}
