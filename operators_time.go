// Time-based operators for RxGo
// 时间操作符实现，包含Sample, Debounce, Throttle, Delay, Timeout, Cron等。
// 所有时间都来自调度器，在虚拟时间下结果可重复。
package rxgo

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ============================================================================
// 采样操作符
// ============================================================================

// sampleState 采样的共享状态：最近一个尚未被采样的值。
// 状态在 mu 内修改，要发射的通知排进 out，释放锁后再投递
type sampleState[T any] struct {
	mu     sync.Mutex
	out    *serializedObserver[T]
	latest T
	has    bool
	done   bool
}

func newSampleState[T any](observer Observer[T]) *sampleState[T] {
	return &sampleState[T]{out: newSerializedObserver(observer)}
}

// locked 在锁内执行 f，然后在锁外投递排队的通知
func (s *sampleState[T]) locked(f func()) {
	s.mu.Lock()
	f()
	s.mu.Unlock()
	s.out.drain()
}

// flushLocked 排队未采样的值（如果有）
func (s *sampleState[T]) flushLocked() {
	if s.has && !s.done {
		s.has = false
		s.out.push(NextNotification(s.latest))
	}
}

// failLocked 排队错误
func (s *sampleState[T]) failLocked(err error) {
	if !s.done {
		s.done = true
		s.out.push(ErrorNotification[T](err))
	}
}

func (s *sampleState[T]) sourceObserver() Observer[T] {
	return NewObserver(
		func(value T) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.latest = value
			s.has = true
		},
		func(err error) {
			s.locked(func() { s.failLocked(err) })
		},
		func() {
			s.locked(func() {
				s.flushLocked()
				if !s.done {
					s.done = true
					s.out.push(CompletedNotification[T]())
				}
			})
		},
	)
}

// Sample 每隔 period 发射自上次采样以来的最新值；源完成时先发射未采样的值再完成，
// 源出错时立即转发错误
func Sample[T any](source Observable[T], period time.Duration, scheduler Scheduler) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if period <= 0 {
		argumentOutOfRange("period", period)
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}

	return Create(func(observer Observer[T]) Disposable {
		state := newSampleState(observer)
		subscription := source.Subscribe(state.sourceObserver())
		ticker := SchedulePeriodic(scheduler, period, func() {
			state.locked(state.flushLocked)
		})
		return NewCompositeDisposable(subscription, ticker)
	})
}

// SampleWith sampler 每发出一个值就发射源的最新值。
// sampler 完成后停止采样，但源完成时仍会发射未采样的值；sampler 出错则终止
func SampleWith[T, U any](source Observable[T], sampler Observable[U]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if sampler == nil {
		argumentNil("sampler")
	}

	return Create(func(observer Observer[T]) Disposable {
		state := newSampleState(observer)
		samplerDone := false

		subscription := source.Subscribe(state.sourceObserver())
		samplerSubscription := sampler.Subscribe(NewObserver(
			func(U) {
				state.locked(func() {
					if !samplerDone {
						state.flushLocked()
					}
				})
			},
			func(err error) {
				state.locked(func() { state.failLocked(err) })
			},
			func() {
				state.mu.Lock()
				defer state.mu.Unlock()
				samplerDone = true
			},
		))
		return NewCompositeDisposable(subscription, samplerSubscription)
	})
}

// ============================================================================
// 时间操作符实现
// ============================================================================

// Debounce 防抖操作符，只有在 dueTime 内没有新值时才发射最后一个值；完成时发射待发的值
func Debounce[T any](source Observable[T], dueTime time.Duration, scheduler Scheduler) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if dueTime < 0 {
		argumentOutOfRange("dueTime", dueTime)
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}

	return Create(func(observer Observer[T]) Disposable {
		var (
			mu      sync.Mutex
			pending T
			has     bool
			id      uint64
		)
		out := newSerializedObserver(observer)
		timer := NewSerialDisposable()

		subscription := source.Subscribe(NewObserver(
			func(value T) {
				mu.Lock()
				pending = value
				has = true
				id++
				current := id
				mu.Unlock()

				timer.Set(scheduler.ScheduleWithDelay(func() {
					mu.Lock()
					if has && id == current {
						has = false
						out.push(NextNotification(pending))
					}
					mu.Unlock()
					out.drain()
				}, dueTime))
			},
			func(err error) {
				timer.Dispose()
				mu.Lock()
				has = false
				out.push(ErrorNotification[T](err))
				mu.Unlock()
				out.drain()
			},
			func() {
				timer.Dispose()
				mu.Lock()
				if has {
					has = false
					out.push(NextNotification(pending))
				}
				out.push(CompletedNotification[T]())
				mu.Unlock()
				out.drain()
			},
		))
		return NewCompositeDisposable(subscription, timer)
	})
}

// Throttle 节流操作符，发射一个值后 window 内忽略后续的值
func Throttle[T any](source Observable[T], window time.Duration, scheduler Scheduler) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}

	return Create(func(observer Observer[T]) Disposable {
		var (
			last    time.Time
			emitted bool
		)
		return source.Subscribe(NewObserver(
			func(value T) {
				now := scheduler.Now()
				if emitted && now.Sub(last) < window {
					return
				}
				emitted = true
				last = now
				observer.OnNext(value)
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// Delay 延迟操作符，把值和完成延迟 delay 后发射，错误立即转发
func Delay[T any](source Observable[T], delay time.Duration, scheduler Scheduler) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if delay < 0 {
		argumentOutOfRange("delay", delay)
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}

	return Create(func(observer Observer[T]) Disposable {
		group := NewCompositeDisposable()

		later := func(action func()) {
			d := NewSingleAssignmentDisposable()
			group.Add(d)
			d.Set(scheduler.ScheduleWithDelay(func() {
				group.Remove(d)
				action()
			}, delay))
		}

		group.Add(source.Subscribe(NewObserver(
			func(value T) {
				later(func() { observer.OnNext(value) })
			},
			observer.OnError,
			func() {
				later(observer.OnCompleted)
			},
		)))
		return group
	})
}

// Timeout 订阅后或两个值之间超过 dueTime 没有通知时以 *TimeoutError 终止
func Timeout[T any](source Observable[T], dueTime time.Duration, scheduler Scheduler) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if dueTime < 0 {
		argumentOutOfRange("dueTime", dueTime)
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}

	return Create(func(observer Observer[T]) Disposable {
		var (
			gate sync.Mutex
			id   uint64
			done bool
		)
		timer := NewSerialDisposable()

		arm := func(current uint64) {
			timer.Set(scheduler.ScheduleWithDelay(func() {
				gate.Lock()
				defer gate.Unlock()
				if done || id != current {
					return
				}
				done = true
				observer.OnError(&TimeoutError{DueTime: dueTime.String()})
			}, dueTime))
		}

		arm(0)
		subscription := source.Subscribe(NewObserver(
			func(value T) {
				gate.Lock()
				if done {
					gate.Unlock()
					return
				}
				id++
				current := id
				observer.OnNext(value)
				gate.Unlock()
				arm(current)
			},
			func(err error) {
				gate.Lock()
				defer gate.Unlock()
				if !done {
					done = true
					observer.OnError(err)
				}
			},
			func() {
				gate.Lock()
				defer gate.Unlock()
				if !done {
					done = true
					observer.OnCompleted()
				}
			},
		))

		return NewCompositeDisposable(timer, subscription)
	})
}

// Timestamped 带时间戳的值
type Timestamped[T any] struct {
	Value     T
	Timestamp time.Time
}

// Timestamp 给每个值附加调度器的当前时间
func Timestamp[T any](source Observable[T], scheduler Scheduler) Observable[Timestamped[T]] {
	if scheduler == nil {
		argumentNil("scheduler")
	}
	return Map(source, func(value T) (Timestamped[T], error) {
		return Timestamped[T]{Value: value, Timestamp: scheduler.Now()}, nil
	})
}

// ============================================================================
// Cron
// ============================================================================

// Cron 按标准cron表达式（五个字段）在调度器时钟上发射触发时刻，表达式无效时返回错误
func Cron(spec string, scheduler Scheduler) (Observable[time.Time], error) {
	if scheduler == nil {
		argumentNil("scheduler")
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("rxgo: parse cron spec %q: %w", spec, err)
	}

	return Create(func(observer Observer[time.Time]) Disposable {
		serial := NewSerialDisposable()

		var arm func()
		arm = func() {
			next := schedule.Next(scheduler.Now())
			if next.IsZero() {
				observer.OnCompleted()
				return
			}
			serial.Set(scheduler.ScheduleAt(func() {
				observer.OnNext(next)
				arm()
			}, next))
		}

		arm()
		return serial
	}), nil
}
