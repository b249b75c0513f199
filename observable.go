// Basic operators for RxGo
// 基础转换操作符与调度操作符：Map、Filter、Take、Skip、SubscribeOn、ObserveOn
package rxgo

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// 转换操作符
// ============================================================================

// Map 转换操作符，transformer 返回的错误作为 OnError 发射
func Map[T, R any](source Observable[T], transformer func(T) (R, error)) Observable[R] {
	if source == nil {
		argumentNil("source")
	}
	if transformer == nil {
		argumentNil("transformer")
	}

	return Create(func(observer Observer[R]) Disposable {
		done := false
		return source.Subscribe(NewObserver(
			func(value T) {
				if done {
					return
				}
				result, err := transformer(value)
				if err != nil {
					done = true
					observer.OnError(err)
					return
				}
				observer.OnNext(result)
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// Filter 过滤操作符
func Filter[T any](source Observable[T], predicate func(T) (bool, error)) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if predicate == nil {
		argumentNil("predicate")
	}

	return Create(func(observer Observer[T]) Disposable {
		done := false
		return source.Subscribe(NewObserver(
			func(value T) {
				if done {
					return
				}
				ok, err := predicate(value)
				if err != nil {
					done = true
					observer.OnError(err)
					return
				}
				if ok {
					observer.OnNext(value)
				}
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// ============================================================================
// 截取操作符
// ============================================================================

// Take 取前N个元素，取满后完成并取消上游订阅
func Take[T any](source Observable[T], count int) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if count < 0 {
		argumentOutOfRange("count", count)
	}
	if count == 0 {
		return Empty[T]()
	}

	return Create(func(observer Observer[T]) Disposable {
		remaining := count
		return source.Subscribe(NewObserver(
			func(value T) {
				if remaining <= 0 {
					return
				}
				remaining--
				observer.OnNext(value)
				if remaining == 0 {
					observer.OnCompleted()
				}
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// Skip 跳过前N个元素
func Skip[T any](source Observable[T], count int) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if count < 0 {
		argumentOutOfRange("count", count)
	}

	return Create(func(observer Observer[T]) Disposable {
		remaining := count
		return source.Subscribe(NewObserver(
			func(value T) {
				if remaining > 0 {
					remaining--
					return
				}
				observer.OnNext(value)
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// TakeWhile 条件成立时发射，条件首次不成立时完成
func TakeWhile[T any](source Observable[T], predicate func(T) (bool, error)) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if predicate == nil {
		argumentNil("predicate")
	}

	return Create(func(observer Observer[T]) Disposable {
		done := false
		return source.Subscribe(NewObserver(
			func(value T) {
				if done {
					return
				}
				ok, err := predicate(value)
				if err != nil {
					done = true
					observer.OnError(err)
					return
				}
				if !ok {
					done = true
					observer.OnCompleted()
					return
				}
				observer.OnNext(value)
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// TakeUntil 发射直到 other 发射第一个值或出错，other 完成不影响源
func TakeUntil[T, U any](source Observable[T], other Observable[U]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if other == nil {
		argumentNil("other")
	}

	return Create(func(observer Observer[T]) Disposable {
		var gate sync.Mutex
		group := NewCompositeDisposable()

		otherSubscription := NewSingleAssignmentDisposable()
		group.Add(otherSubscription)
		otherSubscription.Set(other.Subscribe(NewObserver(
			func(U) {
				gate.Lock()
				defer gate.Unlock()
				observer.OnCompleted()
			},
			func(err error) {
				gate.Lock()
				defer gate.Unlock()
				observer.OnError(err)
			},
			func() { group.Remove(otherSubscription) },
		)))

		group.Add(source.Subscribe(NewObserver(
			func(value T) {
				gate.Lock()
				defer gate.Unlock()
				observer.OnNext(value)
			},
			func(err error) {
				gate.Lock()
				defer gate.Unlock()
				observer.OnError(err)
			},
			func() {
				gate.Lock()
				defer gate.Unlock()
				observer.OnCompleted()
			},
		)))
		return group
	})
}

// ============================================================================
// 调度操作符
// ============================================================================

// SubscribeOn 在指定调度器上执行订阅
func SubscribeOn[T any](source Observable[T], scheduler Scheduler) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}

	return Create(func(observer Observer[T]) Disposable {
		subscription := NewSingleAssignmentDisposable()
		group := NewCompositeDisposable(subscription)
		group.Add(scheduler.Schedule(func() {
			subscription.Set(source.Subscribe(observer))
		}))
		return group
	})
}

// ObserveOn 在指定调度器上投递通知，保持通知顺序
func ObserveOn[T any](source Observable[T], scheduler Scheduler) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}

	return Create(func(observer Observer[T]) Disposable {
		var (
			mu       sync.Mutex
			queue    []Notification[T]
			running  bool
			disposed atomic.Bool
		)

		drain := func() {
			for !disposed.Load() {
				mu.Lock()
				if len(queue) == 0 {
					running = false
					mu.Unlock()
					return
				}
				n := queue[0]
				queue = queue[1:]
				mu.Unlock()

				n.Accept(observer)
			}
		}

		enqueue := func(n Notification[T]) {
			mu.Lock()
			queue = append(queue, n)
			start := !running
			running = true
			mu.Unlock()

			if start {
				scheduler.Schedule(drain)
			}
		}

		upstream := source.Subscribe(NewObserver(
			func(value T) { enqueue(NextNotification(value)) },
			func(err error) { enqueue(ErrorNotification[T](err)) },
			func() { enqueue(CompletedNotification[T]()) },
		))
		return NewCompositeDisposable(upstream, NewBaseDisposable(func() {
			disposed.Store(true)
			mu.Lock()
			queue = nil
			mu.Unlock()
		}))
	})
}
