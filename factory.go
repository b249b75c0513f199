// Factory functions for RxGo
// 实现Observable的工厂函数
package rxgo

import (
	"context"
	"time"
)

// ============================================================================
// 基础工厂函数
// ============================================================================

// Return 发射单个值后完成，在订阅时同步发射
func Return[T any](value T) Observable[T] {
	return ReturnOn(value, Immediate)
}

// ReturnOn 在指定调度器上发射单个值后完成
func ReturnOn[T any](value T, scheduler Scheduler) Observable[T] {
	if scheduler == nil {
		argumentNil("scheduler")
	}
	return Create(func(observer Observer[T]) Disposable {
		return scheduler.Schedule(func() {
			observer.OnNext(value)
			observer.OnCompleted()
		})
	})
}

// Just 依次发射给定的值后完成
func Just[T any](values ...T) Observable[T] {
	return FromSlice(values)
}

// Empty 创建立即完成的Observable
func Empty[T any]() Observable[T] {
	return EmptyOn[T](Immediate)
}

// EmptyOn 在指定调度器上完成
func EmptyOn[T any](scheduler Scheduler) Observable[T] {
	if scheduler == nil {
		argumentNil("scheduler")
	}
	return Create(func(observer Observer[T]) Disposable {
		return scheduler.Schedule(observer.OnCompleted)
	})
}

// Never 创建永不发射的Observable
func Never[T any]() Observable[T] {
	return Create(func(observer Observer[T]) Disposable {
		return EmptyDisposable()
	})
}

// Throw 创建立即发射错误的Observable
func Throw[T any](err error) Observable[T] {
	return ThrowOn[T](err, Immediate)
}

// ThrowOn 在指定调度器上发射错误
func ThrowOn[T any](err error, scheduler Scheduler) Observable[T] {
	if err == nil {
		argumentNil("err")
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}
	return Create(func(observer Observer[T]) Disposable {
		return scheduler.Schedule(func() {
			observer.OnError(err)
		})
	})
}

// Range 发射 [start, start+count) 区间的整数，使用 CurrentThread 调度
func Range(start, count int) Observable[int] {
	return RangeOn(start, count, CurrentThread)
}

// RangeOn 在指定调度器上发射整数区间，每个值单独调度
func RangeOn(start, count int, scheduler Scheduler) Observable[int] {
	if count < 0 {
		argumentOutOfRange("count", count)
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}
	return Create(func(observer Observer[int]) Disposable {
		i := 0
		return ScheduleRecursive(scheduler, func(self func()) {
			if i < count {
				observer.OnNext(start + i)
				i++
				self()
				return
			}
			observer.OnCompleted()
		})
	})
}

// RepeatValue 无限重复发射同一个值
func RepeatValue[T any](value T) Observable[T] {
	return RepeatValueOn(value, CurrentThread)
}

// RepeatValueOn 在指定调度器上无限重复发射同一个值
func RepeatValueOn[T any](value T, scheduler Scheduler) Observable[T] {
	if scheduler == nil {
		argumentNil("scheduler")
	}
	return Create(func(observer Observer[T]) Disposable {
		return ScheduleRecursive(scheduler, func(self func()) {
			observer.OnNext(value)
			self()
		})
	})
}

// RepeatValueCount 重复发射同一个值 count 次
func RepeatValueCount[T any](value T, count int) Observable[T] {
	if count < 0 {
		argumentOutOfRange("count", count)
	}
	return Map(Range(0, count), func(int) (T, error) {
		return value, nil
	})
}

// FromSlice 从切片创建Observable，同步发射
func FromSlice[T any](items []T) Observable[T] {
	return Create(func(observer Observer[T]) Disposable {
		for _, item := range items {
			if observerStopped(observer) {
				return EmptyDisposable()
			}
			observer.OnNext(item)
		}
		observer.OnCompleted()
		return EmptyDisposable()
	})
}

// FromChannel 从通道创建Observable，通道关闭时完成；
// 取消订阅或选项中的上下文取消后停止读取
func FromChannel[T any](ch <-chan T, opts ...Option) Observable[T] {
	if ch == nil {
		argumentNil("ch")
	}
	o := newOptions(opts...)

	return Create(func(observer Observer[T]) Disposable {
		ctx, cancel := context.WithCancel(o.ctx)
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					if err := o.ctx.Err(); err != nil {
						observer.OnError(err)
					}
					return
				case item, ok := <-ch:
					if !ok {
						observer.OnCompleted()
						return
					}
					observer.OnNext(item)
				}
			}
		}()
		return NewBaseDisposable(cancel)
	})
}

// FromEvent 从事件源创建Observable。addHandler 注册处理函数并返回注销函数；
// 所有订阅者共享一次注册，最后一个订阅者离开时注销
func FromEvent[T any](addHandler func(handler func(T)) (remove func())) Observable[T] {
	if addHandler == nil {
		argumentNil("addHandler")
	}

	events := Create(func(observer Observer[T]) Disposable {
		remove := addHandler(observer.OnNext)
		if remove == nil {
			return EmptyDisposable()
		}
		return NewBaseDisposable(remove)
	})
	return RefCount(Publish(events))
}

// Defer 延迟创建Observable，每次订阅调用 factory；factory 返回的错误作为 OnError 发射
func Defer[T any](factory func() (Observable[T], error)) Observable[T] {
	if factory == nil {
		argumentNil("factory")
	}
	return Create(func(observer Observer[T]) Disposable {
		source, err := factory()
		if err != nil {
			observer.OnError(err)
			return EmptyDisposable()
		}
		if source == nil {
			observer.OnCompleted()
			return EmptyDisposable()
		}
		return source.Subscribe(observer)
	})
}

// ============================================================================
// 时间工厂函数
// ============================================================================

// Interval 每隔 period 发射递增的序号，从0开始
func Interval(period time.Duration, scheduler Scheduler) Observable[int64] {
	if period <= 0 {
		argumentOutOfRange("period", period)
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}
	return Create(func(observer Observer[int64]) Disposable {
		var n int64
		return SchedulePeriodic(scheduler, period, func() {
			observer.OnNext(n)
			n++
		})
	})
}

// Timer 在 dueTime 之后发射0并完成
func Timer(dueTime time.Duration, scheduler Scheduler) Observable[int64] {
	if scheduler == nil {
		argumentNil("scheduler")
	}
	return Create(func(observer Observer[int64]) Disposable {
		return scheduler.ScheduleWithDelay(func() {
			observer.OnNext(0)
			observer.OnCompleted()
		}, dueTime)
	})
}
