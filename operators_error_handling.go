// Error handling operators for RxGo
// 错误处理操作符实现，包含Retry, RetryWhen, RetryBackoff, Catch等
package rxgo

import (
	"errors"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"github.com/xinjiayu/rxgo/v2/internal/rxlog"
)

// ============================================================================
// 重试操作符
// ============================================================================

// Retry 出错时立即重新订阅源，无限次
func Retry[T any](source Observable[T]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}

	return Create(func(observer Observer[T]) Disposable {
		return subscribeSequence(observer, continueOnError, func() (Observable[T], bool, error) {
			return source, true, nil
		})
	})
}

// RetryCount 最多订阅源 count 次，之后转发最后一次的错误；count 为0时直接完成
func RetryCount[T any](source Observable[T], count int) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if count < 0 {
		argumentOutOfRange("count", count)
	}

	return Create(func(observer Observer[T]) Disposable {
		attempts := 0
		return subscribeSequence(observer, continueOnError, func() (Observable[T], bool, error) {
			if attempts >= count {
				return nil, false, nil
			}
			attempts++
			return source, true, nil
		})
	})
}

// RetryWhen 每次订阅时把错误流交给 handler，handler 返回的通知源发出值时重新订阅源
// （取消当前的源订阅）；通知源出错则出错，通知源完成则完成
func RetryWhen[T, U any](source Observable[T], handler func(errs Observable[error]) Observable[U]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if handler == nil {
		argumentNil("handler")
	}

	return Create(func(observer Observer[T]) Disposable {
		errs := NewPublishSubject[error]()
		notifier := handler(AsObservable[error](errs))
		if notifier == nil {
			observer.OnError(&ArgumentError{Param: "handler", Message: "returned a nil notifier"})
			return EmptyDisposable()
		}

		sourceSubscription := NewSerialDisposable()
		group := NewCompositeDisposable(sourceSubscription)

		var wip atomic.Int32
		var resubscribe func()
		resubscribe = func() {
			if wip.Add(1) != 1 {
				return
			}
			for {
				if group.IsDisposed() {
					return
				}

				d := NewSingleAssignmentDisposable()
				sourceSubscription.Set(d)
				d.Set(source.Subscribe(NewObserver(
					observer.OnNext,
					func(err error) {
						d.Dispose()
						errs.OnNext(err)
					},
					observer.OnCompleted,
				)))

				if wip.Add(-1) == 0 {
					return
				}
			}
		}

		notifierSubscription := NewSingleAssignmentDisposable()
		group.Add(notifierSubscription)
		notifierSubscription.Set(notifier.Subscribe(NewObserver(
			func(U) { resubscribe() },
			observer.OnError,
			observer.OnCompleted,
		)))

		resubscribe()
		return group
	})
}

// RetryBackoff 按退避策略延迟重试：每次订阅重置 b，策略返回 backoff.Stop
// 或错误被 backoff.Permanent 包装时转发该错误
func RetryBackoff[T any](source Observable[T], b backoff.BackOff, scheduler Scheduler) Observable[T] {
	if b == nil {
		argumentNil("backoff")
	}
	if scheduler == nil {
		argumentNil("scheduler")
	}

	return RetryWhen(source, func(errs Observable[error]) Observable[int64] {
		b.Reset()
		return FlatMap(errs, func(err error) (Observable[int64], error) {
			var permanent *backoff.PermanentError
			if errors.As(err, &permanent) {
				return nil, permanent.Unwrap()
			}

			next := b.NextBackOff()
			if next == backoff.Stop {
				return nil, err
			}
			rxlog.Debug("retrying after backoff", "delay", next, "err", err)
			return Timer(next, scheduler), nil
		})
	})
}

// ============================================================================
// 错误恢复操作符
// ============================================================================

// Catch 出错时订阅 handler 返回的源；handler 返回错误时转发该错误
func Catch[T any](source Observable[T], handler func(error) (Observable[T], error)) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if handler == nil {
		argumentNil("handler")
	}

	return Create(func(observer Observer[T]) Disposable {
		serial := NewSerialDisposable()
		first := NewSingleAssignmentDisposable()
		serial.Set(first)

		first.Set(source.Subscribe(NewObserver(
			observer.OnNext,
			func(err error) {
				next, herr := handler(err)
				if herr != nil {
					observer.OnError(herr)
					return
				}
				if next == nil {
					observer.OnError(err)
					return
				}
				d := NewSingleAssignmentDisposable()
				serial.Set(d)
				d.Set(next.Subscribe(observer))
			},
			observer.OnCompleted,
		)))

		return serial
	})
}

// CatchWith 依次尝试各个源：当前源出错时订阅下一个，全部出错时转发最后的错误
func CatchWith[T any](sources ...Observable[T]) Observable[T] {
	checkSources(sources)

	return Create(func(observer Observer[T]) Disposable {
		index := 0
		return subscribeSequence(observer, continueOnError, func() (Observable[T], bool, error) {
			if index >= len(sources) {
				return nil, false, nil
			}
			source := sources[index]
			index++
			return source, true, nil
		})
	})
}

// OnErrorReturn 出错时发射默认值并完成
func OnErrorReturn[T any](source Observable[T], value T) Observable[T] {
	return Catch(source, func(error) (Observable[T], error) {
		return Return(value), nil
	})
}
