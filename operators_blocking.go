// Blocking operators for RxGo
// 阻塞操作符实现，包含BlockingSubscribe, BlockingFirst, BlockingLast, ToSlice, ToChannel等
package rxgo

import (
	"context"
)

// ============================================================================
// 阻塞操作符实现
// ============================================================================

// BlockingSubscribe 阻塞订阅，等待Observable终止。
// 返回源的错误；上下文取消时取消订阅并返回 ctx.Err()。observer 可为nil
func BlockingSubscribe[T any](ctx context.Context, source Observable[T], observer Observer[T]) error {
	if source == nil {
		argumentNil("source")
	}
	if observer == nil {
		observer = NewObserver[T](nil, func(error) {}, nil)
	}

	done := make(chan error, 1)
	subscription := subscribeDetached(func() Disposable {
		return AsObservable(source).Subscribe(NewObserver(
			observer.OnNext,
			func(err error) {
				observer.OnError(err)
				done <- err
			},
			func() {
				observer.OnCompleted()
				done <- nil
			},
		))
	})
	defer subscription.Dispose()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BlockingFirst 阻塞获取第一个值，空序列返回 ErrSequenceEmpty
func BlockingFirst[T any](ctx context.Context, source Observable[T]) (T, error) {
	return blockingSingle(ctx, First(source))
}

// BlockingLast 阻塞获取最后一个值，空序列返回 ErrSequenceEmpty
func BlockingLast[T any](ctx context.Context, source Observable[T]) (T, error) {
	return blockingSingle(ctx, Last(source))
}

func blockingSingle[T any](ctx context.Context, source Observable[T]) (T, error) {
	var result T
	err := BlockingSubscribe(ctx, source, NewObserver(
		func(value T) { result = value },
		func(error) {},
		nil,
	))
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// ToSlice 阻塞收集所有值
func ToSlice[T any](ctx context.Context, source Observable[T]) ([]T, error) {
	var items []T
	err := BlockingSubscribe(ctx, source, NewObserver(
		func(value T) { items = append(items, value) },
		func(error) {},
		nil,
	))
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ToChannel 转换为Go channel，通道在终止通知之后关闭。
// 缓冲区大小来自 WithBufferSize（默认取全局配置），WithContext 取消时取消订阅并关闭通道
func ToChannel[T any](source Observable[T], opts ...Option) <-chan Notification[T] {
	if source == nil {
		argumentNil("source")
	}
	o := newOptions(opts...)
	if o.scheduler != nil {
		source = ObserveOn(source, o.scheduler)
	}

	ch := make(chan Notification[T], o.bufferSize)
	ctx, cancel := context.WithCancel(o.ctx)

	send := func(n Notification[T]) bool {
		select {
		case ch <- n:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)
		defer cancel()

		done := make(chan struct{})
		subscription := AsObservable(source).Subscribe(NewObserver(
			func(value T) {
				if !send(NextNotification(value)) {
					cancel()
				}
			},
			func(err error) {
				send(ErrorNotification[T](err))
				close(done)
			},
			func() {
				send(CompletedNotification[T]())
				close(done)
			},
		))
		defer subscription.Dispose()

		select {
		case <-done:
		case <-ctx.Done():
		}
	}()

	return ch
}
