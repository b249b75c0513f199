// Package bridge converts between RxGo observables and github.com/reactivex/rxgo/v2
// 与 reactivex/rxgo/v2 的互操作：基于通道的Observable与推送式Observable互相转换
package bridge

import (
	"context"
	"fmt"

	rxv2 "github.com/reactivex/rxgo/v2"

	rxgo "github.com/xinjiayu/rxgo/v2"
)

// TypeError 条目的值不是期望的类型
type TypeError struct {
	Value any
	Want  string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("bridge: item %v of type %T is not %s", e.Value, e.Value, e.Want)
}

// FromReactiveX 把 rxv2.Observable 转换为 Observable[T]。
// 每次订阅调用一次 Observe，取消订阅时取消对应的上下文
func FromReactiveX[T any](source rxv2.Observable, opts ...rxv2.Option) rxgo.Observable[T] {
	if source == nil {
		panic(&rxgo.ArgumentError{Param: "source", Message: "must not be nil"})
	}

	return rxgo.Create(func(observer rxgo.Observer[T]) rxgo.Disposable {
		ctx, cancel := context.WithCancel(context.Background())
		items := source.Observe(append(opts, rxv2.WithContext(ctx))...)

		go func() {
			for item := range items {
				if item.Error() {
					observer.OnError(item.E)
					return
				}
				value, err := convert[T](item.V)
				if err != nil {
					observer.OnError(err)
					return
				}
				observer.OnNext(value)
			}
			if ctx.Err() == nil {
				observer.OnCompleted()
			}
		}()

		return rxgo.NewBaseDisposable(cancel)
	})
}

func convert[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	value, ok := v.(T)
	if !ok {
		return zero, &TypeError{Value: v, Want: fmt.Sprintf("%T", zero)}
	}
	return value, nil
}

// ToReactiveX 把 Observable[T] 转换为冷的 rxv2.Observable：
// 每次 Observe 订阅一次源，源的错误作为错误条目发送，完成时关闭通道
func ToReactiveX[T any](source rxgo.Observable[T], opts ...rxv2.Option) rxv2.Observable {
	if source == nil {
		panic(&rxgo.ArgumentError{Param: "source", Message: "must not be nil"})
	}

	return rxv2.Defer([]rxv2.Producer{func(ctx context.Context, next chan<- rxv2.Item) {
		done := make(chan struct{})
		subscription := rxgo.AsObservable(source).Subscribe(rxgo.NewObserver(
			func(value T) {
				rxv2.Of(value).SendContext(ctx, next)
			},
			func(err error) {
				rxv2.Error(err).SendContext(ctx, next)
				close(done)
			},
			func() {
				close(done)
			},
		))
		defer subscription.Dispose()

		select {
		case <-done:
		case <-ctx.Done():
		}
	}}, opts...)
}
