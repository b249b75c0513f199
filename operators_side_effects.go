// Side effect operators for RxGo
// 副作用操作符实现，包含DoOnNext, DoOnError, DoOnCompleted, Finally等
package rxgo

// ============================================================================
// 副作用操作符实现
// ============================================================================

// Do 把每个通知先交给 tap 观察者，再转发给下游
func Do[T any](source Observable[T], tap Observer[T]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if tap == nil {
		argumentNil("tap")
	}

	return Create(func(observer Observer[T]) Disposable {
		return source.Subscribe(NewObserver(
			func(value T) {
				tap.OnNext(value)
				observer.OnNext(value)
			},
			func(err error) {
				tap.OnError(err)
				observer.OnError(err)
			},
			func() {
				tap.OnCompleted()
				observer.OnCompleted()
			},
		))
	})
}

// DoOnNext 在每个值发射时执行副作用操作，action 返回的错误作为 OnError 发射
func DoOnNext[T any](source Observable[T], action func(T) error) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if action == nil {
		argumentNil("action")
	}

	return Create(func(observer Observer[T]) Disposable {
		done := false
		return source.Subscribe(NewObserver(
			func(value T) {
				if done {
					return
				}
				if err := action(value); err != nil {
					done = true
					observer.OnError(err)
					return
				}
				observer.OnNext(value)
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// DoOnError 在发生错误时执行副作用操作
func DoOnError[T any](source Observable[T], action func(error)) Observable[T] {
	if action == nil {
		argumentNil("action")
	}
	return Do(source, NewObserver[T](nil, action, nil))
}

// DoOnCompleted 在完成时执行副作用操作
func DoOnCompleted[T any](source Observable[T], action func()) Observable[T] {
	if action == nil {
		argumentNil("action")
	}
	return Do(source, NewObserver[T](nil, func(error) {}, action))
}

// Finally 订阅结束后执行动作：终止或取消订阅时执行一次
func Finally[T any](source Observable[T], action func()) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if action == nil {
		argumentNil("action")
	}

	return Create(func(observer Observer[T]) Disposable {
		subscription := source.Subscribe(observer)
		return NewBaseDisposable(func() {
			defer action()
			subscription.Dispose()
		})
	})
}
