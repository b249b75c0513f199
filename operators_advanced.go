// Advanced operators for RxGo
// 高级操作符实现，包含Using, If, Case, While, DoWhile, Repeat, Generate等
package rxgo

// ============================================================================
// 资源管理
// ============================================================================

// Using 每次订阅创建资源，订阅结束时（终止或取消）释放资源
func Using[T any, R Disposable](resourceFactory func() (R, error), observableFactory func(R) (Observable[T], error)) Observable[T] {
	if resourceFactory == nil {
		argumentNil("resourceFactory")
	}
	if observableFactory == nil {
		argumentNil("observableFactory")
	}

	return Create(func(observer Observer[T]) Disposable {
		resource, err := resourceFactory()
		if err != nil {
			observer.OnError(err)
			return EmptyDisposable()
		}

		var disposable Disposable = EmptyDisposable()
		if any(resource) != nil {
			disposable = resource
		}

		source, err := observableFactory(resource)
		if err != nil {
			observer.OnError(err)
			return disposable
		}
		if source == nil {
			observer.OnCompleted()
			return disposable
		}

		return NewCompositeDisposable(source.Subscribe(observer), disposable)
	})
}

// ============================================================================
// 条件操作符
// ============================================================================

// If 订阅时根据条件选择源；elseSource 为nil时等同于 Empty
func If[T any](condition func() (bool, error), thenSource, elseSource Observable[T]) Observable[T] {
	if condition == nil {
		argumentNil("condition")
	}
	if thenSource == nil {
		argumentNil("thenSource")
	}
	if elseSource == nil {
		elseSource = Empty[T]()
	}

	return Defer(func() (Observable[T], error) {
		ok, err := condition()
		if err != nil {
			return nil, err
		}
		if ok {
			return thenSource, nil
		}
		return elseSource, nil
	})
}

// Case 订阅时按 selector 返回的键选择源；没有对应的源时使用 defaultSource（nil时等同于 Empty）
func Case[K comparable, T any](selector func() (K, error), sources map[K]Observable[T], defaultSource Observable[T]) Observable[T] {
	if selector == nil {
		argumentNil("selector")
	}
	if sources == nil {
		argumentNil("sources")
	}
	if defaultSource == nil {
		defaultSource = Empty[T]()
	}

	return Defer(func() (Observable[T], error) {
		key, err := selector()
		if err != nil {
			return nil, err
		}
		if source, ok := sources[key]; ok && source != nil {
			return source, nil
		}
		return defaultSource, nil
	})
}

// ============================================================================
// 循环操作符
// ============================================================================

// While 条件成立时重复订阅源，每次订阅前检查条件
func While[T any](condition func() (bool, error), source Observable[T]) Observable[T] {
	if condition == nil {
		argumentNil("condition")
	}
	if source == nil {
		argumentNil("source")
	}

	return Create(func(observer Observer[T]) Disposable {
		return subscribeSequence(observer, continueOnCompleted, func() (Observable[T], bool, error) {
			ok, err := condition()
			if err != nil || !ok {
				return nil, false, err
			}
			return source, true, nil
		})
	})
}

// DoWhile 先订阅一次源，之后条件成立时重复订阅
func DoWhile[T any](source Observable[T], condition func() (bool, error)) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if condition == nil {
		argumentNil("condition")
	}

	return Create(func(observer Observer[T]) Disposable {
		first := true
		return subscribeSequence(observer, continueOnCompleted, func() (Observable[T], bool, error) {
			if first {
				first = false
				return source, true, nil
			}
			ok, err := condition()
			if err != nil || !ok {
				return nil, false, err
			}
			return source, true, nil
		})
	})
}

// Repeat 源完成后立即重新订阅，无限次
func Repeat[T any](source Observable[T]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}

	return Create(func(observer Observer[T]) Disposable {
		return subscribeSequence(observer, continueOnCompleted, func() (Observable[T], bool, error) {
			return source, true, nil
		})
	})
}

// RepeatCount 订阅源 count 次
func RepeatCount[T any](source Observable[T], count int) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if count < 0 {
		argumentOutOfRange("count", count)
	}

	return Create(func(observer Observer[T]) Disposable {
		n := 0
		return subscribeSequence(observer, continueOnCompleted, func() (Observable[T], bool, error) {
			if n >= count {
				return nil, false, nil
			}
			n++
			return source, true, nil
		})
	})
}

// ============================================================================
// 生成操作符
// ============================================================================

// Generate 从初始状态开始，条件成立时发射 resultSelector(state) 并用 iterate 推进状态。
// 每一步单独调度，scheduler 为nil时使用 CurrentThread
func Generate[S, T any](initialState S, condition func(S) (bool, error), iterate func(S) (S, error), resultSelector func(S) (T, error), scheduler Scheduler) Observable[T] {
	if condition == nil {
		argumentNil("condition")
	}
	if iterate == nil {
		argumentNil("iterate")
	}
	if resultSelector == nil {
		argumentNil("resultSelector")
	}
	if scheduler == nil {
		scheduler = CurrentThread
	}

	return Create(func(observer Observer[T]) Disposable {
		state := initialState
		first := true

		return ScheduleRecursive(scheduler, func(self func()) {
			if !first {
				next, err := iterate(state)
				if err != nil {
					observer.OnError(err)
					return
				}
				state = next
			}
			first = false

			ok, err := condition(state)
			if err != nil {
				observer.OnError(err)
				return
			}
			if !ok {
				observer.OnCompleted()
				return
			}

			result, err := resultSelector(state)
			if err != nil {
				observer.OnError(err)
				return
			}
			observer.OnNext(result)
			self()
		})
	})
}
