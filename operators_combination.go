// Combination operators for RxGo
// 组合操作符实现，包含Amb, Switch, Merge, Concat, FlatMap等
package rxgo

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ============================================================================
// 顺序订阅
// ============================================================================

// sequenceMode 顺序订阅在什么情况下继续订阅下一个源
type sequenceMode int

const (
	// continueOnCompleted 当前源完成后订阅下一个，错误直接转发（Concat、Repeat、While）
	continueOnCompleted sequenceMode = iota
	// continueOnError 当前源出错后订阅下一个，完成直接转发（Retry）
	continueOnError
)

// subscribeSequence 依次订阅 next 返回的源，next 返回 false 时结束。
// 以 continueOnError 模式结束时转发最后一次的错误（没有尝试过则完成）。
// 重新订阅通过 wip 计数循环完成，同步终止的源不会加深调用栈。
func subscribeSequence[T any](observer Observer[T], mode sequenceMode, next func() (Observable[T], bool, error)) Disposable {
	serial := NewSerialDisposable()
	var (
		wip     atomic.Int32
		lastErr error
	)

	var moveNext func()
	moveNext = func() {
		if wip.Add(1) != 1 {
			return
		}

		for {
			if serial.IsDisposed() || observerStopped(observer) {
				return
			}

			source, ok, err := next()
			if err != nil {
				observer.OnError(err)
				return
			}
			if !ok {
				if mode == continueOnError && lastErr != nil {
					observer.OnError(lastErr)
				} else {
					observer.OnCompleted()
				}
				return
			}

			inner := NewSingleAssignmentDisposable()
			serial.Set(inner)
			inner.Set(source.Subscribe(NewObserver(
				observer.OnNext,
				func(err error) {
					if mode != continueOnError {
						observer.OnError(err)
						return
					}
					lastErr = err
					inner.Dispose()
					moveNext()
				},
				func() {
					if mode != continueOnCompleted {
						observer.OnCompleted()
						return
					}
					inner.Dispose()
					moveNext()
				},
			)))

			if wip.Add(-1) == 0 {
				return
			}
		}
	}

	moveNext()
	return serial
}

// ============================================================================
// 组合操作符实现
// ============================================================================

// Concat 依次订阅各个源，前一个完成后订阅下一个
func Concat[T any](sources ...Observable[T]) Observable[T] {
	checkSources(sources)

	return Create(func(observer Observer[T]) Disposable {
		index := 0
		return subscribeSequence(observer, continueOnCompleted, func() (Observable[T], bool, error) {
			if index >= len(sources) {
				return nil, false, nil
			}
			source := sources[index]
			index++
			return source, true, nil
		})
	})
}

// StartWith 先发射给定的值，再发射源
func StartWith[T any](source Observable[T], values ...T) Observable[T] {
	return Concat(FromSlice(values), source)
}

// Merge 合并操作符，将多个Observable合并为一个；所有源完成后完成
func Merge[T any](sources ...Observable[T]) Observable[T] {
	checkSources(sources)

	return FlatMap(FromSlice(sources), func(source Observable[T]) (Observable[T], error) {
		return source, nil
	})
}

// FlatMap 把每个值映射为Observable并合并它们的输出
func FlatMap[T, R any](source Observable[T], selector func(T) (Observable[R], error)) Observable[R] {
	if source == nil {
		argumentNil("source")
	}
	if selector == nil {
		argumentNil("selector")
	}

	return Create(func(observer Observer[R]) Disposable {
		out := newSerializedObserver(observer)
		group := NewCompositeDisposable()

		var active atomic.Int32
		active.Store(1)
		complete := func() {
			if active.Add(-1) == 0 {
				out.OnCompleted()
			}
		}

		outer := NewSingleAssignmentDisposable()
		group.Add(outer)
		outer.Set(source.Subscribe(NewObserver(
			func(value T) {
				inner, err := selector(value)
				if err != nil {
					out.OnError(err)
					return
				}

				active.Add(1)
				d := NewSingleAssignmentDisposable()
				group.Add(d)
				d.Set(inner.Subscribe(NewObserver(
					out.OnNext,
					out.OnError,
					func() {
						group.Remove(d)
						complete()
					},
				)))
			},
			out.OnError,
			complete,
		)))

		return group
	})
}

// ConcatMap 把每个值映射为Observable并按顺序连接
func ConcatMap[T, R any](source Observable[T], selector func(T) (Observable[R], error)) Observable[R] {
	if selector == nil {
		argumentNil("selector")
	}
	return ConcatAll(Map(source, selector))
}

// ConcatAll 依次订阅外层发射的每个Observable，前一个完成后才订阅下一个
func ConcatAll[T any](sources Observable[Observable[T]]) Observable[T] {
	if sources == nil {
		argumentNil("sources")
	}

	return Create(func(observer Observer[T]) Disposable {
		var (
			mu        sync.Mutex
			queue     []Observable[T]
			outerDone bool
			running   bool
		)
		group := NewCompositeDisposable()
		serial := NewSerialDisposable()
		group.Add(serial)

		var wip atomic.Int32
		var drain func()
		drain = func() {
			if wip.Add(1) != 1 {
				return
			}
			for {
				mu.Lock()
				if !running {
					if len(queue) > 0 {
						inner := queue[0]
						queue = queue[1:]
						running = true
						mu.Unlock()

						d := NewSingleAssignmentDisposable()
						serial.Set(d)
						d.Set(inner.Subscribe(NewObserver(
							observer.OnNext,
							observer.OnError,
							func() {
								d.Dispose()
								mu.Lock()
								running = false
								mu.Unlock()
								drain()
							},
						)))
						mu.Lock()
					} else if outerDone {
						mu.Unlock()
						observer.OnCompleted()
						return
					}
				}
				mu.Unlock()

				if wip.Add(-1) == 0 {
					return
				}
			}
		}

		outer := NewSingleAssignmentDisposable()
		group.Add(outer)
		outer.Set(sources.Subscribe(NewObserver(
			func(inner Observable[T]) {
				mu.Lock()
				queue = append(queue, inner)
				mu.Unlock()
				drain()
			},
			observer.OnError,
			func() {
				mu.Lock()
				outerDone = true
				mu.Unlock()
				drain()
			},
		)))
		return group
	})
}

// ============================================================================
// Amb
// ============================================================================

// Amb 竞争操作符：第一个发出任何通知的源获胜，其余源在转发获胜通知前被取消。
// 按参数顺序订阅，一旦出现获胜者就不再订阅后续的源；没有源时永不发射。
func Amb[T any](sources ...Observable[T]) Observable[T] {
	checkSources(sources)

	switch len(sources) {
	case 0:
		return Never[T]()
	case 1:
		return AsObservable(sources[0])
	}

	return Create(func(observer Observer[T]) Disposable {
		const none = -1

		var winner atomic.Int64
		winner.Store(none)

		subscriptions := make([]*SingleAssignmentDisposable, len(sources))
		group := NewCompositeDisposable()
		for i := range subscriptions {
			subscriptions[i] = NewSingleAssignmentDisposable()
			group.Add(subscriptions[i])
		}

		win := func(index int) bool {
			if winner.CompareAndSwap(none, int64(index)) {
				for i, s := range subscriptions {
					if i != index {
						s.Dispose()
					}
				}
				return true
			}
			return winner.Load() == int64(index)
		}

		for i, source := range sources {
			if winner.Load() != none {
				break
			}
			index := i
			subscriptions[index].Set(source.Subscribe(NewObserver(
				func(value T) {
					if win(index) {
						observer.OnNext(value)
					}
				},
				func(err error) {
					if win(index) {
						observer.OnError(err)
					}
				},
				func() {
					if win(index) {
						observer.OnCompleted()
					}
				},
			)))
		}

		return group
	})
}

// Race Amb 的别名
func Race[T any](sources ...Observable[T]) Observable[T] {
	return Amb(sources...)
}

// ============================================================================
// Switch
// ============================================================================

// Switch 始终只转发最新的内层Observable：新的内层到来时取消前一个；
// 内层出错立即终止；外层和最新的内层都完成后才完成
func Switch[T any](sources Observable[Observable[T]]) Observable[T] {
	if sources == nil {
		argumentNil("sources")
	}

	return Create(func(observer Observer[T]) Disposable {
		var (
			mu        sync.Mutex
			latest    uint64
			hasLatest bool
			outerDone bool
		)
		// 是否转发在锁内决定并排队，投递在锁外进行，下游可以重入外层源
		out := newSerializedObserver(observer)
		locked := func(f func()) {
			mu.Lock()
			f()
			mu.Unlock()
			out.drain()
		}

		inner := NewSerialDisposable()
		outer := NewSingleAssignmentDisposable()

		outer.Set(sources.Subscribe(NewObserver(
			func(source Observable[T]) {
				mu.Lock()
				latest++
				id := latest
				hasLatest = true
				mu.Unlock()

				d := NewSingleAssignmentDisposable()
				inner.Set(d)
				if source == nil {
					out.OnError(&ArgumentError{Param: "source", Message: "must not be nil"})
					return
				}

				d.Set(source.Subscribe(NewObserver(
					func(value T) {
						locked(func() {
							if latest == id {
								out.push(NextNotification(value))
							}
						})
					},
					func(err error) {
						locked(func() {
							if latest == id {
								out.push(ErrorNotification[T](err))
							}
						})
					},
					func() {
						d.Dispose()
						locked(func() {
							if latest == id {
								hasLatest = false
								if outerDone {
									out.push(CompletedNotification[T]())
								}
							}
						})
					},
				)))
			},
			out.OnError,
			func() {
				locked(func() {
					outerDone = true
					if !hasLatest {
						out.push(CompletedNotification[T]())
					}
				})
			},
		)))

		return NewCompositeDisposable(outer, inner)
	})
}

// SwitchMap 把每个值映射为Observable，只转发最新的一个
func SwitchMap[T, R any](source Observable[T], selector func(T) (Observable[R], error)) Observable[R] {
	if selector == nil {
		argumentNil("selector")
	}
	return Switch(Map(source, selector))
}

func checkSources[T any](sources []Observable[T]) {
	for i, source := range sources {
		if source == nil {
			argumentNil(fmt.Sprintf("sources[%d]", i))
		}
	}
}
