// Utility operators for RxGo
// 工具操作符实现，包含Synchronize, Distinct, TakeLast, SkipLast, Materialize等
package rxgo

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ============================================================================
// 同步操作符
// ============================================================================

// Synchronize 串行化通知的投递，每个订阅使用独立的锁。
// 锁只在投递通知时持有，订阅和取消订阅时不持有；锁不可重入。
func Synchronize[T any](source Observable[T]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	return Create(func(observer Observer[T]) Disposable {
		return source.Subscribe(synchronizedObserver(observer, &sync.Mutex{}))
	})
}

// SynchronizeWith 使用共享的锁串行化通知，同一把锁可以跨多个源使用
func SynchronizeWith[T any](source Observable[T], gate sync.Locker) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if gate == nil {
		argumentNil("gate")
	}
	return Create(func(observer Observer[T]) Disposable {
		return source.Subscribe(synchronizedObserver(observer, gate))
	})
}

func synchronizedObserver[T any](observer Observer[T], gate sync.Locker) Observer[T] {
	return NewObserver(
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
	)
}

// ============================================================================
// 去重操作符
// ============================================================================

// Distinct 去除重复的值
func Distinct[T comparable](source Observable[T]) Observable[T] {
	return DistinctBy(source, func(value T) (T, error) {
		return value, nil
	})
}

// DistinctBy 按键去重，记住所有见过的键
func DistinctBy[T any, K comparable](source Observable[T], keySelector func(T) (K, error)) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if keySelector == nil {
		argumentNil("keySelector")
	}

	return Create(func(observer Observer[T]) Disposable {
		seen := make(map[K]struct{})
		return distinctSubscribe(source, observer, keySelector, func(key K) bool {
			if _, ok := seen[key]; ok {
				return false
			}
			seen[key] = struct{}{}
			return true
		})
	})
}

// DistinctBounded 按键去重，只记住最近使用的 capacity 个键；被淘汰的键再次出现时会再次发射
func DistinctBounded[T any, K comparable](source Observable[T], keySelector func(T) (K, error), capacity int) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if keySelector == nil {
		argumentNil("keySelector")
	}
	if capacity <= 0 {
		argumentOutOfRange("capacity", capacity)
	}

	return Create(func(observer Observer[T]) Disposable {
		seen, err := lru.New[K, struct{}](capacity)
		if err != nil {
			observer.OnError(err)
			return EmptyDisposable()
		}
		return distinctSubscribe(source, observer, keySelector, func(key K) bool {
			found, _ := seen.ContainsOrAdd(key, struct{}{})
			return !found
		})
	})
}

func distinctSubscribe[T any, K comparable](source Observable[T], observer Observer[T], keySelector func(T) (K, error), isNew func(K) bool) Disposable {
	done := false
	return source.Subscribe(NewObserver(
		func(value T) {
			if done {
				return
			}
			key, err := keySelector(value)
			if err != nil {
				done = true
				observer.OnError(err)
				return
			}
			if isNew(key) {
				observer.OnNext(value)
			}
		},
		observer.OnError,
		observer.OnCompleted,
	))
}

// DistinctUntilChanged 去除连续重复的值
func DistinctUntilChanged[T comparable](source Observable[T]) Observable[T] {
	return DistinctUntilChangedBy(source, func(value T) (T, error) {
		return value, nil
	})
}

// DistinctUntilChangedBy 按键去除连续重复的值
func DistinctUntilChangedBy[T any, K comparable](source Observable[T], keySelector func(T) (K, error)) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if keySelector == nil {
		argumentNil("keySelector")
	}

	return Create(func(observer Observer[T]) Disposable {
		var (
			last    K
			hasLast bool
		)
		return distinctSubscribe(source, observer, keySelector, func(key K) bool {
			if hasLast && key == last {
				return false
			}
			last = key
			hasLast = true
			return true
		})
	})
}

// ============================================================================
// 尾部操作符
// ============================================================================

// lastN 只保留最后 n 个值的队列
type lastN[T any] struct {
	n     int
	items []T
}

func (q *lastN[T]) push(value T) {
	if q.n == 0 {
		return
	}
	if len(q.items) == q.n {
		copy(q.items, q.items[1:])
		q.items = q.items[:q.n-1]
	}
	q.items = append(q.items, value)
}

// TakeLast 源完成时发射最后 count 个值
func TakeLast[T any](source Observable[T], count int) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if count < 0 {
		argumentOutOfRange("count", count)
	}

	return Create(func(observer Observer[T]) Disposable {
		queue := &lastN[T]{n: count}
		return source.Subscribe(NewObserver(
			queue.push,
			observer.OnError,
			func() {
				for _, value := range queue.items {
					observer.OnNext(value)
				}
				observer.OnCompleted()
			},
		))
	})
}

// TakeLastBuffer 源完成时把最后 count 个值作为一个切片发射
func TakeLastBuffer[T any](source Observable[T], count int) Observable[[]T] {
	if source == nil {
		argumentNil("source")
	}
	if count < 0 {
		argumentOutOfRange("count", count)
	}

	return Create(func(observer Observer[[]T]) Disposable {
		queue := &lastN[T]{n: count}
		return source.Subscribe(NewObserver(
			queue.push,
			observer.OnError,
			func() {
				buffer := make([]T, len(queue.items))
				copy(buffer, queue.items)
				observer.OnNext(buffer)
				observer.OnCompleted()
			},
		))
	})
}

// SkipLast 跳过最后 count 个值：值在后面又到达 count 个值之后才发射
func SkipLast[T any](source Observable[T], count int) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if count < 0 {
		argumentOutOfRange("count", count)
	}

	return Create(func(observer Observer[T]) Disposable {
		var queue []T
		return source.Subscribe(NewObserver(
			func(value T) {
				queue = append(queue, value)
				if len(queue) > count {
					head := queue[0]
					queue = queue[1:]
					observer.OnNext(head)
				}
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// ============================================================================
// 其他工具操作符
// ============================================================================

// Materialize 把通知转换为值，源终止后完成
func Materialize[T any](source Observable[T]) Observable[Notification[T]] {
	if source == nil {
		argumentNil("source")
	}

	return Create(func(observer Observer[Notification[T]]) Disposable {
		return source.Subscribe(NewObserver(
			func(value T) {
				observer.OnNext(NextNotification(value))
			},
			func(err error) {
				observer.OnNext(ErrorNotification[T](err))
				observer.OnCompleted()
			},
			func() {
				observer.OnNext(CompletedNotification[T]())
				observer.OnCompleted()
			},
		))
	})
}

// Dematerialize 把通知值还原为通知
func Dematerialize[T any](source Observable[Notification[T]]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}

	return Create(func(observer Observer[T]) Disposable {
		return source.Subscribe(NewObserver(
			func(n Notification[T]) {
				n.Accept(observer)
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// DefaultIfEmpty 源为空时发射默认值
func DefaultIfEmpty[T any](source Observable[T], defaultValue T) Observable[T] {
	if source == nil {
		argumentNil("source")
	}

	return Create(func(observer Observer[T]) Disposable {
		empty := true
		return source.Subscribe(NewObserver(
			func(value T) {
				empty = false
				observer.OnNext(value)
			},
			observer.OnError,
			func() {
				if empty {
					observer.OnNext(defaultValue)
				}
				observer.OnCompleted()
			},
		))
	})
}

// IgnoreElements 忽略所有值，只转发终止通知
func IgnoreElements[T any](source Observable[T]) Observable[T] {
	if source == nil {
		argumentNil("source")
	}

	return Create(func(observer Observer[T]) Disposable {
		return source.Subscribe(NewObserver(
			func(T) {},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}
