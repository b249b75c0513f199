// Aggregation operators for RxGo
// 聚合操作符实现，包含Aggregate, Reduce, Scan, Count, Min, Max等
package rxgo

import (
	"cmp"
)

// Number 可求和的数值类型
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// ============================================================================
// 累加操作符
// ============================================================================

// Aggregate 从种子开始累加所有值，源完成时发射结果并完成；空序列发射种子
func Aggregate[T, A any](source Observable[T], seed A, accumulator func(A, T) (A, error)) Observable[A] {
	return AggregateWithResult(source, seed, accumulator, func(acc A) (A, error) {
		return acc, nil
	})
}

// AggregateWithResult 累加后用 resultSelector 转换最终结果
func AggregateWithResult[T, A, R any](source Observable[T], seed A, accumulator func(A, T) (A, error), resultSelector func(A) (R, error)) Observable[R] {
	if source == nil {
		argumentNil("source")
	}
	if accumulator == nil {
		argumentNil("accumulator")
	}
	if resultSelector == nil {
		argumentNil("resultSelector")
	}

	return Create(func(observer Observer[R]) Disposable {
		acc := seed
		done := false
		return source.Subscribe(NewObserver(
			func(value T) {
				if done {
					return
				}
				next, err := accumulator(acc, value)
				if err != nil {
					done = true
					observer.OnError(err)
					return
				}
				acc = next
			},
			observer.OnError,
			func() {
				if done {
					return
				}
				result, err := resultSelector(acc)
				if err != nil {
					observer.OnError(err)
					return
				}
				observer.OnNext(result)
				observer.OnCompleted()
			},
		))
	})
}

// Reduce 无种子累加，第一个值作为初始累加值；空序列以 ErrSequenceEmpty 终止
func Reduce[T any](source Observable[T], accumulator func(T, T) (T, error)) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if accumulator == nil {
		argumentNil("accumulator")
	}

	return Create(func(observer Observer[T]) Disposable {
		var acc T
		has := false
		done := false
		return source.Subscribe(NewObserver(
			func(value T) {
				if done {
					return
				}
				if !has {
					acc = value
					has = true
					return
				}
				next, err := accumulator(acc, value)
				if err != nil {
					done = true
					observer.OnError(err)
					return
				}
				acc = next
			},
			observer.OnError,
			func() {
				if !has {
					observer.OnError(ErrSequenceEmpty)
					return
				}
				observer.OnNext(acc)
				observer.OnCompleted()
			},
		))
	})
}

// Scan 从种子开始累加，发射每一步的累加结果
func Scan[T, A any](source Observable[T], seed A, accumulator func(A, T) (A, error)) Observable[A] {
	if source == nil {
		argumentNil("source")
	}
	if accumulator == nil {
		argumentNil("accumulator")
	}

	return Create(func(observer Observer[A]) Disposable {
		acc := seed
		done := false
		return source.Subscribe(NewObserver(
			func(value T) {
				if done {
					return
				}
				next, err := accumulator(acc, value)
				if err != nil {
					done = true
					observer.OnError(err)
					return
				}
				acc = next
				observer.OnNext(acc)
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// ScanNoSeed 无种子累加，第一个值原样发射
func ScanNoSeed[T any](source Observable[T], accumulator func(T, T) (T, error)) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if accumulator == nil {
		argumentNil("accumulator")
	}

	return Create(func(observer Observer[T]) Disposable {
		var acc T
		has := false
		done := false
		return source.Subscribe(NewObserver(
			func(value T) {
				if done {
					return
				}
				if !has {
					acc = value
					has = true
					observer.OnNext(acc)
					return
				}
				next, err := accumulator(acc, value)
				if err != nil {
					done = true
					observer.OnError(err)
					return
				}
				acc = next
				observer.OnNext(acc)
			},
			observer.OnError,
			observer.OnCompleted,
		))
	})
}

// ============================================================================
// 统计操作符
// ============================================================================

// Count 计数操作符
func Count[T any](source Observable[T]) Observable[int] {
	return Aggregate(source, 0, func(n int, _ T) (int, error) {
		return n + 1, nil
	})
}

// Sum 求和操作符，空序列发射0
func Sum[T Number](source Observable[T]) Observable[T] {
	return Aggregate(source, T(0), func(sum, value T) (T, error) {
		return sum + value, nil
	})
}

// Min 最小值操作符，空序列以 ErrSequenceEmpty 终止
func Min[T cmp.Ordered](source Observable[T]) Observable[T] {
	return Reduce(source, func(a, b T) (T, error) {
		return min(a, b), nil
	})
}

// Max 最大值操作符，空序列以 ErrSequenceEmpty 终止
func Max[T cmp.Ordered](source Observable[T]) Observable[T] {
	return Reduce(source, func(a, b T) (T, error) {
		return max(a, b), nil
	})
}

// ============================================================================
// 判断操作符
// ============================================================================

// All 所有值都满足条件时发射true；遇到不满足的值立即发射false并完成
func All[T any](source Observable[T], predicate func(T) (bool, error)) Observable[bool] {
	return firstMatch(source, predicate, false)
}

// Any 存在满足条件的值时立即发射true并完成；否则完成时发射false
func Any[T any](source Observable[T], predicate func(T) (bool, error)) Observable[bool] {
	return firstMatch(source, predicate, true)
}

// Contains 是否包含指定值
func Contains[T comparable](source Observable[T], value T) Observable[bool] {
	return Any(source, func(v T) (bool, error) {
		return v == value, nil
	})
}

// firstMatch predicate 结果等于 want 时发射 want 并完成，完成时仍未出现则发射 !want
func firstMatch[T any](source Observable[T], predicate func(T) (bool, error), want bool) Observable[bool] {
	if source == nil {
		argumentNil("source")
	}
	if predicate == nil {
		argumentNil("predicate")
	}

	return Create(func(observer Observer[bool]) Disposable {
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
				if ok == want {
					done = true
					observer.OnNext(want)
					observer.OnCompleted()
				}
			},
			observer.OnError,
			func() {
				observer.OnNext(!want)
				observer.OnCompleted()
			},
		))
	})
}

// ============================================================================
// 元素操作符
// ============================================================================

// First 发射第一个值并完成，空序列以 ErrSequenceEmpty 终止
func First[T any](source Observable[T]) Observable[T] {
	return ElementAt(source, 0)
}

// Last 发射最后一个值，空序列以 ErrSequenceEmpty 终止
func Last[T any](source Observable[T]) Observable[T] {
	return Reduce(source, func(_, value T) (T, error) {
		return value, nil
	})
}

// ElementAt 发射指定索引的值并完成，序列不够长时以 ErrSequenceEmpty 终止
func ElementAt[T any](source Observable[T], index int) Observable[T] {
	if source == nil {
		argumentNil("source")
	}
	if index < 0 {
		argumentOutOfRange("index", index)
	}

	return Create(func(observer Observer[T]) Disposable {
		i := 0
		return source.Subscribe(NewObserver(
			func(value T) {
				if i == index {
					observer.OnNext(value)
					observer.OnCompleted()
				}
				i++
			},
			observer.OnError,
			func() {
				observer.OnError(ErrSequenceEmpty)
			},
		))
	})
}
