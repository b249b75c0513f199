// Package rxtest provides a virtual-time test harness for RxGo
// 虚拟时间测试工具：测试调度器、热/冷Observable、记录观察者与断言
package rxtest

import (
	"fmt"
	"math"

	rxgo "github.com/xinjiayu/rxgo/v2"
)

// Infinite 尚未取消的订阅的 Unsubscribe 时刻
const Infinite int64 = math.MaxInt64

// Recorded 带虚拟时间的通知
type Recorded[T any] struct {
	Time  int64
	Value rxgo.Notification[T]
}

func (r Recorded[T]) String() string {
	return fmt.Sprintf("%v@%d", r.Value, r.Time)
}

// Subscription 一次订阅的虚拟时间区间
type Subscription struct {
	Subscribe   int64
	Unsubscribe int64
}

func (s Subscription) String() string {
	if s.Unsubscribe == Infinite {
		return fmt.Sprintf("(%d, Infinite)", s.Subscribe)
	}
	return fmt.Sprintf("(%d, %d)", s.Subscribe, s.Unsubscribe)
}

// OnNext 在 t 时刻的值通知
func OnNext[T any](t int64, value T) Recorded[T] {
	return Recorded[T]{Time: t, Value: rxgo.NextNotification(value)}
}

// OnError 在 t 时刻的错误通知
func OnError[T any](t int64, err error) Recorded[T] {
	return Recorded[T]{Time: t, Value: rxgo.ErrorNotification[T](err)}
}

// OnCompleted 在 t 时刻的完成通知
func OnCompleted[T any](t int64) Recorded[T] {
	return Recorded[T]{Time: t, Value: rxgo.CompletedNotification[T]()}
}

// Subscribe 订阅区间 [subscribe, unsubscribe]；省略 unsubscribe 表示尚未取消
func Subscribe(subscribe int64, unsubscribe ...int64) Subscription {
	s := Subscription{Subscribe: subscribe, Unsubscribe: Infinite}
	if len(unsubscribe) > 0 {
		s.Unsubscribe = unsubscribe[0]
	}
	return s
}
