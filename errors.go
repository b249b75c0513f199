// Error types for RxGo
// 错误类型定义：参数错误、序列错误、超时错误
package rxgo

import (
	"errors"
	"fmt"
)

var (
	// ErrSequenceEmpty 序列没有任何元素（例如无种子的Reduce作用于空序列）
	ErrSequenceEmpty = errors.New("rxgo: sequence contains no elements")

	// ErrSchedulerRunning 虚拟时间调度器已在运行
	ErrSchedulerRunning = errors.New("rxgo: virtual time scheduler is already running")

	// ErrDisposableAlreadySet SingleAssignmentDisposable 只能赋值一次
	ErrDisposableAlreadySet = errors.New("rxgo: disposable has already been assigned")

	// ErrTimeout 超时
	ErrTimeout = errors.New("rxgo: sequence timed out")
)

// ArgumentError 参数错误，在构造操作符时同步抛出（panic），先于任何订阅
type ArgumentError struct {
	Param   string
	Message string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("rxgo: invalid argument %q: %s", e.Param, e.Message)
}

// argumentNil 参数为nil时panic
func argumentNil(param string) {
	panic(&ArgumentError{Param: param, Message: "must not be nil"})
}

// argumentOutOfRange 参数越界时panic
func argumentOutOfRange(param string, value any) {
	panic(&ArgumentError{Param: param, Message: fmt.Sprintf("out of range: %v", value)})
}

// TimeoutError 超时错误，包装 ErrTimeout
type TimeoutError struct {
	DueTime string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rxgo: no notification within %s", e.DueTime)
}

// Unwrap 使 errors.Is(err, ErrTimeout) 成立
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// PanicError 调度器工作goroutine中恢复的panic
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("rxgo: scheduled action panicked: %v", e.Value)
}
