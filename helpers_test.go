package rxgo_test

import (
	"sync"
)

// recorder 记录收到的通知
type recorder[T any] struct {
	mu        sync.Mutex
	values    []T
	err       error
	completed bool
	terminals int
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{}
}

func (r *recorder[T]) OnNext(value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, value)
}

func (r *recorder[T]) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.terminals++
}

func (r *recorder[T]) OnCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = true
	r.terminals++
}

func (r *recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func (r *recorder[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *recorder[T]) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

func (r *recorder[T]) Terminals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminals
}
