// Disposable primitives for RxGo
// 可释放资源：基础、组合、串行、单次赋值
package rxgo

import (
	"sync"
	"sync/atomic"
)

// Disposable 可释放资源的接口
type Disposable interface {
	// Dispose 释放资源，可重复、可并发调用
	Dispose()
	// IsDisposed 检查是否已释放
	IsDisposed() bool
}

// ============================================================================
// 基础可释放资源
// ============================================================================

// baseDisposable 基础可释放资源实现
type baseDisposable struct {
	disposed int32
	action   func()
}

// NewBaseDisposable 创建基础可释放资源，action 最多执行一次
func NewBaseDisposable(action func()) Disposable {
	return &baseDisposable{
		action: action,
	}
}

// Dispose 释放资源
func (d *baseDisposable) Dispose() {
	if atomic.CompareAndSwapInt32(&d.disposed, 0, 1) {
		if d.action != nil {
			d.action()
		}
	}
}

// IsDisposed 检查是否已释放
func (d *baseDisposable) IsDisposed() bool {
	return atomic.LoadInt32(&d.disposed) == 1
}

// EmptyDisposable 什么也不做的可释放资源
func EmptyDisposable() Disposable {
	return NewBaseDisposable(nil)
}

// ============================================================================
// 组合式资源管理器
// ============================================================================

// CompositeDisposable 组合式资源管理器
type CompositeDisposable struct {
	mu        sync.Mutex
	disposed  bool
	reversed  bool
	resources []Disposable
}

// NewCompositeDisposable 创建组合式资源管理器，按插入顺序释放
func NewCompositeDisposable(disposables ...Disposable) *CompositeDisposable {
	cd := &CompositeDisposable{
		resources: make([]Disposable, 0, len(disposables)),
	}
	for _, d := range disposables {
		cd.Add(d)
	}
	return cd
}

// NewReversedCompositeDisposable 创建按插入逆序释放的组合式资源管理器
func NewReversedCompositeDisposable(disposables ...Disposable) *CompositeDisposable {
	cd := NewCompositeDisposable(disposables...)
	cd.reversed = true
	return cd
}

// Add 添加可释放资源；已释放时立即释放该资源
func (cd *CompositeDisposable) Add(disposable Disposable) {
	if disposable == nil {
		return
	}

	cd.mu.Lock()
	if cd.disposed {
		cd.mu.Unlock()
		disposable.Dispose()
		return
	}
	cd.resources = append(cd.resources, disposable)
	cd.mu.Unlock()
}

// Remove 移除并释放资源，返回是否找到
func (cd *CompositeDisposable) Remove(disposable Disposable) bool {
	cd.mu.Lock()
	found := false
	for i, d := range cd.resources {
		if d == disposable {
			cd.resources = append(cd.resources[:i:i], cd.resources[i+1:]...)
			found = true
			break
		}
	}
	cd.mu.Unlock()

	if found {
		disposable.Dispose()
	}
	return found
}

// Len 当前持有的资源数量
func (cd *CompositeDisposable) Len() int {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return len(cd.resources)
}

// Dispose 释放所有资源，锁外执行子资源的释放
func (cd *CompositeDisposable) Dispose() {
	cd.mu.Lock()
	if cd.disposed {
		cd.mu.Unlock()
		return
	}
	cd.disposed = true
	resources := cd.resources
	cd.resources = nil
	cd.mu.Unlock()

	if cd.reversed {
		for i := len(resources) - 1; i >= 0; i-- {
			resources[i].Dispose()
		}
		return
	}
	for _, resource := range resources {
		resource.Dispose()
	}
}

// IsDisposed 检查是否已释放
func (cd *CompositeDisposable) IsDisposed() bool {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.disposed
}

// ============================================================================
// 串行资源
// ============================================================================

// SerialDisposable 持有一个可替换的资源，替换时释放旧资源
type SerialDisposable struct {
	mu       sync.Mutex
	disposed bool
	current  Disposable
}

// NewSerialDisposable 创建串行资源
func NewSerialDisposable() *SerialDisposable {
	return &SerialDisposable{}
}

// Set 替换当前资源并释放旧资源；已释放时立即释放新资源
func (sd *SerialDisposable) Set(disposable Disposable) {
	sd.mu.Lock()
	if sd.disposed {
		sd.mu.Unlock()
		if disposable != nil {
			disposable.Dispose()
		}
		return
	}
	previous := sd.current
	sd.current = disposable
	sd.mu.Unlock()

	if previous != nil {
		previous.Dispose()
	}
}

// Get 返回当前资源
func (sd *SerialDisposable) Get() Disposable {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.current
}

// Dispose 释放当前资源
func (sd *SerialDisposable) Dispose() {
	sd.mu.Lock()
	if sd.disposed {
		sd.mu.Unlock()
		return
	}
	sd.disposed = true
	current := sd.current
	sd.current = nil
	sd.mu.Unlock()

	if current != nil {
		current.Dispose()
	}
}

// IsDisposed 检查是否已释放
func (sd *SerialDisposable) IsDisposed() bool {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.disposed
}

// ============================================================================
// 单次赋值资源
// ============================================================================

// SingleAssignmentDisposable 只允许赋值一次的资源容器
type SingleAssignmentDisposable struct {
	mu       sync.Mutex
	disposed bool
	assigned bool
	current  Disposable
}

// NewSingleAssignmentDisposable 创建单次赋值资源
func NewSingleAssignmentDisposable() *SingleAssignmentDisposable {
	return &SingleAssignmentDisposable{}
}

// Set 赋值；重复赋值会panic，已释放时立即释放该资源
func (sd *SingleAssignmentDisposable) Set(disposable Disposable) {
	sd.mu.Lock()
	if sd.assigned {
		sd.mu.Unlock()
		panic(ErrDisposableAlreadySet)
	}
	sd.assigned = true
	if sd.disposed {
		sd.mu.Unlock()
		if disposable != nil {
			disposable.Dispose()
		}
		return
	}
	sd.current = disposable
	sd.mu.Unlock()
}

// Dispose 释放资源
func (sd *SingleAssignmentDisposable) Dispose() {
	sd.mu.Lock()
	if sd.disposed {
		sd.mu.Unlock()
		return
	}
	sd.disposed = true
	current := sd.current
	sd.current = nil
	sd.mu.Unlock()

	if current != nil {
		current.Dispose()
	}
}

// IsDisposed 检查是否已释放
func (sd *SingleAssignmentDisposable) IsDisposed() bool {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.disposed
}
