// Virtual time scheduler for RxGo
// 虚拟时间调度器：逻辑时钟驱动，执行顺序完全确定，用于可重复的时间测试
package rxgo

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// VirtualTimeState 虚拟时间调度器状态
type VirtualTimeState int32

const (
	// VirtualTimeCreated 已创建，尚未运行
	VirtualTimeCreated VirtualTimeState = iota
	// VirtualTimeRunning 正在执行队列中的动作
	VirtualTimeRunning
	// VirtualTimeStopped 已停止，可再次启动
	VirtualTimeStopped
)

func (s VirtualTimeState) String() string {
	switch s {
	case VirtualTimeCreated:
		return "created"
	case VirtualTimeRunning:
		return "running"
	case VirtualTimeStopped:
		return "stopped"
	}
	return fmt.Sprintf("VirtualTimeState(%d)", int32(s))
}

// VirtualTimeScheduler 虚拟时间调度器。
// 时钟单位为tick，对 Scheduler 接口而言一个tick等于一纳秒。
type VirtualTimeScheduler struct {
	mu           sync.Mutex
	clock        int64
	queue        scheduledQueue
	state        VirtualTimeState
	pastDueDelay int64
}

// VirtualTimeOption 虚拟时间调度器选项
type VirtualTimeOption func(*VirtualTimeScheduler)

// WithPastDueDelay 到期时间不晚于当前时钟的动作改为在 clock+ticks 执行；
// 0 表示立即按入队顺序执行
func WithPastDueDelay(ticks int64) VirtualTimeOption {
	return func(s *VirtualTimeScheduler) {
		if ticks < 0 {
			argumentOutOfRange("ticks", ticks)
		}
		s.pastDueDelay = ticks
	}
}

// WithInitialClock 设置初始时钟
func WithInitialClock(ticks int64) VirtualTimeOption {
	return func(s *VirtualTimeScheduler) { s.clock = ticks }
}

// NewVirtualTimeScheduler 创建虚拟时间调度器
func NewVirtualTimeScheduler(opts ...VirtualTimeOption) *VirtualTimeScheduler {
	s := &VirtualTimeScheduler{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock 当前虚拟时钟
func (s *VirtualTimeScheduler) Clock() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// State 当前状态
func (s *VirtualTimeScheduler) State() VirtualTimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Now 以时间形式返回虚拟时钟
func (s *VirtualTimeScheduler) Now() time.Time {
	return time.Unix(0, s.Clock()).UTC()
}

// Schedule 在当前虚拟时刻调度动作
func (s *VirtualTimeScheduler) Schedule(action func()) Disposable {
	return s.ScheduleRelative(0, action)
}

// ScheduleWithDelay 延迟调度动作，一纳秒对应一个tick
func (s *VirtualTimeScheduler) ScheduleWithDelay(action func(), delay time.Duration) Disposable {
	return s.ScheduleRelative(int64(delay), action)
}

// ScheduleAt 在指定时刻调度动作
func (s *VirtualTimeScheduler) ScheduleAt(action func(), dueTime time.Time) Disposable {
	return s.ScheduleAbsolute(dueTime.UnixNano(), action)
}

// ScheduleRelative 在 clock+delay 调度动作
func (s *VirtualTimeScheduler) ScheduleRelative(delay int64, action func()) Disposable {
	if action == nil {
		argumentNil("action")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	return s.enqueueLocked(s.clock+delay, action)
}

// ScheduleAbsolute 在绝对虚拟时刻调度动作
func (s *VirtualTimeScheduler) ScheduleAbsolute(dueTime int64, action func()) Disposable {
	if action == nil {
		argumentNil("action")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(dueTime, action)
}

func (s *VirtualTimeScheduler) enqueueLocked(dueTime int64, action func()) Disposable {
	if dueTime <= s.clock {
		dueTime = s.clock + s.pastDueDelay
	}
	return s.queue.enqueue(dueTime, action)
}

// Start 依次执行最早到期的动作并推进时钟，直到队列为空或调用 Stop。
// 动作中的panic会传播给调用者，调度器回到停止状态且队列保持完整。
func (s *VirtualTimeScheduler) Start() {
	s.run(math.MaxInt64, false)
}

// StartUntil 与 Start 相同，但只执行到期时间不晚于 ceiling 的动作；
// 因为上限而停下时时钟停在 ceiling，之后的动作留在队列中
func (s *VirtualTimeScheduler) StartUntil(ceiling int64) {
	s.run(ceiling, false)
}

// run 执行到期时间不晚于 limit 的动作；advance 为true时结束后总是把时钟设为 limit
func (s *VirtualTimeScheduler) run(limit int64, advance bool) {
	s.mu.Lock()
	if s.state == VirtualTimeRunning {
		s.mu.Unlock()
		panic(ErrSchedulerRunning)
	}
	s.state = VirtualTimeRunning
	s.mu.Unlock()

	defer s.stopRunning()

	for {
		s.mu.Lock()
		if s.state != VirtualTimeRunning {
			if advance {
				s.clock = limit
			}
			s.mu.Unlock()
			return
		}
		next := s.queue.peek()
		if next == nil || next.due > limit {
			if advance || (next != nil && s.clock < limit) {
				s.clock = limit
			}
			s.mu.Unlock()
			return
		}
		s.queue.dequeue()
		if next.due > s.clock {
			s.clock = next.due
		}
		s.mu.Unlock()

		next.invoke()
	}
}

// Stop 停止执行，可在动作中调用
func (s *VirtualTimeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == VirtualTimeRunning {
		s.state = VirtualTimeStopped
	}
}

func (s *VirtualTimeScheduler) stopRunning() {
	s.mu.Lock()
	s.state = VirtualTimeStopped
	s.mu.Unlock()
}

// AdvanceTo 执行所有到期时间不晚于 t 的动作，然后把时钟设为 t
func (s *VirtualTimeScheduler) AdvanceTo(t int64) {
	if t < s.Clock() {
		argumentOutOfRange("time", t)
	}
	s.run(t, true)
}

// AdvanceBy 相对推进时钟
func (s *VirtualTimeScheduler) AdvanceBy(d time.Duration) {
	if d < 0 {
		argumentOutOfRange("duration", d)
	}
	s.AdvanceTo(s.Clock() + int64(d))
}

// Sleep 只推进时钟，不执行任何动作
func (s *VirtualTimeScheduler) Sleep(d time.Duration) {
	if d < 0 {
		argumentOutOfRange("duration", d)
	}
	s.mu.Lock()
	s.clock += int64(d)
	s.mu.Unlock()
}

// Pending 队列中尚未执行且未取消的动作数量
func (s *VirtualTimeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.queue.items {
		if !it.IsDisposed() {
			n++
		}
	}
	return n
}
