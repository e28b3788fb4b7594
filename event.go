package sham

// EventKind 调度事件的类型
type EventKind string

// 所有调度事件
const (
	EventCreate   EventKind = "create"   // 线程创建
	EventSchedule EventKind = "schedule" // 线程拿到 CPU
	EventBlock    EventKind = "block"    // 线程阻塞
	EventUnblock  EventKind = "unblock"  // 线程进入就绪队列
	EventSleep    EventKind = "sleep"    // 线程开始睡眠
	EventWake     EventKind = "wake"     // 睡眠到点
	EventDonate   EventKind = "donate"   // 收到优先级捐赠
	EventPriority EventKind = "priority" // 有效优先级变化（set_priority / 归还捐赠 / MLFQS）
	EventExit     EventKind = "exit"     // 线程退出
)

// Event 是一个调度事件
type Event struct {
	Tick     int64
	Kind     EventKind
	TID      TID
	Name     string
	Priority int
}

// Observer 接收调度事件。
// Observe 在关中断的内核路径里被调用：不能阻塞，也不能回调内核。
type Observer interface {
	Observe(e Event)
}

// ObserverFunc 让普通函数当 Observer 用
type ObserverFunc func(e Event)

// Observe 实现 Observer
func (f ObserverFunc) Observe(e Event) { f(e) }
