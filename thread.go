package sham

import (
	"fmt"

	"github.com/cdfmlr/sham/fixedpoint"
	"github.com/cdfmlr/sham/list"
)

// TID 线程号
type TID int

// TIDError 创建线程失败时返回
const TIDError TID = -1

// ThreadMagic 放在线程控制块里的哨兵值。
// 内核栈从页顶往下长，栈溢出会先踩坏它，Current() 每次都会检查。
const ThreadMagic uint32 = 0xcd6abf4b

// maxNameLen 线程名最多 15 字节
const maxNameLen = 15

// Status 线程状态
type Status int

const (
	StatusRunning Status = iota // 运行
	StatusReady                 // 就绪，在就绪队列里
	StatusBlocked               // 阻塞：等信号量/锁，或者在睡眠
	StatusDying                 // 已退出，等下一个线程回收它的页
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusReady:
		return "ready"
	case StatusBlocked:
		return "blocked"
	case StatusDying:
		return "dying"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ThreadFunc 是线程要跑的函数，aux 是 Create 时传进来的参数
type ThreadFunc func(aux any)

// Thread 线程：是一个可以在 CPU 里跑的东西。
// 这就是线程控制块（TCB），概念上放在它自己那一页的页底。
type Thread struct {
	tid    TID
	status Status
	name   string

	// priority 有效优先级，调度器比较的就是它
	priority int
	// originalPriority 最近一次 SetPriority（或创建时）设的基础优先级，捐赠不会改它
	originalPriority int

	// MLFQS 用
	nice      int
	recentCPU fixedpoint.FP

	// wakeTime 睡眠到哪个 tick，只在睡眠队列里时有意义
	wakeTime int64

	// wantLock 正在等的锁
	wantLock *Lock
	// donations 给我捐过优先级、还在等我手里的锁的线程，按优先级降序
	donations list.List[*Thread]

	// elem 挂在就绪队列、睡眠队列或者某个信号量的等待队列上，同一时刻只能在一个上
	elem list.Elem[*Thread]
	// donationElem 挂在锁持有者的 donations 上
	donationElem list.Elem[*Thread]
	// allElem 挂在所有线程的链表上
	allElem list.Elem[*Thread]

	page *Page
	fn   ThreadFunc
	aux  any

	// entry 是背后 goroutine 的入口，第一次被调度时才启动
	entry   func()
	started bool
	// wake 收到许可就可以接着跑
	wake chan struct{}

	magic uint32
}

// newThread 就是 init_thread：初始化一个阻塞状态的线程控制块
func newThread(name string, priority int, page *Page) *Thread {
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	t := &Thread{
		status:           StatusBlocked,
		name:             name,
		priority:         priority,
		originalPriority: priority,
		nice:             NiceDefault,
		page:             page,
		wake:             make(chan struct{}, 1),
		magic:            ThreadMagic,
	}
	t.donations.Init()
	t.elem.Value = t
	t.donationElem.Value = t
	t.allElem.Value = t
	return t
}

func (t *Thread) isThread() bool {
	return t != nil && t.magic == ThreadMagic
}

// TID 线程号
func (t *Thread) TID() TID { return t.tid }

// Name 线程名
func (t *Thread) Name() string { return t.name }

// Status 线程状态
func (t *Thread) Status() Status { return t.status }

// Priority 有效优先级
func (t *Thread) Priority() int { return t.priority }

// OriginalPriority 基础优先级
func (t *Thread) OriginalPriority() int { return t.originalPriority }

// Nice 返回 nice 值
func (t *Thread) Nice() int { return t.nice }

// RecentCPU 返回 recent_cpu
func (t *Thread) RecentCPU() fixedpoint.FP { return t.recentCPU }

// WakeTime 睡眠的唤醒 tick
func (t *Thread) WakeTime() int64 { return t.wakeTime }

// WantLock 正在等的锁，没有就是 nil
func (t *Thread) WantLock() *Lock { return t.wantLock }

func (t *Thread) String() string {
	return fmt.Sprintf("%s(%d)", t.name, t.tid)
}

// 链表用的比较函数

func higherPriority(a, b *Thread) bool { return a.priority > b.priority }

func lowerPriority(a, b *Thread) bool { return a.priority < b.priority }

func earlierWake(a, b *Thread) bool { return a.wakeTime < b.wakeTime }

func clampPriority(p int) int {
	if p < PriMin {
		return PriMin
	}
	if p > PriMax {
		return PriMax
	}
	return p
}

func clampNice(n int) int {
	if n < NiceMin {
		return NiceMin
	}
	if n > NiceMax {
		return NiceMax
	}
	return n
}
