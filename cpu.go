package sham

import (
	"runtime"
	"sync"
)

// IntrLevel 中断开关状态
type IntrLevel int

const (
	IntrOff IntrLevel = iota // 关中断
	IntrOn                   // 开中断
)

func (l IntrLevel) String() string {
	if l == IntrOn {
		return "on"
	}
	return "off"
}

// CPU 处理器：是一个模拟的「CPU」。
// 单核，某一时刻只有 Thread 指向的那个线程在跑。
//
// 每个线程背后是一个 goroutine，但同一时刻只有持有 CPU 的那个 goroutine 在动，
// 其他的都停在自己的 wake 信道上。上下文切换就是把「许可」交给下一个线程，
// 然后自己停下来等。所以内核的状态不需要额外的锁：关中断就是唯一的临界区。
type CPU struct {
	// Thread 正在运行的线程
	Thread *Thread
	// Clock 开机以来的 tick 数
	Clock int64
	// Switches 上下文切换次数
	Switches int64

	level         IntrLevel
	inExternal    bool
	yieldOnReturn bool

	// from 是最近一次 Switch 的 prev，由被切换进来的线程取走
	from *Thread

	off     chan struct{}
	offOnce sync.Once
}

func newCPU() CPU {
	return CPU{
		level: IntrOff,
		off:   make(chan struct{}),
	}
}

// Level 当前中断状态
func (c *CPU) Level() IntrLevel {
	return c.level
}

// SetLevel 设置中断状态，返回原来的状态
func (c *CPU) SetLevel(level IntrLevel) IntrLevel {
	old := c.level
	c.level = level
	return old
}

// Disable 关中断，返回原来的状态，用完要 SetLevel 恢复
func (c *CPU) Disable() IntrLevel {
	return c.SetLevel(IntrOff)
}

// Enable 开中断，返回原来的状态
func (c *CPU) Enable() IntrLevel {
	return c.SetLevel(IntrOn)
}

// InExternal 报告当前是否在处理外部中断（中断上下文）
func (c *CPU) InExternal() bool {
	return c.inExternal
}

// YieldOnReturn 在中断上下文里请求：中断返回前让出 CPU
func (c *CPU) YieldOnReturn() {
	c.yieldOnReturn = true
}

// Switch 把 CPU 从 prev 切换到 next，返回时已经回到了 prev 自己的 goroutine（即
// prev 又被调度到了），返回值是切换回来之前正在运行的那个线程。
// prev 如果是 StatusDying，这个函数不会返回。
//
// 调用时必须关中断。
func (c *CPU) Switch(prev, next *Thread) *Thread {
	// 交出许可以后就不能再碰 prev 的状态了，先记下来
	dying := prev.status == StatusDying
	c.from = prev
	c.Switches++

	if !next.started {
		next.started = true
		go next.entry()
	} else {
		next.wake <- struct{}{}
	}

	if dying {
		runtime.Goexit()
	}

	select {
	case <-prev.wake:
	case <-c.off:
		runtime.Goexit()
	}
	return c.from
}

// powerOff 关机：所有停着的线程 goroutine 都会退出。可以重复调用。
func (c *CPU) powerOff() {
	c.offOnce.Do(func() { close(c.off) })
}

// Halted 返回一个关机时会被关闭的信道
func (c *CPU) Halted() <-chan struct{} {
	return c.off
}
