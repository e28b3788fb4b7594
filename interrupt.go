package sham

import log "github.com/sirupsen/logrus"

// InterruptHandler 是「中断处理程序」。
// 它跑在中断上下文里：关着中断，不能阻塞，只能 Unblock 线程、
// 请求 YieldOnReturn，或者通过内核提供的原语改就绪/睡眠队列。
type InterruptHandler func(os *OS)

// ClockInterrupt 时钟中断，每个 tick 一次
const ClockInterrupt = "ClockInterrupt"

// RegisterInterrupt 注册一个外部中断类型。
// 模拟里的「设备」通过 Raise 触发它。
func (os *OS) RegisterInterrupt(typ string, handler InterruptHandler) {
	os.interrupts[typ] = handler
}

// Raise 在当前线程上处理一次 typ 外部中断，只能在开中断时调用
// （中断不会嵌套，关中断时也到不了）。
//
// 处理程序请求了 YieldOnReturn 的话，中断返回前当前线程让出 CPU。
func (os *OS) Raise(typ string) {
	handler, ok := os.interrupts[typ]
	os.assert(ok, "unknown interrupt %q", typ)
	os.assert(!os.CPU.InExternal(), "nested external interrupt %q", typ)

	old := os.CPU.Disable()
	os.assert(old == IntrOn, "interrupt %q delivered with interrupts off", typ)

	if typ != ClockInterrupt {
		os.log.WithFields(log.Fields{
			"tick":   os.CPU.Clock,
			"thread": os.CPU.Thread,
		}).Debug("[INT] Handle ", typ)
	}

	os.CPU.inExternal = true
	os.CPU.yieldOnReturn = false
	handler(os)
	os.CPU.inExternal = false

	if os.CPU.yieldOnReturn {
		os.CPU.yieldOnReturn = false
		os.Yield()
	}
	os.CPU.SetLevel(old)
}

// Commit 当前线程做完一个 tick 的工作。时钟中断就在这里到达，
// 所以 Commit 是线程被时间片抢占、被唤醒的高优先级线程抢占的地方。
func (os *OS) Commit() {
	os.Raise(ClockInterrupt)
}

// Busy 连续 Commit ticks 次，即忙等 ticks 个 tick
func (os *OS) Busy(ticks int) {
	for i := 0; i < ticks; i++ {
		os.Commit()
	}
}

// HandleClockInterrupt 处理时钟中断
func HandleClockInterrupt(os *OS) {
	os.tick()
}
