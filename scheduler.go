package sham

import (
	log "github.com/sirupsen/logrus"
)

// schedule 完成调度：从就绪队列里取优先级最高的线程（没有就跑 idle），
// 标成运行状态，和当前线程不同就切换过去。
//
// 调用时必须关中断，而且当前线程已经不是 StatusRunning 了。
// 返回时已经回到了当前线程（它又被调度到了）。
func (os *OS) schedule() {
	cur := os.CPU.Thread

	os.assert(os.CPU.Level() == IntrOff, "schedule with interrupts on")
	os.assert(cur.status != StatusRunning, "schedule from running thread %v", cur)
	os.assert(cur.isThread(), "stack overflow: thread magic corrupted in %p", cur)

	next := os.nextThreadToRun()
	os.assert(next.isThread(), "no thread to run")

	next.status = StatusRunning
	os.CPU.Thread = next
	os.threadTicks = 0

	if cur != next {
		os.emit(EventSchedule, next)
		prev := os.CPU.Switch(cur, next)
		os.scheduleTail(prev)
	}
}

// nextThreadToRun 就绪队列为空时返回 idle
func (os *OS) nextThreadToRun() *Thread {
	if os.ready.Empty() {
		return os.idle
	}
	return os.ready.PopFront().Value
}

// scheduleTail 在切换进来的线程里收尾：回收刚刚退出的 prev 的页
func (os *OS) scheduleTail(prev *Thread) {
	if prev == nil || prev == os.CPU.Thread || prev.status != StatusDying {
		return
	}
	os.log.WithFields(log.Fields{
		"tick":   os.CPU.Clock,
		"thread": prev,
		"page":   prev.page,
	}).Debug("[SCHED] Reclaim dying thread")

	os.Mem.FreePage(prev.page)
	prev.page = nil
	// 回收以后再被当成线程用就能查出来
	prev.magic = 0
}

// outranked 报告就绪队列里有没有线程该抢占当前线程。必须关中断调用。
func (os *OS) outranked() bool {
	if os.ready.Empty() {
		return false
	}
	cur := os.CPU.Thread
	if cur == os.idle {
		return true
	}
	return os.ready.Front().Value.priority > cur.priority
}

// checkPreempt 就绪队列里有比当前线程优先级更高的，就让出 CPU。
// 中断上下文里不能直接让出，改成中断返回前让出。
func (os *OS) checkPreempt() {
	old := os.CPU.Disable()
	preempt := os.outranked()
	os.CPU.SetLevel(old)

	if !preempt {
		return
	}
	if os.CPU.InExternal() {
		os.CPU.YieldOnReturn()
		return
	}
	os.Yield()
}

// reposition 线程优先级变了，如果它在就绪队列里，重新排它的位置
func (os *OS) reposition(t *Thread) {
	if t.status != StatusReady || t == os.idle || t.elem.List() != &os.ready {
		return
	}
	os.ready.Remove(&t.elem)
	os.ready.InsertOrdered(&t.elem, higherPriority)
}

// idleLoop 是 idle 线程：就绪队列为空时才会跑到它。
// 它从来不在就绪队列里（除了刚创建时那一次），每次被调度到就马上阻塞，
// 然后开着中断停机等下一个中断。
func (os *OS) idleLoop(aux any) {
	aux.(*Semaphore).Up()

	for {
		os.CPU.Disable()
		os.Block()

		os.CPU.Enable()
		os.hlt()
	}
}

// hlt 模拟开中断停机：等下一个中断到来。这里下一个中断就是时钟。
// 谁都不就绪、也没有人在睡，就永远不会有中断唤醒任何线程了。
func (os *OS) hlt() {
	old := os.CPU.Disable()
	stuck := os.ready.Empty() && os.sleeping.Empty()
	os.CPU.SetLevel(old)

	if stuck {
		os.fail(ErrDeadlock)
	}
	os.Raise(ClockInterrupt)
}
