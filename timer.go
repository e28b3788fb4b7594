package sham

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// tick 是时钟中断处理程序的主体，在中断上下文里跑：
// 走时、记账、时间片到了就请求让出、MLFQS 更新、唤醒到点的睡眠线程。
func (os *OS) tick() {
	os.CPU.Clock++
	now := os.CPU.Clock

	if os.CPU.Thread == os.idle {
		os.idleTicks++
	} else {
		os.kernelTicks++
	}

	os.threadTicks++
	if os.threadTicks >= TimeSlice {
		os.CPU.YieldOnReturn()
	}

	if os.conf.MLFQS {
		os.mlfqsTick(now)
	}

	os.wakeDue(now)
	os.checkPreempt()

	if os.conf.MaxTicks > 0 && now >= os.conf.MaxTicks {
		os.fail(ErrTickLimit)
	}
}

// Ticks 开机以来的 tick 数
func (os *OS) Ticks() int64 {
	old := os.CPU.Disable()
	t := os.CPU.Clock
	os.CPU.SetLevel(old)
	return t
}

// Elapsed 从 then 到现在过了多少 tick
func (os *OS) Elapsed(then int64) int64 {
	return os.Ticks() - then
}

// Sleep 让当前线程睡 ticks 个 tick（timer_sleep）
func (os *OS) Sleep(ticks int64) {
	if ticks <= 0 {
		return
	}
	os.SleepUntil(os.Ticks() + ticks)
}

// SleepUntil 让当前线程睡到第 wake 个 tick，到点的那个时钟中断会把它放回就绪队列。
// wake 不在将来就直接返回。睡眠不能被打断。
func (os *OS) SleepUntil(wake int64) {
	os.assert(!os.CPU.InExternal(), "sleep in interrupt context")

	old := os.CPU.Disable()
	cur := os.Current()
	os.assert(cur != os.idle, "idle thread cannot sleep")

	if wake <= os.CPU.Clock {
		os.CPU.SetLevel(old)
		return
	}

	cur.wakeTime = wake
	os.sleeping.InsertOrdered(&cur.elem, earlierWake)
	if wake < os.nextWake {
		os.nextWake = wake
	}
	os.emit(EventSleep, cur)
	os.Block()

	os.CPU.SetLevel(old)
}

// NextWakeTick 睡眠队列里最早的唤醒时间，没人睡时是 math.MaxInt64
func (os *OS) NextWakeTick() int64 {
	old := os.CPU.Disable()
	n := os.nextWake
	os.CPU.SetLevel(old)
	return n
}

// wakeDue 把所有到点（wakeTime <= now）的睡眠线程放回就绪队列。
// 每个 tick 都会调，所以还没到最早的唤醒时间时直接返回。
func (os *OS) wakeDue(now int64) {
	if now < os.nextWake {
		return
	}

	for e := os.sleeping.Front(); e != nil && e.Value.wakeTime <= now; e = os.sleeping.Front() {
		t := os.sleeping.Remove(e)
		os.log.WithFields(log.Fields{
			"tick":      now,
			"thread":    t,
			"wake_time": t.wakeTime,
		}).Debug("[TIMER] Wake")
		os.emit(EventWake, t)
		os.Unblock(t)
	}

	if e := os.sleeping.Front(); e != nil {
		os.nextWake = e.Value.wakeTime
	} else {
		os.nextWake = math.MaxInt64
	}
}
