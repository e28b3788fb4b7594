package sham

import (
	"fmt"
	"math"

	"github.com/cdfmlr/sham/fixedpoint"
	"github.com/cdfmlr/sham/list"
	log "github.com/sirupsen/logrus"
)

// OS 是模拟的「操作系统」，一个持有并管理 CPU、内存和所有线程的东西。
// 单核，抢占式，支持优先级调度 + 优先级捐赠，或者 MLFQS。
//
// 所有调度相关的状态（就绪队列、睡眠队列、线程的状态和优先级、捐赠关系）
// 都只在关中断时访问。
type OS struct {
	CPU CPU
	// Mem 线程控制块的页分配器，Boot 之前可以换掉
	Mem PageAllocator

	conf Config
	log  *log.Entry

	// ready 就绪队列，按优先级降序，同优先级 FIFO
	ready list.List[*Thread]
	// sleeping 睡眠队列，按 wakeTime 升序
	sleeping list.List[*Thread]
	// nextWake 睡眠队列队头的 wakeTime，没人睡就是 math.MaxInt64
	nextWake int64
	// all 所有活着的线程
	all list.List[*Thread]

	initial *Thread
	idle    *Thread
	nextTID TID

	loadAvg fixedpoint.FP

	// threadTicks 当前线程这个时间片用了几个 tick
	threadTicks int
	idleTicks   int64
	kernelTicks int64

	interrupts map[string]InterruptHandler

	booted bool
	err    error
}

// NewOS 按 conf 构建一个「操作系统」，还没开机。
// TimerFreq 为 0 时用 DefaultTimerFreq，Logger 为 nil 时用 DefaultLogger()。
// Pages 不补默认值：为 0 就是不限页数，要 DefaultPages 请从 DefaultConfig 开始填。
func NewOS(conf Config) *OS {
	def := DefaultConfig()
	if conf.TimerFreq == 0 {
		conf.TimerFreq = def.TimerFreq
	}
	if conf.Logger == nil {
		conf.Logger = DefaultLogger()
	}

	os := &OS{
		CPU:      newCPU(),
		Mem:      NewMemory(conf.Pages),
		conf:     conf,
		log:      log.NewEntry(conf.Logger),
		nextWake: math.MaxInt64,
		nextTID:  1,
	}
	os.ready.Init()
	os.sleeping.Init()
	os.all.Init()
	os.interrupts = map[string]InterruptHandler{
		ClockInterrupt: HandleClockInterrupt,
	}
	return os
}

// Config 返回启动配置
func (os *OS) Config() Config {
	return os.conf
}

// Boot 启动操作系统：把当前的启动上下文变成 main 线程，启动 idle 线程，
// 然后在 main 线程里跑 main(aux)。main 返回（或者调用 PowerOff、
// main 线程 Exit）就关机。
//
// Boot 阻塞到关机为止，返回内核 panic、死锁或者超出 tick 上限的错误，
// 正常关机返回 nil。
//
// 关机时还停着的线程的 goroutine 会直接退出，会跑它们的 defer：
// 这种线程的 defer 已经拿不到 CPU，不要再调用内核。
// 线程自己 Exit 或者返回时跑的 defer 没有这个限制。
func (os *OS) Boot(main ThreadFunc, aux any) error {
	if os.booted {
		return ErrAlreadyBooted
	}
	os.booted = true

	if err := os.conf.validate(); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	os.log.WithFields(log.Fields{
		"mlfqs":      os.conf.MLFQS,
		"timer_freq": os.conf.TimerFreq,
	}).Info("[OS] Boot")

	t := os.initThread(main, aux)
	if t == nil {
		return fmt.Errorf("%w: no page for the main thread", ErrKernelPanic)
	}
	go t.entry()

	<-os.CPU.Halted()
	return os.err
}

// initThread 就是 thread_init：把正在运行的代码包装成 main 线程
func (os *OS) initThread(main ThreadFunc, aux any) *Thread {
	os.CPU.Disable()

	page := os.Mem.AllocPage()
	if page == nil {
		return nil
	}
	t := newThread("main", PriDefault, page)
	t.tid = os.allocateTID()
	t.status = StatusRunning
	t.started = true
	t.fn = main
	t.aux = aux
	t.entry = func() { os.runMain(t) }

	os.all.PushBack(&t.allElem)
	os.initial = t
	os.CPU.Thread = t
	os.emit(EventCreate, t)
	return t
}

// runMain 是 main 线程的 goroutine
func (os *OS) runMain(t *Thread) {
	defer os.recoverPanic(t)

	os.start()
	if t.fn != nil {
		t.fn(t.aux)
	}
	os.PowerOff()
}

// start 就是 thread_start：创建 idle 线程，开中断，等 idle 跑起来
func (os *OS) start() {
	var idleStarted Semaphore
	idleStarted.Init(os, 0)

	idle := os.spawn("idle", PriMin, os.idleLoop, &idleStarted)
	if idle == nil {
		os.panicf("no page for the idle thread")
	}
	os.idle = idle

	os.CPU.Enable()
	idleStarted.Down()
}

// PowerOff 关机，不会返回。
// 当前线程的 defer 会先跑完（这时它还拿着 CPU），然后 Boot 返回。
func (os *OS) PowerOff() {
	panic(halt{})
}

// halt 是用来关机的 panic 值，err 为 nil 表示正常关机
type halt struct {
	err error
}

// kernelPanic 是断言失败的 panic 值
type kernelPanic struct {
	msg string
}

// fail 带着 err 关机，不会返回
func (os *OS) fail(err error) {
	panic(halt{err: err})
}

// panicf 内核 panic，不会返回
func (os *OS) panicf(format string, args ...any) {
	panic(kernelPanic{msg: fmt.Sprintf(format, args...)})
}

// assert 断言：违反约定就是内核 bug，直接 panic 关机
func (os *OS) assert(cond bool, format string, args ...any) {
	if !cond {
		os.panicf(format, args...)
	}
}

// recoverPanic 挂在每个线程 goroutine 的最外层：
// 线程里的任何 panic 都变成关机，Boot 返回对应的错误。
func (os *OS) recoverPanic(t *Thread) {
	r := recover()
	if r == nil {
		return
	}

	var err error
	switch v := r.(type) {
	case halt:
		err = v.err
	case kernelPanic:
		err = fmt.Errorf("%w: %s", ErrKernelPanic, v.msg)
	default:
		err = fmt.Errorf("%w: thread %v panicked: %v", ErrKernelPanic, t, v)
	}

	logger := os.log.WithFields(log.Fields{
		"tick":   os.CPU.Clock,
		"thread": os.CPU.Thread,
	})
	if err != nil {
		os.err = err
		logger.WithError(err).Error("[OS] Halt")
	}
	logger.Info("[OS] Power off")
	os.CPU.powerOff()
}

/********* 👇 SYSTEM CALLS 👇 ***************/

// Create 创建一个优先级为 priority 的线程 name，让它跑 fn(aux)，并放进就绪队列。
// 新线程的优先级比当前线程高的话，当前线程马上让出 CPU。
// 没有页可分配时返回 TIDError。
//
// priority 超出 [PriMin, PriMax] 会被截断。MLFQS 下 priority 被忽略，
// 新线程继承当前线程的 nice 和 recent_cpu，优先级按公式算。
func (os *OS) Create(name string, priority int, fn ThreadFunc, aux any) TID {
	t := os.spawn(name, priority, fn, aux)
	if t == nil {
		return TIDError
	}
	return t.tid
}

// spawn 是 Create 的实现，返回新线程
func (os *OS) spawn(name string, priority int, fn ThreadFunc, aux any) *Thread {
	os.assert(fn != nil, "create %q with nil function", name)

	page := os.Mem.AllocPage()
	if page == nil {
		os.log.WithField("thread", name).Warn("[THREAD] Create failed: out of pages")
		return nil
	}

	t := newThread(name, clampPriority(priority), page)
	t.fn = fn
	t.aux = aux
	t.entry = func() { os.kernelThread(t) }

	old := os.CPU.Disable()
	t.tid = os.allocateTID()
	if os.conf.MLFQS && os.idle != nil {
		cur := os.CPU.Thread
		t.nice = cur.nice
		t.recentCPU = cur.recentCPU
		os.mlfqsPriority(t)
		t.originalPriority = t.priority
	}
	os.all.PushBack(&t.allElem)
	os.emit(EventCreate, t)
	os.CPU.SetLevel(old)

	os.Unblock(t)
	os.checkPreempt()
	return t
}

func (os *OS) allocateTID() TID {
	tid := os.nextTID
	os.nextTID++
	return tid
}

// kernelThread 是普通线程 goroutine 的入口
func (os *OS) kernelThread(t *Thread) {
	defer os.recoverPanic(t)

	os.scheduleTail(os.CPU.from)
	// 调度器关着中断切过来的
	os.CPU.Enable()
	os.runThread(t)
	os.exit()
}

// runThread 跑线程函数，接住 Exit 抛出的 exitThread。
// 其他 panic 原样往上抛给 recoverPanic。
func (os *OS) runThread(t *Thread) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(exitThread); !ok {
				panic(r)
			}
		}
	}()
	t.fn(t.aux)
}

// exitThread 是 Exit 用来退出线程函数的 panic 值
type exitThread struct{}

// Exit 让当前线程退出，不会返回。它的页由下一个运行的线程回收。
// main 线程退出就是关机。
//
// 线程函数里的 defer 会先跑完（这时线程还拿着 CPU，可以调用内核），
// 然后线程才真正退出。defer 里不要 recover 掉 Exit。
func (os *OS) Exit() {
	os.assert(!os.CPU.InExternal(), "exit in interrupt context")

	if os.Current() == os.initial {
		os.PowerOff()
	}
	panic(exitThread{})
}

// exit 是线程函数结束以后的收尾：摘掉线程，切走，不再回来
func (os *OS) exit() {
	os.assert(!os.CPU.InExternal(), "exit in interrupt context")

	cur := os.Current()
	os.CPU.Disable()
	os.all.Remove(&cur.allElem)
	if l := cur.donationElem.List(); l != nil {
		l.Remove(&cur.donationElem)
	}
	if !cur.donations.Empty() {
		os.log.WithFields(log.Fields{
			"thread":    cur,
			"donations": cur.donations.Len(),
		}).Warn("[THREAD] Exit with donors still waiting on its locks")
		for cur.donations.PopFront() != nil {
		}
	}
	cur.status = StatusDying
	os.emit(EventExit, cur)
	os.schedule()
	os.panicf("exited thread %v was scheduled again", cur)
}

// Current 返回当前线程，顺便检查它的控制块有没有被栈溢出踩坏
func (os *OS) Current() *Thread {
	t := os.CPU.Thread
	os.assert(t.isThread(), "stack overflow: thread magic corrupted in %p", t)
	os.assert(t.status == StatusRunning, "current thread %v is %v", t, t.status)
	return t
}

// TID 当前线程的线程号
func (os *OS) TID() TID {
	return os.Current().tid
}

// Name 当前线程的名字
func (os *OS) Name() string {
	return os.Current().name
}

// Block 阻塞当前线程，直到有人 Unblock 它。必须关中断调用。
// 一般用信号量之类的同步原语，而不是直接调它。
func (os *OS) Block() {
	os.assert(!os.CPU.InExternal(), "block in interrupt context")
	os.assert(os.CPU.Level() == IntrOff, "block with interrupts on")

	cur := os.CPU.Thread
	cur.status = StatusBlocked
	os.emit(EventBlock, cur)
	os.schedule()
}

// Unblock 把阻塞的 t 放进就绪队列（按优先级）。
// 不会抢占当前线程：要不要让出由调用者决定。中断上下文里也可以调。
func (os *OS) Unblock(t *Thread) {
	os.assert(t.isThread(), "unblock of a non-thread %p", t)

	old := os.CPU.Disable()
	os.assert(t.status == StatusBlocked, "unblock of %v in state %v", t, t.status)
	os.ready.InsertOrdered(&t.elem, higherPriority)
	t.status = StatusReady
	os.emit(EventUnblock, t)
	os.CPU.SetLevel(old)
}

// Yield 当前线程让出 CPU，回到就绪队列（idle 除外），可能马上又被调度到。
func (os *OS) Yield() {
	os.assert(!os.CPU.InExternal(), "yield in interrupt context")

	cur := os.CPU.Thread
	old := os.CPU.Disable()
	if cur != os.idle {
		os.ready.InsertOrdered(&cur.elem, higherPriority)
	}
	cur.status = StatusReady
	os.schedule()
	os.CPU.SetLevel(old)
}

// SetPriority 设置当前线程的基础优先级，p 超出范围会被截断。
// 有捐赠时有效优先级不会低于捐赠者。不再是最高优先级的话马上让出 CPU。
// MLFQS 下什么也不做。
func (os *OS) SetPriority(p int) {
	if os.conf.MLFQS {
		return
	}

	old := os.CPU.Disable()
	cur := os.Current()
	cur.originalPriority = clampPriority(p)
	os.refreshPriority(cur)
	os.CPU.SetLevel(old)

	os.checkPreempt()
}

// GetPriority 返回当前线程的有效优先级
func (os *OS) GetPriority() int {
	old := os.CPU.Disable()
	p := os.Current().priority
	os.CPU.SetLevel(old)
	return p
}

// ForEach 对每个活着的线程调用 fn。必须关中断调用。
func (os *OS) ForEach(fn func(t *Thread)) {
	os.assert(os.CPU.Level() == IntrOff, "thread foreach with interrupts on")
	for e := os.all.Front(); e != nil; e = e.Next() {
		fn(e.Value)
	}
}

/********* 👆 SYSTEM CALLS 👆 ***************/

// Stats 是运行统计
type Stats struct {
	Ticks       int64
	IdleTicks   int64
	KernelTicks int64
	Switches    int64
	Threads     int
}

// Stats 返回运行统计。关机后调用，或者在线程里调用。
func (os *OS) Stats() Stats {
	return Stats{
		Ticks:       os.CPU.Clock,
		IdleTicks:   os.idleTicks,
		KernelTicks: os.kernelTicks,
		Switches:    os.CPU.Switches,
		Threads:     os.all.Len(),
	}
}

// PrintStats 把运行统计打到日志里
func (os *OS) PrintStats() {
	s := os.Stats()
	os.log.WithFields(log.Fields{
		"idle_ticks":   s.IdleTicks,
		"kernel_ticks": s.KernelTicks,
		"switches":     s.Switches,
	}).Info("[OS] Thread stats")
}

// emit 记日志并通知 Observer
func (os *OS) emit(kind EventKind, t *Thread) {
	os.log.WithFields(log.Fields{
		"tick":     os.CPU.Clock,
		"thread":   t,
		"priority": t.priority,
	}).Trace("[SCHED] ", kind)

	if os.conf.Observer != nil {
		os.conf.Observer.Observe(Event{
			Tick:     os.CPU.Clock,
			Kind:     kind,
			TID:      t.tid,
			Name:     t.name,
			Priority: t.priority,
		})
	}
}
