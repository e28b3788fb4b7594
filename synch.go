package sham

import (
	"github.com/cdfmlr/sham/list"
	log "github.com/sirupsen/logrus"
)

// Semaphore 信号量：一个非负整数，加上等它的线程（按优先级排）。
//
//   - Down 等到值为正，然后减一
//   - Up 加一，唤醒一个等待者（当前优先级最高的那个）
type Semaphore struct {
	os      *OS
	value   int
	waiters list.List[*Thread]
}

// NewSemaphore 新建一个初值为 value 的信号量
func (os *OS) NewSemaphore(value int) *Semaphore {
	s := &Semaphore{}
	s.Init(os, value)
	return s
}

// Init 初始化信号量，初值为 value
func (s *Semaphore) Init(os *OS, value int) {
	os.assert(value >= 0, "semaphore initialized to %d", value)
	s.os = os
	s.value = value
	s.waiters.Init()
}

// Value 当前值
func (s *Semaphore) Value() int {
	return s.value
}

// Down 即 P 操作。值为 0 时阻塞当前线程，不能在中断上下文里调。
func (s *Semaphore) Down() {
	os := s.os
	os.assert(!os.CPU.InExternal(), "sema down in interrupt context")

	old := os.CPU.Disable()
	for s.value == 0 {
		s.wait()
	}
	s.value--
	os.CPU.SetLevel(old)
}

// wait 把当前线程按优先级挂到等待队列上并阻塞。必须关中断调用。
func (s *Semaphore) wait() {
	cur := s.os.Current()
	s.waiters.InsertOrdered(&cur.elem, higherPriority)
	s.os.Block()
}

// TryDown 值为正就减一并返回 true，否则返回 false，不阻塞。
// 中断上下文里也可以调。
func (s *Semaphore) TryDown() bool {
	old := s.os.CPU.Disable()
	ok := s.value > 0
	if ok {
		s.value--
	}
	s.os.CPU.SetLevel(old)
	return ok
}

// Up 即 V 操作。唤醒等待者里当前优先级最高的（排队以后优先级可能被捐赠改过，
// 所以先重排），它比当前线程优先级高就让出 CPU（中断上下文里则推迟到中断返回）。
func (s *Semaphore) Up() {
	os := s.os

	old := os.CPU.Disable()
	if !s.waiters.Empty() {
		s.waiters.Sort(higherPriority)
		os.Unblock(s.waiters.PopFront().Value)
	}
	s.value++
	os.CPU.SetLevel(old)

	os.checkPreempt()
}

// Lock 锁：初值为 1 的信号量，再加上持有者。
// 同一时刻最多一个线程持有，只有持有者能释放，不可重入。
// 非 MLFQS 模式下，锁是优先级捐赠的挂载点。
type Lock struct {
	holder *Thread
	sema   Semaphore
}

// NewLock 新建一把锁
func (os *OS) NewLock() *Lock {
	l := &Lock{}
	l.Init(os)
	return l
}

// Init 初始化锁
func (l *Lock) Init(os *OS) {
	l.holder = nil
	l.sema.Init(os, 1)
}

// Holder 当前持有者，没人持有就是 nil
func (l *Lock) Holder() *Thread {
	return l.holder
}

// Acquire 获取锁，必要时阻塞等待。
// 锁被人拿着时（非 MLFQS），当前线程把优先级捐给持有者，并沿锁链往上传。
// 被唤醒以后如果锁又被别人抢先拿走了，就对新的持有者重新登记捐赠再等。
// 拿到锁以后，还在等这把锁的线程转而给当前线程捐赠。
func (l *Lock) Acquire() {
	os := l.sema.os
	os.assert(!os.CPU.InExternal(), "lock acquire in interrupt context")
	os.assert(!l.HeldByCurrentThread(), "%v acquires a lock it already holds", os.CPU.Thread)

	old := os.CPU.Disable()
	cur := os.CPU.Thread
	for l.sema.value == 0 {
		os.assert(l.holder != nil, "lock is taken but has no holder")
		os.log.WithFields(log.Fields{
			"tick":   os.CPU.Clock,
			"thread": cur,
			"holder": l.holder,
		}).Debug("[SYNCH] Wait for lock")
		if !os.conf.MLFQS {
			cur.wantLock = l
			l.holder.donations.InsertOrdered(&cur.donationElem, higherPriority)
			os.donatePriority(cur)
		}
		l.sema.wait()
	}
	l.sema.value--
	cur.wantLock = nil
	l.holder = cur
	if !os.conf.MLFQS {
		os.inheritDonors(cur, l)
	}
	os.CPU.SetLevel(old)
}

// TryAcquire 尝试获取锁，拿不到就返回 false，不阻塞也不捐赠
func (l *Lock) TryAcquire() bool {
	os := l.sema.os
	os.assert(!l.HeldByCurrentThread(), "%v acquires a lock it already holds", os.CPU.Thread)

	old := os.CPU.Disable()
	ok := l.sema.TryDown()
	if ok {
		l.holder = os.CPU.Thread
		if !os.conf.MLFQS {
			os.inheritDonors(l.holder, l)
		}
	}
	os.CPU.SetLevel(old)
	return ok
}

// Release 释放锁，必须由持有者调用。
// 等这把锁的捐赠者不再给当前线程捐，当前线程的优先级随之回落。
func (l *Lock) Release() {
	os := l.sema.os
	os.assert(l.HeldByCurrentThread(), "lock release by non-holder %v", os.CPU.Thread)

	old := os.CPU.Disable()
	cur := os.CPU.Thread
	if !os.conf.MLFQS {
		os.removeDonors(cur, l)
		os.refreshPriority(cur)
	}
	l.holder = nil
	l.sema.Up()
	os.CPU.SetLevel(old)
}

// HeldByCurrentThread 当前线程是否持有这把锁
func (l *Lock) HeldByCurrentThread() bool {
	os := l.sema.os
	os.assert(os != nil, "lock used before Init")
	return l.holder != nil && l.holder == os.Current()
}

// Cond 条件变量：等待者各自挂在自己的信号量上。
// 所有操作都要持有同一把外部锁。
type Cond struct {
	os      *OS
	waiters list.List[*condWaiter]
}

type condWaiter struct {
	elem   list.Elem[*condWaiter]
	sema   Semaphore
	thread *Thread
}

// NewCond 新建一个条件变量
func (os *OS) NewCond() *Cond {
	c := &Cond{}
	c.Init(os)
	return c
}

// Init 初始化条件变量
func (c *Cond) Init(os *OS) {
	c.os = os
	c.waiters.Init()
}

// Wait 原子地释放 l 并等待被 Signal，醒来后重新获取 l 再返回。
func (c *Cond) Wait(l *Lock) {
	os := c.os
	os.assert(!os.CPU.InExternal(), "cond wait in interrupt context")
	os.assert(l.HeldByCurrentThread(), "cond wait without holding the lock")

	w := &condWaiter{thread: os.Current()}
	w.elem.Value = w
	w.sema.Init(os, 0)
	c.waiters.PushBack(&w.elem)

	l.Release()
	w.sema.Down()
	l.Acquire()
}

// Signal 唤醒一个等待者：它的线程现在的优先级最高（不是先来先醒）。
func (c *Cond) Signal(l *Lock) {
	os := c.os
	os.assert(!os.CPU.InExternal(), "cond signal in interrupt context")
	os.assert(l.HeldByCurrentThread(), "cond signal without holding the lock")

	e := c.waiters.Max(lowerPriorityWaiter)
	if e == nil {
		return
	}
	c.waiters.Remove(e)
	e.Value.sema.Up()
}

// Broadcast 唤醒所有等待者
func (c *Cond) Broadcast(l *Lock) {
	for !c.waiters.Empty() {
		c.Signal(l)
	}
}

// Waiters 等待者个数
func (c *Cond) Waiters() int {
	return c.waiters.Len()
}

func lowerPriorityWaiter(a, b *condWaiter) bool {
	return a.thread.priority < b.thread.priority
}
