package sham

import (
	"errors"
	"testing"
)

// 信号量按优先级唤醒，而不是先来先醒
func TestSemaphoreWakesHighestPriority(t *testing.T) {
	var r recorder
	bootOS(t, testConfig(), func(shamOS *OS) {
		sema := shamOS.NewSemaphore(0)
		for _, p := range []int{33, 35, 34} {
			shamOS.Create("waiter", p, func(aux any) {
				sema.Down()
				r.msg("%d", aux.(int))
			}, p)
		}
		for i := 0; i < 3; i++ {
			sema.Up()
		}
	})
	r.expect(t, "35", "34", "33")
}

func TestSemaphoreTryDown(t *testing.T) {
	bootOS(t, testConfig(), func(shamOS *OS) {
		sema := shamOS.NewSemaphore(1)
		if !sema.TryDown() {
			t.Error("TryDown on 1 failed")
		}
		if sema.TryDown() {
			t.Error("TryDown on 0 succeeded")
		}
		sema.Up()
		if sema.Value() != 1 {
			t.Errorf("Value() = %d, want 1", sema.Value())
		}
	})
}

// 锁保证互斥，时间片到了换出去也一样
func TestLockMutualExclusion(t *testing.T) {
	var r recorder
	bootOS(t, testConfig(), func(shamOS *OS) {
		lock := shamOS.NewLock()
		done := shamOS.NewSemaphore(0)
		worker := func(aux any) {
			lock.Acquire()
			r.msg("%s in", aux)
			shamOS.Busy(6)
			r.msg("%s out", aux)
			lock.Release()
			done.Up()
		}
		shamOS.Create("A", PriDefault, worker, "A")
		shamOS.Create("B", PriDefault, worker, "B")
		done.Down()
		done.Down()
		if lock.Holder() != nil {
			t.Errorf("lock still held by %v", lock.Holder())
		}
	})
	r.expect(t, "A in", "A out", "B in", "B out")
}

func TestLockTryAcquire(t *testing.T) {
	bootOS(t, testConfig(), func(shamOS *OS) {
		lock := shamOS.NewLock()
		lock.Acquire()
		shamOS.Create("other", 40, func(any) {
			if lock.TryAcquire() {
				t.Error("TryAcquire of a held lock succeeded")
			}
		}, nil)
		if shamOS.GetPriority() != PriDefault {
			t.Error("TryAcquire donated priority")
		}
		lock.Release()
		if !lock.TryAcquire() || !lock.HeldByCurrentThread() {
			t.Error("TryAcquire of a free lock failed")
		}
		lock.Release()
	})
}

func TestLockReleaseByNonHolder(t *testing.T) {
	err := bootErr(testConfig(), func(shamOS *OS) {
		lock := shamOS.NewLock()
		shamOS.Create("holder", 40, func(any) {
			lock.Acquire()
			shamOS.Sleep(5)
		}, nil)
		lock.Release()
	})
	if !errors.Is(err, ErrKernelPanic) {
		t.Errorf("Boot = %v, want ErrKernelPanic", err)
	}
}

func TestLockRecursiveAcquire(t *testing.T) {
	err := bootErr(testConfig(), func(shamOS *OS) {
		lock := shamOS.NewLock()
		lock.Acquire()
		lock.Acquire()
	})
	if !errors.Is(err, ErrKernelPanic) {
		t.Errorf("Boot = %v, want ErrKernelPanic", err)
	}
}

// Signal 唤醒优先级最高的等待者
func TestCondSignalHighestPriority(t *testing.T) {
	var r recorder
	bootOS(t, testConfig(), func(shamOS *OS) {
		lock := shamOS.NewLock()
		cond := shamOS.NewCond()
		for _, p := range []int{32, 34, 33} {
			shamOS.Create("waiter", p, func(aux any) {
				lock.Acquire()
				cond.Wait(lock)
				r.msg("%d", aux.(int))
				lock.Release()
			}, p)
		}
		if cond.Waiters() != 3 {
			t.Errorf("Waiters() = %d, want 3", cond.Waiters())
		}
		for i := 0; i < 3; i++ {
			lock.Acquire()
			cond.Signal(lock)
			lock.Release()
		}
	})
	r.expect(t, "34", "33", "32")
}

func TestCondBroadcast(t *testing.T) {
	var r recorder
	bootOS(t, testConfig(), func(shamOS *OS) {
		lock := shamOS.NewLock()
		cond := shamOS.NewCond()
		for _, p := range []int{32, 34, 33} {
			shamOS.Create("waiter", p, func(aux any) {
				lock.Acquire()
				cond.Wait(lock)
				r.msg("%d", aux.(int))
				lock.Release()
			}, p)
		}
		lock.Acquire()
		cond.Broadcast(lock)
		if cond.Waiters() != 0 {
			t.Errorf("Waiters() = %d after broadcast", cond.Waiters())
		}
		lock.Release()
		r.msg("main")
	})
	r.expect(t, "34", "33", "32", "main")
}

func TestCondSignalNoWaiters(t *testing.T) {
	bootOS(t, testConfig(), func(shamOS *OS) {
		lock := shamOS.NewLock()
		cond := shamOS.NewCond()
		lock.Acquire()
		cond.Signal(lock)
		cond.Broadcast(lock)
		lock.Release()
	})
}

func TestCondWaitWithoutLock(t *testing.T) {
	err := bootErr(testConfig(), func(shamOS *OS) {
		shamOS.NewCond().Wait(shamOS.NewLock())
	})
	if !errors.Is(err, ErrKernelPanic) {
		t.Errorf("Boot = %v, want ErrKernelPanic", err)
	}
}

func TestDownInInterruptPanics(t *testing.T) {
	err := bootErr(testConfig(), func(shamOS *OS) {
		sema := shamOS.NewSemaphore(1)
		shamOS.RegisterInterrupt("bad", func(os *OS) {
			sema.Down()
		})
		shamOS.Raise("bad")
	})
	if !errors.Is(err, ErrKernelPanic) {
		t.Errorf("Boot = %v, want ErrKernelPanic", err)
	}
}
