package sham

import (
	"errors"
	"math"
	"testing"
)

// 睡眠线程按唤醒时间醒来，而不是按睡下去的顺序
func TestSleepOrder(t *testing.T) {
	var r recorder
	shamOS := bootOS(t, testConfig(), func(shamOS *OS) {
		done := shamOS.NewSemaphore(0)
		sleeper := func(aux any) {
			wake := aux.(int64)
			shamOS.SleepUntil(wake)
			if now := shamOS.Ticks(); now < wake {
				t.Errorf("woke at %d before %d", now, wake)
			}
			r.msg("%s@%d", shamOS.Name(), shamOS.Ticks())
			done.Up()
		}
		shamOS.Create("X", PriDefault, sleeper, int64(10))
		shamOS.Create("Y", PriDefault, sleeper, int64(5))
		shamOS.Create("Z", PriDefault, sleeper, int64(7))
		for i := 0; i < 3; i++ {
			done.Down()
		}
	})
	r.expect(t, "Y@5", "Z@7", "X@10")
	if s := shamOS.Stats(); s.IdleTicks != 10 {
		t.Errorf("IdleTicks = %d, want 10", s.IdleTicks)
	}
}

// 同一 tick 醒来的按睡下去的顺序
func TestSleepSameTickFIFO(t *testing.T) {
	var r recorder
	bootOS(t, testConfig(), func(shamOS *OS) {
		done := shamOS.NewSemaphore(0)
		sleeper := func(aux any) {
			shamOS.SleepUntil(5)
			r.msg("%s", aux.(string))
			done.Up()
		}
		for _, name := range []string{"a", "b", "c"} {
			shamOS.Create(name, PriDefault, sleeper, name)
		}
		for i := 0; i < 3; i++ {
			done.Down()
		}
	})
	r.expect(t, "a", "b", "c")
}

// 同一 tick 醒来的，优先级高的先跑
func TestSleepSameTickPriority(t *testing.T) {
	var r recorder
	bootOS(t, testConfig(), func(shamOS *OS) {
		done := shamOS.NewSemaphore(0)
		sleeper := func(aux any) {
			shamOS.SleepUntil(5)
			r.msg("%d", aux.(int))
			done.Up()
		}
		for _, p := range []int{33, 35, 34} {
			shamOS.Create("sleeper", p, sleeper, p)
		}
		for i := 0; i < 3; i++ {
			done.Down()
		}
	})
	r.expect(t, "35", "34", "33")
}

func TestSleepNotInFuture(t *testing.T) {
	bootOS(t, testConfig(), func(shamOS *OS) {
		shamOS.Busy(3)
		shamOS.SleepUntil(2)
		shamOS.SleepUntil(3)
		shamOS.Sleep(0)
		shamOS.Sleep(-4)
		if now := shamOS.Ticks(); now != 3 {
			t.Errorf("Ticks() = %d, want 3", now)
		}
	})
}

func TestSleepDuration(t *testing.T) {
	bootOS(t, testConfig(), func(shamOS *OS) {
		shamOS.Busy(2)
		start := shamOS.Ticks()
		shamOS.Sleep(15)
		if d := shamOS.Elapsed(start); d != 15 {
			t.Errorf("slept %d ticks, want 15", d)
		}
	})
}

func TestNextWakeTick(t *testing.T) {
	bootOS(t, testConfig(), func(shamOS *OS) {
		if n := shamOS.NextWakeTick(); n != math.MaxInt64 {
			t.Errorf("NextWakeTick() with no sleepers = %d", n)
		}
		done := shamOS.NewSemaphore(0)
		for _, wake := range []int64{12, 8} {
			shamOS.Create("sleeper", 40, func(aux any) {
				shamOS.SleepUntil(aux.(int64))
				done.Up()
			}, wake)
		}
		if n := shamOS.NextWakeTick(); n != 8 {
			t.Errorf("NextWakeTick() = %d, want 8", n)
		}
		done.Down()
		if n := shamOS.NextWakeTick(); n != 12 {
			t.Errorf("NextWakeTick() after first wake = %d, want 12", n)
		}
		done.Down()
		if n := shamOS.NextWakeTick(); n != math.MaxInt64 {
			t.Errorf("NextWakeTick() after all woke = %d", n)
		}
	})
}

func TestSleepInInterruptPanics(t *testing.T) {
	err := bootErr(testConfig(), func(shamOS *OS) {
		shamOS.RegisterInterrupt("bad", func(os *OS) {
			os.Sleep(1)
		})
		shamOS.Raise("bad")
	})
	if !errors.Is(err, ErrKernelPanic) {
		t.Errorf("Boot = %v, want ErrKernelPanic", err)
	}
}

func TestUnknownInterruptPanics(t *testing.T) {
	err := bootErr(testConfig(), func(shamOS *OS) {
		shamOS.Raise("nope")
	})
	if !errors.Is(err, ErrKernelPanic) {
		t.Errorf("Boot = %v, want ErrKernelPanic", err)
	}
}
