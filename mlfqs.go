package sham

import (
	"github.com/cdfmlr/sham/fixedpoint"
	log "github.com/sirupsen/logrus"
)

// MLFQS：多级反馈队列调度。优先级完全由 recent_cpu 和 nice 算出来：
//
//	priority   = PRI_MAX - recent_cpu/4 - nice*2          每 4 个 tick
//	load_avg   = (59/60)*load_avg + (1/60)*ready_threads   每秒
//	recent_cpu = (2*load_avg)/(2*load_avg+1)*recent_cpu + nice   每秒
//
// 全部用 17.14 定点数算。

var (
	fp59of60 = fixedpoint.FromInt(59).DivInt(60)
	fp1of60  = fixedpoint.FromInt(1).DivInt(60)
)

// mlfqsTick 在时钟中断里调
func (os *OS) mlfqsTick(now int64) {
	cur := os.CPU.Thread
	if cur != os.idle {
		cur.recentCPU = cur.recentCPU.AddInt(1)
	}

	if now%int64(os.conf.TimerFreq) == 0 {
		os.mlfqsLoadAvg()
		os.ForEach(os.mlfqsRecentCPU)
	}

	if now%mlfqsPriorityPeriod == 0 {
		os.ForEach(os.mlfqsPriority)
		os.ready.Sort(higherPriority)
	}
}

// mlfqsPriority 按 recent_cpu 和 nice 重算 t 的优先级
func (os *OS) mlfqsPriority(t *Thread) {
	if t == os.idle {
		return
	}
	p := fixedpoint.FromInt(PriMax).
		Sub(t.recentCPU.DivInt(4)).
		SubInt(t.nice * 2).
		Trunc()
	p = clampPriority(p)
	if p != t.priority {
		t.priority = p
		os.emit(EventPriority, t)
	}
}

// mlfqsRecentCPU 衰减 t 的 recent_cpu
func (os *OS) mlfqsRecentCPU(t *Thread) {
	if t == os.idle {
		return
	}
	twice := os.loadAvg.MulInt(2)
	coef := twice.Div(twice.AddInt(1))
	t.recentCPU = coef.Mul(t.recentCPU).AddInt(t.nice)
}

// mlfqsLoadAvg 更新系统负载：就绪线程数，加上正在跑的（不算 idle）
func (os *OS) mlfqsLoadAvg() {
	ready := os.ready.Len()
	if os.CPU.Thread != os.idle {
		ready++
	}
	os.loadAvg = fp59of60.Mul(os.loadAvg).Add(fp1of60.MulInt(ready))

	os.log.WithFields(log.Fields{
		"tick":     os.CPU.Clock,
		"ready":    ready,
		"load_avg": os.loadAvg,
	}).Debug("[MLFQS] Update load_avg")
}

// SetNice 设置当前线程的 nice，超出 [NiceMin, NiceMax] 会被截断。
// MLFQS 下马上重算它的优先级，不再是最高的就让出 CPU。
func (os *OS) SetNice(nice int) {
	old := os.CPU.Disable()
	cur := os.Current()
	cur.nice = clampNice(nice)
	if os.conf.MLFQS {
		os.mlfqsPriority(cur)
	}
	os.CPU.SetLevel(old)

	os.checkPreempt()
}

// GetNice 当前线程的 nice
func (os *OS) GetNice() int {
	old := os.CPU.Disable()
	n := os.Current().nice
	os.CPU.SetLevel(old)
	return n
}

// GetRecentCPU 当前线程 recent_cpu 的 100 倍，四舍五入
func (os *OS) GetRecentCPU() int {
	old := os.CPU.Disable()
	r := os.Current().recentCPU.Hundredths()
	os.CPU.SetLevel(old)
	return r
}

// GetLoadAvg 系统 load_avg 的 100 倍，四舍五入
func (os *OS) GetLoadAvg() int {
	old := os.CPU.Disable()
	l := os.loadAvg.Hundredths()
	os.CPU.SetLevel(old)
	return l
}

// LoadAvg 返回 load_avg 本身
func (os *OS) LoadAvg() fixedpoint.FP {
	old := os.CPU.Disable()
	l := os.loadAvg
	os.CPU.SetLevel(old)
	return l
}
