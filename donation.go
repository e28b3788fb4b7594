package sham

import log "github.com/sirupsen/logrus"

// donatePriority 沿着 t 想要的锁往上捐：t 等的锁的持有者拿到 t 的优先级，
// 如果持有者自己也在等锁，就接着往上，最多 donationDepth 层。
// 必须关中断调用，MLFQS 下不会调到这里。
func (os *OS) donatePriority(t *Thread) {
	requester := t
	for depth := 0; depth < donationDepth; depth++ {
		if t.wantLock == nil {
			return
		}
		holder := t.wantLock.holder
		if holder == nil {
			return
		}
		os.assert(holder != requester, "donation cycle through %v", holder)
		if holder.priority >= t.priority {
			return
		}

		os.log.WithFields(log.Fields{
			"tick":  os.CPU.Clock,
			"from":  t,
			"to":    holder,
			"depth": depth,
		}).Debug("[SCHED] Donate priority ", t.priority)

		holder.priority = t.priority
		os.emit(EventDonate, holder)
		os.reposition(holder)
		t = holder
	}
}

// removeDonors 释放锁 l 时，把等 l 的那些捐赠者从 t.donations 里拿掉
func (os *OS) removeDonors(t *Thread, l *Lock) {
	for e := t.donations.Front(); e != nil; {
		next := e.Next()
		if e.Value.wantLock == l {
			t.donations.Remove(e)
		}
		e = next
	}
}

// inheritDonors 线程 t 刚拿到锁 l：还挂在 l 上等的线程改为给 t 捐赠。
// 必须关中断调用。
func (os *OS) inheritDonors(t *Thread, l *Lock) {
	for e := l.sema.waiters.Front(); e != nil; e = e.Next() {
		if w := e.Value; w.donationElem.List() == nil {
			t.donations.InsertOrdered(&w.donationElem, higherPriority)
		}
	}
	os.refreshPriority(t)
}

// refreshPriority 重算 t 的有效优先级：基础优先级和所有捐赠者里最高的那个。
// 捐赠者的优先级在插入以后可能又涨了，所以这里不依赖 donations 的顺序。
func (os *OS) refreshPriority(t *Thread) {
	old := t.priority
	t.priority = t.originalPriority
	if e := t.donations.Max(lowerPriority); e != nil && e.Value.priority > t.priority {
		t.priority = e.Value.priority
	}
	if t.priority != old {
		os.emit(EventPriority, t)
		os.reposition(t)
	}
}
