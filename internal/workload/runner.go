package workload

import (
	"fmt"

	"github.com/cdfmlr/sham"
	log "github.com/sirupsen/logrus"
)

// Result 一次运行的结果
type Result struct {
	Workload string
	MLFQS    bool
	// Order 线程结束的先后顺序
	Order []string
	// Messages log 步骤记下的消息，按时间顺序
	Messages []Message
	Stats    sham.Stats
	// LoadAvg 关机时 load_avg 的 100 倍
	LoadAvg int
}

// Message 一条 log 步骤的消息
type Message struct {
	Tick   int64
	Thread string
	Text   string
}

func (m Message) String() string {
	return fmt.Sprintf("%6d %-15s %s", m.Tick, m.Thread, m.Text)
}

// Runner 在一个新开的 OS 上跑工作负载
type Runner struct {
	conf sham.Config
	log  *log.Entry
}

// NewRunner 以 conf 为基础配置。工作负载里的 mlfqs / timer_freq 会覆盖它，
// max_ticks 只在 conf.MaxTicks 没设时生效。
func NewRunner(conf sham.Config) *Runner {
	if conf.Logger == nil {
		conf.Logger = sham.DefaultLogger()
	}
	return &Runner{
		conf: conf,
		log:  log.NewEntry(conf.Logger),
	}
}

// Config 按 w 调整以后的启动配置
func (r *Runner) Config(w *Workload) sham.Config {
	conf := r.conf
	if w.MLFQS {
		conf.MLFQS = true
	}
	if w.TimerFreq > 0 {
		conf.TimerFreq = w.TimerFreq
	}
	if conf.MaxTicks == 0 {
		conf.MaxTicks = w.MaxTicks
	}
	return conf
}

// Run 开机跑 w，所有线程结束后关机。
// 出错（死锁、超时、内核 panic、建不出线程）时也返回到出错为止的结果。
func (r *Runner) Run(w *Workload) (*Result, error) {
	conf := r.Config(w)
	k := sham.NewOS(conf)

	env := &env{
		os:     k,
		log:    r.log.WithField("workload", w.Name),
		locks:  map[string]*sham.Lock{},
		semas:  map[string]*sham.Semaphore{},
		conds:  map[string]*sham.Cond{},
		result: &Result{Workload: w.Name, MLFQS: conf.MLFQS},
	}

	err := k.Boot(func(any) { env.main(w) }, nil)
	if err == nil {
		err = env.err
	}

	res := env.result
	res.Stats = k.Stats()
	res.LoadAvg = k.LoadAvg().Hundredths()
	if err != nil {
		return res, fmt.Errorf("run workload %q: %w", w.Name, err)
	}
	return res, nil
}

// env 是一次运行里所有线程共享的东西。只在线程里访问，同一时刻只有一个线程在跑。
type env struct {
	os    *sham.OS
	log   *log.Entry
	locks map[string]*sham.Lock
	semas map[string]*sham.Semaphore
	conds map[string]*sham.Cond

	result *Result
	err    error
}

// main 是 main 线程：建好同步对象，创建所有线程，跑自己的步骤，等所有线程结束
func (e *env) main(w *Workload) {
	k := e.os
	for _, name := range w.Locks {
		e.locks[name] = k.NewLock()
	}
	for name, v := range w.Semaphores {
		e.semas[name] = k.NewSemaphore(v)
	}
	for _, name := range w.Conds {
		e.conds[name] = k.NewCond()
	}
	if w.MainPriority != nil {
		k.SetPriority(*w.MainPriority)
	}

	done := k.NewSemaphore(0)
	created := 0
	for _, t := range w.Threads {
		t := t
		tid := k.Create(t.Name, t.priority(), func(any) {
			if t.Nice != 0 {
				k.SetNice(t.Nice)
			}
			e.exec(t.Steps)
			e.result.Order = append(e.result.Order, t.Name)
			done.Up()
		}, nil)
		if tid == sham.TIDError {
			e.err = fmt.Errorf("create thread %q: out of pages", t.Name)
			break
		}
		created++
	}

	e.exec(w.Main)
	for i := 0; i < created; i++ {
		done.Down()
	}
}

// exec 在当前线程里按顺序执行 steps
func (e *env) exec(steps []Step) {
	k := e.os
	for _, s := range steps {
		e.log.WithFields(log.Fields{
			"tick":   k.Ticks(),
			"thread": k.Name(),
		}).Debug("[WORKLOAD] Step ", s)

		switch s.Kind {
		case StepRun:
			k.Busy(int(s.N))
		case StepSleep:
			k.Sleep(s.N)
		case StepSleepUntil:
			k.SleepUntil(s.N)
		case StepYield:
			k.Yield()
		case StepAcquire:
			e.locks[s.Name].Acquire()
		case StepRelease:
			e.locks[s.Name].Release()
		case StepDown:
			e.semas[s.Name].Down()
		case StepUp:
			e.semas[s.Name].Up()
		case StepWait:
			e.conds[s.Cond].Wait(e.locks[s.Lock])
		case StepSignal:
			e.conds[s.Cond].Signal(e.locks[s.Lock])
		case StepBroadcast:
			e.conds[s.Cond].Broadcast(e.locks[s.Lock])
		case StepSetPriority:
			k.SetPriority(int(s.N))
		case StepSetNice:
			k.SetNice(int(s.N))
		case StepLog:
			e.message(s.Name)
		}
	}
}

func (e *env) message(text string) {
	m := Message{
		Tick:   e.os.Ticks(),
		Thread: e.os.Name(),
		Text:   text,
	}
	e.result.Messages = append(e.result.Messages, m)
	e.log.WithFields(log.Fields{
		"tick":   m.Tick,
		"thread": m.Thread,
	}).Info("[WORKLOAD] ", text)
}
