// Package workload 描述和解析 YAML 格式的「工作负载」：一组线程，
// 每个线程按顺序执行一串步骤（忙等、睡眠、拿锁、信号量……）。
package workload

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/cdfmlr/sham"
	"gopkg.in/yaml.v3"
)

// Workload 一个工作负载文件
type Workload struct {
	Name string `yaml:"name"`

	MLFQS     bool  `yaml:"mlfqs"`
	TimerFreq int   `yaml:"timer_freq"`
	MaxTicks  int64 `yaml:"max_ticks"`
	// MainPriority main 线程的优先级，不填就是 PriDefault
	MainPriority *int `yaml:"main_priority"`

	Locks []string `yaml:"locks"`
	// Semaphores 名字 -> 初值
	Semaphores map[string]int `yaml:"semaphores"`
	Conds      []string       `yaml:"conds"`

	// Main main 线程创建完所有线程以后、等它们结束之前执行的步骤
	Main    []Step   `yaml:"main"`
	Threads []Thread `yaml:"threads"`
}

// Thread 一个线程的描述
type Thread struct {
	Name string `yaml:"name"`
	// Priority 不填就是 PriDefault。MLFQS 下不用。
	Priority *int   `yaml:"priority"`
	Nice     int    `yaml:"nice"`
	Steps    []Step `yaml:"steps"`
}

// priority 线程的初始优先级
func (t Thread) priority() int {
	if t.Priority == nil {
		return sham.PriDefault
	}
	return *t.Priority
}

// StepKind 步骤类型
type StepKind string

// 所有步骤类型
const (
	StepRun         StepKind = "run"          // 忙等 N 个 tick
	StepSleep       StepKind = "sleep"        // 睡 N 个 tick
	StepSleepUntil  StepKind = "sleep_until"  // 睡到第 N 个 tick
	StepYield       StepKind = "yield"        // 让出 CPU
	StepAcquire     StepKind = "acquire"      // 拿锁 Name
	StepRelease     StepKind = "release"      // 放锁 Name
	StepDown        StepKind = "down"         // 信号量 Name 的 P
	StepUp          StepKind = "up"           // 信号量 Name 的 V
	StepWait        StepKind = "wait"         // 在条件变量 Cond 上等，持有锁 Lock
	StepSignal      StepKind = "signal"       // 唤醒 Cond 上的一个等待者
	StepBroadcast   StepKind = "broadcast"    // 唤醒 Cond 上的所有等待者
	StepSetPriority StepKind = "set_priority" // 设置基础优先级为 N
	StepSetNice     StepKind = "set_nice"     // 设置 nice 为 N
	StepLog         StepKind = "log"          // 记一条消息 Name
)

// Step 一个步骤。YAML 里写成单键映射：
//
//	- run: 3
//	- acquire: disk
//	- wait: {cond: ready, lock: disk}
//	- yield
type Step struct {
	Kind StepKind
	N    int64
	Name string
	Cond string
	Lock string
}

func (s Step) String() string {
	switch s.Kind {
	case StepYield:
		return string(s.Kind)
	case StepRun, StepSleep, StepSleepUntil, StepSetPriority, StepSetNice:
		return fmt.Sprintf("%s %d", s.Kind, s.N)
	case StepWait, StepSignal, StepBroadcast:
		return fmt.Sprintf("%s %s/%s", s.Kind, s.Cond, s.Lock)
	}
	return fmt.Sprintf("%s %s", s.Kind, s.Name)
}

// UnmarshalYAML 实现 yaml.Unmarshaler
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		// 只有 yield 不带参数
		if node.Value != string(StepYield) {
			return fmt.Errorf("line %d: step %q needs an argument", node.Line, node.Value)
		}
		*s = Step{Kind: StepYield}
		return nil
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: step must be a single-key mapping", node.Line)
	}

	if len(node.Content) != 2 {
		return fmt.Errorf("line %d: step must have exactly one key", node.Line)
	}
	key, val := node.Content[0], node.Content[1]
	step := Step{Kind: StepKind(key.Value)}

	switch step.Kind {
	case StepRun, StepSleep, StepSleepUntil, StepSetPriority, StepSetNice:
		if err := val.Decode(&step.N); err != nil {
			return fmt.Errorf("line %d: %s: %w", val.Line, step.Kind, err)
		}
	case StepYield:
	case StepAcquire, StepRelease, StepDown, StepUp, StepLog:
		if err := val.Decode(&step.Name); err != nil {
			return fmt.Errorf("line %d: %s: %w", val.Line, step.Kind, err)
		}
	case StepWait, StepSignal, StepBroadcast:
		var arg struct {
			Cond string `yaml:"cond"`
			Lock string `yaml:"lock"`
		}
		if err := val.Decode(&arg); err != nil {
			return fmt.Errorf("line %d: %s: %w", val.Line, step.Kind, err)
		}
		step.Cond, step.Lock = arg.Cond, arg.Lock
	default:
		return fmt.Errorf("line %d: unknown step %q", key.Line, key.Value)
	}

	*s = step
	return nil
}

// Load 读取并解析工作负载文件
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse 解析并校验一个工作负载。不认识的字段算错。
func Parse(data []byte) (*Workload, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var w Workload
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// FieldError 一个字段上的校验错误
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationError 校验失败，带上所有出问题的字段
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.String()
	}
	return "invalid workload: " + strings.Join(msgs, "; ")
}

// Validate 检查工作负载是否自洽：线程名唯一、引用的锁/信号量/条件变量都声明过、
// 数值在范围内、每个线程只释放自己拿着的锁。
func (w *Workload) Validate() error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(w.Threads) == 0 {
		add("threads", "at least one thread is required")
	}
	if w.TimerFreq != 0 && (w.TimerFreq < 19 || w.TimerFreq > 1000) {
		add("timer_freq", "%d out of range [19, 1000]", w.TimerFreq)
	}
	if w.MaxTicks < 0 {
		add("max_ticks", "must not be negative")
	}
	if w.MainPriority != nil && !validPriority(*w.MainPriority) {
		add("main_priority", "%d out of range [%d, %d]", *w.MainPriority, sham.PriMin, sham.PriMax)
	}

	locks := declared(w.Locks, "locks", add)
	conds := declared(w.Conds, "conds", add)
	for name, v := range w.Semaphores {
		if v < 0 {
			add("semaphores."+name, "initial value %d is negative", v)
		}
	}

	w.validateSteps("main", w.Main, locks, conds, add)

	names := map[string]bool{}
	for i, t := range w.Threads {
		field := fmt.Sprintf("threads[%d]", i)
		switch {
		case t.Name == "":
			add(field+".name", "is required")
		case names[t.Name]:
			add(field+".name", "duplicate thread %q", t.Name)
		}
		names[t.Name] = true

		if !validPriority(t.priority()) {
			add(field+".priority", "%d out of range [%d, %d]", t.priority(), sham.PriMin, sham.PriMax)
		}
		if t.Nice < sham.NiceMin || t.Nice > sham.NiceMax {
			add(field+".nice", "%d out of range [%d, %d]", t.Nice, sham.NiceMin, sham.NiceMax)
		}
		w.validateSteps(field+".steps", t.Steps, locks, conds, add)
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

func (w *Workload) validateSteps(field string, steps []Step, locks, conds map[string]bool,
	add func(field, format string, args ...any)) {
	held := map[string]bool{}
	for i, s := range steps {
		f := fmt.Sprintf("%s[%d]", field, i)
		switch s.Kind {
		case StepRun, StepSleep:
			if s.N < 0 {
				add(f, "%s of %d ticks", s.Kind, s.N)
			}
		case StepAcquire:
			if !locks[s.Name] {
				add(f, "undeclared lock %q", s.Name)
			} else if held[s.Name] {
				add(f, "lock %q acquired twice", s.Name)
			}
			held[s.Name] = true
		case StepRelease:
			if !locks[s.Name] {
				add(f, "undeclared lock %q", s.Name)
			} else if !held[s.Name] {
				add(f, "release of lock %q that is not held", s.Name)
			}
			delete(held, s.Name)
		case StepDown, StepUp:
			if _, ok := w.Semaphores[s.Name]; !ok {
				add(f, "undeclared semaphore %q", s.Name)
			}
		case StepWait, StepSignal, StepBroadcast:
			if !conds[s.Cond] {
				add(f, "undeclared cond %q", s.Cond)
			}
			if !locks[s.Lock] {
				add(f, "undeclared lock %q", s.Lock)
			} else if !held[s.Lock] {
				add(f, "%s without holding lock %q", s.Kind, s.Lock)
			}
		case StepSetPriority:
			if !validPriority(int(s.N)) {
				add(f, "priority %d out of range [%d, %d]", s.N, sham.PriMin, sham.PriMax)
			}
		}
	}
}

// declared 检查名字列表没有空名和重复，返回名字集合
func declared(names []string, field string, add func(field, format string, args ...any)) map[string]bool {
	set := map[string]bool{}
	for i, n := range names {
		if n == "" {
			add(fmt.Sprintf("%s[%d]", field, i), "empty name")
		} else if set[n] {
			add(fmt.Sprintf("%s[%d]", field, i), "duplicate %q", n)
		}
		set[n] = true
	}
	return set
}

func validPriority(p int) bool {
	return p >= sham.PriMin && p <= sham.PriMax
}
