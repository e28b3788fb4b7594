package sham

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// 各种常量，数值都和 Pintos 保持一致
const (
	PriMin     = 0  // 最低优先级
	PriDefault = 31 // 默认优先级
	PriMax     = 63 // 最高优先级

	NiceMin     = -20
	NiceDefault = 0
	NiceMax     = 20

	// TimeSlice 时间片长度（tick 数）
	TimeSlice = 4
	// DefaultTimerFreq 每秒的 tick 数
	DefaultTimerFreq = 100
	// DefaultPages 默认的物理页数
	DefaultPages = 1024

	// donationDepth 嵌套捐赠最多沿锁链走几层
	donationDepth = 8
	// mlfqsPriorityPeriod MLFQS 每隔几个 tick 重算一次优先级
	mlfqsPriorityPeriod = 4
)

var (
	// ErrKernelPanic 内核断言失败（或者线程函数 panic）
	ErrKernelPanic = errors.New("kernel panic")
	// ErrDeadlock 所有线程都阻塞了，并且没有线程在睡眠，再也不会有人被唤醒
	ErrDeadlock = errors.New("deadlock: every thread is blocked and none is sleeping")
	// ErrTickLimit 运行超过了 Config.MaxTicks
	ErrTickLimit = errors.New("tick limit exceeded")
	// ErrAlreadyBooted 一个 OS 只能 Boot 一次
	ErrAlreadyBooted = errors.New("os already booted")
)

// Config 是「操作系统」的启动配置
type Config struct {
	// MLFQS 为 true 时使用多级反馈队列调度（启动参数 -o mlfqs），
	// 否则使用优先级调度 + 优先级捐赠。
	MLFQS bool
	// TimerFreq 每秒 tick 数，范围 [19, 1000]
	TimerFreq int
	// Pages 可分配给线程控制块的页数，<= 0 表示不限制
	Pages int
	// MaxTicks 大于 0 时，时钟走到这个数就关机并返回 ErrTickLimit
	MaxTicks int64

	// Logger 为 nil 时用 DefaultLogger()
	Logger *log.Logger
	// Observer 接收调度事件，可以为 nil
	Observer Observer
}

// DefaultConfig 返回默认配置：优先级调度、100Hz、1024 页。
func DefaultConfig() Config {
	return Config{
		TimerFreq: DefaultTimerFreq,
		Pages:     DefaultPages,
	}
}

// ApplyOption 应用一个 Pintos 风格的 "-o" 启动参数。
// 目前只认识 "mlfqs"。
func (c *Config) ApplyOption(opt string) error {
	switch opt {
	case "mlfqs":
		c.MLFQS = true
	default:
		return fmt.Errorf("unknown boot option %q", opt)
	}
	return nil
}

func (c Config) validate() error {
	if c.TimerFreq < 19 || c.TimerFreq > 1000 {
		return fmt.Errorf("timer frequency %d out of range [19, 1000]", c.TimerFreq)
	}
	return nil
}
