package trace

import (
	"context"
	"time"

	"github.com/cdfmlr/sham"
	"github.com/google/uuid"
)

// Run 一次运行的摘要
type Run struct {
	ID       string
	Workload string
	MLFQS    bool

	Ticks       int64
	IdleTicks   int64
	KernelTicks int64
	Switches    int64

	// Order 线程结束的顺序
	Order []string
	// Error 运行出错时的错误信息，正常结束为空
	Error string

	CreatedAt time.Time
}

// NewRunID 生成一个运行 ID
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// Store 是运行记录的持久层
type Store interface {
	// SaveRun 保存一次运行和它的所有事件，run.ID 为空时自动生成
	SaveRun(ctx context.Context, run *Run, events []sham.Event) error
	// GetRun 按 ID 查一次运行，不存在时返回 nil, nil
	GetRun(ctx context.Context, id string) (*Run, error)
	// Runs 所有运行，新的在前
	Runs(ctx context.Context) ([]*Run, error)
	// Events 一次运行的事件，按发生顺序
	Events(ctx context.Context, runID string) ([]sham.Event, error)

	Close() error
	Migrate(ctx context.Context) error
}
