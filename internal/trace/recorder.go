// Package trace 记录调度事件，并把一次次运行存进 SQLite 方便事后查看。
package trace

import (
	"github.com/cdfmlr/sham"
)

// Recorder 是一个把调度事件存在内存里的 sham.Observer
type Recorder struct {
	events []sham.Event
	// Kinds 非空时只记录这些类型的事件
	Kinds map[sham.EventKind]bool
}

// NewRecorder 新建一个 Recorder，kinds 为空就记录所有事件
func NewRecorder(kinds ...sham.EventKind) *Recorder {
	r := &Recorder{}
	if len(kinds) > 0 {
		r.Kinds = map[sham.EventKind]bool{}
		for _, k := range kinds {
			r.Kinds[k] = true
		}
	}
	return r
}

// Observe 实现 sham.Observer
func (r *Recorder) Observe(e sham.Event) {
	if r.Kinds != nil && !r.Kinds[e.Kind] {
		return
	}
	r.events = append(r.events, e)
}

// Events 记录下来的事件，按发生顺序
func (r *Recorder) Events() []sham.Event {
	return r.events
}

// Counts 每种事件各有多少个
func (r *Recorder) Counts() map[sham.EventKind]int {
	counts := map[sham.EventKind]int{}
	for _, e := range r.events {
		counts[e.Kind]++
	}
	return counts
}

// Reset 清空记录
func (r *Recorder) Reset() {
	r.events = nil
}
