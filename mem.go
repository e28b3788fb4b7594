package sham

import "fmt"

// PageSize 页大小。线程控制块放在页底，页里剩下的空间是向下长的内核栈。
const PageSize = 4096

// Page 是模拟的一个物理页
type Page struct {
	Number int
	inUse  bool
}

func (p *Page) String() string {
	return fmt.Sprintf("page#%d", p.Number)
}

// PageAllocator 是线程控制块的页分配器，替换掉它可以模拟分配失败
type PageAllocator interface {
	// AllocPage 分配一页，没有空闲页时返回 nil
	AllocPage() *Page
	// FreePage 释放一页
	FreePage(p *Page)
}

// Memory 是模拟的「内存」
// 这里认为「内存」就是一池子页，用完了就分配失败。
type Memory struct {
	limit int
	made  int
	free  []*Page
	inUse int
}

// NewMemory 建一个有 pages 页的内存，pages <= 0 表示不限
func NewMemory(pages int) *Memory {
	return &Memory{limit: pages}
}

// AllocPage 分配一页，实现 PageAllocator
func (m *Memory) AllocPage() *Page {
	var p *Page
	if n := len(m.free); n > 0 {
		p, m.free = m.free[n-1], m.free[:n-1]
	} else {
		if m.limit > 0 && m.made >= m.limit {
			return nil
		}
		p = &Page{Number: m.made}
		m.made++
	}
	p.inUse = true
	m.inUse++
	return p
}

// FreePage 释放一页，实现 PageAllocator
func (m *Memory) FreePage(p *Page) {
	if p == nil {
		return
	}
	if !p.inUse {
		panic(fmt.Sprintf("mem: double free of %v", p))
	}
	p.inUse = false
	m.inUse--
	m.free = append(m.free, p)
}

// InUse 返回正在使用的页数
func (m *Memory) InUse() int {
	return m.inUse
}
