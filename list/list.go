// Package list 是侵入式双向链表。
//
// 和 container/list 不同，Elem 由使用者嵌在自己的结构体里（例如线程控制块），
// 链表本身不分配也不拥有元素，所以给定元素就能 O(1) 摘除。
// 一个 Elem 同一时刻只能挂在一条链表上，重复插入会 panic。
//
// List 的零值可以直接用。List 第一次使用后不能再拷贝。
package list

import "sort"

// Elem 是链表节点。Value 一般指回包含它的结构体。
type Elem[T any] struct {
	prev, next *Elem[T]
	list       *List[T]

	Value T
}

// Next 返回下一个元素，到尾部返回 nil
func (e *Elem[T]) Next() *Elem[T] {
	if p := e.next; e.list != nil && p != &e.list.root {
		return p
	}
	return nil
}

// Prev 返回上一个元素，到头部返回 nil
func (e *Elem[T]) Prev() *Elem[T] {
	if p := e.prev; e.list != nil && p != &e.list.root {
		return p
	}
	return nil
}

// InList 报告 e 当前是否挂在某条链表上
func (e *Elem[T]) InList() bool {
	return e.list != nil
}

// List 返回 e 所在的链表，不在任何链表上时返回 nil
func (e *Elem[T]) List() *List[T] {
	return e.list
}

// List 是带哨兵的环形双向链表
type List[T any] struct {
	root Elem[T]
	len  int
}

// Init 初始化（或清空）链表。清空时原来的元素不会被摘下，调用方自己负责。
func (l *List[T]) Init() *List[T] {
	l.root.next = &l.root
	l.root.prev = &l.root
	l.len = 0
	return l
}

func (l *List[T]) lazyInit() {
	if l.root.next == nil {
		l.Init()
	}
}

// Len 返回元素个数，O(1)
func (l *List[T]) Len() int { return l.len }

// Empty 报告链表是否为空
func (l *List[T]) Empty() bool { return l.len == 0 }

// Front 返回第一个元素，空链表返回 nil
func (l *List[T]) Front() *Elem[T] {
	if l.len == 0 {
		return nil
	}
	return l.root.next
}

// Back 返回最后一个元素，空链表返回 nil
func (l *List[T]) Back() *Elem[T] {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

// insert 把 e 插到 at 后面
func (l *List[T]) insert(e, at *Elem[T]) {
	if e.list != nil {
		panic("list: element is already on a list")
	}
	e.prev = at
	e.next = at.next
	e.prev.next = e
	e.next.prev = e
	e.list = l
	l.len++
}

// PushFront 把 e 插到表头
func (l *List[T]) PushFront(e *Elem[T]) {
	l.lazyInit()
	l.insert(e, &l.root)
}

// PushBack 把 e 插到表尾
func (l *List[T]) PushBack(e *Elem[T]) {
	l.lazyInit()
	l.insert(e, l.root.prev)
}

// InsertBefore 把 e 插到 mark 前面，mark 必须在 l 上
func (l *List[T]) InsertBefore(e, mark *Elem[T]) {
	if mark.list != l {
		panic("list: mark is not on this list")
	}
	l.insert(e, mark.prev)
}

// Remove 把 e 从 l 上摘下，返回 e.Value。e 必须在 l 上。
func (l *List[T]) Remove(e *Elem[T]) T {
	if e.list != l {
		panic("list: element is not on this list")
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil
	e.prev = nil
	e.list = nil
	l.len--
	return e.Value
}

// PopFront 摘下并返回第一个元素，空链表返回 nil
func (l *List[T]) PopFront() *Elem[T] {
	e := l.Front()
	if e != nil {
		l.Remove(e)
	}
	return e
}

// InsertOrdered 把 e 插到第一个满足 less(e, x) 的元素 x 前面，没有就插到表尾。
// less 是严格序，所以相等的元素按插入顺序排（FIFO）。O(n)。
func (l *List[T]) InsertOrdered(e *Elem[T], less func(a, b T) bool) {
	l.lazyInit()
	for x := l.Front(); x != nil; x = x.Next() {
		if less(e.Value, x.Value) {
			l.InsertBefore(e, x)
			return
		}
	}
	l.PushBack(e)
}

// Sort 按 less 稳定排序
func (l *List[T]) Sort(less func(a, b T) bool) {
	if l.len < 2 {
		return
	}
	elems := make([]*Elem[T], 0, l.len)
	for e := l.Front(); e != nil; e = e.Next() {
		elems = append(elems, e)
	}
	sort.SliceStable(elems, func(i, j int) bool {
		return less(elems[i].Value, elems[j].Value)
	})

	prev := &l.root
	for _, e := range elems {
		prev.next = e
		e.prev = prev
		prev = e
	}
	prev.next = &l.root
	l.root.prev = prev
}

// Max 返回最大的元素（有多个最大时取最前面那个），空链表返回 nil。
// less(a, b) 为真表示 a 比 b 小。
func (l *List[T]) Max(less func(a, b T) bool) *Elem[T] {
	best := l.Front()
	if best == nil {
		return nil
	}
	for e := best.Next(); e != nil; e = e.Next() {
		if less(best.Value, e.Value) {
			best = e
		}
	}
	return best
}
