package list

import (
	"reflect"
	"testing"
)

type item struct {
	key  int
	name string
	elem Elem[*item]
}

func newItem(key int, name string) *item {
	it := &item{key: key, name: name}
	it.elem.Value = it
	return it
}

func names(l *List[*item]) []string {
	var out []string
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.name)
	}
	return out
}

func backwards(l *List[*item]) []string {
	var out []string
	for e := l.Back(); e != nil; e = e.Prev() {
		out = append(out, e.Value.name)
	}
	return out
}

func higher(a, b *item) bool { return a.key > b.key }
func lower(a, b *item) bool  { return a.key < b.key }

func TestPushPop(t *testing.T) {
	var l List[*item]
	if !l.Empty() || l.Front() != nil || l.Back() != nil || l.PopFront() != nil {
		t.Fatal("zero list should be empty")
	}

	a, b, c := newItem(1, "a"), newItem(2, "b"), newItem(3, "c")
	l.PushBack(&b.elem)
	l.PushFront(&a.elem)
	l.PushBack(&c.elem)

	if got := names(&l); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("forward = %v", got)
	}
	if got := backwards(&l); !reflect.DeepEqual(got, []string{"c", "b", "a"}) {
		t.Errorf("backward = %v", got)
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d", l.Len())
	}

	if e := l.PopFront(); e.Value != a {
		t.Errorf("PopFront() = %v", e.Value.name)
	}
	if a.elem.InList() {
		t.Error("popped element still reports InList")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d", l.Len())
	}
}

func TestRemoveMiddle(t *testing.T) {
	var l List[*item]
	a, b, c := newItem(1, "a"), newItem(2, "b"), newItem(3, "c")
	l.PushBack(&a.elem)
	l.PushBack(&b.elem)
	l.PushBack(&c.elem)

	if got := l.Remove(&b.elem); got != b {
		t.Errorf("Remove returned %v", got.name)
	}
	if got := names(&l); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("after remove = %v", got)
	}

	// 摘下以后可以挂到别的链表上
	var other List[*item]
	other.PushBack(&b.elem)
	if got := names(&other); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("other = %v", got)
	}
}

func TestDoubleInsertPanics(t *testing.T) {
	var l1, l2 List[*item]
	a := newItem(1, "a")
	l1.PushBack(&a.elem)

	defer func() {
		if recover() == nil {
			t.Error("inserting an element that is already on a list should panic")
		}
	}()
	l2.PushBack(&a.elem)
}

func TestRemoveFromWrongListPanics(t *testing.T) {
	var l1, l2 List[*item]
	a := newItem(1, "a")
	l1.PushBack(&a.elem)

	defer func() {
		if recover() == nil {
			t.Error("removing from the wrong list should panic")
		}
	}()
	l2.Remove(&a.elem)
}

func TestInsertOrderedDescendingFIFO(t *testing.T) {
	var l List[*item]
	for _, it := range []*item{
		newItem(30, "a30"),
		newItem(40, "b40"),
		newItem(30, "c30"),
		newItem(20, "d20"),
		newItem(40, "e40"),
		newItem(50, "f50"),
	} {
		l.InsertOrdered(&it.elem, higher)
	}
	want := []string{"f50", "b40", "e40", "a30", "c30", "d20"}
	if got := names(&l); !reflect.DeepEqual(got, want) {
		t.Errorf("ordered = %v, want %v", got, want)
	}
}

func TestInsertOrderedAscending(t *testing.T) {
	var l List[*item]
	for _, it := range []*item{
		newItem(10, "x"),
		newItem(5, "y"),
		newItem(7, "z"),
		newItem(5, "w"),
	} {
		l.InsertOrdered(&it.elem, lower)
	}
	want := []string{"y", "w", "z", "x"}
	if got := names(&l); !reflect.DeepEqual(got, want) {
		t.Errorf("ordered = %v, want %v", got, want)
	}
}

func TestSortStable(t *testing.T) {
	var l List[*item]
	items := []*item{newItem(1, "a"), newItem(3, "b"), newItem(1, "c"), newItem(2, "d")}
	for _, it := range items {
		l.PushBack(&it.elem)
	}
	// 排序前改 key，模拟优先级被捐赠改掉
	items[0].key = 3

	l.Sort(higher)
	want := []string{"a", "b", "d", "c"}
	if got := names(&l); !reflect.DeepEqual(got, want) {
		t.Errorf("sorted = %v, want %v", got, want)
	}
	wantBack := []string{"c", "d", "b", "a"}
	if got := backwards(&l); !reflect.DeepEqual(got, wantBack) {
		t.Errorf("sorted backwards = %v, want %v", got, wantBack)
	}
	if l.Len() != 4 {
		t.Errorf("Len() = %d", l.Len())
	}
}

func TestMax(t *testing.T) {
	var l List[*item]
	if l.Max(lower) != nil {
		t.Error("Max of empty list should be nil")
	}
	for _, it := range []*item{newItem(2, "a"), newItem(9, "b"), newItem(9, "c"), newItem(1, "d")} {
		l.PushBack(&it.elem)
	}
	if got := l.Max(lower).Value.name; got != "b" {
		t.Errorf("Max = %s, want first maximum b", got)
	}
}
