package ring

import (
	"slices"
	"testing"
)

func TestRing_AppendBelowCapacity(t *testing.T) {
	r := New[int](4)
	r.Append(1)
	r.Append(2)
	if r.Len() != 2 {
		t.Errorf("len = %d, want 2", r.Len())
	}
	if got := r.Snapshot(); !slices.Equal(got, []int{1, 2}) {
		t.Errorf("snapshot = %v, want [1 2]", got)
	}
}

func TestRing_EvictsOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Append(i)
	}
	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}
	if got := r.Snapshot(); !slices.Equal(got, []int{3, 4, 5}) {
		t.Errorf("snapshot = %v, want [3 4 5]", got)
	}
}

func TestRing_Last(t *testing.T) {
	r := New[string](2)
	if _, ok := r.Last(); ok {
		t.Fatal("Last on empty ring reported ok")
	}
	r.Append("a")
	r.Append("b")
	r.Append("c")
	last, ok := r.Last()
	if !ok || last != "c" {
		t.Errorf("last = %q ok=%v, want %q true", last, ok, "c")
	}
}

func TestRing_Reset(t *testing.T) {
	r := New[int](2)
	r.Append(1)
	r.Reset()
	if r.Len() != 0 {
		t.Errorf("len after reset = %d, want 0", r.Len())
	}
	if got := r.Snapshot(); len(got) != 0 {
		t.Errorf("snapshot after reset = %v, want empty", got)
	}
}

func TestRing_ClampedCapacity(t *testing.T) {
	r := New[int](0)
	r.Append(7)
	r.Append(8)
	if got := r.Snapshot(); !slices.Equal(got, []int{8}) {
		t.Errorf("snapshot = %v, want [8]", got)
	}
}
