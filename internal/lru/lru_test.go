package lru

import "testing"

func TestEvictionOrderIsDeterministic(t *testing.T) {
	var evicted []int
	c := New[int, string](3, func(k int, v string) { evicted = append(evicted, k) })

	c.Put(1, "a")
	c.Put(2, "b")
	c.Put(3, "c")

	// touch 1, making 2 the least-recently-used entry
	if _, ok := c.Get(1); !ok {
		t.Fatal("expected key 1 to be present")
	}

	c.Put(4, "d") // must evict 2, not 1 or 3

	want := []int{2}
	if len(evicted) != len(want) || evicted[0] != want[0] {
		t.Fatalf("evicted = %v, want %v", evicted, want)
	}

	if _, ok := c.Get(2); ok {
		t.Fatal("key 2 should have been evicted")
	}
	for _, k := range []int{1, 3, 4} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("key %d should still be present", k)
		}
	}
}

func TestPutUpdateDoesNotEvict(t *testing.T) {
	c := New[string, int](2, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10) // update, not insert
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	v, ok := c.Get("a")
	if !ok || v != 10 {
		t.Fatalf("Get(a) = %d, %v, want 10, true", v, ok)
	}
}

func TestPeekDoesNotAffectOrder(t *testing.T) {
	var evicted []string
	c := New[string, int](2, func(k string, v int) { evicted = append(evicted, k) })
	c.Put("a", 1)
	c.Put("b", 2)
	c.Peek("a") // should not count as a use
	c.Put("c", 3)
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("evicted = %v, want [a]", evicted)
	}
}

func TestClearEvictsEverything(t *testing.T) {
	var evicted int
	c := New[int, int](4, func(k, v int) { evicted++ })
	for i := range 4 {
		c.Put(i, i)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
	if evicted != 4 {
		t.Fatalf("evicted = %d, want 4", evicted)
	}
}
