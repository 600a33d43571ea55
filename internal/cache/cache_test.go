package cache

import "testing"

func TestGetPut(t *testing.T) {
	c := New[string, int](4)
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get on empty cache reported a hit")
	}
	c.Put("a", 1)
	c.Put("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Errorf("Get(a) = %d, %v, want 2, true", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, int](3)
	for i := range 3 {
		c.Put(i, i*10)
	}
	c.Get(0) // 1 is now the oldest
	c.Put(3, 30)

	if _, ok := c.Get(1); ok {
		t.Error("key 1 survived eviction")
	}
	for _, k := range []int{0, 2, 3} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("key %d was evicted", k)
		}
	}
	st := c.Stats()
	if st.Len != 3 || st.Evictions != 1 {
		t.Errorf("Stats() = %+v, want Len 3, Evictions 1", st)
	}
}

func TestUnbounded(t *testing.T) {
	c := New[int, int](0)
	for i := range 1000 {
		c.Put(i, i)
	}
	if c.Len() != 1000 {
		t.Errorf("Len() = %d, want 1000", c.Len())
	}
}

func TestGetOrCreate(t *testing.T) {
	c := New[string, int](2)
	calls := 0
	create := func() int { calls++; return 7 }
	if v := c.GetOrCreate("k", create); v != 7 {
		t.Errorf("GetOrCreate() = %d, want 7", v)
	}
	c.GetOrCreate("k", create)
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New[string, int](4)
	c.Put("a", 1)
	c.Put("b", 2)
	if !c.Delete("a") || c.Delete("a") {
		t.Error("Delete(a) twice, want true then false")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
	c.Put("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("Get(c) after Clear = %d, %v", v, ok)
	}
}

func TestHitRate(t *testing.T) {
	c := New[int, int](2)
	if r := c.Stats().HitRate(); r != 0 {
		t.Errorf("HitRate() = %v before lookups, want 0", r)
	}
	c.Put(1, 1)
	c.Get(1)
	c.Get(2)
	if r := c.Stats().HitRate(); r != 0.5 {
		t.Errorf("HitRate() = %v, want 0.5", r)
	}
}
