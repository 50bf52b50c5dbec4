package mem

import "testing"

func TestAllocFreeSingle(t *testing.T) {
	Phys_init(1 << 10)
	pg, pa, ok := Physmem.Refpg_new()
	if !ok {
		t.Fatal("alloc failed")
	}
	for _, w := range pg {
		if w != 0 {
			t.Fatal("page not zeroed")
		}
	}
	if Physmem.Refcnt(pa) != 1 {
		t.Fatalf("refcnt = %d, want 1", Physmem.Refcnt(pa))
	}
	if !Physmem.Refdown(pa) {
		t.Fatal("expected page to be freed")
	}
}

func TestBuddySplitCoalesce(t *testing.T) {
	Phys_init(1 << 10)
	free0, used0, _ := Physmem.Pgcount()

	pa, ok := Physmem.AllocOrder(3) // 8 pages
	if !ok {
		t.Fatal("alloc order 3 failed")
	}
	freeMid, usedMid, _ := Physmem.Pgcount()
	if usedMid != used0+8 {
		t.Fatalf("used = %d, want %d", usedMid, used0+8)
	}
	if freeMid != free0-8 {
		t.Fatalf("free = %d, want %d", freeMid, free0-8)
	}

	Physmem.FreeOrder(pa, 3)
	free1, used1, _ := Physmem.Pgcount()
	if free1 != free0 || used1 != used0 {
		t.Fatalf("coalesce did not restore counts: free=%d used=%d", free1, used1)
	}
}

func TestRefcounting(t *testing.T) {
	Phys_init(1 << 8)
	_, pa, ok := Physmem.Refpg_new()
	if !ok {
		t.Fatal("alloc failed")
	}
	Physmem.Refup(pa)
	if Physmem.Refcnt(pa) != 2 {
		t.Fatal("refup did not increment")
	}
	if Physmem.Refdown(pa) {
		t.Fatal("page freed too early")
	}
	if !Physmem.Refdown(pa) {
		t.Fatal("page should be freed on last refdown")
	}
}

func TestOOM(t *testing.T) {
	Phys_init(4)
	var allocated []Pa_t
	for {
		_, pa, ok := Physmem.Refpg_new()
		if !ok {
			break
		}
		allocated = append(allocated, pa)
		if len(allocated) > 100 {
			t.Fatal("allocator never reported OOM")
		}
	}
	for _, pa := range allocated {
		Physmem.Refdown(pa)
	}
}
