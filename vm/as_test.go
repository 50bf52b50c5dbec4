package vm

import (
	"testing"

	"vkernel/mem"
)

func setupMem(t *testing.T) {
	t.Helper()
	mem.Phys_init(1 << 12)
}

func TestMapFaultAnon(t *testing.T) {
	setupMem(t)
	as := NewAddressSpace()
	base := uintptr(0x1000 * mem.PGSIZE)
	if err := as.Map(Mapping{Start: base, Len: uintptr(4 * mem.PGSIZE), Prot: PROT_READ | PROT_WRITE | PROT_USER, Share: SharePrivate, Res: ResAnon}); err != 0 {
		t.Fatalf("map failed: %v", err)
	}
	if err := as.Sys_pgfault(base+10, FaultWrite); err != 0 {
		t.Fatalf("fault failed: %v", err)
	}
	if _, ok := as.Lookup(base); !ok {
		t.Fatal("page not resident after fault")
	}
}

func TestCOWFork(t *testing.T) {
	setupMem(t)
	as := NewAddressSpace()
	base := uintptr(0x2000 * mem.PGSIZE)
	as.Map(Mapping{Start: base, Len: uintptr(mem.PGSIZE), Prot: PROT_READ | PROT_WRITE | PROT_USER, Share: SharePrivate, Res: ResAnon})
	if err := as.Sys_pgfault(base, FaultWrite); err != 0 {
		t.Fatal(err)
	}
	pa1, _ := as.Lookup(base)

	child := as.Fork()
	pa2, ok := child.Lookup(base)
	if !ok {
		t.Fatal("child missing page after fork")
	}
	if pa1 != pa2 {
		t.Fatal("COW fork should share the same frame until written")
	}
	if mem.Physmem.Refcnt(pa1) != 2 {
		t.Fatalf("refcnt = %d, want 2", mem.Physmem.Refcnt(pa1))
	}

	// Writing in the child should break COW and allocate a new frame.
	if err := child.Sys_pgfault(base, FaultWrite); err != 0 {
		t.Fatal(err)
	}
	pa3, _ := child.Lookup(base)
	if pa3 == pa1 {
		t.Fatal("expected COW break to allocate a new frame")
	}
}

func TestUnmapDropsRefs(t *testing.T) {
	setupMem(t)
	as := NewAddressSpace()
	base := uintptr(0x3000 * mem.PGSIZE)
	as.Map(Mapping{Start: base, Len: uintptr(mem.PGSIZE), Prot: PROT_READ | PROT_WRITE | PROT_USER, Share: SharePrivate, Res: ResAnon})
	as.Sys_pgfault(base, FaultWrite)
	pa, _ := as.Lookup(base)
	as.Unmap(base, uintptr(mem.PGSIZE))
	if _, ok := as.Lookup(base); ok {
		t.Fatal("page still resident after unmap")
	}
	if mem.Physmem.Refcnt(pa) != 0 {
		t.Fatal("frame not freed after unmap")
	}
}

func TestUserbufCopy(t *testing.T) {
	setupMem(t)
	as := NewAddressSpace()
	base := uintptr(0x4000 * mem.PGSIZE)
	as.Map(Mapping{Start: base, Len: uintptr(2 * mem.PGSIZE), Prot: PROT_READ | PROT_WRITE | PROT_USER, Share: SharePrivate, Res: ResAnon})

	src := []byte("hello, kernel")
	ub := Mkuserbuf(as, base, len(src))
	n, err := ub.Uiowrite(src)
	if err != 0 || n != len(src) {
		t.Fatalf("write failed: n=%d err=%v", n, err)
	}

	dst := make([]byte, len(src))
	ub2 := Mkuserbuf(as, base, len(dst))
	n, err = ub2.Uioread(dst)
	if err != 0 || n != len(dst) {
		t.Fatalf("read failed: n=%d err=%v", n, err)
	}
	if string(dst) != string(src) {
		t.Fatalf("roundtrip mismatch: got %q want %q", dst, src)
	}
}
