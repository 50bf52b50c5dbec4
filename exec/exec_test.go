package exec

import (
	"encoding/binary"
	"testing"

	"vkernel/defs"
	"vkernel/mem"
	"vkernel/vm"
)

type zeroFile struct{}

func (zeroFile) ReadPage(off uintptr) (*mem.Pg_t, defs.Err_t) {
	pg, _, ok := mem.Physmem.Refpg_new()
	if !ok {
		return nil, defs.ENOMEM
	}
	return pg, 0
}

func (zeroFile) MarkDirty(off uintptr) {}

func (zeroFile) Sync() defs.Err_t { return 0 }

func TestLoadMapsSegmentsAndStack(t *testing.T) {
	mem.Phys_init(1 << 14)
	as := vm.NewAddressSpace()

	segs := []Segment{
		{Vaddr: 0x400000, Memsz: uintptr(mem.PGSIZE), Prot: vm.PROT_READ | vm.PROT_EXEC, File: zeroFile{}},
	}
	sp, err := Load(as, segs, []string{"prog", "arg1"}, []string{"HOME=/"}, []AuxEnt{
		{Tag: AT_PAGESZ, Val: uint64(mem.PGSIZE)},
	})
	if err != 0 {
		t.Fatalf("Load failed: %v", err)
	}
	if sp == 0 {
		t.Fatal("sp is zero")
	}
	if sp%16 != 0 {
		t.Fatalf("stack pointer %x not 16-byte aligned", sp)
	}

	if _, ok := as.Lookup(pground(0x400000)); !ok {
		// segment is file-backed and lazy; fault it in explicitly
		if e := as.Sys_pgfault(0x400000, vm.FaultRead); e != 0 {
			t.Fatalf("segment page did not fault in: %v", e)
		}
	}

	ub := vm.Mkuserbuf(as, sp, 8)
	buf := make([]byte, 8)
	if _, e := ub.Uioread(buf); e != 0 {
		t.Fatalf("reading argc failed: %v", e)
	}
	argc := binary.LittleEndian.Uint64(buf)
	if argc != 2 {
		t.Fatalf("argc = %d, want 2", argc)
	}
}

func TestLoadStackOverflowFails(t *testing.T) {
	mem.Phys_init(1 << 14)
	as := vm.NewAddressSpace()
	huge := make([]string, 0, 100000)
	big := make([]byte, 200)
	for i := range big {
		big[i] = 'x'
	}
	for i := 0; i < 100000; i++ {
		huge = append(huge, string(big))
	}
	if _, err := Load(as, nil, huge, nil, nil); err == 0 {
		t.Fatal("expected stack overflow to fail")
	}
}
