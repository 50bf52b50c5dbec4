// Package exec implements the kernel-side half of program execution:
// the two vm.Map calls that form the ELF loader's contract with the VM
// engine (file-backed PT_LOAD segments, an anonymous initial stack),
// plus building the System V x86-64 initial-stack layout (argc, argv,
// envp, auxv) a freshly execed process's libc startup code expects to
// find at its entry point. The ELF parser itself (turning a byte
// stream into Segment descriptions) is an external collaborator out of
// scope here; this package only ever sees already-parsed program
// headers, the same split gvisor's pkg/sentry/mm draws between its
// loader and its MemoryManager.
package exec

import (
	"vkernel/defs"
	"vkernel/mem"
	"vkernel/util"
	"vkernel/vm"
)

// Segment describes one already-parsed ELF PT_LOAD program header.
type Segment struct {
	Vaddr   uintptr
	Memsz   uintptr
	Prot    vm.Prot
	File    vm.FileBacking
	FileOff uintptr
}

// Auxiliary vector tags a libc startup reads off the initial stack,
// the subset the System V x86-64 ABI requires.
const (
	AT_NULL   = 0
	AT_PHDR   = 3
	AT_PHENT  = 4
	AT_PHNUM  = 5
	AT_PAGESZ = 6
	AT_ENTRY  = 9
)

// AuxEnt is one (tag, value) pair of the auxiliary vector.
type AuxEnt struct {
	Tag uint64
	Val uint64
}

// defaultStackPages is the anonymous stack's initial size: generous
// enough for a typical argv/envp without growing on demand, which this
// package does not implement (the spec's stack mapping is a single
// fixed-size anonymous region, not an auto-growing one).
const defaultStackPages = 32

// stackTop is the fixed virtual address the initial stack's highest
// byte is mapped at, comfortably below any plausible kernel/user split
// so it never collides with PT_LOAD segments placed at low addresses.
const stackTop uintptr = 0x00007ffffffff000

func pground(v uintptr) uintptr {
	return util.Rounddown(v, uintptr(mem.PGSIZE))
}

func pgroundup(v uintptr) uintptr {
	return util.Roundup(v, uintptr(mem.PGSIZE))
}

// Load maps every PT_LOAD segment and an anonymous stack into as via
// vm.AddressSpace.Map, writes argv/envp/auxv onto the stack following
// the System V ABI, and returns the stack pointer a freshly forked
// thread's register snapshot should be primed with.
func Load(as *vm.AddressSpace, segs []Segment, argv, envp []string, auxv []AuxEnt) (uintptr, defs.Err_t) {
	for _, s := range segs {
		start := pground(s.Vaddr)
		end := pgroundup(s.Vaddr + s.Memsz)
		m := vm.Mapping{
			Start:   start,
			Len:     end - start,
			Prot:    s.Prot | vm.PROT_USER,
			Share:   vm.SharePrivate,
			Res:     vm.ResFile,
			File:    s.File,
			FileOff: s.FileOff - (s.Vaddr - start),
		}
		if err := as.Map(m); err != 0 {
			return 0, err
		}
	}

	stackLen := uintptr(defaultStackPages * mem.PGSIZE)
	stackStart := stackTop - stackLen
	if err := as.Map(vm.Mapping{
		Start: stackStart,
		Len:   stackLen,
		Prot:  vm.PROT_READ | vm.PROT_WRITE | vm.PROT_USER,
		Share: vm.SharePrivate,
		Res:   vm.ResAnon,
	}); err != 0 {
		return 0, err
	}

	return writeInitialStack(as, stackStart, stackTop, argv, envp, auxv)
}

// writeInitialStack lays out argc/argv/envp/auxv at the top of the
// mapped stack region, in the order an x86-64 System V entry point
// expects: the pointed-to strings highest, then the auxv array, then
// envp's NULL-terminated pointer array, then argv's, then argc at the
// final stack pointer, which is 16-byte aligned per the ABI.
func writeInitialStack(as *vm.AddressSpace, stackStart, stackTopVA uintptr, argv, envp []string, auxv []AuxEnt) (uintptr, defs.Err_t) {
	sp := stackTopVA

	writeStr := func(s string) (uintptr, defs.Err_t) {
		b := append([]byte(s), 0)
		sp -= uintptr(len(b))
		if sp < stackStart {
			return 0, defs.E2BIG
		}
		ub := vm.Mkuserbuf(as, sp, len(b))
		if _, err := ub.Uiowrite(b); err != 0 {
			return 0, err
		}
		return sp, 0
	}

	argvPtrs := make([]uintptr, len(argv))
	for i, s := range argv {
		p, err := writeStr(s)
		if err != 0 {
			return 0, err
		}
		argvPtrs[i] = p
	}
	envpPtrs := make([]uintptr, len(envp))
	for i, s := range envp {
		p, err := writeStr(s)
		if err != 0 {
			return 0, err
		}
		envpPtrs[i] = p
	}

	// Align down to 16 bytes before laying out the word arrays, the
	// ABI's stack-alignment-at-entry requirement.
	sp = util.Rounddown(sp, 16)
	// Each word below is 8 bytes; pad once when their count is odd so
	// argc still lands on a 16-byte boundary.
	if (5+2*len(auxv)+len(envp)+len(argv))%2 != 0 {
		sp -= 8
	}

	writeWord := func(v uint64) defs.Err_t {
		sp -= 8
		buf := make([]byte, 8)
		util.Writen(buf, 8, 0, int(v))
		ub := vm.Mkuserbuf(as, sp, 8)
		_, err := ub.Uiowrite(buf)
		return err
	}

	// auxv, terminated by (AT_NULL, 0), highest of the word arrays.
	if err := writeWord(0); err != 0 {
		return 0, err
	}
	if err := writeWord(AT_NULL); err != 0 {
		return 0, err
	}
	for i := len(auxv) - 1; i >= 0; i-- {
		if err := writeWord(auxv[i].Val); err != 0 {
			return 0, err
		}
		if err := writeWord(auxv[i].Tag); err != 0 {
			return 0, err
		}
	}

	// envp[], NULL-terminated.
	if err := writeWord(0); err != 0 {
		return 0, err
	}
	for i := len(envpPtrs) - 1; i >= 0; i-- {
		if err := writeWord(uint64(envpPtrs[i])); err != 0 {
			return 0, err
		}
	}

	// argv[], NULL-terminated.
	if err := writeWord(0); err != 0 {
		return 0, err
	}
	for i := len(argvPtrs) - 1; i >= 0; i-- {
		if err := writeWord(uint64(argvPtrs[i])); err != 0 {
			return 0, err
		}
	}

	// argc.
	if err := writeWord(uint64(len(argv))); err != 0 {
		return 0, err
	}

	return sp, 0
}
