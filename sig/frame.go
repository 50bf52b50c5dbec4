package sig

import (
	"vkernel/defs"
	"vkernel/vm"
)

// Regs mirrors the subset of a saved register file needed to build and
// restore a signal frame; proc owns the full machine-register snapshot,
// this is the minimal shape sig needs to splice a handler invocation in
// and back out again.
type Regs struct {
	Rip, Rsp, Rflags uintptr
	Rdi, Rsi, Rdx     uintptr // first three syscall-ABI argument registers
}

// Frame_t is a signal frame constructed on the user's (possibly
// alternate) stack: the saved pre-signal register state plus the
// delivered Siginfo, so sigreturn can restore exactly what was
// interrupted.
type Frame_t struct {
	Saved Regs
	Info  Siginfo
	Mask  Set
}

const frameSize = 0x100 // conservative fixed-size frame, rounded generously

// signalStackPointer picks the normal user stack or, if the handler
// requested SA_ONSTACK and an alternate stack is registered, the
// alternate stack -- matching sigaltstack(2) semantics.
func signalStackPointer(st *State, act Act, cur uintptr) uintptr {
	const SA_ONSTACK = 0x08000000
	if act.Flags&SA_ONSTACK != 0 && st.AltStackLen != 0 {
		return st.AltStackBase + st.AltStackLen
	}
	// x86-64 requires a 128-byte red zone below the current stack
	// pointer be left untouched.
	return cur - 128
}

// Build writes a signal frame onto the target stack and returns the new
// register state (Rip pointed at the handler, Rsp pointed at the new
// frame, with the trampoline's return address arranged so that the
// handler returning normally re-enters the kernel via sigreturn) plus
// the updated blocked-signal mask that should be active while the
// handler runs.
func Build(as *vm.AddressSpace, st *State, pre Regs, info Siginfo, act Act, trampoline uintptr) (Regs, Set, defs.Err_t) {
	sp := signalStackPointer(st, act, pre.Rsp)
	sp &^= 0xf // 16-byte align, matching the x86-64 SysV ABI at call boundaries
	sp -= frameSize

	frame := Frame_t{Saved: pre, Info: info, Mask: st.Blocked}
	buf := encodeFrame(frame)

	ub := vm.Mkuserbuf(as, sp, len(buf))
	if n, err := ub.Uiowrite(buf); err != 0 || n != len(buf) {
		if err == 0 {
			err = defs.EFAULT
		}
		return Regs{}, 0, err
	}

	// Arrange the handler call per the SysV ABI: rdi=signo, rsi=&info
	// (stored just past the saved registers), return address = trampoline.
	retAddrOff := sp + frameSize - 8
	ubret := vm.Mkuserbuf(as, retAddrOff, 8)
	putRet := encodeUintptr(trampoline)
	if n, err := ubret.Uiowrite(putRet); err != 0 || n != 8 {
		if err == 0 {
			err = defs.EFAULT
		}
		return Regs{}, 0, err
	}

	newMask := st.Blocked | act.Mask
	newMask.Add(info.Signo) // don't re-enter on the same signal while handling it

	return Regs{
		Rip: act.Handler,
		Rsp: sp,
		Rdi: uintptr(info.Signo),
		Rsi: sp + 48, // &Siginfo: Info follows the six saved registers in the encoded frame
	}, newMask, 0
}

// Restore decodes a frame previously written by Build from the stack at
// sp (where sigreturn finds it, i.e. the Rsp the handler had when it
// called the restorer) and returns the pre-signal register state and
// blocked-signal mask to reinstate.
func Restore(as *vm.AddressSpace, sp uintptr) (Regs, Set, defs.Err_t) {
	buf := make([]byte, frameSize-8)
	ub := vm.Mkuserbuf(as, sp, len(buf))
	if n, err := ub.Uioread(buf); err != 0 || n != len(buf) {
		if err == 0 {
			err = defs.EFAULT
		}
		return Regs{}, 0, err
	}
	f := decodeFrame(buf)
	return f.Saved, f.Mask, 0
}

// encodeFrame/decodeFrame are a minimal, fixed-layout marshal of
// Frame_t; a real ABI would match the kernel's rt_sigframe layout
// exactly, but nothing outside this package reads the bytes directly,
// so only round-tripping through Build/Restore needs to agree.
func encodeFrame(f Frame_t) []byte {
	b := make([]byte, frameSize-8)
	putUintptrAt(b, 0, f.Saved.Rip)
	putUintptrAt(b, 8, f.Saved.Rsp)
	putUintptrAt(b, 16, f.Saved.Rflags)
	putUintptrAt(b, 24, f.Saved.Rdi)
	putUintptrAt(b, 32, f.Saved.Rsi)
	putUintptrAt(b, 40, f.Saved.Rdx)
	putUintptrAt(b, 48, uintptr(f.Info.Signo))
	putUintptrAt(b, 56, uintptr(f.Info.Addr))
	putUintptrAt(b, 64, uintptr(f.Mask))
	return b
}

func decodeFrame(b []byte) Frame_t {
	var f Frame_t
	f.Saved.Rip = getUintptrAt(b, 0)
	f.Saved.Rsp = getUintptrAt(b, 8)
	f.Saved.Rflags = getUintptrAt(b, 16)
	f.Saved.Rdi = getUintptrAt(b, 24)
	f.Saved.Rsi = getUintptrAt(b, 32)
	f.Saved.Rdx = getUintptrAt(b, 40)
	f.Info.Signo = Signo(getUintptrAt(b, 48))
	f.Info.Addr = getUintptrAt(b, 56)
	f.Mask = Set(getUintptrAt(b, 64))
	return f
}

func putUintptrAt(b []byte, off int, v uintptr) {
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * uint(i)))
	}
}

func getUintptrAt(b []byte, off int) uintptr {
	var v uintptr
	for i := 0; i < 8; i++ {
		v |= uintptr(b[off+i]) << (8 * uint(i))
	}
	return v
}

func encodeUintptr(v uintptr) []byte {
	b := make([]byte, 8)
	putUintptrAt(b, 0, v)
	return b
}
