package sig

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// FaultClass categorizes the hardware fault vm.Sys_pgfault (or a
// simulated illegal-instruction/divide-by-zero trap) reports.
type FaultClass int

const (
	FaultPage FaultClass = iota
	FaultProt
	FaultIllegalInsn
	FaultDivZero
	FaultBreakpoint
)

// DecodeFault translates a hardware fault into the Siginfo the
// scheduler should deliver to the faulting thread. It does not look at
// code; DescribeInstruction disassembles the faulting instruction via
// golang.org/x/arch/x86/x86asm for crash reports.
func DecodeFault(class FaultClass, addr uintptr, code []byte, rip uintptr) Siginfo {
	switch class {
	case FaultPage, FaultProt:
		return Siginfo{Signo: SIGSEGV, Code: siCodeForPage(class), Addr: addr}
	case FaultDivZero:
		return Siginfo{Signo: SIGFPE, Addr: rip}
	case FaultBreakpoint:
		return Siginfo{Signo: SIGTRAP, Addr: rip}
	case FaultIllegalInsn:
		return Siginfo{Signo: SIGILL, Addr: rip}
	}
	panic("unknown fault class")
}

const (
	siCodeMapErr  = 1 // SEGV_MAPERR: address not mapped
	siCodeAccErr  = 2 // SEGV_ACCERR: mapped, but permission denied
)

func siCodeForPage(class FaultClass) int {
	if class == FaultProt {
		return siCodeAccErr
	}
	return siCodeMapErr
}

// DescribeInstruction disassembles the bytes at the fault site for
// inclusion in a crash report. mode is 64 for 64-bit long mode, the
// only mode this kernel targets.
func DescribeInstruction(code []byte, rip uintptr) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("<undecodable at %#x: %v>", rip, err)
	}
	return fmt.Sprintf("%#x: %s", rip, x86asm.GNUSyntax(inst, uint64(rip), nil))
}
