package sig

import (
	"testing"

	"vkernel/mem"
	"vkernel/vm"
)

func TestCoalesceStandardSignal(t *testing.T) {
	st := NewState()
	st.Send(Siginfo{Signo: SIGTERM})
	st.Send(Siginfo{Signo: SIGTERM})
	n := 0
	for {
		if _, ok := st.Deliverable(); !ok {
			break
		}
		n++
	}
	if n != 1 {
		t.Fatalf("standard signal should coalesce: delivered %d times", n)
	}
}

func TestRealtimeQueues(t *testing.T) {
	st := NewState()
	st.Send(Siginfo{Signo: SIGRTMIN, Value: 1})
	st.Send(Siginfo{Signo: SIGRTMIN, Value: 2})
	var got []int
	for {
		info, ok := st.Deliverable()
		if !ok {
			break
		}
		got = append(got, info.Value)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("real-time signals should queue in order, got %v", got)
	}
}

func TestBlockedNotDeliverable(t *testing.T) {
	st := NewState()
	st.SetBlocked(func() Set { var s Set; s.Add(SIGTERM); return s }())
	st.Send(Siginfo{Signo: SIGTERM})
	if _, ok := st.Deliverable(); ok {
		t.Fatal("blocked signal should not be deliverable")
	}
}

func TestCannotBlockOrIgnoreSigkill(t *testing.T) {
	st := NewState()
	if err := st.SetAct(SIGKILL, Act{Disp: DispHandler}); err == 0 {
		t.Fatal("expected EINVAL installing a handler for SIGKILL")
	}
	var mask Set
	mask.Add(SIGKILL)
	st.SetBlocked(mask)
	if st.Blocked.Has(SIGKILL) {
		t.Fatal("SIGKILL must never be blockable")
	}
}

func TestSignalFrameRoundtrip(t *testing.T) {
	mem.Phys_init(1 << 10)
	as := vm.NewAddressSpace()
	base := uintptr(0x5000 * mem.PGSIZE)
	as.Map(vm.Mapping{Start: base, Len: uintptr(4 * mem.PGSIZE), Prot: vm.PROT_READ | vm.PROT_WRITE | vm.PROT_USER, Share: vm.SharePrivate, Res: vm.ResAnon})

	st := NewState()
	pre := Regs{Rip: 0x400000, Rsp: base + uintptr(3*mem.PGSIZE), Rflags: 0x202}
	act := Act{Disp: DispHandler, Handler: 0x401000}
	newRegs, newMask, err := Build(as, st, pre, Siginfo{Signo: SIGSEGV, Addr: 0xdead}, act, 0x402000)
	if err != 0 {
		t.Fatalf("Build failed: %v", err)
	}
	if newRegs.Rip != act.Handler {
		t.Fatal("handler rip not set")
	}
	if !newMask.Has(SIGSEGV) {
		t.Fatal("signal being handled should be masked during its own handler")
	}

	restored, _, err := Restore(as, newRegs.Rsp)
	if err != 0 {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Rip != pre.Rip || restored.Rsp != pre.Rsp {
		t.Fatalf("restored regs mismatch: got %+v want %+v", restored, pre)
	}
}
