package proc

import (
	"testing"

	"vkernel/defs"
	"vkernel/mem"
)

func TestForkExitWaitReap(t *testing.T) {
	mem.Phys_init(1 << 12)

	init := New(0)
	procLock.Lock()
	procs[InitPid] = init
	procLock.Unlock()

	parent := New(InitPid)
	child, err := parent.Fork()
	if err != 0 {
		t.Fatalf("fork failed: %v", err)
	}
	if child.Ppid != parent.Pid {
		t.Fatalf("child ppid = %d, want %d", child.Ppid, parent.Pid)
	}

	go func() {
		child.Exit(7)
	}()

	pid, status, err := parent.Wait(0)
	if err != 0 {
		t.Fatalf("wait failed: %v", err)
	}
	if pid != child.Pid {
		t.Fatalf("waited on wrong pid: got %d want %d", pid, child.Pid)
	}
	if status != 7 {
		t.Fatalf("status = %d, want 7", status)
	}
	if _, ok := Find(child.Pid); ok {
		t.Fatal("child should be reaped and gone from the process table")
	}
}

func TestWaitNoChildrenIsECHILD(t *testing.T) {
	mem.Phys_init(1 << 8)
	p := New(0)
	if _, _, err := p.Wait(0); err != defs.ECHILD {
		t.Fatalf("err = %v, want ECHILD", err)
	}
}

func TestOrphanReparentedToInit(t *testing.T) {
	mem.Phys_init(1 << 10)
	init := New(0)
	procLock.Lock()
	procs[InitPid] = init
	procLock.Unlock()

	parent := New(InitPid)
	child, _ := parent.Fork()

	parent.Exit(0)

	child.Lock()
	ppid := child.Ppid
	child.Unlock()
	if ppid != InitPid {
		t.Fatalf("orphan ppid = %d, want init (%d)", ppid, InitPid)
	}
}
