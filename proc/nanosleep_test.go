package proc

import (
	"testing"
	"time"

	"vkernel/defs"
	"vkernel/mem"
	"vkernel/sig"
)

// TestNanosleepInterruptedBySignal is spec.md §8 scenario 4: a process
// sleeping for 10s is sent SIGUSR1 by another process; Nanosleep wakes
// early with EINTR and a positive remaining duration, rather than
// sleeping out the full requested interval.
func TestNanosleepInterruptedBySignal(t *testing.T) {
	mem.Phys_init(1 << 8)
	a := New(0)

	type result struct {
		remain time.Duration
		err    defs.Err_t
	}
	done := make(chan result, 1)
	go func() {
		remain, err := a.Nanosleep(10 * time.Second)
		done <- result{remain, err}
	}()

	time.Sleep(20 * time.Millisecond)
	a.Sig.Send(sig.Siginfo{Signo: sig.SIGUSR1, Pid: 0})

	select {
	case r := <-done:
		if r.err != defs.EINTR {
			t.Fatalf("err = %v, want EINTR", r.err)
		}
		if r.remain <= 0 {
			t.Fatalf("remain = %v, want > 0", r.remain)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nanosleep was not interrupted by the signal")
	}
}

// TestNanosleepCompletesNormally checks the non-interrupted path still
// returns success with nothing remaining.
func TestNanosleepCompletesNormally(t *testing.T) {
	mem.Phys_init(1 << 8)
	a := New(0)

	remain, err := a.Nanosleep(5 * time.Millisecond)
	if err != 0 {
		t.Fatalf("err = %v, want 0", err)
	}
	if remain != 0 {
		t.Fatalf("remain = %v, want 0", remain)
	}
}

// TestWaitInterruptedBySignal checks Process.Wait's blocking path
// returns EINTR rather than hanging when a signal arrives before any
// child has exited, the same wait_until contract applied to the
// parent/child wait queue (spec §4.4).
func TestWaitInterruptedBySignal(t *testing.T) {
	mem.Phys_init(1 << 8)
	init := New(0)
	procLock.Lock()
	procs[InitPid] = init
	procLock.Unlock()

	parent := New(InitPid)
	_, err := parent.Fork()
	if err != 0 {
		t.Fatalf("fork: %v", err)
	}

	type result struct {
		err defs.Err_t
	}
	done := make(chan result, 1)
	go func() {
		_, _, err := parent.Wait(0)
		done <- result{err}
	}()

	time.Sleep(20 * time.Millisecond)
	parent.Sig.Send(sig.Siginfo{Signo: sig.SIGUSR1})

	select {
	case r := <-done:
		if r.err != defs.EINTR {
			t.Fatalf("err = %v, want EINTR", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait was not interrupted by the signal")
	}
}

// TestWaitNoHangReturnsEAGAIN checks WNOHANG returns immediately when
// no child has exited yet, instead of blocking.
func TestWaitNoHangReturnsEAGAIN(t *testing.T) {
	mem.Phys_init(1 << 8)
	parent := New(0)
	_, err := parent.Fork()
	if err != 0 {
		t.Fatalf("fork: %v", err)
	}

	if _, _, err := parent.Wait(defs.WNOHANG); err != defs.EAGAIN {
		t.Fatalf("err = %v, want EAGAIN", err)
	}
}
