// Package sig implements signal delivery: pending/blocked signal sets,
// per-signal dispositions, signal-frame construction on the user (or
// alternate) stack, a sigreturn-trampoline stand-in, and fault-to-signal
// translation.
//
// Locking discipline and panic-on-invariant-violation follow the rest
// of mem/vm/fs; signal numbering is Linux-compatible.
package sig

import (
	"sync"

	"vkernel/defs"
)

// Signo names a signal by its Linux-compatible number.
type Signo int

const (
	SIGHUP  Signo = 1
	SIGINT  Signo = 2
	SIGQUIT Signo = 3
	SIGILL  Signo = 4
	SIGTRAP Signo = 5
	SIGABRT Signo = 6
	SIGBUS  Signo = 7
	SIGFPE  Signo = 8
	SIGKILL Signo = 9
	SIGUSR1 Signo = 10
	SIGSEGV Signo = 11
	SIGUSR2 Signo = 12
	SIGPIPE Signo = 13
	SIGALRM Signo = 14
	SIGTERM Signo = 15
	SIGCHLD Signo = 17
	SIGCONT Signo = 18
	SIGSTOP Signo = 19
	SIGTSTP Signo = 20

	// Real-time signals. Unlike 1..31, multiple pending instances of
	// the same real-time signal queue rather than coalescing, and each
	// carries a delivered Siginfo.
	SIGRTMIN Signo = 34
	SIGRTMAX Signo = 64
)

// Disposition is what a process has arranged to happen when a signal
// arrives.
type Disposition int

const (
	DispDefault Disposition = iota
	DispIgnore
	DispHandler
)

// Siginfo carries the delivered payload of a signal, the
// Linux-compatible siginfo_t analogue.
type Siginfo struct {
	Signo  Signo
	Code   int // SI_USER, SI_KERNEL, SI_QUEUE, ...
	Pid    defs.Pid_t
	Uid    int
	Addr   uintptr // faulting address, for SIGSEGV/SIGBUS
	Status int     // exit/stop status, for SIGCHLD
	Value  int     // sigqueue payload, real-time signals only
}

// Act describes the disposition and handler address a process has
// registered for one signal.
type Act struct {
	Disp    Disposition
	Handler uintptr
	Mask    Set    // signals blocked while the handler runs
	Flags   int    // SA_RESTART, SA_SIGINFO, SA_ONSTACK, ...
	Restorer uintptr
}

// Set is a bitmask over signals 1..64; signal n is stored at bit n-1.
type Set uint64

func (s Set) Has(sig Signo) bool  { return s&(1<<uint(sig-1)) != 0 }
func (s *Set) Add(sig Signo)      { *s |= 1 << uint(sig-1) }
func (s *Set) Del(sig Signo)      { *s &^= 1 << uint(sig-1) }

// isRealtime reports whether sig is a queueing real-time signal.
func isRealtime(sig Signo) bool { return sig >= SIGRTMIN && sig <= SIGRTMAX }

// State is the per-process (for standard signals, which are
// process-wide once delivered to any thread) and per-thread signal
// state: pending/blocked sets, the act table, and real-time signal
// queues.
type State struct {
	sync.Mutex
	Pending Set
	Blocked Set
	Acts    [SIGRTMAX + 1]Act
	rtqueue map[Signo][]Siginfo
	// AltStack, when non-zero length, is used instead of the normal
	// user stack when a handler's Act.Flags has SA_ONSTACK set.
	AltStackBase uintptr
	AltStackLen  uintptr

	// wake is closed and replaced on every Send, broadcasting to any
	// waitqueue.Queue.SleepInterruptible caller that pending signal
	// state may have changed and is worth re-checking. Threaded through
	// as WakeChan so a sleeper re-fetches the current channel each time
	// it re-blocks, since the old one stays closed forever.
	wake chan struct{}
}

// NewState returns signal state with every signal at its default
// disposition and nothing pending or blocked.
func NewState() *State {
	return &State{rtqueue: make(map[Signo][]Siginfo), wake: make(chan struct{})}
}

// Send marks sig pending, queueing a Siginfo for real-time signals
// (multiple sends queue distinct instances) or coalescing for standard
// signals (a second send while one is already pending is a no-op,
// matching POSIX signal semantics).
func (s *State) Send(info Siginfo) {
	s.Lock()
	defer s.Unlock()
	sig := info.Signo
	if isRealtime(sig) {
		s.rtqueue[sig] = append(s.rtqueue[sig], info)
	}
	s.Pending.Add(sig)
	close(s.wake)
	s.wake = make(chan struct{})
}

// WakeChan returns the channel that closes on the next Send, for a
// waitqueue.Queue.SleepInterruptible caller to select on alongside its
// own wakeup. Must be re-fetched after every wakeup, not cached.
func (s *State) WakeChan() <-chan struct{} {
	s.Lock()
	defer s.Unlock()
	return s.wake
}

// HasDeliverable reports whether some pending signal is currently
// unblocked, without consuming it -- used after an interrupted sleep to
// decide whether to return EINTR, per spec's "if a signal is pending
// after wake" rule (delivery itself happens at the next trap-return
// dispatch point, not here).
func (s *State) HasDeliverable() bool {
	s.Lock()
	defer s.Unlock()
	return s.Pending&^s.Blocked != 0
}

// Deliverable returns the highest-priority pending, unblocked signal
// and its Siginfo, clearing it from pending (and, for a coalesced
// standard signal, synthesizing a minimal Siginfo). It returns ok=false
// if nothing is deliverable right now.
func (s *State) Deliverable() (Siginfo, bool) {
	s.Lock()
	defer s.Unlock()
	ready := s.Pending &^ s.Blocked
	if ready == 0 {
		return Siginfo{}, false
	}
	// Lower signal numbers take priority, matching Linux's convention
	// of scanning from SIGHUP upward.
	for sig := Signo(1); sig <= SIGRTMAX; sig++ {
		if !ready.Has(sig) {
			continue
		}
		if isRealtime(sig) {
			q := s.rtqueue[sig]
			info := q[0]
			q = q[1:]
			if len(q) == 0 {
				delete(s.rtqueue, sig)
				s.Pending.Del(sig)
			} else {
				s.rtqueue[sig] = q
			}
			return info, true
		}
		s.Pending.Del(sig)
		return Siginfo{Signo: sig}, true
	}
	return Siginfo{}, false
}

// SetAct installs a new disposition for sig, validating that SIGKILL
// and SIGSTOP cannot be caught or ignored, per POSIX.
func (s *State) SetAct(sig Signo, act Act) defs.Err_t {
	if sig == SIGKILL || sig == SIGSTOP {
		if act.Disp != DispDefault {
			return defs.EINVAL
		}
	}
	s.Lock()
	defer s.Unlock()
	s.Acts[sig] = act
	return 0
}

// SetBlocked replaces the blocked set, refusing to block SIGKILL/SIGSTOP.
func (s *State) SetBlocked(mask Set) {
	mask.Del(SIGKILL)
	mask.Del(SIGSTOP)
	s.Lock()
	s.Blocked = mask
	s.Unlock()
}
