// Package proc implements the process model: the Process state machine,
// fork/exit/wait, SIGCHLD delivery and reparenting to init, and the
// scheduler's per-core ready queues.
//
// Reuses accnt.Accnt_t, tinfo.Tnote_t, and fd.Fd_t/fd.Cwd_t unchanged
// in spirit, and follows the rest of the kernel's locking discipline:
// leaf mutexes, panic on invariant violation.
package proc

import (
	"sync"
	"sync/atomic"
	"time"

	"vkernel/accnt"
	"vkernel/defs"
	"vkernel/fd"
	"vkernel/fs"
	"vkernel/proc/waitqueue"
	"vkernel/sig"
	"vkernel/tinfo"
	"vkernel/vm"
)

func init() {
	// fs.Pipe needs to ask "does the calling process have a
	// deliverable signal pending?" to turn an interrupted blocked
	// read/write into EINTR, but fs sits below proc in the import
	// graph (mem -> vm -> fs -> proc), so fs exposes a setter instead
	// of importing proc directly.
	fs.SetCurrentSignalSource(func() (*sig.State, bool) {
		p := Current()
		if p == nil {
			return nil, false
		}
		return p.Sig, true
	})
}

// Pstate_t is a process's position in the state machine: Running ->
// {Sleeping, Stopped, Zombie}, Sleeping -> Running, Stopped -> Running,
// Zombie is terminal until reaped.
type Pstate_t int

const (
	RUNNING Pstate_t = iota
	SLEEPING
	STOPPED
	ZOMBIE
)

// Process is a process's kernel-resident state.
type Process struct {
	sync.Mutex
	Pid   defs.Pid_t
	Ppid  defs.Pid_t // parent's pid; looked up in the process table rather
	                 // than held as a pointer, so a parent that exits and
	                 // is reaped does not keep this process artificially
	                 // alive (a weak-reference idiom).
	State Pstate_t

	As  *vm.AddressSpace
	Cwd *fd.Cwd_t
	Fds map[int]*fd.Fd_t

	Sig *sig.State

	Children   []defs.Pid_t
	ExitStatus int

	Accnt accnt.Accnt_t

	threads map[defs.Tid_t]*tinfo.Tnote_t
	nextTid defs.Tid_t

	// waitq is where a parent calling Wait blocks until this process
	// (or one of its siblings) becomes a zombie.
	waitq *waitqueue.Queue

	// Exec metadata, populated by exec.Load; read-only afterwards.
	// procfs surfaces these verbatim for /proc/<pid>/{cmdline,exe,environ}.
	Exe     string
	Argv    []string
	Envv    []string
}

var (
	procLock sync.Mutex
	procs    = map[defs.Pid_t]*Process{}
	nextPid  int64 = 1
)

// InitPid is the pid reparented orphans are adopted by, matching the
// traditional Unix init process.
const InitPid defs.Pid_t = 1

// current tracks, per goroutine, which Process that goroutine is
// presently executing on behalf of -- the scheduler's analogue of a
// hardware core's "currently loaded" process. Mirrors tinfo.Current's
// goroutine-id-recovered sync.Map idiom, since there is no real
// hardware register to stash this in.
var current sync.Map // goroutine id -> *Process

// SetCurrent records p as the process the calling goroutine is running
// on behalf of. Called by the scheduler's run loop and by tests that
// simulate a process's own thread of control.
func SetCurrent(p *Process) {
	current.Store(tinfo.Goid(), p)
}

// Current returns the process the calling goroutine is running on
// behalf of, or nil if none has been set.
func Current() *Process {
	v, ok := current.Load(tinfo.Goid())
	if !ok {
		return nil
	}
	return v.(*Process)
}

// ClearCurrent removes the calling goroutine's current-process record.
func ClearCurrent() {
	current.Delete(tinfo.Goid())
}

// New creates a fresh process with an empty address space and no open
// files, the state any process is in immediately after fork before
// Fork populates it from a parent.
func New(ppid defs.Pid_t) *Process {
	pid := defs.Pid_t(atomic.AddInt64(&nextPid, 1))
	p := &Process{
		Pid:     pid,
		Ppid:    ppid,
		State:   RUNNING,
		As:      vm.NewAddressSpace(),
		Fds:     make(map[int]*fd.Fd_t),
		Sig:     sig.NewState(),
		threads: make(map[defs.Tid_t]*tinfo.Tnote_t),
		waitq:   waitqueue.New(),
	}
	procLock.Lock()
	procs[pid] = p
	if parent, ok := procs[ppid]; ok {
		parent.Children = append(parent.Children, pid)
	}
	procLock.Unlock()
	return p
}

// Find looks up a process by pid; ok is false if it has exited and been
// reaped or never existed.
func Find(pid defs.Pid_t) (*Process, bool) {
	procLock.Lock()
	defer procLock.Unlock()
	p, ok := procs[pid]
	return p, ok
}

// All returns the pids of every process currently in the table, live or
// zombie-but-unreaped. procfs uses this to enumerate /proc's entries.
func All() []defs.Pid_t {
	procLock.Lock()
	defer procLock.Unlock()
	ret := make([]defs.Pid_t, 0, len(procs))
	for pid := range procs {
		ret = append(ret, pid)
	}
	return ret
}

// Fork duplicates the calling process's address space (copy-on-write,
// via vm.AddressSpace.Fork), file descriptor table (each Fd_t is
// reopened, bumping its underlying refcount rather than being
// duplicated), and signal dispositions, returning the child.
func (p *Process) Fork() (*Process, defs.Err_t) {
	p.Lock()
	child := New(p.Pid)
	child.As = p.As.Fork()
	child.Cwd = p.Cwd
	for fdno, f := range p.Fds {
		nf, err := fd.Copyfd(f)
		if err != 0 {
			p.Unlock()
			return nil, err
		}
		child.Fds[fdno] = nf
	}
	*child.Sig = *p.Sig
	p.Unlock()
	return child, 0
}

// AddThread creates a new thread note under this process, the unit the
// scheduler actually runs; a single-threaded process has exactly one.
func (p *Process) AddThread() *tinfo.Tnote_t {
	p.Lock()
	defer p.Unlock()
	tid := p.nextTid
	p.nextTid++
	tn := &tinfo.Tnote_t{Alive: true}
	p.threads[tid] = tn
	return tn
}

// Exit transitions the process to ZOMBIE, tears down its address space
// and file descriptors, reparents any children to init, and wakes the
// parent's Wait.
func (p *Process) Exit(status int) {
	p.Lock()
	p.State = ZOMBIE
	p.ExitStatus = status
	p.As.Teardown()
	for _, f := range p.Fds {
		fd.Close_panic(f)
	}
	p.Fds = nil
	children := p.Children
	p.Unlock()

	procLock.Lock()
	for _, cpid := range children {
		if c, ok := procs[cpid]; ok {
			c.Lock()
			c.Ppid = InitPid
			c.Unlock()
			if ip, ok := procs[InitPid]; ok {
				ip.Lock()
				ip.Children = append(ip.Children, cpid)
				ip.Unlock()
			}
		}
	}
	parent, ok := procs[p.Ppid]
	procLock.Unlock()

	if ok {
		parent.Sig.Send(sig.Siginfo{Signo: sig.SIGCHLD, Pid: p.Pid, Status: status})
		parent.waitq.WakeAll()
	}
}

// Wait blocks until a child has become a zombie, reaps it (removing it
// from the process table so its pid can be reused and its memory
// reclaimed), and returns its pid and exit status. It returns ECHILD
// immediately if the process has no children at all, EAGAIN
// immediately under WNOHANG if none has exited yet, and EINTR if a
// signal arrives before any child does (spec §4.4's wait_until
// contract, applied to the parent/child wait queue specifically).
func (p *Process) Wait(options int) (defs.Pid_t, int, defs.Err_t) {
	p.Lock()
	if len(p.Children) == 0 {
		p.Unlock()
		return 0, 0, defs.ECHILD
	}
	p.Unlock()

	findZombie := func() *Process {
		p.Lock()
		defer p.Unlock()
		for _, cpid := range p.Children {
			procLock.Lock()
			c := procs[cpid]
			procLock.Unlock()
			if c == nil {
				continue
			}
			c.Lock()
			isZombie := c.State == ZOMBIE
			c.Unlock()
			if isZombie {
				return c
			}
		}
		return nil
	}

	var zombie *Process
	if options&defs.WNOHANG != 0 {
		if zombie = findZombie(); zombie == nil {
			return 0, 0, defs.EAGAIN
		}
	} else {
		woken := p.waitq.SleepInterruptible(func() bool {
			zombie = findZombie()
			return zombie != nil
		}, p.Sig.WakeChan)
		if !woken {
			// A child that became a zombie before the signal arrived
			// is still reaped; only an empty result is EINTR.
			zombie = findZombie()
			if zombie == nil {
				return 0, 0, defs.EINTR
			}
		}
	}

	zombie.Lock()
	pid := zombie.Pid
	status := zombie.ExitStatus
	zombie.Unlock()

	p.Lock()
	for i, cpid := range p.Children {
		if cpid == pid {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			break
		}
	}
	p.Unlock()

	procLock.Lock()
	delete(procs, pid)
	procLock.Unlock()

	return pid, status, 0
}

// Nanosleep blocks the calling process for d, standing in for the
// monotonic-tick-driven timer §9 prescribes in place of APIC/HPET. It
// returns early with EINTR and the time remaining (> 0) if a signal
// becomes deliverable before d elapses, per spec §8 scenario 4;
// restart on SA_RESTART is the caller's responsibility, matching §9's
// "restart is the caller's responsibility" note.
func (p *Process) Nanosleep(d time.Duration) (time.Duration, defs.Err_t) {
	if d <= 0 {
		return 0, 0
	}
	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return 0, 0
		case <-p.Sig.WakeChan():
			if p.Sig.HasDeliverable() {
				remain := d - time.Since(start)
				if remain < 0 {
					remain = 0
				}
				return remain, defs.EINTR
			}
			// Blocked or already-consumed signal; nothing actionable
			// woke us, keep sleeping out the remainder.
		}
	}
}
