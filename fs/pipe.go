package fs

import (
	"sync"

	"vkernel/circbuf"
	"vkernel/defs"
	"vkernel/limits"
	"vkernel/mem"
	"vkernel/proc/waitqueue"
	"vkernel/sig"
	"vkernel/stat"
	"vkernel/vm"
)

// Pipe is the shared state behind a pair of anonymous pipe file
// descriptors: one circular byte buffer (circbuf.Circbuf_t, the same
// ring the teacher used for ttys) with a read end and a write end, a
// reader wait queue (blocks on empty) and a writer wait queue (blocks
// on full), matching spec §8 scenario 3 ("process A reads from a pipe
// of capacity 4096 (empty); process B writes; A wakes and returns the
// bytes written").
type Pipe struct {
	sync.Mutex
	buf     circbuf.Circbuf_t
	readers int
	writers int
	readerq *waitqueue.Queue
	writerq *waitqueue.Queue
}

// PipeEnd is one of the two file descriptors sharing a Pipe, the thing
// fd.Fd_t.Fops points at -- read-only or write-only, never both,
// matching pipe(2)'s two-descriptor contract.
type PipeEnd struct {
	p     *Pipe
	write bool
}

// NewPipe allocates a fresh pipe of the standard page-sized capacity,
// charging the system-wide pipe limit the way every other bounded
// kernel resource in this repo does (limits.Syslimit.Pipes), and
// returns its two ends. It fails with EMFILE if the system pipe limit
// is exhausted.
func NewPipe() (*PipeEnd, *PipeEnd, defs.Err_t) {
	if !limits.Syslimit.Pipes.Take() {
		return nil, nil, defs.EMFILE
	}
	p := &Pipe{
		readers: 1,
		writers: 1,
		readerq: waitqueue.New(),
		writerq: waitqueue.New(),
	}
	p.buf.Cb_init(mem.PGSIZE, mem.Physmem)
	return &PipeEnd{p: p, write: false}, &PipeEnd{p: p, write: true}, 0
}

// curSig returns the calling process's signal state's wake channel
// function, or nil when called outside a process context (e.g. from a
// test with no scheduler running), in which case a blocked read/write
// simply behaves like an uninterruptible Sleep.
func curSig() func() <-chan struct{} {
	if cur, ok := currentSignalState(); ok {
		return cur.WakeChan
	}
	return nil
}

// currentSignalHasDeliverable reports whether the calling process (if
// any) has an unblocked pending signal, for translating an
// interrupted pipe wait into EINTR.
func currentSignalHasDeliverable() bool {
	cur, ok := currentSignalState()
	return ok && cur.HasDeliverable()
}

// currentSignalState is satisfied by proc.Current().Sig at runtime;
// wired via SetCurrentSignalSource to avoid fs importing proc (proc
// already imports fs's sibling packages transitively through vm, and
// fs must stay below proc in the import graph per this repo's
// mem->vm->fs->proc layering).
var currentSignalState = func() (*sig.State, bool) { return nil, false }

// SetCurrentSignalSource installs the function fs.Pipe uses to find
// the calling process's signal state, so a blocked pipe read/write can
// be interrupted by a pending signal. proc.init wires this to
// proc.Current().Sig at startup.
func SetCurrentSignalSource(f func() (*sig.State, bool)) {
	currentSignalState = f
}

// Read blocks while the pipe is empty and the write end is still
// open, returning 0 (EOF) once every writer has closed, EINTR if a
// signal becomes deliverable while blocked, and otherwise the bytes
// copied out -- spec §8 scenario 3's observable behavior.
func (e *PipeEnd) Read(dst []uint8) (int, defs.Err_t) {
	p := e.p
	p.Lock()
	for p.buf.Empty() && p.writers > 0 {
		p.Unlock()
		woken := p.readerq.SleepInterruptible(func() bool {
			p.Lock()
			ready := !p.buf.Empty() || p.writers == 0
			p.Unlock()
			return ready
		}, curSig())
		if !woken && currentSignalHasDeliverable() {
			return 0, defs.EINTR
		}
		p.Lock()
	}
	ub := vm.Mkfakeubuf(dst)
	n, err := p.buf.Copyout(ub)
	p.Unlock()
	if err == 0 {
		p.writerq.Wake(1)
	}
	return n, err
}

// Write blocks while the pipe is full and at least one reader remains,
// returns EPIPE if every reader has already closed (mirroring
// SIGPIPE's usual trigger, delivered by the caller's syscall layer),
// and otherwise copies src into the buffer, waking any blocked reader.
func (e *PipeEnd) Write(src []uint8) (int, defs.Err_t) {
	p := e.p
	p.Lock()
	if p.readers == 0 {
		p.Unlock()
		return 0, defs.EPIPE
	}
	for p.buf.Full() {
		p.Unlock()
		woken := p.writerq.SleepInterruptible(func() bool {
			p.Lock()
			ready := !p.buf.Full() || p.readers == 0
			p.Unlock()
			return ready
		}, curSig())
		if !woken && currentSignalHasDeliverable() {
			return 0, defs.EINTR
		}
		p.Lock()
		if p.readers == 0 {
			p.Unlock()
			return 0, defs.EPIPE
		}
	}
	ub := vm.Mkfakeubuf(src)
	n, err := p.buf.Copyin(ub)
	p.Unlock()
	if err == 0 {
		p.readerq.Wake(1)
	}
	return n, err
}

// Fstat reports a FIFO-shaped stat block; pipes have no path, size, or
// link count beyond the conventional zero/one the stat(2) man page
// documents for anonymous pipes.
func (e *PipeEnd) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(uint(defs.S_IFIFO))
	st.Wnlink(1)
	return 0
}

// Lseek always fails: pipes are not seekable.
func (e *PipeEnd) Lseek(off int, whence int) (int, defs.Err_t) {
	return 0, defs.ESPIPE
}

// Reopen takes another reference on whichever end e is, for dup/fork.
func (e *PipeEnd) Reopen() defs.Err_t {
	e.p.Lock()
	if e.write {
		e.p.writers++
	} else {
		e.p.readers++
	}
	e.p.Unlock()
	return 0
}

// Close drops e's reference; the last writer closing wakes any blocked
// reader so it observes EOF, and the last reader closing wakes any
// blocked writer so it observes EPIPE, and releases the pipe's system
// limit charge once both ends are fully closed.
func (e *PipeEnd) Close() defs.Err_t {
	p := e.p
	p.Lock()
	if e.write {
		p.writers--
		if p.writers == 0 {
			p.Unlock()
			p.readerq.WakeAll()
			p.Lock()
		}
	} else {
		p.readers--
		if p.readers == 0 {
			p.Unlock()
			p.writerq.WakeAll()
			p.Lock()
		}
	}
	done := p.readers == 0 && p.writers == 0
	p.Unlock()
	if done {
		p.buf.Cb_release()
		limits.Syslimit.Pipes.Give()
	}
	return 0
}
