// Package tinfo tracks per-thread state the scheduler needs to find
// without threading a parameter through every call path -- what the
// thread is waiting on, whether it has been killed, etc.
//
// Real kernels stash this pointer in a hardware-reserved register slot
// (e.g. %gs-based thread-locals); goroutines have no equivalent hidden
// slot, so the same "current thread's note, found without an explicit
// parameter" idiom is reproduced with a per-goroutine key, the
// goroutine id parsed out of a small stack trace, keyed into a
// concurrent map.
package tinfo

import (
	"runtime"
	"sync"

	"vkernel/defs"
)

// Tnote_t stores per-thread state used by the scheduler.
type Tnote_t struct {
	State    interface{}
	Alive    bool
	Killed   bool
	Isdoomed bool
	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
}

// Doomed reports whether the thread is marked as doomed.
func (t *Tnote_t) Doomed() bool {
	return t.Isdoomed
}

// Threadinfo_t tracks all thread notes.
type Threadinfo_t struct {
	Notes map[defs.Tid_t]*Tnote_t
	sync.Mutex
}

// Init initializes the thread info map.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Tid_t]*Tnote_t)
}

var current sync.Map // goroutine id (uint64) -> *Tnote_t

// goid recovers a stable identifier for the calling goroutine by
// parsing it out of runtime.Stack's header line. This is the standard
// workaround for the absence of a public goroutine-id API, used here
// only as a substitute for a reserved-register thread-local -- not for
// anything the scheduler depends on for correctness.
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	// "goroutine 123 [running]:"
	i := 10 // len("goroutine ")
	if i >= len(b) {
		panic("unexpected stack header")
	}
	var id uint64
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		id = id*10 + uint64(b[i]-'0')
		i++
	}
	return id
}

// Goid exposes the calling goroutine's recovered identifier so other
// packages (proc.Current) can key their own per-goroutine state the
// same way tinfo does, without duplicating the stack-trace parse.
func Goid() uint64 {
	return goid()
}

// Current returns the current goroutine's thread note.
func Current() *Tnote_t {
	v, ok := current.Load(goid())
	if !ok {
		panic("no current thread note")
	}
	return v.(*Tnote_t)
}

// SetCurrent installs p as the current goroutine's thread note.
func SetCurrent(p *Tnote_t) {
	if p == nil {
		panic("nuts")
	}
	id := goid()
	if _, ok := current.Load(id); ok {
		panic("nuts")
	}
	current.Store(id, p)
}

// ClearCurrent removes the current goroutine's thread note.
func ClearCurrent() {
	id := goid()
	if _, ok := current.Load(id); !ok {
		panic("nuts")
	}
	current.Delete(id)
}
