// Package devprof backs the D_PROF character device (defs.D_PROF).
// Opening it and reading returns a gzip-compressed pprof profile
// snapshot of the frame allocator's and scheduler's live counters -- a
// profile.Profile built with github.com/google/pprof.
package devprof

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/pprof/profile"

	"vkernel/defs"
	"vkernel/mem"
	"vkernel/proc"
	"vkernel/stat"
)

// sampleType names one pprof sample dimension this snapshot reports.
const (
	kindFree  = "free"
	kindUsed  = "used"
	kindTotal = "total"
)

// Device is one open instance of /dev/prof (or /proc/self/profile,
// however the char-device is named by the major/minor table a future
// syscall layer installs). Content is generated once per open and
// served out over subsequent reads, the same "generated on read, then
// stable for this fd" contract procfs's files use.
type Device struct {
	mu   sync.Mutex
	buf  []byte
	off  int
	refs int
}

// NewDevice opens a fresh snapshot, matching the contract that opening
// a /proc file captures the system's state at open time.
func NewDevice() *Device {
	d := &Device{refs: 1}
	d.buf = snapshot()
	return d
}

// snapshot serializes the frame allocator's page counts and the live
// process count into a minimal pprof profile. There is no call-stack
// sampling here (there is no userspace call stack to sample from a
// kernel counter), so each Sample carries no Location -- valid for
// profile.Profile.Write, which does not require CheckValid to pass.
func snapshot() []byte {
	free, used, total := mem.Physmem.Pgcount()
	procCount := len(proc.All())

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "pages", Unit: "count"},
		},
		PeriodType:    &profile.ValueType{Type: "snapshot", Unit: "count"},
		Period:        1,
		TimeNanos:     time.Now().UnixNano(),
		DurationNanos: 0,
		Sample: []*profile.Sample{
			{Value: []int64{int64(free)}, Label: map[string][]string{"kind": {kindFree}}},
			{Value: []int64{int64(used)}, Label: map[string][]string{"kind": {kindUsed}}},
			{Value: []int64{int64(total)}, Label: map[string][]string{"kind": {kindTotal}}},
			{Value: []int64{int64(procCount)}, Label: map[string][]string{"kind": {"processes"}}},
		},
		Comments: []string{"vkernel frame-allocator and scheduler snapshot"},
	}

	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		return nil
	}
	return buf.Bytes()
}

// Read satisfies fdops.Fdops_i, streaming the captured snapshot like
// any other regular file; the snapshot does not change across reads of
// the same open instance.
func (d *Device) Read(dst []uint8) (int, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.off >= len(d.buf) {
		return 0, 0
	}
	n := copy(dst, d.buf[d.off:])
	d.off += n
	return n, 0
}

// Write always fails: the profile device is read-only, like procfs's
// generated files.
func (d *Device) Write(src []uint8) (int, defs.Err_t) {
	return 0, defs.EINVAL
}

// Fstat reports the device's current snapshot size.
func (d *Device) Fstat(st *stat.Stat_t) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	st.Wmode(0100444) // S_IFREG | 0444
	st.Wsize(uint(len(d.buf)))
	st.Wrdev(uint(defs.Mkdev(defs.D_PROF, 0)))
	return 0
}

// Lseek repositions the read cursor within the captured snapshot.
func (d *Device) Lseek(off int, whence int) (int, defs.Err_t) {
	const (
		seekSet = 0
		seekCur = 1
		seekEnd = 2
	)
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int
	switch whence {
	case seekSet:
		n = off
	case seekCur:
		n = d.off + off
	case seekEnd:
		n = len(d.buf) + off
	default:
		return 0, defs.EINVAL
	}
	if n < 0 {
		return 0, defs.EINVAL
	}
	d.off = n
	return n, 0
}

// Close drops this instance's reference; the snapshot is simply
// discarded once its refcount reaches zero, there being no backing
// store to flush.
func (d *Device) Close() defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs--
	if d.refs < 0 {
		panic("devprof: over-closed")
	}
	return 0
}

// Reopen bumps the refcount for a dup'd descriptor, sharing this
// instance's already-captured snapshot and read cursor position.
func (d *Device) Reopen() defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs++
	return 0
}
