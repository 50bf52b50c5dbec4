// Package vm implements the kernel's virtual memory engine: per-process
// address spaces as a sorted interval map of mappings, page-fault-driven
// materialization, copy-on-write, and fork-time address space
// duplication.
//
// Mappings generalize onto a protection/sharing/residence model instead
// of a fixed set of mapping kinds. There is no real MMU or page-table
// walker in this environment, so the "page table" is a map from
// page-aligned virtual address to a simulated PTE, built and consulted
// purely in software -- Sys_pgfault plays the role hardware page-table
// walks play on real x86-64.
package vm

import (
	"fmt"
	"sort"
	"sync"

	"vkernel/bounds"
	"vkernel/defs"
	"vkernel/limits"
	"vkernel/mem"
	"vkernel/res"
)

// Prot is the protection bits a mapping grants.
type Prot int

const (
	PROT_READ Prot = 1 << iota
	PROT_WRITE
	PROT_EXEC
	PROT_USER
)

// Sharing distinguishes a private (COW on fork) mapping from one shared
// between address spaces (writes are visible to all sharers, no COW).
type Sharing int

const (
	SharePrivate Sharing = iota
	ShareShared
)

// Residence describes what backs a mapping's pages.
type Residence int

const (
	ResAnon Residence = iota
	ResFile
	ResStatic // wired, e.g. kernel-supplied pages such as the vdso stand-in
)

// Mapping describes one [Start, Start+Len) virtual interval. Mappings
// never overlap within an AddressSpace; the interval map is kept sorted
// by Start so find can binary-search it the way a real page-table
// walk would traverse levels.
type Mapping struct {
	Start     uintptr
	Len       uintptr
	Prot      Prot
	Share     Sharing
	Res       Residence
	// File-backed mappings only.
	File   FileBacking
	FileOff uintptr
}

// FileBacking is implemented by fs for file-backed mappings; kept as a
// narrow interface so vm does not import fs directly (fs imports vm for
// its own buffer-pool mappings; a direct cycle is not allowed in Go).
type FileBacking interface {
	ReadPage(off uintptr) (*mem.Pg_t, defs.Err_t)
	// MarkDirty records that the page at byte offset off has been
	// handed out writable and must be flushed before eviction.
	MarkDirty(off uintptr)
	// Sync flushes every dirty page of the backing node.
	Sync() defs.Err_t
}

// pte records the simulated page-table-entry state for one page: the
// backing physical frame and flags (PTE_P/PTE_W/PTE_U/PTE_COW).
type pte struct {
	frame mem.Pa_t
	flags mem.Pa_t
}

// AddressSpace is one process's virtual memory. Mapping is the
// authoritative "what should be mapped" record; pages is the lazily
// populated "what is actually resident" cache consulted by Sys_pgfault
// on a page fault and invalidated by Unmap/fork.
type AddressSpace struct {
	sync.Mutex
	mappings []Mapping
	pages    map[uintptr]*pte // page-aligned VA -> resident frame
	smap     bool             // SMAP/SMEP stand-in: forbid kernel access to user pages unless armed
	gen      uint64           // TLB generation, bumped on any unmap/protect
	core     int              // core this address space is currently loaded on, for shootdown targeting
}

// NewAddressSpace creates an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{pages: make(map[uintptr]*pte), smap: true}
}

func pground(v uintptr) uintptr {
	return v &^ uintptr(mem.PGSIZE-1)
}

// find returns the index of the mapping containing va, or -1.
func (as *AddressSpace) find(va uintptr) int {
	i := sort.Search(len(as.mappings), func(i int) bool {
		return as.mappings[i].Start+as.mappings[i].Len > va
	})
	if i < len(as.mappings) && as.mappings[i].Start <= va {
		return i
	}
	return -1
}

// Map installs a new mapping. It returns EINVAL if the interval
// overlaps an existing mapping.
func (as *AddressSpace) Map(m Mapping) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	for _, e := range as.mappings {
		if m.Start < e.Start+e.Len && e.Start < m.Start+m.Len {
			return defs.EINVAL
		}
	}
	as.mappings = append(as.mappings, m)
	sort.Slice(as.mappings, func(i, j int) bool { return as.mappings[i].Start < as.mappings[j].Start })
	return 0
}

// Unmap removes the mapping covering [start, start+length) and frees
// any resident frames, dropping their refcount. It bumps the address
// space's TLB generation, which Shootdown uses to know a core's cached
// translations are now stale.
func (as *AddressSpace) Unmap(start, length uintptr) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	end := start + length
	kept := as.mappings[:0]
	for _, m := range as.mappings {
		if m.Start+m.Len <= start || m.Start >= end {
			kept = append(kept, m)
			continue
		}
		// Only whole-mapping unmap is supported; partial punch-out
		// would require splitting the interval, which the spec's
		// Non-goals don't require.
	}
	as.mappings = kept
	for va, p := range as.pages {
		if va >= start && va < end {
			mem.Physmem.Refdown(p.frame)
			delete(as.pages, va)
		}
	}
	as.gen++
	return 0
}

// Protect changes the protection bits of every mapping lying wholly
// inside [start, start+length), returning EINVAL if there is none.
func (as *AddressSpace) Protect(start, length uintptr, prot Prot) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	end := start + length
	found := false
	for i := range as.mappings {
		m := &as.mappings[i]
		if m.Start >= start && m.Start+m.Len <= end {
			m.Prot = prot
			found = true
		}
	}
	if !found {
		return defs.EINVAL
	}
	as.gen++
	return 0
}

// SyncMode selects whether Sync waits for writeback to finish before
// returning, mirroring msync(2)'s MS_SYNC/MS_ASYNC distinction.
type SyncMode int

const (
	SyncAsync SyncMode = iota
	SyncSync
)

// Sync writes back dirty file-backed pages resident in
// [start, start+length) to their owning nodes, the fifth Mapping
// operation alongside Map/Unmap/Protect/Fork. SyncAsync kicks off the
// writeback in a separate goroutine and returns immediately; SyncSync
// blocks until every touched backing has flushed.
func (as *AddressSpace) Sync(start, length uintptr, mode SyncMode) defs.Err_t {
	as.Lock()
	end := start + length
	backings := make(map[FileBacking]bool)
	for _, m := range as.mappings {
		if m.Res != ResFile {
			continue
		}
		if m.Start+m.Len <= start || m.Start >= end {
			continue
		}
		backings[m.File] = true
	}
	as.Unlock()

	flush := func() defs.Err_t {
		for fb := range backings {
			if err := fb.Sync(); err != 0 {
				return err
			}
		}
		return 0
	}

	if mode == SyncAsync {
		go flush()
		return 0
	}
	return flush()
}

// FaultKind categorizes why Resolve needed to run.
type FaultKind int

const (
	FaultRead FaultKind = iota
	FaultWrite
	FaultExec
)

// Sys_pgfault resolves a page fault at va, lazily materializing the
// page (zero-filling anonymous memory, reading from File for
// file-backed mappings, or copying on a COW write) the way a real
// processor's #PF handler would hand off to the kernel.
func (as *AddressSpace) Sys_pgfault(va uintptr, kind FaultKind) defs.Err_t {
	if !bounds.Bounds(bounds.Bounds_PGFAULT) {
		return defs.EAGAIN
	}
	va = pground(va)

	as.Lock()
	idx := as.find(va)
	if idx < 0 {
		as.Unlock()
		return defs.EFAULT
	}
	m := as.mappings[idx]
	if kind == FaultWrite && m.Prot&PROT_WRITE == 0 {
		as.Unlock()
		return defs.EFAULT
	}
	if kind == FaultExec && m.Prot&PROT_EXEC == 0 {
		as.Unlock()
		return defs.EFAULT
	}

	if p, ok := as.pages[va]; ok {
		// Page already resident: this can only be a COW fault, since
		// any other fault on a resident page would be a real
		// protection violation caught above.
		if kind == FaultWrite && p.flags&mem.PTE_COW != 0 {
			as.Unlock()
			return as.breakCOW(va, p)
		}
		as.Unlock()
		return defs.EFAULT
	}
	as.Unlock()

	// Not yet resident: materialize it per the mapping's residence.
	var pg *mem.Pg_t
	var pa mem.Pa_t
	var ok bool
	switch m.Res {
	case ResAnon, ResStatic:
		if !res.Resadd_noblock(&limits.Syslimit.Anonpgs, 1) {
			return defs.ENOMEM
		}
		pg, pa, ok = mem.Physmem.Refpg_new()
		if !ok {
			return defs.ENOMEM
		}
	case ResFile:
		off := va - m.Start + m.FileOff
		var err defs.Err_t
		pg, err = m.File.ReadPage(off)
		if err != 0 {
			return err
		}
		pa = mem.Physmem.Dmap_v2p(pg)
		mem.Physmem.Refup(pa)
	}
	_ = pg

	flags := mem.PTE_P | mem.PTE_U
	if m.Prot&PROT_WRITE != 0 && m.Share == ShareShared {
		flags |= mem.PTE_W
		if m.Res == ResFile {
			// No hardware dirty bit to trap the eventual store, so a
			// shared writable file-backed page is dirtied the moment
			// it is mapped in, not when it is later written through.
			m.File.MarkDirty(va - m.Start + m.FileOff)
		}
	} else if m.Prot&PROT_WRITE != 0 && m.Res != ResFile {
		// A private anonymous page belongs to this address space
		// alone until Fork turns it copy-on-write.
		flags |= mem.PTE_W
	}

	as.Lock()
	if _, already := as.pages[va]; already {
		// lost the race with another fault on the same page
		mem.Physmem.Refdown(pa)
		as.Unlock()
		return 0
	}
	as.pages[va] = &pte{frame: pa, flags: flags}
	as.Unlock()
	return 0
}

// breakCOW duplicates a shared copy-on-write page into a private,
// writable copy for this address space, dropping its reference to the
// original frame.
func (as *AddressSpace) breakCOW(va uintptr, p *pte) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	cur, ok := as.pages[va]
	if !ok || cur != p {
		return 0 // someone else already resolved it
	}
	if mem.Physmem.Refcnt(cur.frame) == 1 {
		// sole owner: just drop COW/add write, no copy needed
		cur.flags = (cur.flags &^ mem.PTE_COW) | mem.PTE_W
		return 0
	}
	newpg, newpa, ok := mem.Physmem.Refpg_new_nozero()
	if !ok {
		return defs.ENOMEM
	}
	oldpg := mem.Physmem.Dmap(cur.frame)
	copy(newpg[:], oldpg[:])
	mem.Physmem.Refdown(cur.frame)
	as.pages[va] = &pte{frame: newpa, flags: (cur.flags &^ mem.PTE_COW) | mem.PTE_W}
	as.gen++
	return 0
}

// Page_insert installs pa at va directly, used by exec's loader to set
// up the initial text/data mappings without going through the fault
// path.
func (as *AddressSpace) Page_insert(va uintptr, pa mem.Pa_t, prot Prot, shared bool) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	va = pground(va)
	flags := mem.PTE_P | mem.PTE_U
	if prot&PROT_WRITE != 0 {
		flags |= mem.PTE_W
	}
	mem.Physmem.Refup(pa)
	as.pages[va] = &pte{frame: pa, flags: flags}
	return 0
}

// Lookup returns the physical frame resident at va and whether it is
// present, without faulting it in.
func (as *AddressSpace) Lookup(va uintptr) (mem.Pa_t, bool) {
	as.Lock()
	defer as.Unlock()
	p, ok := as.pages[pground(va)]
	if !ok {
		return 0, false
	}
	return p.frame, true
}

// Fork duplicates an address space for a child process. Private
// mappings become copy-on-write in both parent and child (sharing the
// same physical frames, refcounted); shared mappings keep their
// ShareShared semantics and are simply re-referenced, matching fork(2)
// behavior for MAP_SHARED regions.
func (as *AddressSpace) Fork() *AddressSpace {
	as.Lock()
	defer as.Unlock()
	child := NewAddressSpace()
	child.mappings = append([]Mapping(nil), as.mappings...)
	for va, p := range as.pages {
		switch {
		case p.flags&mem.PTE_W != 0 && as.mapAt(va).Share == SharePrivate:
			// make both copies read-only + COW
			p.flags = (p.flags &^ mem.PTE_W) | mem.PTE_COW
			mem.Physmem.Refup(p.frame)
			cp := *p
			child.pages[va] = &cp
		default:
			mem.Physmem.Refup(p.frame)
			cp := *p
			child.pages[va] = &cp
		}
	}
	as.gen++
	child.gen = as.gen
	return child
}

func (as *AddressSpace) mapAt(va uintptr) Mapping {
	idx := as.find(va)
	if idx < 0 {
		return Mapping{Share: ShareShared} // fail open: treat as shared, no COW
	}
	return as.mappings[idx]
}

// Teardown drops references to every resident page, called when a
// process exits.
func (as *AddressSpace) Teardown() {
	as.Lock()
	defer as.Unlock()
	for va, p := range as.pages {
		mem.Physmem.Refdown(p.frame)
		delete(as.pages, va)
	}
	as.mappings = nil
}

// SetSMAP arms or disarms the SMAP/SMEP stand-in: when armed (the
// default), vm's copy-from/to-user path (Userbuf) refuses to touch
// mappings lacking PROT_USER, just as real supervisor-mode-access
// prevention would fault on a supervisor access to a user page.
func (as *AddressSpace) SetSMAP(armed bool) {
	as.Lock()
	defer as.Unlock()
	as.smap = armed
}

func (as *AddressSpace) smapArmed() bool {
	as.Lock()
	defer as.Unlock()
	return as.smap
}

// Mappings returns a snapshot copy of the address space's mapping
// list, sorted by start address, for callers (procfs's /proc/<pid>/maps)
// that need to format it themselves rather than use Debug's dump.
func (as *AddressSpace) Mappings() []Mapping {
	as.Lock()
	defer as.Unlock()
	ret := make([]Mapping, len(as.mappings))
	copy(ret, as.mappings)
	return ret
}

// Debug dumps the mapping list in a raw debugging format; procfs
// formats /proc/<pid>/maps itself from Mappings.
func (as *AddressSpace) Debug() string {
	as.Lock()
	defer as.Unlock()
	s := ""
	for _, m := range as.mappings {
		s += fmt.Sprintf("%016x-%016x prot=%x share=%v res=%v\n",
			m.Start, m.Start+m.Len, m.Prot, m.Share, m.Res)
	}
	return s
}
