package fs

import (
	"container/list"
	"fmt"
	"sync"

	"vkernel/caller"
	"vkernel/defs"
	"vkernel/mem"
	"vkernel/oommsg"
	"vkernel/ustr"
)

// init starts the page cache's side of the OOM protocol: mem's buddy
// allocator reports pressure on oommsg.OomCh when it cannot satisfy an
// allocation, and the page cache is the kernel's only reclaimable
// resource, so it is the natural (and only) consumer. Each message is
// answered by walking the LRU for Need pages and resuming the waiting
// allocator once done.
func init() {
	go func() {
		for msg := range oommsg.OomCh {
			Reclaim(msg.Need)
			msg.Resume <- true
		}
	}()
}

// cacheKey identifies one page within the unified page cache: a node
// plus a file-offset-in-pages.
type cacheKey struct {
	node *Node
	page int // offset / mem.PGSIZE
}

// cacheFrame is one resident, refcounted page in the cache, with the
// dirty/LRU bookkeeping the writeback and eviction loops need.
type cacheFrame struct {
	pa    mem.Pa_t
	dirty bool
	el    *list.Element // this frame's node in the global LRU list
}

// PageCache is attached to any Node backed by persistent storage (a
// regular file, in memfs or diskfs) and caches its pages, independent
// of any particular Entry naming that node, keyed uniformly by
// (node, offset). The LRU buffer-pool shape follows a classic
// pin-counted page buffer pool; the block-device glue is shared with
// the rest of fs's block layer.
type PageCache struct {
	sync.Mutex
	frames map[int]*cacheFrame // page number -> frame
	node   *Node

	// symlinkTarget holds a symlink node's target path; only used when
	// the owning Node's Type is NSYMLINK, in which case frames is unused.
	symlinkTarget ustr.Ustr
}

// global LRU across every node's page cache, the clean-eviction policy
// used when memory pressure (mem's buddy allocator returning ENOMEM)
// forces reclaim.
var (
	lruLock sync.Mutex
	lru     = list.New()
)

type lruEntry struct {
	pc  *PageCache
	pg  int
}

// NewPageCache attaches a fresh, empty page cache to node.
func NewPageCache(node *Node) *PageCache {
	return &PageCache{frames: make(map[int]*cacheFrame), node: node}
}

// NewSymlinkCache attaches a page cache in symlink mode to node,
// recording target as the link's resolution target. Filesystems whose
// symlinks are read-only and fixed at creation time (memfs, diskfs) use
// this; filesystems with targets that vary at read time (procfs) skip
// it and answer NodeOps_i.Readlink directly instead.
func NewSymlinkCache(node *Node, target ustr.Ustr) *PageCache {
	return &PageCache{node: node, symlinkTarget: target}
}

// Symlink returns the target recorded by NewSymlinkCache.
func (pc *PageCache) Symlink() ustr.Ustr {
	return pc.symlinkTarget
}

// Get returns the cached page at byte offset off, reading it through
// fill (supplied by the caller's NodeOps_i.ReadPage, or diskfs's disk
// read) on a miss.
func (pc *PageCache) Get(off int, fill func() (*mem.Pg_t, defs.Err_t)) (*mem.Pg_t, defs.Err_t) {
	pn := off / mem.PGSIZE
	pc.Lock()
	if f, ok := pc.frames[pn]; ok {
		pg := mem.Physmem.Dmap(f.pa)
		pc.Unlock()
		touchLRU(pc, pn)
		return pg, 0
	}
	pc.Unlock()

	pg, err := fill()
	if err != 0 {
		return nil, err
	}
	pa := mem.Physmem.Dmap_v2p(pg)
	mem.Physmem.Refup(pa)

	pc.Lock()
	if f, already := pc.frames[pn]; already {
		// lost the race with a concurrent filler
		mem.Physmem.Refdown(pa)
		pc.Unlock()
		return mem.Physmem.Dmap(f.pa), 0
	}
	pc.frames[pn] = &cacheFrame{pa: pa}
	pc.Unlock()
	touchLRU(pc, pn)
	return pg, 0
}

// MarkDirty records that the page at byte offset off has been written
// and must be flushed before it can be evicted or the filesystem is
// unmounted.
func (pc *PageCache) MarkDirty(off int) {
	pn := off / mem.PGSIZE
	pc.Lock()
	defer pc.Unlock()
	if f, ok := pc.frames[pn]; ok {
		f.dirty = true
	}
}

// Flush writes every dirty page back through writeback and clears the
// dirty bit on success.
func (pc *PageCache) Flush(writeback func(pn int, pg *mem.Pg_t) defs.Err_t) defs.Err_t {
	pc.Lock()
	dirty := make([]int, 0)
	for pn, f := range pc.frames {
		if f.dirty {
			dirty = append(dirty, pn)
		}
	}
	pc.Unlock()

	for _, pn := range dirty {
		pc.Lock()
		f := pc.frames[pn]
		pc.Unlock()
		if f == nil {
			continue
		}
		pg := mem.Physmem.Dmap(f.pa)
		if err := writeback(pn, pg); err != 0 {
			return err
		}
		pc.Lock()
		f.dirty = false
		pc.Unlock()
	}
	return 0
}

// Evict drops the cached page at page number pn, provided it is clean;
// it returns false (refusing to evict) if the page is dirty.
func (pc *PageCache) Evict(pn int) bool {
	pc.Lock()
	f, ok := pc.frames[pn]
	if !ok {
		pc.Unlock()
		return true
	}
	if f.dirty {
		pc.Unlock()
		return false
	}
	mem.Physmem.Refdown(f.pa)
	delete(pc.frames, pn)
	pc.Unlock()
	removeLRU(f.el)
	return true
}

func touchLRU(pc *PageCache, pn int) {
	lruLock.Lock()
	defer lruLock.Unlock()
	pc.Lock()
	f := pc.frames[pn]
	pc.Unlock()
	if f == nil {
		return
	}
	if f.el != nil {
		lru.MoveToBack(f.el)
		return
	}
	f.el = lru.PushBack(lruEntry{pc: pc, pg: pn})
}

func removeLRU(el *list.Element) {
	if el == nil {
		return
	}
	lruLock.Lock()
	defer lruLock.Unlock()
	lru.Remove(el)
}

// reclaimStall warns, once per distinct call path, when Reclaim comes
// up short: every candidate page was dirty and nothing could be
// evicted to relieve reported memory pressure.
var reclaimStall caller.Distinct_caller_t

func init() {
	reclaimStall.Enabled = true
}

// Reclaim walks the global LRU from the least-recently-used end,
// evicting clean pages until n pages have been freed or the whole list
// has been scanned. It is the page cache's response to mem reporting
// memory pressure.
func Reclaim(n int) int {
	freed := 0
	lruLock.Lock()
	e := lru.Front()
	lruLock.Unlock()
	for e != nil && freed < n {
		lruLock.Lock()
		next := e.Next()
		lruLock.Unlock()
		le := e.Value.(lruEntry)
		if le.pc.Evict(le.pg) {
			freed++
		}
		e = next
	}
	if freed < n {
		if novel, trace := reclaimStall.Distinct(); novel {
			fmt.Printf("WARNING: page cache reclaim stalled, wanted %v got %v\n%s", n, freed, trace)
		}
	}
	return freed
}
