package fs

import (
	"testing"
	"time"

	"vkernel/defs"
	"vkernel/mem"
	"vkernel/oommsg"
)

// TestOOMConsumerReclaims exercises the wiring set up in this package's
// init: a message on oommsg.OomCh should drive a Reclaim pass over the
// global LRU and close the loop by answering Resume, the same protocol
// mem's allocator drives for real when the buddy system runs dry.
func TestOOMConsumerReclaims(t *testing.T) {
	mem.Phys_init(1 << 10)
	node := &Node{Ino: 1, Type: NFILE}
	node.Cache = NewPageCache(node)

	// a clean page (never MarkDirty'd) the reclaim pass is free to evict.
	if _, err := node.Cache.Get(0, func() (*mem.Pg_t, defs.Err_t) {
		pg, _, ok := mem.Physmem.Refpg_new()
		if !ok {
			t.Fatal("refpg_new failed populating test fixture")
		}
		return pg, 0
	}); err != 0 {
		t.Fatalf("get: %v", err)
	}

	resume := make(chan bool, 1)
	oommsg.OomCh <- oommsg.Oommsg_t{Need: 1, Resume: resume}

	select {
	case <-resume:
	case <-time.After(2 * time.Second):
		t.Fatal("OOM consumer never resumed; init's listener goroutine is not wired")
	}

	node.Cache.Lock()
	_, stillCached := node.Cache.frames[0]
	node.Cache.Unlock()
	if stillCached {
		t.Fatal("clean page survived a reclaim pass that asked for 1 page")
	}
}
