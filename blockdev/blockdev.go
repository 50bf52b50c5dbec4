// Package blockdev is a simulated AHCI-like block device: a regular
// host file stands in for the disk, and every request is serviced
// synchronously under a single lock. It exists to give fs.diskfs a
// real fs.Disk_i to drive instead of talking to memfs only.
package blockdev

import (
	"os"
	"sync"

	"vkernel/fs"
	"vkernel/mem"
)

// Disk is a file-backed block device satisfying fs.Disk_i, kept
// single-lock and synchronous -- a real AHCI controller pipelines many
// requests, but this simulation does not need to model that to
// exercise the filesystem layer above it.
type Disk struct {
	sync.Mutex
	f *os.File
}

// Open opens (creating if necessary) path as the backing file for a
// simulated disk of the given size in blocks.
func Open(path string, nblocks int) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(nblocks * fs.BSIZE)); err != nil {
		f.Close()
		return nil, err
	}
	return &Disk{f: f}, nil
}

// Close flushes and closes the backing file.
func (d *Disk) Close() error {
	d.Lock()
	defer d.Unlock()
	d.f.Sync()
	return d.f.Close()
}

func (d *Disk) seek(block int) {
	if _, err := d.f.Seek(int64(block*fs.BSIZE), 0); err != nil {
		panic(err)
	}
}

// Start services a block device request synchronously, the single
// entry point fs.Bdev_block_t.Read/Write/Write_async calls into.
func (d *Disk) Start(req *fs.Bdev_req_t) bool {
	d.Lock()
	defer d.Unlock()

	switch req.Cmd {
	case fs.BDEV_READ:
		if req.Blks.Len() != 1 {
			panic("blockdev: read request must carry exactly one block")
		}
		blk := req.Blks.FrontBlock()
		d.seek(blk.Block)
		buf := make([]byte, fs.BSIZE)
		n, err := d.f.Read(buf)
		if n != fs.BSIZE || err != nil {
			panic(err)
		}
		bp := &mem.Bytepg_t{}
		copy(bp[:], buf)
		blk.Data = bp
	case fs.BDEV_WRITE:
		for b := req.Blks.FrontBlock(); b != nil; b = req.Blks.NextBlock() {
			d.seek(b.Block)
			n, err := d.f.Write(b.Data[:])
			if n != fs.BSIZE || err != nil {
				panic(err)
			}
			if b.Cb != nil {
				b.Done("Start")
			}
		}
	case fs.BDEV_FLUSH:
		d.f.Sync()
	}
	return false
}

// Stats reports nothing interesting; a real AHCI driver would surface
// queue depth and error counters here.
func (d *Disk) Stats() string { return "" }

// Blockmem backs fs.Blockmem_i with real pages from the buddy
// allocator, rather than bare unmanaged *mem.Bytepg_t values, so disk
// block buffers count against the same physical memory accounting
// everything else does.
type Blockmem struct{}

// Alloc returns a freshly zeroed page for use as a block buffer.
func (Blockmem) Alloc() (mem.Pa_t, *mem.Bytepg_t, bool) {
	pg, pa, ok := mem.Physmem.Refpg_new()
	if !ok {
		return 0, nil, false
	}
	return pa, mem.Pg2bytes(pg), true
}

// Free releases a block buffer's backing page.
func (Blockmem) Free(pa mem.Pa_t) {
	mem.Physmem.Refdown(pa)
}

// Refup takes an extra reference on a block buffer's backing page.
func (Blockmem) Refup(pa mem.Pa_t) {
	mem.Physmem.Refup(pa)
}
