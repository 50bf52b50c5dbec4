// Package diskfs is a disk-backed filesystem: node content lives in
// blocks on a fs.Disk_i, staged through the unified page cache, with
// dirty pages written back via fs.Bdev_block_t.
package diskfs

import (
	"sync"
	"sync/atomic"

	"vkernel/defs"
	"vkernel/fs"
	"vkernel/mem"
	"vkernel/ustr"
)

// inode is the on-disk-shaped metadata diskfs keeps per node, persisted
// block-aligned as the super block's inode region in a real layout;
// this implementation keeps it resident in memory rather than
// serializing a full on-disk format.
type inode struct {
	sync.Mutex
	ino     uint64
	typ     fs.Ntype_t
	size    int
	blocks  map[int]int // page number -> disk block number
	entries map[string]uint64
	target  ustr.Ustr // NSYMLINK only
}

// FS is a disk-backed filesystem mounted over a single fs.Disk_i.
type FS struct {
	disk    fs.Disk_i
	mem     fs.Blockmem_i
	nextIno uint64
	nextBlk int64
	inodes  sync.Map // ino -> *inode
	nodes   sync.Map // ino -> *fs.Node
}

// New formats and returns a fresh diskfs over disk, along with its root
// directory node.
func New(disk fs.Disk_i, bm fs.Blockmem_i) (*FS, *fs.Node) {
	f := &FS{disk: disk, mem: bm, nextIno: 1, nextBlk: 1}
	root := f.newNode(fs.NDIR)
	return f, root
}

// newNode allocates a fresh node and its inode metadata. Every node
// gets an inode entry here, directories included, so Create and
// Lookup never have to special-case a missing one.
func (f *FS) newNode(typ fs.Ntype_t) *fs.Node {
	ino := atomic.AddUint64(&f.nextIno, 1) - 1
	n := &fs.Node{Ino: ino, Type: typ, Ops: f}
	in := &inode{ino: ino, typ: typ}
	if typ == fs.NDIR {
		in.entries = make(map[string]uint64)
	} else {
		in.blocks = make(map[int]int)
	}
	if typ == fs.NFILE {
		n.Cache = fs.NewPageCache(n)
	}
	f.inodes.Store(ino, in)
	f.nodes.Store(ino, n)
	return n
}

func (f *FS) allocBlock() int {
	return int(atomic.AddInt64(&f.nextBlk, 1))
}

// ReadPage reads the page at byte offset off for node, through the
// page cache, pulling from disk on a miss via a synchronous
// fs.Bdev_block_t read (fs.MkBlock_newpage/Read).
func (f *FS) ReadPage(node *fs.Node, off int) (*mem.Pg_t, defs.Err_t) {
	return node.Cache.Get(off, func() (*mem.Pg_t, defs.Err_t) {
		iv, _ := f.inodes.Load(node.Ino)
		in := iv.(*inode)
		in.Lock()
		blkno, ok := in.blocks[off/mem.PGSIZE]
		in.Unlock()
		pg, _, mok := mem.Physmem.Refpg_new()
		if !mok {
			return nil, defs.ENOMEM
		}
		if !ok {
			// sparse read past what has ever been written: zero page,
			// matching a real filesystem's hole semantics.
			return pg, 0
		}
		b := fs.MkBlock_newpage(blkno, "diskfs", f.mem, f.disk, noopCb{})
		b.Read()
		copy(mem.Pg2bytes(pg)[:], b.Data[:])
		return pg, 0
	})
}

// WritePage writes data into node's page cache at byte offset off and
// assigns it a disk block if it does not have one yet.
func (f *FS) WritePage(node *fs.Node, off int, data []uint8) defs.Err_t {
	iv, _ := f.inodes.Load(node.Ino)
	in := iv.(*inode)
	pn := off / mem.PGSIZE

	in.Lock()
	if in.blocks == nil {
		in.blocks = make(map[int]int)
	}
	if _, ok := in.blocks[pn]; !ok {
		in.blocks[pn] = f.allocBlock()
	}
	in.Unlock()

	pg, err := f.ReadPage(node, off)
	if err != 0 {
		return err
	}
	bpg := mem.Pg2bytes(pg)
	copy(bpg[off%mem.PGSIZE:], data)
	node.Cache.MarkDirty(off)

	in.Lock()
	if off+len(data) > in.size {
		in.size = off + len(data)
		node.Size = int64(in.size)
	}
	in.Unlock()
	return 0
}

// Truncate changes node's recorded size.
func (f *FS) Truncate(node *fs.Node, newsize int) defs.Err_t {
	iv, _ := f.inodes.Load(node.Ino)
	in := iv.(*inode)
	in.Lock()
	in.size = newsize
	node.Size = int64(newsize)
	in.Unlock()
	return 0
}

// Sync flushes node's dirty pages to disk synchronously via
// fs.Bdev_block_t.Write. It runs on explicit syncs (O_DSYNC writes, a
// file's last Close, vm's AddressSpace.Sync through Node.Sync); the page
// cache never evicts a dirty page, so eviction does not call it.
func (f *FS) Sync(node *fs.Node) defs.Err_t {
	if node.Cache == nil {
		return 0
	}
	iv, _ := f.inodes.Load(node.Ino)
	in := iv.(*inode)
	return node.Cache.Flush(func(pn int, pg *mem.Pg_t) defs.Err_t {
		in.Lock()
		blkno, ok := in.blocks[pn]
		in.Unlock()
		if !ok {
			return 0
		}
		b := fs.MkBlock_newpage(blkno, "diskfs", f.mem, f.disk, noopCb{})
		copy(b.Data[:], mem.Pg2bytes(pg)[:])
		b.Write()
		return 0
	})
}

// Lookup finds name within directory node.
func (f *FS) Lookup(dir *fs.Node, name ustr.Ustr) (*fs.Node, defs.Err_t) {
	iv, _ := f.inodes.Load(dir.Ino)
	in := iv.(*inode)
	in.Lock()
	defer in.Unlock()
	ino, ok := in.entries[name.String()]
	if !ok {
		return nil, defs.ENOENT
	}
	nv, _ := f.nodes.Load(ino)
	return nv.(*fs.Node), 0
}

// Create makes a new node named name of the given type within dir.
func (f *FS) Create(dir *fs.Node, name ustr.Ustr, typ fs.Ntype_t) (*fs.Node, defs.Err_t) {
	iv, _ := f.inodes.Load(dir.Ino)
	in := iv.(*inode)
	in.Lock()
	defer in.Unlock()
	if _, exists := in.entries[name.String()]; exists {
		return nil, defs.EEXIST
	}
	n := f.newNode(typ)
	in.entries[name.String()] = n.Ino
	return n, 0
}

// Unlink removes name from dir.
func (f *FS) Unlink(dir *fs.Node, name ustr.Ustr) defs.Err_t {
	iv, _ := f.inodes.Load(dir.Ino)
	in := iv.(*inode)
	in.Lock()
	defer in.Unlock()
	ino, ok := in.entries[name.String()]
	if !ok {
		return defs.ENOENT
	}
	delete(in.entries, name.String())
	f.nodes.Delete(ino)
	return 0
}

// Symlink creates a symbolic link named name within dir pointing at
// target, recorded in the inode region alongside the rest of its
// on-disk-shaped metadata.
func (f *FS) Symlink(dir *fs.Node, name ustr.Ustr, target ustr.Ustr) (*fs.Node, defs.Err_t) {
	iv, _ := f.inodes.Load(dir.Ino)
	in := iv.(*inode)
	in.Lock()
	defer in.Unlock()
	if _, exists := in.entries[name.String()]; exists {
		return nil, defs.EEXIST
	}
	n := f.newNode(fs.NSYMLINK)
	niv, _ := f.inodes.Load(n.Ino)
	niv.(*inode).target = append(ustr.Ustr{}, target...)
	in.entries[name.String()] = n.Ino
	return n, 0
}

// Readlink returns a symlink node's recorded target.
func (f *FS) Readlink(node *fs.Node) (ustr.Ustr, defs.Err_t) {
	iv, ok := f.inodes.Load(node.Ino)
	if !ok || node.Type != fs.NSYMLINK {
		return nil, defs.EINVAL
	}
	return iv.(*inode).target, 0
}

// Readdir returns the names present in directory node.
func (f *FS) Readdir(dir *fs.Node) ([]ustr.Ustr, defs.Err_t) {
	iv, _ := f.inodes.Load(dir.Ino)
	in := iv.(*inode)
	in.Lock()
	defer in.Unlock()
	ret := make([]ustr.Ustr, 0, len(in.entries))
	for name := range in.entries {
		ret = append(ret, ustr.Ustr(name))
	}
	return ret, 0
}

type noopCb struct{}

func (noopCb) Relse(b *fs.Bdev_block_t, s string) {}
