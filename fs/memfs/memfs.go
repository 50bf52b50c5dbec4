// Package memfs is an in-memory filesystem: every node's data lives
// entirely in page-cache frames with no backing disk, a tmpfs analogue
// giving the page cache a concrete, simple filesystem to exercise.
// Built on the same NodeOps shape as the rest of fs's block layer,
// generalized to directories and symlinks.
package memfs

import (
	"sync"
	"sync/atomic"

	"vkernel/defs"
	"vkernel/fs"
	"vkernel/mem"
	"vkernel/ustr"
)

// FS is one memfs instance: a single root directory tree with no
// on-disk representation at all.
type FS struct {
	root   *fs.Node
	nextIno uint64
	dirs   sync.Map // ino -> *dirdata
}

type dirdata struct {
	sync.Mutex
	entries map[string]uint64 // name -> child ino
}

type filedata struct {
	sync.Mutex
	size int
}

var files sync.Map // ino -> *filedata

// New creates an empty memfs instance and returns its root node.
func New() (*FS, *fs.Node) {
	f := &FS{nextIno: 1}
	root := f.newNode(fs.NDIR)
	f.dirs.Store(root.Ino, &dirdata{entries: make(map[string]uint64)})
	return f, root
}

var liveNodes sync.Map // ino -> *fs.Node

func (f *FS) newNode(typ fs.Ntype_t) *fs.Node {
	ino := atomic.AddUint64(&f.nextIno, 1) - 1
	n := &fs.Node{Ino: ino, Type: typ, Ops: f}
	if typ == fs.NFILE {
		n.Cache = fs.NewPageCache(n)
		files.Store(ino, &filedata{})
	}
	liveNodes.Store(ino, n)
	return n
}

// ReadPage returns the page at byte offset off for node, zero-filling
// any portion past the node's current size the way a sparse memfs file
// reads as zero beyond what has been written.
func (f *FS) ReadPage(node *fs.Node, off int) (*mem.Pg_t, defs.Err_t) {
	return node.Cache.Get(off, func() (*mem.Pg_t, defs.Err_t) {
		pg, _, ok := mem.Physmem.Refpg_new()
		if !ok {
			return nil, defs.ENOMEM
		}
		return pg, 0
	})
}

// WritePage writes data into node's page cache at byte offset off,
// extending the node's recorded size if necessary.
func (f *FS) WritePage(node *fs.Node, off int, data []uint8) defs.Err_t {
	pg, err := f.ReadPage(node, off)
	if err != 0 {
		return err
	}
	bpg := mem.Pg2bytes(pg)
	pageoff := off % mem.PGSIZE
	copy(bpg[pageoff:], data)
	node.Cache.MarkDirty(off)

	fd, _ := files.Load(node.Ino)
	d := fd.(*filedata)
	d.Lock()
	if off+len(data) > d.size {
		d.size = off + len(data)
		node.Size = int64(d.size)
	}
	d.Unlock()
	return 0
}

// Truncate changes node's recorded size. When the file shrinks, the
// bytes between the new and the old size are zeroed in the cached
// pages, so a later extension reads them back as zero.
func (f *FS) Truncate(node *fs.Node, newsize int) defs.Err_t {
	fdv, _ := files.Load(node.Ino)
	d := fdv.(*filedata)
	d.Lock()
	for off := newsize; off < d.size; {
		pg, err := f.ReadPage(node, off)
		if err != 0 {
			d.Unlock()
			return err
		}
		bpg := mem.Pg2bytes(pg)
		off += copy(bpg[off%mem.PGSIZE:], make([]uint8, d.size-off))
	}
	d.size = newsize
	node.Size = int64(newsize)
	d.Unlock()
	return 0
}

// Sync is a no-op for memfs: there is no backing store to flush to.
func (f *FS) Sync(node *fs.Node) defs.Err_t { return 0 }

// Lookup finds name within directory node.
func (f *FS) Lookup(dir *fs.Node, name ustr.Ustr) (*fs.Node, defs.Err_t) {
	dv, _ := f.dirs.Load(dir.Ino)
	d := dv.(*dirdata)
	d.Lock()
	defer d.Unlock()
	ino, ok := d.entries[name.String()]
	if !ok {
		return nil, defs.ENOENT
	}
	nv, _ := liveNodes.Load(ino)
	return nv.(*fs.Node), 0
}

// Create makes a new node named name of the given type within dir.
func (f *FS) Create(dir *fs.Node, name ustr.Ustr, typ fs.Ntype_t) (*fs.Node, defs.Err_t) {
	dv, _ := f.dirs.Load(dir.Ino)
	d := dv.(*dirdata)
	d.Lock()
	defer d.Unlock()
	if _, exists := d.entries[name.String()]; exists {
		return nil, defs.EEXIST
	}
	n := f.newNode(typ)
	if typ == fs.NDIR {
		f.dirs.Store(n.Ino, &dirdata{entries: make(map[string]uint64)})
	}
	d.entries[name.String()] = n.Ino
	return n, 0
}

// Unlink removes name from dir.
func (f *FS) Unlink(dir *fs.Node, name ustr.Ustr) defs.Err_t {
	dv, _ := f.dirs.Load(dir.Ino)
	d := dv.(*dirdata)
	d.Lock()
	defer d.Unlock()
	ino, ok := d.entries[name.String()]
	if !ok {
		return defs.ENOENT
	}
	delete(d.entries, name.String())
	liveNodes.Delete(ino)
	return 0
}

// Symlink creates a symbolic link named name within dir pointing at
// target; the target is frozen at creation time since memfs has no
// notion of a runtime-varying link.
func (f *FS) Symlink(dir *fs.Node, name ustr.Ustr, target ustr.Ustr) (*fs.Node, defs.Err_t) {
	dv, _ := f.dirs.Load(dir.Ino)
	d := dv.(*dirdata)
	d.Lock()
	defer d.Unlock()
	if _, exists := d.entries[name.String()]; exists {
		return nil, defs.EEXIST
	}
	n := f.newNode(fs.NSYMLINK)
	tgt := append(ustr.Ustr{}, target...)
	n.Cache = fs.NewSymlinkCache(n, tgt)
	d.entries[name.String()] = n.Ino
	return n, 0
}

// Readlink returns a symlink node's frozen target.
func (f *FS) Readlink(node *fs.Node) (ustr.Ustr, defs.Err_t) {
	if node.Type != fs.NSYMLINK || node.Cache == nil {
		return nil, defs.EINVAL
	}
	return node.Cache.Symlink(), 0
}

// Readdir returns the names present in directory node.
func (f *FS) Readdir(dir *fs.Node) ([]ustr.Ustr, defs.Err_t) {
	dv, _ := f.dirs.Load(dir.Ino)
	d := dv.(*dirdata)
	d.Lock()
	defer d.Unlock()
	ret := make([]ustr.Ustr, 0, len(d.entries))
	for name := range d.entries {
		ret = append(ret, ustr.Ustr(name))
	}
	return ret, 0
}
