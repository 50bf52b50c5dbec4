package fs

import (
	"sync"

	"vkernel/defs"
	"vkernel/mem"
	"vkernel/ustr"
)

// Ntype_t enumerates the kinds of nodes the VFS tree can hold.
type Ntype_t int

const (
	NFILE Ntype_t = iota
	NDIR
	NSYMLINK
	NDEVICE
	NFIFO
)

// NodeOps_i is the operations table a filesystem (memfs, diskfs, procfs)
// implements to back a Node's identity with real storage, generalized
// from "block device" to "anything that can produce and persist pages
// for an inode".
type NodeOps_i interface {
	// ReadPage returns the page at byte offset off (rounded down to a
	// page boundary) for node, populating the page cache on a miss.
	ReadPage(node *Node, off int) (*mem.Pg_t, defs.Err_t)
	// WritePage marks the page at off dirty; it is not necessarily
	// flushed to backing storage until Sync.
	WritePage(node *Node, off int, data []uint8) defs.Err_t
	// Truncate changes node's size, freeing or allocating backing
	// pages as needed.
	Truncate(node *Node, newsize int) defs.Err_t
	// Sync flushes node's dirty pages to backing storage.
	Sync(node *Node) defs.Err_t
	// Lookup finds name within directory node.
	Lookup(dir *Node, name ustr.Ustr) (*Node, defs.Err_t)
	// Create makes a new node named name of the given type within dir.
	Create(dir *Node, name ustr.Ustr, typ Ntype_t) (*Node, defs.Err_t)
	// Unlink removes name from dir.
	Unlink(dir *Node, name ustr.Ustr) defs.Err_t
	// Readdir returns the names present in directory node.
	Readdir(dir *Node) ([]ustr.Ustr, defs.Err_t)
	// Symlink creates a symbolic link named name within dir whose
	// target is the given path.
	Symlink(dir *Node, name ustr.Ustr, target ustr.Ustr) (*Node, defs.Err_t)
	// Readlink returns a symbolic link node's target. Called fresh on
	// every resolution, so filesystems whose links name something that
	// changes at runtime (procfs's /proc/self, /proc/<pid>/exe,
	// /proc/<pid>/cwd) can compute the target live instead of freezing
	// it at link-creation time.
	Readlink(node *Node) (ustr.Ustr, defs.Err_t)
}

// Node is a filesystem object's kernel-resident identity: it survives
// independent of any particular name (hardlinks point more than one
// Entry at the same Node), the classic inode/vnode split.
type Node struct {
	sync.Mutex
	Ino   uint64
	Type  Ntype_t
	Mode  uint32
	Size  int64
	Nlink int
	Dev   uint // for NDEVICE nodes, the major/minor encoded via defs.Mkdev
	Ops   NodeOps_i
	Cache *PageCache // nil for nodes with no page-cacheable content (devices, pipes)
}

// ReadPage satisfies vm.FileBacking, letting a file-backed mapping
// fault pages in directly from this node's filesystem.
func (n *Node) ReadPage(off uintptr) (*mem.Pg_t, defs.Err_t) {
	return n.Ops.ReadPage(n, int(off))
}

// MarkDirty satisfies vm.FileBacking: a shared file-backed mapping
// faulted in writable reports itself dirty here immediately, since
// there is no hardware dirty bit to trap the store itself.
func (n *Node) MarkDirty(off uintptr) {
	if n.Cache != nil {
		n.Cache.MarkDirty(int(off))
	}
}

// Sync satisfies vm.FileBacking, letting AddressSpace.Sync write back a
// shared mapping's dirty pages through the owning filesystem's own Sync.
func (n *Node) Sync() defs.Err_t {
	return n.Ops.Sync(n)
}

// Entry is a name-to-node edge in the directory tree -- a dentry. A
// negative entry (Node == nil) records a confirmed non-existent lookup
// so repeated failed lookups don't re-walk the backing store.
type Entry struct {
	sync.Mutex
	Name     string
	Node     *Node
	Parent   *Entry // weak: does not keep an ancestor's refcount up
	Children map[string]*Entry
	mount    *Mount // non-nil if this entry is a mount point
}

// Mount records a filesystem mounted at an Entry, overlaying that
// entry's subtree with mnt.Root's.
type Mount struct {
	Root   *Entry
	Device string
}

// NewEntry creates a directory entry under parent.
func NewEntry(name string, node *Node, parent *Entry) *Entry {
	return &Entry{Name: name, Node: node, Parent: parent, Children: make(map[string]*Entry)}
}

// Mount installs fs at the given entry, so resolving through e now
// descends into root instead of e's own children.
func (e *Entry) Mount(root *Entry) {
	e.Lock()
	defer e.Unlock()
	e.mount = &Mount{Root: root}
	// ".." from the mounted root leads to the mount point's parent.
	root.Parent = e.Parent
}

// crossMount follows a mount point down into the mounted filesystem's
// root, the VFS's "overlay at mount points" behavior.
func crossMount(e *Entry) *Entry {
	e.Lock()
	m := e.mount
	e.Unlock()
	if m == nil {
		return e
	}
	return m.Root
}

// maxSymlinks bounds how many symlinks Resolve will follow before
// giving up, a decrementing-budget loop-detection strategy instead of
// a visited-set.
const maxSymlinks = 40

// Resolve walks path starting from cwd (or from root if path is
// absolute), handling "." and ".." -- including crossing back out of a
// mount point's root to its parent's entry -- and following symlinks up
// to maxSymlinks times.
func Resolve(root, cwd *Entry, path ustr.Ustr) (*Entry, defs.Err_t) {
	return resolve(root, cwd, path, maxSymlinks)
}

func resolve(root, cwd *Entry, path ustr.Ustr, budget int) (*Entry, defs.Err_t) {
	if budget <= 0 {
		return nil, defs.ELOOP
	}
	cur := cwd
	if path.IsAbsolute() {
		cur = root
	}
	comps := splitPath(path)
	for i, c := range comps {
		if c.Isdot() {
			continue
		}
		if c.Isdotdot() {
			if cur.Parent != nil {
				cur = cur.Parent
			}
			continue
		}
		cur = crossMount(cur)
		cur.Lock()
		next, ok := cur.Children[c.String()]
		cur.Unlock()
		if !ok {
			dirnode := crossMount(cur).Node
			n, err := dirnode.Ops.Lookup(dirnode, c)
			if err != 0 {
				return nil, err
			}
			next = NewEntry(c.String(), n, cur)
			cur.Lock()
			cur.Children[c.String()] = next
			cur.Unlock()
		}
		if next.Node == nil {
			return nil, defs.ENOENT
		}
		if next.Node.Type == NSYMLINK && i < len(comps)-1 {
			// Only symlinks in a non-final position are transparently
			// followed here; a final-component symlink is returned to
			// the caller, who decides whether to follow it (open vs.
			// lstat semantics).
			target, err := readSymlink(next.Node)
			if err != 0 {
				return nil, err
			}
			resolved, err := resolve(root, cur, target, budget-1)
			if err != 0 {
				return nil, err
			}
			cur = resolved
			continue
		}
		cur = next
	}
	return crossMount(cur), 0
}

func readSymlink(n *Node) (ustr.Ustr, defs.Err_t) {
	return n.Ops.Readlink(n)
}

func splitPath(p ustr.Ustr) []ustr.Ustr {
	var ret []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				ret = append(ret, p[start:i])
			}
			start = i + 1
		}
	}
	return ret
}
