package fs

import (
	"sync"

	"vkernel/defs"
	"vkernel/mem"
	"vkernel/stat"
)

// Open-file flags, the subset of the O_* namespace this core cares
// about at the fs layer. Permission checking (read vs. write) happens
// one layer up, in the fd table, per the VFS guarantee that Write is
// never called on a read-only open file.
type OFlag int

const (
	O_APPEND OFlag = 1 << iota
	O_DSYNC
)

// File is the kernel-resident open file: a (node, current-offset,
// flags) triple that may be shared by several file descriptors (after
// fork, or dup), each advancing the same offset.
// It is the thing fd.Fd_t.Fops points at for a regular file or
// directory, bridging the fd table to the VFS/page-cache core the
// same way devprof.Device bridges it for a character device.
type File struct {
	sync.Mutex
	node  *Node
	off   int64
	flags OFlag
	refs  int32
}

// OpenFile wraps node as a fresh File positioned at the start (or end,
// for O_APPEND), with one open reference.
func OpenFile(node *Node, flags OFlag) *File {
	f := &File{node: node, flags: flags, refs: 1}
	if flags&O_APPEND != 0 {
		f.off = node.Size
	}
	return f
}

// Node returns the underlying filesystem node, e.g. for mmap's
// file-backed mapping path or fstat's device/inode fields.
func (f *File) Node() *Node { return f.node }

// Read copies up to len(dst) bytes starting at the file's current
// offset through the node's page cache, advancing the offset by
// however many bytes were actually read (0 at EOF).
func (f *File) Read(dst []uint8) (int, defs.Err_t) {
	f.Lock()
	off := f.off
	f.Unlock()

	n, err := readAt(f.node, off, dst)
	if err != 0 {
		return 0, err
	}
	f.Lock()
	f.off += int64(n)
	f.Unlock()
	return n, 0
}

// Write copies src to the file starting at the current offset (or at
// the node's current end, under O_APPEND -- read with the node locked,
// and the node stays locked until the write is done, so concurrent
// appenders interleave instead of clobbering), and advances the offset
// past what was written. It may extend the file.
func (f *File) Write(src []uint8) (int, defs.Err_t) {
	appending := f.flags&O_APPEND != 0
	if appending {
		f.node.Lock()
	}
	f.Lock()
	off := f.off
	if appending {
		off = f.node.Size
	}
	f.Unlock()

	n, err := writeAt(f.node, off, src)
	if appending {
		f.node.Unlock()
	}
	if err != 0 {
		return 0, err
	}
	f.Lock()
	f.off = off + int64(n)
	f.Unlock()

	if f.flags&O_DSYNC != 0 {
		if serr := f.node.Ops.Sync(f.node); serr != 0 {
			return n, serr
		}
	}
	return n, 0
}

// readAt performs one page-cache-mediated read of [off, off+len(dst))
// from node, clamped to the node's recorded size.
func readAt(node *Node, off int64, dst []uint8) (int, defs.Err_t) {
	if off >= node.Size {
		return 0, 0
	}
	remain := node.Size - off
	if int64(len(dst)) > remain {
		dst = dst[:remain]
	}
	got := 0
	for got < len(dst) {
		pageOff := (int(off) + got) &^ (mem.PGSIZE - 1)
		pg, err := node.Ops.ReadPage(node, pageOff)
		if err != 0 {
			return got, err
		}
		bpg := mem.Pg2bytes(pg)
		inPage := (int(off) + got) - pageOff
		n := copy(dst[got:], bpg[inPage:])
		got += n
	}
	return got, 0
}

// writeAt performs one page-cache-mediated write of src into node at
// off, a page at a time so each WritePage call stays within a single
// cached page the way NodeOps_i expects.
func writeAt(node *Node, off int64, src []uint8) (int, defs.Err_t) {
	put := 0
	for put < len(src) {
		pageOff := (int(off) + put) &^ (mem.PGSIZE - 1)
		inPage := (int(off) + put) - pageOff
		n := mem.PGSIZE - inPage
		if n > len(src)-put {
			n = len(src) - put
		}
		buf := make([]uint8, inPage+n)
		copy(buf[inPage:], src[put:put+n])
		if err := node.Ops.WritePage(node, pageOff+inPage, buf[inPage:]); err != 0 {
			return put, err
		}
		put += n
	}
	return put, 0
}

// Fstat populates st with the node's current metadata.
func (f *File) Fstat(st *stat.Stat_t) defs.Err_t {
	f.node.Lock()
	defer f.node.Unlock()
	st.Wino(uint(f.node.Ino))
	st.Wmode(uint(f.node.Mode))
	st.Wsize(uint(f.node.Size))
	st.Wnlink(uint(f.node.Nlink))
	st.Wrdev(f.node.Dev)
	return 0
}

// Lseek repositions the file's offset per the SEEK_SET/SEEK_CUR/
// SEEK_END convention.
func (f *File) Lseek(off int, whence int) (int, defs.Err_t) {
	f.Lock()
	defer f.Unlock()
	var base int64
	switch whence {
	case 0: // SEEK_SET
		base = 0
	case 1: // SEEK_CUR
		base = f.off
	case 2: // SEEK_END
		base = f.node.Size
	default:
		return 0, defs.EINVAL
	}
	n := base + int64(off)
	if n < 0 {
		return 0, defs.EINVAL
	}
	f.off = n
	return int(n), 0
}

// Reopen takes an additional open reference, called when a descriptor
// referring to this File is duplicated (dup2, fork).
func (f *File) Reopen() defs.Err_t {
	f.Lock()
	f.refs++
	f.Unlock()
	return 0
}

// Close drops one open reference; the last closer flushes the node's
// dirty pages (flushed on close with O_DSYNC, plus ordinary close-time
// writeback), so data written to a file that was unlinked while open
// still survives until every descriptor referring to it is gone.
func (f *File) Close() defs.Err_t {
	f.Lock()
	f.refs--
	last := f.refs == 0
	f.Unlock()
	if !last || f.node.Cache == nil {
		return 0
	}
	return f.node.Ops.Sync(f.node)
}
