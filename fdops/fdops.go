// Package fdops defines the operations table every open file
// description implements, reconstructed from the Fops.Reopen/Fops.Close
// call sites retained in fd/fd.go (the fdops package itself was never
// part of the retrieved slice -- empty go.mod only).
package fdops

import (
	"vkernel/defs"
	"vkernel/stat"
)

// Fdops_i is the operations table backing an open file descriptor. Each
// concrete file kind in fs (regular files, directories, pipes, device
// nodes) implements it with a pointer receiver, so Fd_t.Fops is always
// a reference to shared per-open-file state, never a copy.
type Fdops_i interface {
	Read(dst []uint8) (int, defs.Err_t)
	Write(src []uint8) (int, defs.Err_t)
	Fstat(st *stat.Stat_t) defs.Err_t
	// Lseek repositions the file offset; whence follows the
	// SEEK_SET/SEEK_CUR/SEEK_END convention.
	Lseek(off int, whence int) (int, defs.Err_t)
	Close() defs.Err_t
	// Reopen increments whatever reference counts back the
	// descriptor so a dup'd Fd_t shares state with the original
	// instead of aliasing it unsafely.
	Reopen() defs.Err_t
	// There are no path-level operations (truncate, unlink) here;
	// those go through the node's fs.NodeOps_i.
}

// Userio_i is implemented by anything that can source or sink bytes
// to/from a user-controlled buffer -- vm's Userbuf_t/Useriovec_t for
// real user addresses, and a plain byte-slice wrapper in tests -- so
// circbuf can copy through it without depending on vm directly.
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
}
