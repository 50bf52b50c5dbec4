// Package stat implements the kernel-resident stat block a filesystem
// node carries (mode, uid, gid, size, link count, timestamps, device
// major/minor), laid out as a fixed-size struct so Bytes can hand the
// raw word sequence straight to a syscall's copy-to-user path without a
// marshaling step.
package stat

import "unsafe"

// Stat_t mirrors a file's stat information as a flat, wire-ready
// sequence of machine words.
type Stat_t struct {
	_dev     uint
	_ino     uint
	_mode    uint
	_size    uint
	_rdev    uint
	_uid     uint
	_gid     uint
	_nlink   uint
	_blocks  uint
	_m_sec   uint
	_m_nsec  uint
}

// Wdev stores the device ID the node resides on.
func (st *Stat_t) Wdev(v uint) { st._dev = v }

// Wino stores the inode number.
func (st *Stat_t) Wino(v uint) { st._ino = v }

// Wmode records the file mode (type bits plus permission bits).
func (st *Stat_t) Wmode(v uint) { st._mode = v }

// Wsize records the file size in bytes.
func (st *Stat_t) Wsize(v uint) { st._size = v }

// Wrdev stores the rdev field (major/minor, for device nodes).
func (st *Stat_t) Wrdev(v uint) { st._rdev = v }

// Wuid stores the owning user ID.
func (st *Stat_t) Wuid(v uint) { st._uid = v }

// Wgid stores the owning group ID.
func (st *Stat_t) Wgid(v uint) { st._gid = v }

// Wnlink stores the hard-link count.
func (st *Stat_t) Wnlink(v uint) { st._nlink = v }

// Wmtime stores the last-modification time as (seconds, nanoseconds).
func (st *Stat_t) Wmtime(sec, nsec uint) {
	st._m_sec = sec
	st._m_nsec = nsec
}

// Mode returns the stored mode value.
func (st *Stat_t) Mode() uint { return st._mode }

// Size returns the stored size.
func (st *Stat_t) Size() uint { return st._size }

// Rdev returns the stored rdev.
func (st *Stat_t) Rdev() uint { return st._rdev }

// Rino returns the stored inode number.
func (st *Stat_t) Rino() uint { return st._ino }

// Uid returns the owning user ID.
func (st *Stat_t) Uid() uint { return st._uid }

// Gid returns the owning group ID.
func (st *Stat_t) Gid() uint { return st._gid }

// Nlink returns the hard-link count.
func (st *Stat_t) Nlink() uint { return st._nlink }

// Mtime returns the last-modification time as (seconds, nanoseconds).
func (st *Stat_t) Mtime() (uint, uint) { return st._m_sec, st._m_nsec }

// Bytes exposes the raw word sequence of the structure, in field
// declaration order, ready for a syscall handler to copy to userspace.
func (st *Stat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*st)
	sl := (*[sz]uint8)(unsafe.Pointer(&st._dev))
	return sl[:]
}
