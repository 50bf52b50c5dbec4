package vm

import (
	"vkernel/bounds"
	"vkernel/defs"
	"vkernel/mem"
)

// Userbuf_t copies bytes between kernel buffers and a user address
// space's mappings, faulting pages in as needed exactly the way a real
// processor's page-fault handler would when the kernel dereferences a
// user pointer.
type Userbuf_t struct {
	as   *AddressSpace
	Userva uintptr
	Len    int
}

// Uioread copies from a Userbuf_t into dst, returning the number of
// bytes copied.
func (u *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	if u.as.smapArmed() {
		if err := u.checkUser(); err != 0 {
			return 0, err
		}
	}
	n := len(dst)
	if n > u.Len {
		n = u.Len
	}
	done := 0
	for done < n {
		va := u.Userva + uintptr(done)
		pg, off, err := u.resolvePage(va, FaultRead)
		if err != 0 {
			return done, err
		}
		bpg := mem.Pg2bytes(pg)
		cnt := copy(dst[done:n], bpg[off:])
		done += cnt
	}
	u.Userva += uintptr(done)
	u.Len -= done
	return done, 0
}

// Uiowrite copies src into a Userbuf_t, returning the number of bytes
// copied.
func (u *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	if u.as.smapArmed() {
		if err := u.checkUser(); err != 0 {
			return 0, err
		}
	}
	n := len(src)
	if n > u.Len {
		n = u.Len
	}
	done := 0
	for done < n {
		va := u.Userva + uintptr(done)
		pg, off, err := u.resolvePage(va, FaultWrite)
		if err != 0 {
			return done, err
		}
		bpg := mem.Pg2bytes(pg)
		cnt := copy(bpg[off:], src[done:n])
		done += cnt
	}
	u.Userva += uintptr(done)
	u.Len -= done
	return done, 0
}

func (u *Userbuf_t) checkUser() defs.Err_t {
	idx := u.as.find(pground(u.Userva))
	if idx < 0 {
		return defs.EFAULT
	}
	if u.as.mappings[idx].Prot&PROT_USER == 0 {
		return defs.EFAULT
	}
	return 0
}

// resolvePage returns the resident page backing va and the byte
// offset within it, faulting it in via Sys_pgfault if necessary.
func (u *Userbuf_t) resolvePage(va uintptr, kind FaultKind) (*mem.Pg_t, uintptr, defs.Err_t) {
	off := va & uintptr(mem.PGSIZE-1)
	if !bounds.Bounds(bounds.Bounds_MMAP) {
		return nil, 0, defs.EAGAIN
	}
	if pa, ok := u.as.Lookup(va); ok {
		return mem.Physmem.Dmap(pa), off, 0
	}
	if err := u.as.Sys_pgfault(va, kind); err != 0 {
		return nil, 0, err
	}
	pa, ok := u.as.Lookup(va)
	if !ok {
		return nil, 0, defs.EFAULT
	}
	return mem.Physmem.Dmap(pa), off, 0
}

// Mkuserbuf constructs a Userbuf_t for copying userva..userva+len
// to/from the given address space.
func Mkuserbuf(as *AddressSpace, userva uintptr, len int) *Userbuf_t {
	return &Userbuf_t{as: as, Userva: userva, Len: len}
}

// Useriovec_t is a scatter/gather list of user buffers, the vm
// equivalent of a struct iovec array passed to readv/writev.
type Useriovec_t struct {
	as    *AddressSpace
	iov   []iovec
}

type iovec struct {
	base uintptr
	len  int
}

// Mkuseriovec builds a Useriovec_t from raw (base, len) pairs.
func Mkuseriovec(as *AddressSpace, bases []uintptr, lens []int) *Useriovec_t {
	if len(bases) != len(lens) {
		panic("mismatched iovec arrays")
	}
	iv := &Useriovec_t{as: as}
	for i := range bases {
		iv.iov = append(iv.iov, iovec{bases[i], lens[i]})
	}
	return iv
}

// Remain returns the number of unconsumed bytes across the iovec.
func (iv *Useriovec_t) Remain() int {
	n := 0
	for _, e := range iv.iov {
		n += e.len
	}
	return n
}

// Uioread drains the iovec into dst in order, across multiple segments
// if necessary.
func (iv *Useriovec_t) Uioread(dst []uint8) (int, defs.Err_t) {
	done := 0
	for len(iv.iov) > 0 && done < len(dst) {
		e := &iv.iov[0]
		ub := Mkuserbuf(iv.as, e.base, e.len)
		n, err := ub.Uioread(dst[done:])
		if err != 0 {
			return done, err
		}
		done += n
		e.base += uintptr(n)
		e.len -= n
		if e.len == 0 {
			iv.iov = iv.iov[1:]
		}
		if n == 0 {
			break
		}
	}
	return done, 0
}

// Fakeubuf_t adapts an in-kernel byte slice to the Userbuf_t-shaped
// interface so kernel-internal callers (e.g. the page cache reading
// into a kernel buffer) can share the Uioread/Uiowrite call sites used
// for real user copies.
type Fakeubuf_t struct {
	buf []uint8
	off int
}

// Mkfakeubuf wraps buf for use where a Userbuf_t is expected.
func Mkfakeubuf(buf []uint8) *Fakeubuf_t {
	return &Fakeubuf_t{buf: buf}
}

func (f *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, f.buf[f.off:])
	f.off += n
	return n, 0
}

func (f *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := copy(f.buf[f.off:], src)
	f.off += n
	return n, 0
}

func (f *Fakeubuf_t) Remain() int {
	return len(f.buf) - f.off
}
