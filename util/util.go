// Package util holds the small numeric and byte-packing helpers that
// every other package in this module reaches for -- alignment
// arithmetic for page-sized rounding (mem, vm, fs), and the fixed-width
// little-endian field packing exec and accnt use to lay out ABI
// structures (auxv entries, rusage timevals) byte by byte.
package util

import (
	"fmt"
	"unsafe"
)

// Int is satisfied by all built-in integer types, signed or unsigned,
// so the alignment helpers below work uniformly over page counts,
// byte offsets, and raw uintptr virtual addresses.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T Int](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}

// checkBounds panics with a descriptive message if [off, off+n) does
// not fit inside a slice of length alen.
func checkBounds(op string, alen, n, off int) {
	if off < 0 || n < 0 || off+n > alen {
		panic(fmt.Sprintf("util.%s: [%d,%d) out of bounds for len %d", op, off, off+n, alen))
	}
}

// Readn decodes an n-byte little-endian field out of a at byte offset
// off and returns it sign/zero-extended into an int. n must be one of
// 1, 2, 4, 8.
func Readn(a []uint8, n int, off int) int {
	checkBounds("Readn", len(a), n, off)
	p := unsafe.Pointer(&a[off])
	switch n {
	case 8:
		return *(*int)(p)
	case 4:
		return int(*(*uint32)(p))
	case 2:
		return int(*(*uint16)(p))
	case 1:
		return int(*(*uint8)(p))
	default:
		panic(fmt.Sprintf("util.Readn: unsupported width %d", n))
	}
}

// Writen encodes val as an sz-byte little-endian field into a at byte
// offset off. sz must be one of 1, 2, 4, 8.
func Writen(a []uint8, sz int, off int, val int) {
	checkBounds("Writen", len(a), sz, off)
	p := unsafe.Pointer(&a[off])
	switch sz {
	case 8:
		*(*int)(p) = val
	case 4:
		*(*uint32)(p) = uint32(val)
	case 2:
		*(*uint16)(p) = uint16(val)
	case 1:
		*(*uint8)(p) = uint8(val)
	default:
		panic(fmt.Sprintf("util.Writen: unsupported width %d", sz))
	}
}
