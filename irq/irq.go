// Package irq allocates interrupt vector numbers from a shared pool:
// both MSI-capable device vectors and the vectors vm uses to simulate
// TLB-shootdown IPIs, since both are "take a number from a shared pool,
// free it later" problems.
package irq

import "sync"

// Vec_t represents an interrupt (or simulated inter-processor
// interrupt) vector.
type Vec_t uint

// Class distinguishes device IRQ vectors from IPI vectors so the two
// pools can be sized and exhausted independently.
type Class int

const (
	ClassDevice Class = iota
	ClassIPI
)

type vecpool_t struct {
	sync.Mutex
	avail map[Vec_t]bool
}

var pools = map[Class]*vecpool_t{
	ClassDevice: {avail: rangeset(56, 64)},
	ClassIPI:    {avail: rangeset(200, 224)},
}

func rangeset(lo, hi Vec_t) map[Vec_t]bool {
	m := make(map[Vec_t]bool, hi-lo)
	for v := lo; v < hi; v++ {
		m[v] = true
	}
	return m
}

// Alloc allocates an available vector from the given class's pool.
func Alloc(c Class) Vec_t {
	p := pools[c]
	p.Lock()
	defer p.Unlock()
	for v := range p.avail {
		delete(p.avail, v)
		return v
	}
	panic("no more vectors in class")
}

// Free releases a previously allocated vector back to its class's pool.
func Free(c Class, v Vec_t) {
	p := pools[c]
	p.Lock()
	defer p.Unlock()
	if p.avail[v] {
		panic("double free")
	}
	p.avail[v] = true
}
