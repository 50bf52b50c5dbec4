// Package res is a non-blocking resource-reservation gate sitting in
// front of limits.Syslimit, reconstructed from the res.Resadd_noblock
// call site retained in vm/as.go (the res package
// itself was never part of the retrieved slice).
package res

import "vkernel/limits"

// Resadd_noblock reserves n units of the given system-wide limit
// without blocking, returning false immediately if the limit is
// exhausted. vm's Sys_pgfault calls this before allocating the page for
// an anonymous fault so a single process cannot exhaust a shared resource.
func Resadd_noblock(lim *limits.Sysatomic_t, n uint) bool {
	return lim.Taken(n)
}

// Resadd reserves one unit, the common case of Resadd_noblock.
func Resadd(lim *limits.Sysatomic_t) bool {
	return lim.Take()
}

// Resdel releases n units previously reserved via Resadd_noblock.
func Resdel(lim *limits.Sysatomic_t, n uint) {
	lim.Given(n)
}
