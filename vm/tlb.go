package vm

import "vkernel/irq"

// Shootdown simulates a TLB-shootdown IPI broadcast: every core that
// may have cached translations for this address space is sent an
// invalidation and the caller blocks until all have acknowledged. The
// channel stands in for the IPI; irq.Alloc/Free track the (simulated)
// vector used to deliver it, so this consumes the same kind of scarce
// resource a real IPI vector would.
type shootdownReq struct {
	gen  uint64
	done chan struct{}
}

// coreMailboxes holds one channel per simulated core; proc.Cores runs a
// goroutine beside each core's scheduling loop that reads the core's
// mailbox and acknowledges by closing the done channel.
var coreMailboxes = map[int]chan shootdownReq{}

// RegisterCore installs a mailbox for a simulated core so Shootdown can
// reach it. proc calls this once per goroutine-core it spins up.
func RegisterCore(core int) chan shootdownReq {
	ch := make(chan shootdownReq, 4)
	coreMailboxes[core] = ch
	return ch
}

// Shootdown invalidates the address space's cached translations on
// every core it may be loaded on, and waits for all acknowledgements
// before returning -- the point at which the unmap/protect that
// triggered it is safe to consider globally visible.
func (as *AddressSpace) Shootdown(cores []int) {
	vec := irq.Alloc(irq.ClassIPI)
	defer irq.Free(irq.ClassIPI, vec)

	as.Lock()
	gen := as.gen
	as.Unlock()

	var waits []chan struct{}
	for _, c := range cores {
		mb, ok := coreMailboxes[c]
		if !ok {
			continue
		}
		done := make(chan struct{})
		mb <- shootdownReq{gen: gen, done: done}
		waits = append(waits, done)
	}
	for _, w := range waits {
		<-w
	}
}

// AckShootdown is called by the goroutine proc runs beside a simulated
// core's scheduling loop when it receives a request on its mailbox; it records nothing beyond
// acknowledging, since in this simulation "invalidating" a core's
// cached translations is simply not consulting stale AddressSpace.pages
// entries -- reads always go through the authoritative map.
func AckShootdown(req shootdownReq) {
	close(req.done)
}
