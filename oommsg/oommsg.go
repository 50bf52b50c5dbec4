// Package oommsg is the narrow rendezvous point between mem's buddy
// allocator and whatever in the running kernel can give memory back.
// mem cannot import fs directly (fs already imports mem, for page
// frames), so the two communicate through this unbuffered channel
// instead: mem sends when an allocation attempt fails, fs's page
// cache is the one registered listener (see fs/pagecache.go's init),
// and mem retries once told to resume, bounded by a fixed retry count.
package oommsg

// OomCh carries one message per failed allocation attempt. A send is
// always attempted non-blockingly by mem, so a kernel built without the
// fs package wired in (as in mem's own unit tests) simply sees every
// attempt fail immediately rather than hang waiting for a reader.
var OomCh chan Oommsg_t = make(chan Oommsg_t)

// Oommsg_t describes one reclaim request: Need is the number of pages
// the failed allocation was short, and Resume is closed-over by the
// sender and written to once the listener's reclaim pass has run,
// whether or not it actually freed enough to help.
type Oommsg_t struct {
	Need   int
	Resume chan bool
}
