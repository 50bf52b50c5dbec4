// Package bounds implements a lightweight per-tag token bucket used to
// cap the rate of expensive, attacker-influenced operations (page
// faults, page-cache insertions) the way vm and fs gate them before
// committing to expensive work.
package bounds

import "sync"

// Tag names a governed operation.
type Tag int

const (
	Bounds_PGFAULT Tag = iota
	Bounds_UNMAP
	Bounds_OPEN
	Bounds_MMAP
	Bounds_MAX
)

type bucket struct {
	sync.Mutex
	tokens int
}

var buckets [Bounds_MAX]bucket

// burst is the number of operations allowed before Bounds starts
// returning false, requiring the caller to block or retry.
const burst = 4096

func init() {
	for i := range buckets {
		buckets[i].tokens = burst
	}
}

// Bounds reports whether another unit of work under tag may proceed,
// consuming one token if so. Callers that get false back must back off,
// conventionally by retrying via the scheduler's yield path.
func Bounds(tag Tag) bool {
	b := &buckets[tag]
	b.Lock()
	defer b.Unlock()
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Refill returns n tokens to tag's bucket, up to burst. Nothing in the
// kernel calls it periodically: the buckets start full at burst and
// are topped up only by explicit calls.
func Refill(tag Tag, n int) {
	b := &buckets[tag]
	b.Lock()
	defer b.Unlock()
	b.tokens += n
	if b.tokens > burst {
		b.tokens = burst
	}
}
