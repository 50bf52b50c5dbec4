package fs_test

import (
	"testing"
	"time"

	"vkernel/defs"
	"vkernel/fs"
	"vkernel/mem"
)

// TestPipeBlocksAndWakes is spec.md §8 scenario 3: a reader blocked on
// an empty pipe wakes once a writer supplies bytes, and reads exactly
// what was written.
func TestPipeBlocksAndWakes(t *testing.T) {
	mem.Phys_init(1 << 8)

	rd, wr, err := fs.NewPipe()
	if err != 0 {
		t.Fatalf("NewPipe: %v", err)
	}

	result := make(chan string, 1)
	go func() {
		buf := make([]uint8, 16)
		n, err := rd.Read(buf)
		if err != 0 {
			result <- "err"
			return
		}
		result <- string(buf[:n])
	}()

	// Give the reader a moment to actually block before writing, so
	// this exercises the wake path rather than a pre-filled buffer.
	time.Sleep(10 * time.Millisecond)

	if _, err := wr.Write([]uint8("hi")); err != 0 {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-result:
		if got != "hi" {
			t.Fatalf("read = %q, want %q", got, "hi")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader never woke")
	}
}

// TestPipeEOFOnWriterClose checks that closing every writer wakes a
// blocked reader with a 0-byte EOF read rather than hanging forever.
func TestPipeEOFOnWriterClose(t *testing.T) {
	mem.Phys_init(1 << 8)

	rd, wr, err := fs.NewPipe()
	if err != 0 {
		t.Fatalf("NewPipe: %v", err)
	}

	done := make(chan struct{})
	var n int
	var rerr defs.Err_t
	go func() {
		buf := make([]uint8, 16)
		n, rerr = rd.Read(buf)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := wr.Close(); err != 0 {
		t.Fatalf("close: %v", err)
	}

	select {
	case <-done:
		if rerr != 0 || n != 0 {
			t.Fatalf("read after writer close = (%d, %v), want (0, 0)", n, rerr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader never woke on writer close")
	}
}

// TestPipeWriteAfterReaderCloseIsEPIPE checks the other half: a writer
// blocked on a full pipe (or arriving after) observes EPIPE once every
// reader has gone away, instead of blocking forever.
func TestPipeWriteAfterReaderCloseIsEPIPE(t *testing.T) {
	mem.Phys_init(1 << 8)

	rd, wr, err := fs.NewPipe()
	if err != 0 {
		t.Fatalf("NewPipe: %v", err)
	}
	if err := rd.Close(); err != 0 {
		t.Fatalf("close: %v", err)
	}
	if _, err := wr.Write([]uint8("x")); err != defs.EPIPE {
		t.Fatalf("write after reader close = %v, want EPIPE", err)
	}
}
