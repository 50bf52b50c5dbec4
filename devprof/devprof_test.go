package devprof

import (
	"testing"

	"vkernel/mem"
	"vkernel/proc"
	"vkernel/stat"
)

func TestSnapshotReadable(t *testing.T) {
	mem.Phys_init(1 << 10)
	proc.Cores(1)
	defer proc.StopCores()
	proc.New(0)

	d := NewDevice()
	if len(d.buf) == 0 {
		t.Fatal("snapshot produced no bytes")
	}

	var st stat.Stat_t
	if err := d.Fstat(&st); err != 0 {
		t.Fatalf("Fstat failed: %v", err)
	}
	if st.Size() != uint(len(d.buf)) {
		t.Fatalf("Fstat size = %d, want %d", st.Size(), len(d.buf))
	}

	buf := make([]byte, 4096)
	total := 0
	for {
		n, err := d.Read(buf)
		if err != 0 {
			t.Fatalf("Read failed: %v", err)
		}
		total += n
		if n == 0 {
			break
		}
	}
	if total != len(d.buf) {
		t.Fatalf("read %d bytes, want %d", total, len(d.buf))
	}
}

func TestWriteIsRejected(t *testing.T) {
	d := &Device{buf: []byte("x")}
	if _, err := d.Write([]byte("y")); err == 0 {
		t.Fatal("expected write to a profile device to fail")
	}
}
