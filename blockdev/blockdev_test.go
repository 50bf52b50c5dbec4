package blockdev

import (
	"os"
	"testing"

	"vkernel/fs"
	"vkernel/mem"
)

func TestWriteReadRoundtrip(t *testing.T) {
	mem.Phys_init(1 << 8)
	path := t.TempDir() + "/disk.img"
	d, err := Open(path, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	bm := Blockmem{}
	wb := fs.MkBlock_newpage(1, "test", bm, d, nil)
	for i := range wb.Data {
		wb.Data[i] = 0xab
	}
	wb.Write()

	rb := fs.MkBlock_newpage(1, "test", bm, d, nil)
	rb.Read()
	for i, v := range rb.Data {
		if v != 0xab {
			t.Fatalf("byte %d = %#x, want 0xab", i, v)
		}
	}
}

func TestOpenCreatesBackingFile(t *testing.T) {
	path := t.TempDir() + "/disk.img"
	d, err := Open(path, 8)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d.Close()

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Size() != 8*fs.BSIZE {
		t.Fatalf("size = %d, want %d", fi.Size(), 8*fs.BSIZE)
	}
}
