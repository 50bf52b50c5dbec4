package diskfs

import (
	"testing"

	"vkernel/blockdev"
	"vkernel/defs"
	"vkernel/fs"
	"vkernel/mem"
	"vkernel/ustr"
)

func setupDisk(t *testing.T) (*FS, *fs.Node) {
	t.Helper()
	mem.Phys_init(1 << 12)
	d, err := blockdev.Open(t.TempDir()+"/disk.img", 64)
	if err != nil {
		t.Fatalf("open disk: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return New(d, blockdev.Blockmem{})
}

func TestDiskWriteReadSurvivesEviction(t *testing.T) {
	f, root := setupDisk(t)

	n, err := f.Create(root, ustr.Ustr("a"), fs.NFILE)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}
	data := []byte("persisted to disk")
	if err := f.WritePage(n, 0, data); err != 0 {
		t.Fatalf("write: %v", err)
	}
	if err := f.Sync(n); err != 0 {
		t.Fatalf("sync: %v", err)
	}

	fs.Reclaim(1 << 20)

	pg, err := f.ReadPage(n, 0)
	if err != 0 {
		t.Fatalf("read after evict: %v", err)
	}
	bpg := mem.Pg2bytes(pg)
	if string(bpg[:len(data)]) != string(data) {
		t.Fatalf("roundtrip mismatch after eviction: got %q", bpg[:len(data)])
	}
}

func TestDiskLookupAndUnlink(t *testing.T) {
	f, root := setupDisk(t)
	f.Create(root, ustr.Ustr("x"), fs.NFILE)

	if _, err := f.Lookup(root, ustr.Ustr("x")); err != 0 {
		t.Fatalf("lookup: %v", err)
	}
	if err := f.Unlink(root, ustr.Ustr("x")); err != 0 {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := f.Lookup(root, ustr.Ustr("x")); err != defs.ENOENT {
		t.Fatalf("expected ENOENT, got %v", err)
	}
}
