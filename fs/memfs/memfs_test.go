package memfs

import (
	"testing"

	"vkernel/defs"
	"vkernel/fs"
	"vkernel/mem"
	"vkernel/ustr"
)

func TestCreateWriteReadRoundtrip(t *testing.T) {
	mem.Phys_init(1 << 10)
	f, root := New()

	n, err := f.Create(root, ustr.Ustr("hello.txt"), fs.NFILE)
	if err != 0 {
		t.Fatalf("create failed: %v", err)
	}
	data := []byte("hello, memfs")
	if err := f.WritePage(n, 0, data); err != 0 {
		t.Fatalf("write failed: %v", err)
	}

	pg, err := f.ReadPage(n, 0)
	if err != 0 {
		t.Fatalf("read failed: %v", err)
	}
	bpg := mem.Pg2bytes(pg)
	if string(bpg[:len(data)]) != string(data) {
		t.Fatalf("roundtrip mismatch: got %q", bpg[:len(data)])
	}
}

func TestLookupAndUnlink(t *testing.T) {
	mem.Phys_init(1 << 10)
	f, root := New()
	f.Create(root, ustr.Ustr("a"), fs.NFILE)

	if _, err := f.Lookup(root, ustr.Ustr("a")); err != 0 {
		t.Fatalf("lookup failed: %v", err)
	}
	if err := f.Unlink(root, ustr.Ustr("a")); err != 0 {
		t.Fatalf("unlink failed: %v", err)
	}
	if _, err := f.Lookup(root, ustr.Ustr("a")); err != defs.ENOENT {
		t.Fatalf("expected ENOENT after unlink, got %v", err)
	}
}

func TestSymlinkRoundtrip(t *testing.T) {
	mem.Phys_init(1 << 10)
	f, root := New()

	n, err := f.Symlink(root, ustr.Ustr("link"), ustr.Ustr("/c"))
	if err != 0 {
		t.Fatalf("symlink failed: %v", err)
	}
	if n.Type != fs.NSYMLINK {
		t.Fatalf("node type = %v, want NSYMLINK", n.Type)
	}
	target, err := f.Readlink(n)
	if err != 0 {
		t.Fatalf("readlink failed: %v", err)
	}
	if target.String() != "/c" {
		t.Fatalf("target = %q, want /c", target.String())
	}
}

func TestReaddir(t *testing.T) {
	mem.Phys_init(1 << 10)
	f, root := New()
	f.Create(root, ustr.Ustr("a"), fs.NFILE)
	f.Create(root, ustr.Ustr("b"), fs.NDIR)

	names, err := f.Readdir(root)
	if err != 0 {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(names))
	}
}
