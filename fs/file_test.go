package fs_test

import (
	"testing"

	"vkernel/defs"
	"vkernel/fs"
	"vkernel/fs/memfs"
	"vkernel/mem"
	"vkernel/stat"
	"vkernel/ustr"
)

func TestFileWriteReadRoundtrip(t *testing.T) {
	mem.Phys_init(1 << 10)
	mfs, root := memfs.New()
	n, err := mfs.Create(root, ustr.Ustr("x"), fs.NFILE)
	if err != 0 {
		t.Fatalf("create: %v", err)
	}

	f := fs.OpenFile(n, 0)
	if _, err := f.Write([]byte("hello")); err != 0 {
		t.Fatalf("write: %v", err)
	}
	if _, err := f.Lseek(0, 0); err != 0 {
		t.Fatalf("lseek: %v", err)
	}
	buf := make([]byte, 5)
	got, err := f.Read(buf)
	if err != 0 {
		t.Fatalf("read: %v", err)
	}
	if got != 5 || string(buf) != "hello" {
		t.Fatalf("read back %q (%d), want %q", buf[:got], got, "hello")
	}

	if rest, err := f.Read(buf); err != 0 || rest != 0 {
		t.Fatalf("read at EOF = (%d, %v), want (0, 0)", rest, err)
	}
}

func TestFileWriteExtendsSize(t *testing.T) {
	mem.Phys_init(1 << 10)
	mfs, root := memfs.New()
	n, _ := mfs.Create(root, ustr.Ustr("x"), fs.NFILE)

	f := fs.OpenFile(n, 0)
	f.Write([]byte("abc"))
	f2 := fs.OpenFile(n, fs.O_APPEND)
	f2.Write([]byte("def"))

	var st stat.Stat_t
	if err := f.Fstat(&st); err != 0 {
		t.Fatalf("fstat: %v", err)
	}
	if st.Size() != 6 {
		t.Fatalf("size = %d, want 6", st.Size())
	}
}

// TestFileSurvivesUnlink: a file opened, then unlinked from its
// directory, still reads back what was written
// through the still-open File, since the Node (and its page cache) is
// kept alive by the File's reference rather than by the directory
// entry.
func TestFileSurvivesUnlink(t *testing.T) {
	mem.Phys_init(1 << 10)
	mfs, root := memfs.New()
	n, _ := mfs.Create(root, ustr.Ustr("tmp"), fs.NFILE)

	f := fs.OpenFile(n, 0)
	if _, err := f.Write([]byte("hello")); err != 0 {
		t.Fatalf("write: %v", err)
	}
	if err := mfs.Unlink(root, ustr.Ustr("tmp")); err != 0 {
		t.Fatalf("unlink: %v", err)
	}

	if _, err := f.Lseek(0, 0); err != 0 {
		t.Fatalf("lseek: %v", err)
	}
	buf := make([]byte, 5)
	got, err := f.Read(buf)
	if err != 0 || got != 5 || string(buf) != "hello" {
		t.Fatalf("read after unlink = (%d, %v, %q), want (5, 0, hello)", got, err, buf[:got])
	}
	if err := f.Close(); err != 0 {
		t.Fatalf("close: %v", err)
	}
}

func TestFileLseekRejectsNegative(t *testing.T) {
	mem.Phys_init(1 << 10)
	mfs, root := memfs.New()
	n, _ := mfs.Create(root, ustr.Ustr("x"), fs.NFILE)
	f := fs.OpenFile(n, 0)
	if _, err := f.Lseek(-1, 0); err != defs.EINVAL {
		t.Fatalf("err = %v, want EINVAL", err)
	}
}
