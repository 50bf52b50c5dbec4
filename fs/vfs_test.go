package fs_test

import (
	"testing"

	"vkernel/defs"
	"vkernel/fs"
	"vkernel/fs/memfs"
	"vkernel/mem"
	"vkernel/ustr"
)

func TestResolveNestedPath(t *testing.T) {
	mem.Phys_init(1 << 10)
	mfs, rootNode := memfs.New()
	root := fs.NewEntry("/", rootNode, nil)

	sub, err := mfs.Create(rootNode, ustr.Ustr("sub"), fs.NDIR)
	if err != 0 {
		t.Fatalf("create dir failed: %v", err)
	}
	_, err = mfs.Create(sub, ustr.Ustr("file.txt"), fs.NFILE)
	if err != 0 {
		t.Fatalf("create file failed: %v", err)
	}

	e, err := fs.Resolve(root, root, ustr.Ustr("/sub/file.txt"))
	if err != 0 {
		t.Fatalf("resolve failed: %v", err)
	}
	if e.Node.Type != fs.NFILE {
		t.Fatalf("resolved wrong node type: %v", e.Node.Type)
	}
}

func TestResolveDotDotOutOfRoot(t *testing.T) {
	mem.Phys_init(1 << 10)
	mfs, rootNode := memfs.New()
	root := fs.NewEntry("/", rootNode, nil)
	root.Parent = root // root's ".." is itself, like a real filesystem root

	sub, _ := mfs.Create(rootNode, ustr.Ustr("sub"), fs.NDIR)

	e, err := fs.Resolve(root, root, ustr.Ustr("/sub/.."))
	if err != 0 {
		t.Fatalf("resolve failed: %v", err)
	}
	if e.Node != rootNode {
		t.Fatal("/sub/.. should resolve back to root")
	}
	_ = sub
}

func TestResolveThroughSymlink(t *testing.T) {
	// /a/b -> /c, /c/d is a regular file; resolving /a/b/d should land
	// on /c/d.
	mem.Phys_init(1 << 10)
	mfs, rootNode := memfs.New()
	root := fs.NewEntry("/", rootNode, nil)
	root.Parent = root

	a, _ := mfs.Create(rootNode, ustr.Ustr("a"), fs.NDIR)
	mfs.Symlink(a, ustr.Ustr("b"), ustr.Ustr("/c"))
	c, _ := mfs.Create(rootNode, ustr.Ustr("c"), fs.NDIR)
	mfs.Create(c, ustr.Ustr("d"), fs.NFILE)

	e, err := fs.Resolve(root, root, ustr.Ustr("/a/b/d"))
	if err != 0 {
		t.Fatalf("resolve failed: %v", err)
	}
	if e.Node.Type != fs.NFILE {
		t.Fatalf("resolved wrong node type: %v", e.Node.Type)
	}
	if e.Name != "d" {
		t.Fatalf("resolved entry name = %q, want d", e.Name)
	}
}

func TestResolveMissingIsENOENT(t *testing.T) {
	mem.Phys_init(1 << 10)
	_, rootNode := memfs.New()
	root := fs.NewEntry("/", rootNode, nil)

	_, err := fs.Resolve(root, root, ustr.Ustr("/nope"))
	if err != defs.ENOENT {
		t.Fatalf("err = %v, want ENOENT", err)
	}
}
