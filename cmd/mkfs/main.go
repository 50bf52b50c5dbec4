// Command mkfs copies a host directory tree into a disk image by
// driving fs/diskfs over blockdev's file-backed fs.Disk_i. File
// contents reach the image's data blocks through diskfs's Sync; the
// directory tree and inode metadata live only in diskfs's memory and
// are not written to the image, and diskfs has no way to mount an
// existing image.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"vkernel/blockdev"
	"vkernel/defs"
	"vkernel/fs"
	"vkernel/fs/diskfs"
	"vkernel/mem"
	"vkernel/ustr"
)

const (
	ninodeblks = 100 * 50 // default inode/data region sizing
	ndatablks  = 40000
)

// copydata streams the host file at src into dst, page by page,
// through diskfs's page cache exactly as a running kernel's write(2)
// path would.
func copydata(src string, f *diskfs.FS, dst *fs.Node) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	buf := make([]byte, mem.PGSIZE)
	off := 0
	for {
		n, readErr := srcFile.Read(buf)
		if n > 0 {
			if e := f.WritePage(dst, off, buf[:n]); e != 0 {
				return fmt.Errorf("write %s at %d: %v", src, off, e)
			}
			off += n
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// resolveDir walks rel (a slash-joined directory path relative to
// root, already known to exist) one component at a time via
// f.Lookup, matching the directory-only subset of fs.Resolve.
func resolveDir(f *diskfs.FS, root *fs.Node, rel string) (*fs.Node, defs.Err_t) {
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "" {
			continue
		}
		n, e := f.Lookup(cur, ustr.Ustr(part))
		if e != 0 {
			return nil, e
		}
		cur = n
	}
	return cur, 0
}

// addfiles walks skeldir on the host and replicates its contents into
// the filesystem rooted at root.
func addfiles(f *diskfs.FS, root *fs.Node, skeldir string) error {
	return filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("access %q: %w", path, err)
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, skeldir), string(filepath.Separator))
		if rel == "" {
			return nil
		}

		dir, name := root, rel
		if idx := strings.LastIndexByte(rel, filepath.Separator); idx >= 0 {
			parent, e := resolveDir(f, root, rel[:idx])
			if e != 0 {
				return fmt.Errorf("resolve parent of %q: %v", rel, e)
			}
			dir = parent
			name = rel[idx+1:]
		}

		if d.IsDir() {
			if _, e := f.Create(dir, ustr.Ustr(name), fs.NDIR); e != 0 {
				return fmt.Errorf("mkdir %q: %v", rel, e)
			}
			return nil
		}

		node, e := f.Create(dir, ustr.Ustr(name), fs.NFILE)
		if e != 0 {
			return fmt.Errorf("create %q: %v", rel, e)
		}
		if err := copydata(path, f, node); err != nil {
			return err
		}
		if e := f.Sync(node); e != 0 {
			return fmt.Errorf("sync %q: %v", rel, e)
		}
		return nil
	})
}

func main() {
	if len(os.Args) != 3 {
		fmt.Printf("Usage: mkfs <output image> <skel dir>\n")
		os.Exit(1)
	}
	image, skeldir := os.Args[1], os.Args[2]

	mem.Phys_init(ninodeblks + ndatablks)
	disk, err := blockdev.Open(image, ninodeblks+ndatablks)
	if err != nil {
		fmt.Printf("open %q: %v\n", image, err)
		os.Exit(1)
	}
	defer disk.Close()

	f, root := diskfs.New(disk, blockdev.Blockmem{})
	if err := addfiles(f, root, skeldir); err != nil {
		fmt.Printf("building image: %v\n", err)
		os.Exit(1)
	}
}
