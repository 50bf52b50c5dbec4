package procfs

import (
	"strconv"
	"strings"
	"testing"

	"vkernel/defs"
	"vkernel/fs"
	"vkernel/mem"
	"vkernel/proc"
	"vkernel/ustr"
)

// readAll returns the first page of n's generated content. Every file
// this package generates fits in a single page, so callers only need
// the page-0 read to see the whole body.
func readAll(f *FS, n *fs.Node) []byte {
	pg, err := f.ReadPage(n, 0)
	if err != 0 {
		return nil
	}
	bpg := mem.Pg2bytes(pg)
	return bpg[:]
}

func TestMeminfoAndUptime(t *testing.T) {
	mem.Phys_init(1 << 14)
	f, root := New()

	mn, err := f.Lookup(root, ustr.Ustr("meminfo"))
	if err != 0 {
		t.Fatalf("lookup meminfo failed: %v", err)
	}
	body := readAll(f, mn)
	if !strings.Contains(string(body), "MemTotal:") {
		t.Fatalf("meminfo missing MemTotal: %q", body)
	}

	un, err := f.Lookup(root, ustr.Ustr("uptime"))
	if err != 0 {
		t.Fatalf("lookup uptime failed: %v", err)
	}
	if len(readAll(f, un)) == 0 {
		t.Fatal("uptime body empty")
	}
}

func TestPidDirectoryAndCmdline(t *testing.T) {
	mem.Phys_init(1 << 14)
	proc.Cores(1)
	defer proc.StopCores()

	p := proc.New(0)
	p.Argv = []string{"myprog", "-x"}
	p.Envv = []string{"HOME=/root"}

	f, root := New()

	names, err := f.Readdir(root)
	if err != 0 {
		t.Fatalf("readdir root failed: %v", err)
	}
	found := false
	want := strconv.Itoa(int(p.Pid))
	for _, n := range names {
		if n.String() == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("pid %s missing from /proc root listing: %v", want, names)
	}

	pidDir, err := f.Lookup(root, ustr.Ustr(want))
	if err != 0 {
		t.Fatalf("lookup pid dir failed: %v", err)
	}
	if pidDir.Type != fs.NDIR {
		t.Fatalf("pid entry type = %v, want NDIR", pidDir.Type)
	}

	cmdlineNode, err := f.Lookup(pidDir, ustr.Ustr("cmdline"))
	if err != 0 {
		t.Fatalf("lookup cmdline failed: %v", err)
	}
	body := readAll(f, cmdlineNode)
	trimmed := strings.TrimRight(string(body), "\x00")
	got := strings.Split(trimmed, "\x00")
	if len(got) != 2 || got[0] != "myprog" || got[1] != "-x" {
		t.Fatalf("cmdline = %q, want myprog\\0-x\\0", body)
	}
}

func TestSelfSymlinkResolvesToCurrentProcess(t *testing.T) {
	mem.Phys_init(1 << 14)
	proc.Cores(1)
	defer proc.StopCores()

	p := proc.New(0)
	proc.SetCurrent(p)
	defer proc.ClearCurrent()

	f, root := New()
	selfNode, err := f.Lookup(root, ustr.Ustr("self"))
	if err != 0 {
		t.Fatalf("lookup self failed: %v", err)
	}
	if selfNode.Type != fs.NSYMLINK {
		t.Fatalf("self type = %v, want NSYMLINK", selfNode.Type)
	}
	target, err := f.Readlink(selfNode)
	if err != 0 {
		t.Fatalf("readlink self failed: %v", err)
	}
	want := "/proc/" + strconv.Itoa(int(p.Pid))
	if target.String() != want {
		t.Fatalf("self target = %q, want %q", target.String(), want)
	}
}

func TestMissingPidIsENOENT(t *testing.T) {
	mem.Phys_init(1 << 14)
	f, root := New()
	if _, err := f.Lookup(root, ustr.Ustr("999999")); err != defs.ENOENT {
		t.Fatalf("err = %v, want ENOENT", err)
	}
}

func TestWritesRejected(t *testing.T) {
	mem.Phys_init(1 << 14)
	f, root := New()
	if err := f.WritePage(root, 0, []byte("x")); err != defs.EROFS {
		t.Fatalf("WritePage err = %v, want EROFS", err)
	}
	if _, err := f.Create(root, ustr.Ustr("x"), fs.NFILE); err != defs.EROFS {
		t.Fatalf("Create err = %v, want EROFS", err)
	}
}
