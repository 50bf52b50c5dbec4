// Command chentry patches the e_entry field of an x86-64 ELF
// executable in place. The ELF parser that feeds vkernel/exec.Load is
// an external collaborator outside this repo's scope, but build
// pipelines that produce a kernel image still need a way to relocate
// its entry point after linking without a full relink -- this is that
// tool.
package main

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
)

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// checkHeader rejects any file this tool isn't prepared to patch in
// place: only a little-endian 64-bit x86-64 executable has its e_entry
// field at the offset main writes to. elf.NewFile has already checked
// the ELF magic.
func checkHeader(eh *elf.FileHeader) {
	if eh.Class != elf.ELFCLASS64 {
		die("not a 64-bit ELF file")
	}
	if eh.Data != elf.ELFDATA2LSB {
		die("big-endian ELF not supported")
	}
	if eh.Type != elf.ET_EXEC {
		die("not an executable (ET_EXEC) ELF file")
	}
	if eh.Machine != elf.EM_X86_64 {
		die("not an x86-64 ELF file")
	}
}

// parseEntry accepts decimal or 0x-prefixed hex, matching strtoul's
// base-0 convention, and rejects anything that wouldn't fit the
// 32-bit entry point vkernel's loader hands off to the trampoline.
func parseEntry(s string) uint64 {
	addr, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		die("invalid address %q: %v", s, err)
	}
	if addr>>32 != 0 {
		die("entry 0x%x does not fit in 32 bits", addr)
	}
	return addr
}

func main() {
	if len(os.Args) != 3 {
		die("usage: %s <elf-file> <entry-addr>", os.Args[0])
	}
	path, entry := os.Args[1], parseEntry(os.Args[2])

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		die("%v", err)
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		die("parsing %s: %v", path, err)
	}
	checkHeader(&ef.FileHeader)

	fmt.Printf("%s: entry 0x%x -> 0x%x\n", path, ef.FileHeader.Entry, entry)

	// e_entry is the 8-byte field at offset 24 of the ELF64 file header.
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], entry)
	if _, err := f.WriteAt(b[:], 24); err != nil {
		die("rewriting header: %v", err)
	}
}
