// Package bpath implements purely syntactic path normalization over
// ustr.Ustr (a []byte path), the byte-slice path grammar fd.Cwd_t needs
// before handing a path to fs's resolver.
//
// This is the one package in the repo grounded on the standard library
// rather than a third-party dependency: fd.Cwd_t calls
// bpath.Canonicalize on a ustr.Ustr, not a string, so path.Clean (which
// only operates on string) cannot be reused directly, and no ecosystem
// package ships a []byte path-cleaning routine. See DESIGN.md.
package bpath

import "vkernel/ustr"

// Canonicalize removes "." components, resolves ".." components
// syntactically (without touching the filesystem), and collapses
// repeated slashes, leaving an absolute path. It does not resolve
// symlinks -- that is fs's job during path walk, since it requires
// looking up actual directory entries.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	if !p.IsAbsolute() {
		panic("bpath.Canonicalize: not absolute")
	}
	comps := split(p)
	out := make([]ustr.Ustr, 0, len(comps))
	for _, c := range comps {
		switch {
		case len(c) == 0, c.Isdot():
			continue
		case c.Isdotdot():
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return ustr.MkUstrRoot()
	}
	ret := ustr.MkUstr()
	for _, c := range out {
		ret = append(ret, '/')
		ret = append(ret, c...)
	}
	return ret
}

// split breaks a path into its slash-delimited components, skipping
// empty components produced by repeated slashes.
func split(p ustr.Ustr) []ustr.Ustr {
	var ret []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				ret = append(ret, p[start:i])
			}
			start = i + 1
		}
	}
	return ret
}
