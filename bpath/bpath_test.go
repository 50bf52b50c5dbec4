package bpath

import (
	"testing"

	"vkernel/ustr"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/", "/"},
		{"/a/b/c", "/a/b/c"},
		{"/a/./b", "/a/b"},
		{"/a/b/../c", "/a/c"},
		{"/a/../../b", "/b"},
		{"/a//b///c", "/a/b/c"},
		{"/a/b/..", "/a"},
	}
	for _, c := range cases {
		got := Canonicalize(ustr.Ustr(c.in)).String()
		if got != c.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
