// Command depgraph generates a Graphviz DOT description of this
// module's internal package import graph, loading the package graph
// directly through golang.org/x/tools/go/packages so it reports actual
// import edges between vkernel's own packages rather than
// module-to-module requirements.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/tools/go/packages"
)

func main() {
	cfg := &packages.Config{Mode: packages.NeedImports | packages.NeedName | packages.NeedDeps}
	pkgs, err := packages.Load(cfg, "vkernel/...")
	if err != nil {
		panic(err)
	}

	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()
	fmt.Fprintln(writer, "digraph deps {")
	seen := make(map[[2]string]bool)
	packages.Visit(pkgs, nil, func(pkg *packages.Package) {
		for path, imp := range pkg.Imports {
			if !strings.HasPrefix(pkg.PkgPath+"/", "vkernel/") || !strings.HasPrefix(imp.PkgPath+"/", "vkernel/") {
				continue
			}
			key := [2]string{pkg.PkgPath, path}
			if seen[key] {
				continue
			}
			seen[key] = true
			fmt.Fprintf(writer, "    %q -> %q;\n", pkg.PkgPath, imp.PkgPath)
		}
	})
	fmt.Fprintln(writer, "}")
}
