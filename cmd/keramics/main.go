// Command keramics scans a storage-media image file for nested volume
// systems and file systems and dumps the tree it finds. A directory
// argument is not walked. A thin composition of vfs+scanner, equivalent to the
// teacher's main.go/dumpFS demonstration; not itself a spec-scoped
// component.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/keramics/keramics-go/internal/config"
	"github.com/keramics/keramics-go/scanner"
	"github.com/keramics/keramics-go/vfs"
)

func dumpNode(node *scanner.ScanNode, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	fmt.Printf("%s%s\n", indent, node.Location)
	for _, child := range node.Children {
		dumpNode(child, depth+1)
	}
}

func run() error {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	cfg.ApplyMediator()

	args := flag.Args()
	if len(args) != 1 {
		return fmt.Errorf("usage: keramics [flags] <path>")
	}

	sc := scanner.New()
	open := func(parentFS *vfs.FileSystem, loc *vfs.Location) (*vfs.FileSystem, error) {
		return vfs.Open(parentFS, loc)
	}

	node, err := sc.Scan(nil, vfs.Root(vfs.Os, args[0]), open)
	if err != nil {
		return fmt.Errorf("unable to scan %q: %w", args[0], err)
	}
	dumpNode(node, 0)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
