package main

import (
	"fmt"
	"io"

	"github.com/chazu/kettle/image"
	"github.com/chazu/kettle/vm"
)

func cmdDisasm(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintf(stderr, "Usage: kettle disasm image.kti\n")
		return 2
	}
	img, err := image.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := disassemble(stdout, img); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// disassemble links img against the built-in natives so operands print
// with their signatures.
func disassemble(w io.Writer, img *image.Image) error {
	natives := vm.NewNativeTable()
	vm.RegisterKettleNatives(natives)
	prog, err := image.Link(img, natives)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "; image %s (format %d), entry %q\n", img.Name, img.Version, img.Entry)
	for i, sig := range img.Natives {
		fmt.Fprintf(w, "; import %d: %s\n", i, sig)
	}
	for _, m := range prog.Methods {
		fmt.Fprintln(w)
		fmt.Fprint(w, m.Disassemble(prog, natives))
	}
	return nil
}
