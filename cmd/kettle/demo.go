package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/chazu/kettle/image"
	"github.com/chazu/kettle/vm"
)

const demoGreeting = "Hello from Kettle!\n"

func cmdDemo(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("o", "hello.kti", "Output image path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := image.WriteFile(*out, demoImage()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return 0
}

// demoImage prints a greeting, queries free heap, then provokes and
// catches a null-reference fault from print.
//
//	main:  print greeting, getMemFree, print(null) guarded by a handler
//	free:  returns getMemFree as the exit code (clamped to 255)
func demoImage() *image.Image {
	b := image.NewBuilder("hello").Entry("main")

	m := b.Method("main", 2)
	m.LdcString(demoGreeting).
		Dup().
		InvokeNative(vm.SigPrint).
		Release().
		InvokeNative(vm.SigGetMemFree).
		Pop()

	tryStart := m.Offset()
	m.AConstNull().
		InvokeNative(vm.SigPrint)
	tryEnd := m.Offset()
	skip := m.Goto()

	handler := m.Offset()
	m.Release().
		LdcString("caught NullReferenceFault from print\n").
		Dup().
		InvokeNative(vm.SigPrint).
		Release()
	m.PatchHere(skip).
		Return()
	m.Handler(tryStart, tryEnd, handler, vm.NullReference)

	b.Method("free", 1).
		InvokeNative(vm.SigGetMemFree).
		IReturn()

	return b.Build()
}
