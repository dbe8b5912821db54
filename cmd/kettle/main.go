// Kettle CLI - runs, inspects and generates Kettle images
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("kettle.cli")

// cliVerbosity is the -v value; kettle.toml may raise it but not lower it.
var cliVerbosity int

type command struct {
	name  string
	usage string
	run   func(args []string, stdout, stderr io.Writer) int
}

var commands = []command{
	{"run", "run [-config dir] [-transcript db] [-entry name] [-stats] [-trace] image.kti", cmdRun},
	{"disasm", "disasm image.kti", cmdDisasm},
	{"demo", "demo [-o hello.kti]", cmdDemo},
	{"transcript", "transcript [-session id] db", cmdTranscript},
}

func main() {
	os.Exit(dispatch(os.Args[1:], os.Stdout, os.Stderr))
}

func dispatch(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("kettle", flag.ContinueOnError)
	global.SetOutput(stderr)
	verbosity := global.Int("v", 0, "Log verbosity (0 = errors only, 4 = debug)")
	global.Usage = func() { usage(stderr, global) }
	if err := global.Parse(args); err != nil {
		return 2
	}

	cliVerbosity = *verbosity
	configureLogging(cliVerbosity, "")

	rest := global.Args()
	if len(rest) == 0 {
		usage(stderr, global)
		return 2
	}
	for _, c := range commands {
		if c.name == rest[0] {
			return c.run(rest[1:], stdout, stderr)
		}
	}
	fmt.Fprintf(stderr, "kettle: unknown command %q\n\n", rest[0])
	usage(stderr, global)
	return 2
}

func usage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: kettle [-v n] <command> [options]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  kettle %s\n", c.usage)
	}
	fmt.Fprintf(w, "\nGlobal options:\n")
	global.SetOutput(w)
	global.PrintDefaults()
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  kettle demo -o hello.kti           # Write the sample image\n")
	fmt.Fprintf(w, "  kettle run -stats hello.kti        # Run it, report heap usage\n")
	fmt.Fprintf(w, "  kettle -v 4 run -trace hello.kti   # Trace every instruction\n")
	fmt.Fprintf(w, "  kettle disasm hello.kti            # List its bytecode\n")
}

// configureLogging sends logs to file, or stderr when file is empty.
func configureLogging(verbosity int, file string) {
	var path *string
	if file != "" {
		path = &file
	}
	commonlog.Configure(verbosity, path)
}
