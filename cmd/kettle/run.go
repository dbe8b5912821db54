package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chazu/kettle/image"
	"github.com/chazu/kettle/manifest"
	"github.com/chazu/kettle/transcript"
	"github.com/chazu/kettle/vm"
	"github.com/mattn/go-isatty"
)

type runOptions struct {
	configDir  string
	transcript string
	entry      string
	stats      bool
	trace      bool
	image      string
}

func cmdRun(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts runOptions
	fs.StringVar(&opts.configDir, "config", "", "Directory holding kettle.toml (default: search upward from cwd)")
	fs.StringVar(&opts.transcript, "transcript", "", "Record host writes to this SQLite database")
	fs.StringVar(&opts.entry, "entry", "", "Entry method (default: the image's entry)")
	fs.BoolVar(&opts.stats, "stats", false, "Print heap statistics after the run")
	fs.BoolVar(&opts.trace, "trace", false, "Log every executed instruction at debug level")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	switch fs.NArg() {
	case 0:
	case 1:
		opts.image = fs.Arg(0)
	default:
		fmt.Fprintf(stderr, "Usage: kettle run [options] image.kti\n")
		return 2
	}

	code, err := runImage(opts, &vm.StdIO{Stdout: stdout, Stderr: stderr}, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

// loadManifest honours -config, then an upward search, then defaults.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	return m, nil
}

// runImage loads, links and runs an image against host. The exit code is
// the entry's int result, clamped to 0..255, when it returns one.
func runImage(opts runOptions, host vm.HostIO, stdout io.Writer) (int, error) {
	m, err := loadManifest(opts.configDir)
	if err != nil {
		return 1, err
	}
	if m.Log.Verbosity > cliVerbosity || m.Log.File != "" {
		configureLogging(max(m.Log.Verbosity, cliVerbosity), m.LogFilePath())
	}

	path := opts.image
	if path == "" {
		path = m.ImagePath()
	}
	if path == "" {
		return 2, errors.New("no image given and none configured in kettle.toml")
	}
	img, err := image.ReadFile(path)
	if err != nil {
		return 1, err
	}

	dbPath := opts.transcript
	if dbPath == "" {
		dbPath = m.TranscriptPath()
	}
	var rec *transcript.Recorder
	cfg, err := m.VMConfig(host)
	if err != nil {
		return 1, err
	}
	machine := vm.New(cfg)
	machine.Trace = opts.trace || m.Log.Trace
	if dbPath != "" {
		rec, err = transcript.Open(dbPath, machine.ID, host)
		if err != nil {
			return 1, err
		}
		defer rec.Close()
		machine.IO = rec
	}

	prog, err := image.Link(img, machine.Natives)
	if err != nil {
		return 1, err
	}

	entry := opts.entry
	if entry == "" {
		entry = img.Entry
	}
	if entry == "" {
		entry = m.Image.Entry
	}

	log.Infof("running %s.%s (vm %s)", img.Name, entry, machine.ID)
	result, err := machine.Run(prog, entry)

	if isTerminal(stdout) {
		// Keep the shell prompt off the program's last line.
		fmt.Fprintln(stdout)
	}
	if opts.stats {
		printStats(stdout, machine, rec)
	}

	if err != nil {
		var uncaught *vm.UncaughtFault
		if errors.As(err, &uncaught) {
			return 3, err
		}
		return 1, err
	}
	if result.Kind == vm.SlotInt {
		return exitCode(result.Int), nil
	}
	return 0, nil
}

// exitCode clamps an int result to the 0..255 range a process can report.
func exitCode(v int32) int {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return int(v)
	}
}

func printStats(w io.Writer, machine *vm.VM, rec *transcript.Recorder) {
	h := machine.Heap
	fmt.Fprintf(w, "vm:       %s\n", machine.ID)
	fmt.Fprintf(w, "heap:     %d/%d units used, %d free\n", h.Used(), h.Capacity(), h.Free())
	fmt.Fprintf(w, "objects:  %d live\n", h.Live())
	if rec != nil {
		fmt.Fprintf(w, "transcript: %s\n", rec.Path())
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
