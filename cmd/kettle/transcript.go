package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/chazu/kettle/transcript"
	"github.com/chazu/kettle/vm"
	"github.com/google/uuid"
)

func cmdTranscript(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transcript", flag.ContinueOnError)
	fs.SetOutput(stderr)
	session := fs.String("session", "", "Print the output recorded for this session")
	channel := fs.Int("channel", vm.ChannelStdout, "Channel to print with -session")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "Usage: kettle transcript [-session id] db\n")
		return 2
	}

	// Opened only for its queries; nothing is written through it.
	rec, err := transcript.Open(fs.Arg(0), uuid.Nil, vm.NewBufferIO())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer rec.Close()

	if *session == "" {
		ids, err := rec.Sessions()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		for _, id := range ids {
			entries, err := rec.Entries(id)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			written := 0
			for _, e := range entries {
				written += e.Written
			}
			fmt.Fprintf(stdout, "%s  %d writes, %d bytes\n", id, len(entries), written)
		}
		return 0
	}

	id, err := uuid.Parse(*session)
	if err != nil {
		fmt.Fprintf(stderr, "Error: bad session: %v\n", err)
		return 2
	}
	out, err := rec.Output(id, *channel)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	stdout.Write(out)
	return 0
}
