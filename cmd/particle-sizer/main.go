// Command particle-sizer converts scatter files into particle size
// distributions: it fits bead calibrations, sizes events by calibration or
// by forward-model inversion, and compares samples.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/particle.sizing/internal/version"
)

// errUsage marks a command line error already reported to stderr.
var errUsage = errors.New("usage error")

type command struct {
	name  string
	brief string
	run   func(a *app, args []string) error
}

var commands = []command{
	{"calibrate", "Fit a bead calibration curve", cmdCalibrate},
	{"analyze", "Size every event of one or more scatter files", cmdAnalyze},
	{"compare", "Compare two size distributions", cmdCompare},
	{"curve", "Print or plot the forward-model response curve", cmdCurve},
	{"synth", "Write a synthetic scatter file", cmdSynth},
	{"calibrations", "List or delete stored calibrations", cmdCalibrations},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("particle-sizer: ")
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	name, rest := args[0], args[1:]
	switch name {
	case "version":
		fmt.Fprintf(stdout, "particle-sizer version %s\n", version.String())
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	}

	for _, c := range commands {
		if c.name != name {
			continue
		}
		a := newApp(stdout, stderr)
		if err := c.run(a, rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			if !errors.Is(err, errUsage) {
				fmt.Fprintf(stderr, "%s: %v\n", name, err)
			}
			return 1
		}
		return 0
	}

	fmt.Fprintf(stderr, "Unknown command: %s\n\n", name)
	printUsage(stderr)
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `particle-sizer - particle size distributions from scatter data

Usage: particle-sizer <command> [options]

Commands:`)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-13s %s\n", c.name, c.brief)
	}
	fmt.Fprintln(w, `  version       Show version and scatter proxy model
  help          Show this help message

Common Flags:
  --config <file>   Sizing configuration (default: built-in defaults)
  --db <file>       SQLite database for calibrations and runs

Examples:
  # Fit beads measured on the forward channel and store the curve
  particle-sizer calibrate --beads beads.json --store --db sizing.db

  # Size a plate with the latest stored calibration
  particle-sizer analyze --db sizing.db --calibration latest runs/*.fcs

  # Size by model inversion with a bead-derived gain
  particle-sizer analyze --gain-beads beads.json sample.fcs

  # Compare a stained sample against its control
  particle-sizer compare --calibration curve.json control.fcs stained.fcs`)
}
