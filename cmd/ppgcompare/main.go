// Command ppgcompare checks two PPG results files for equality.
//
// Usage:
//
//	ppgcompare [-tolerance 1e-10] [-limit 10] first.json second.json
//
// Exit status is 0 when the files are identical, 1 when they differ and 2
// on usage or read errors.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/e7canasta/orion-ppg/internal/codec"
	"github.com/e7canasta/orion-ppg/internal/compare"
)

const (
	exitIdentical = 0
	exitDifferent = 1
	exitError     = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ppgcompare", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tolerance := fs.Float64("tolerance", compare.DefaultTolerance, "Maximum absolute signal difference")
	limit := fs.Int("limit", 10, "Number of differing frames to list")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ppgcompare [flags] <first.json> <second.json>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return exitError
	}

	first, err := codec.ReadResultsFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	second, err := codec.ReadResultsFile(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	codec.SortByTimestamp(first)
	codec.SortByTimestamp(second)

	fmt.Fprintf(stdout, "Comparing %s with %s\n\n", fs.Arg(0), fs.Arg(1))
	res := compare.Compare(first, second, *tolerance)
	compare.Write(stdout, res, *limit)

	if res.Identical {
		return exitIdentical
	}
	return exitDifferent
}
