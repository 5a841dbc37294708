package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fleetops/driver-contract-tests/framework"

	"github.com/alessio/shellescape"
)

type commandParams struct {
	filters     framework.RegexFilters
	skipCleanup bool
	debug       bool
	debugAll    bool
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.skipCleanup, "skip-cleanup", false, "leave created test resources in place")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}
	return true
}

// rerunCommand builds a shell-safe command line that reruns exactly the
// failed tests, printed after a failing run.
func rerunCommand(args []string, failures []framework.TestResult) string {
	var b commandBuilder
	b.add(args[0])
	for _, f := range failures {
		b.add("-run", "^"+regexpQuoteMeta(f.TestID.String())+"$")
	}
	return b.String()
}

func regexpQuoteMeta(s string) string {
	special := `\.+*?()|[]{}^$`
	var out strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			out.WriteRune('\\')
		}
		out.WriteRune(r)
	}
	return out.String()
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
