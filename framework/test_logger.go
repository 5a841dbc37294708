package framework

import (
	"fmt"
	"os"
	"strings"

	"github.com/fleetops/driver-contract-tests/logging"

	"github.com/fatih/color"
)

// TestLogger receives test lifecycle notifications during a run.
type TestLogger interface {
	TestStarted(id TestID)
	TestError(id TestID, err error)
	TestFinished(id TestID, failed bool, debugOutput logging.CapturedOutput)
	TestSkipped(id TestID, reason string)
}

type nullTestLogger struct{}

func (n nullTestLogger) TestStarted(TestID) {}
func (n nullTestLogger) TestError(TestID, error) {}
func (n nullTestLogger) TestFinished(TestID, bool, logging.CapturedOutput) {}
func (n nullTestLogger) TestSkipped(TestID, string) {}

var (
	failedColor  = color.New(color.FgRed, color.Bold)
	skippedColor = color.New(color.FgYellow)
)

// ConsoleTestLogger prints test progress to standard output. Debug output
// captured during a test is dumped according to the two flags.
type ConsoleTestLogger struct {
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c ConsoleTestLogger) TestStarted(id TestID) {
	fmt.Printf("[%s]\n", id)
}

func (c ConsoleTestLogger) TestError(id TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Printf("  %s\n", line)
	}
}

func (c ConsoleTestLogger) TestFinished(id TestID, failed bool, debugOutput logging.CapturedOutput) {
	if failed {
		failedColor.Printf("  FAILED: %s\n", id)
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(os.Stdout, "    DEBUG ")
	}
}

func (c ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	if reason == "" {
		skippedColor.Printf("  SKIPPED: %s\n", id)
	} else {
		skippedColor.Printf("  SKIPPED: %s (%s)\n", id, reason)
	}
}

// PrintResults writes the run summary to standard output.
func PrintResults(results Results) {
	if results.OK() {
		color.New(color.FgGreen, color.Bold).Printf("All tests passed (%d run)\n", len(results.Tests))
		return
	}
	failedColor.Printf("FAILED: %d tests failed out of %d\n", len(results.Failures), len(results.Tests))
	for _, f := range results.Failures {
		fmt.Printf("  %s\n", f.TestID)
	}
}
