// Package framework contains the generic test-runner infrastructure for the
// contract test harness: a test context similar to Go's *testing.T that can
// run outside the Go test runner, accumulating success/failure results per
// test identifier, with regex-based test filtering and pluggable reporting.
//
// Everything that knows about the driver service domain lives in the
// higher-level harness and contracttests packages; this package only knows
// how to run named pieces of test logic and collect their outcomes.
package framework
