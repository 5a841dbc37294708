// Package contracttests contains the driver-service contract tests and
// their supporting API.
//
// The tests exercise the service over four channels: the REST surface, the
// gRPC surface, WebSocket push, and the message bus. Generic machinery
// such as readiness probing, resource tracking, event correlation, and
// session management lives in the lower-level harness package; the test
// runner itself is in the framework package.
package contracttests
