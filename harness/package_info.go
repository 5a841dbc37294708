// Package harness contains the cross-protocol machinery of the contract
// tests: readiness probing of dependencies, the resource ledger that
// guarantees cleanup of everything a test creates, the event correlator
// that matches bus events to the actions that caused them, the WebSocket
// session manager, and bus-side action triggers.
//
// All waiting in this package is timeout-bounded, and all bus and socket
// observation is filtered by correlation identity rather than by assuming
// the harness has exclusive access to the service under test.
package harness
