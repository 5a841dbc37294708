package contracttests

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fleetops/driver-contract-tests/apiclient"
	"github.com/fleetops/driver-contract-tests/config"
	"github.com/fleetops/driver-contract-tests/fixtures"
	"github.com/fleetops/driver-contract-tests/framework"
	"github.com/fleetops/driver-contract-tests/harness"
	"github.com/fleetops/driver-contract-tests/logging"
	"github.com/fleetops/driver-contract-tests/servicedef"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

const teardownTimeout = 15 * time.Second

// Capabilities records which optional channels were reachable at startup.
// Tests that need an unavailable channel are skipped, never silently
// passed.
type Capabilities struct {
	Bus      bool
	GRPC     bool
	Database bool
}

// SuiteEnv is the shared, immutable environment for a test run: resolved
// settings, the clients for each channel, and the fixture factory. It is
// constructed once in main.
type SuiteEnv struct {
	Settings     config.Settings
	API          *apiclient.Client
	Bus          *nats.Conn
	GRPCConn     *grpc.ClientConn
	DB           *sqlx.DB
	Factory      *fixtures.Factory
	Capabilities Capabilities

	// TeardownLog receives resource cleanup failures, which are reported
	// at teardown but never change a test's outcome.
	TeardownLog logging.Logger
}

// T represents a test or subtest in the contract suite.
//
// It implements the same basic surface as Go's testing.T, so the assert
// and require packages work against it, but it runs outside the Go test
// runner. Each T owns a per-test scope: a resource ledger drained exactly
// once when the scope ends, a session manager whose sessions are always
// closed, and the bus subscriptions opened during the test.
type T struct {
	context       *framework.Context
	env           *SuiteEnv
	api           *apiclient.Client
	ledger        *harness.ResourceLedger
	sessions      *harness.SessionManager
	subscriptions []*harness.Subscription
}

func newTestScope(c *framework.Context, env *SuiteEnv) *T {
	return &T{
		context:  c,
		env:      env,
		api:      env.API.WithLogger(c.DebugLogger()),
		ledger:   harness.NewResourceLedger(c.DebugLogger()),
		sessions: harness.NewSessionManager(c.DebugLogger()),
	}
}

// close drains the scope: subscriptions first, then socket sessions, then
// the resource ledger. It runs on both normal and failed exits. Cleanup
// failures are reported but never raised over the test's own result.
func (t *T) close() {
	for _, sub := range t.subscriptions {
		sub.Close()
	}
	t.sessions.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := t.ledger.ReleaseAll(ctx); err != nil {
		t.env.TeardownLog.Printf("[%s] %s", t.context.ID(), err)
		t.purgeLeakedDrivers(ctx, err)
	}
}

// purgeLeakedDrivers is the fallback for drivers the API deletion path
// could not remove: when the database is reachable, their rows are purged
// directly so they cannot pollute later runs.
func (t *T) purgeLeakedDrivers(ctx context.Context, err error) {
	var cleanupErr *harness.CleanupError
	if !errors.As(err, &cleanupErr) || t.env.DB == nil {
		return
	}
	var ids []string
	for _, f := range cleanupErr.Failures {
		if f.Kind == "driver" {
			ids = append(ids, f.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	cleaner := harness.NewDatabaseCleaner(t.env.DB, t.env.TeardownLog)
	if err := cleaner.PurgeDrivers(ctx, ids); err != nil {
		t.env.TeardownLog.Printf("[%s] database purge fallback failed: %s", t.context.ID(), err)
	}
}

// Errorf records a failure without stopping the test. Called by assert.
func (t *T) Errorf(format string, args ...interface{}) {
	t.context.Errorf(format, args...)
}

// FailNow aborts the test immediately. Called by require.
func (t *T) FailNow() {
	t.context.FailNow()
}

// Run runs a subtest with its own scope; the subtest's resources are
// released when it finishes, independent of the parent.
func (t *T) Run(name string, action func(*T)) {
	var t1 *T
	t.context.Run(name, func(c *framework.Context) {
		t1 = newTestScope(c, t.env)
		action(t1)
	})
	if t1 != nil {
		t1.close()
	}
}

// Debug logs debug output shown for failed tests (or all tests under
// -debug-all).
func (t *T) Debug(format string, args ...interface{}) {
	t.context.Debug(format, args...)
}

// SkipWithReason marks the test as skipped.
func (t *T) SkipWithReason(reason string) {
	t.context.SkipWithReason(reason)
}

// RequireBus skips the test when the message bus was not reachable at
// startup.
func (t *T) RequireBus() {
	if !t.env.Capabilities.Bus {
		t.context.SkipWithReason("message bus is not available")
	}
}

// RequireGRPC skips the test when the gRPC channel was not reachable at
// startup.
func (t *T) RequireGRPC() {
	if !t.env.Capabilities.GRPC {
		t.context.SkipWithReason("gRPC channel is not available")
	}
}

// Settle waits out the configured settle window before asserting an
// asynchronous effect.
func (t *T) Settle() {
	harness.Settle(context.Background(), t.env.Settings.SettleWindow)
}

// MustCreateDriver registers a fresh driver through the REST API, fails
// the test unless the service answers 201 with an id, and tracks the
// driver in the scope's ledger so it is deleted when the scope ends.
func (t *T) MustCreateDriver(overrides fixtures.Overrides) (map[string]interface{}, string) {
	payload := t.env.Factory.BuildDriver(overrides)
	outcome, id, err := t.api.CreateDriver(context.Background(), payload)
	require.NoError(t, err)
	require.Equalf(t, http.StatusCreated, outcome.Status, "driver creation rejected: %s", outcome)
	require.NotEmpty(t, id, "created driver response carried no id")

	t.TrackDriver(id)

	var created map[string]interface{}
	require.NoError(t, outcome.DecodeJSON(&created))
	return created, id
}

// TrackDriver registers an already-created driver for deletion at scope
// exit. Deletion is verified with a follow-up not-found check, and a 404
// from the delete itself counts as success since the resource is gone.
func (t *T) TrackDriver(driverID string) {
	if !t.env.Settings.CleanupAfterTest {
		t.Debug("leaving driver %s in place (cleanup disabled)", driverID)
		return
	}
	api := t.api
	t.ledger.Track(driverID, "driver", func(ctx context.Context) error {
		outcome, err := api.DeleteDriver(ctx, driverID)
		if err != nil {
			return err
		}
		if outcome.Status != http.StatusNoContent && outcome.Status != http.StatusNotFound {
			return errUnexpectedOutcome("DELETE", outcome)
		}
		check, err := api.GetDriver(ctx, driverID)
		if err != nil {
			return err
		}
		if check.Status != http.StatusNotFound {
			return errUnexpectedOutcome("post-delete GET", check)
		}
		return nil
	})
}

// Subscribe opens a bus subscription on the given subjects and flushes it,
// so it is guaranteed to observe events caused by anything the test does
// afterwards. The subscription is closed when the scope ends.
func (t *T) Subscribe(subjects ...string) *harness.Subscription {
	t.RequireBus()
	correlator := harness.NewEventCorrelator(harness.NATSBus{Conn: t.env.Bus}, t.context.DebugLogger())
	sub, err := correlator.Subscribe(subjects...)
	require.NoError(t, err)
	t.subscriptions = append(t.subscriptions, sub)
	return sub
}

// BusTrigger returns a publish trigger for exercising the service's
// consumption side.
func (t *T) BusTrigger() *harness.BusTrigger {
	t.RequireBus()
	return harness.NewBusTrigger(t.env.Bus, t.context.DebugLogger())
}

// RequireEvent waits for a qualifying event and fails the test if none
// arrives within the collection timeout. Use for events the contract
// mandates.
func (t *T) RequireEvent(sub *harness.Subscription, pred harness.EventPredicate) harness.ObservedEvent {
	events := sub.Collect(pred, t.env.Settings.CollectTimeout)
	require.NotEmpty(t, events, "expected event was not observed within %s", t.env.Settings.CollectTimeout)
	return events[0]
}

// OptionalEvent waits for a qualifying event but treats absence as an
// acceptable result, returning ok=false. Use for consumption-side effects
// the service contract leaves unconfirmed.
func (t *T) OptionalEvent(sub *harness.Subscription, pred harness.EventPredicate) (harness.ObservedEvent, bool) {
	events := sub.Collect(pred, t.env.Settings.CollectTimeout)
	if len(events) == 0 {
		t.Debug("optional event not observed within %s", t.env.Settings.CollectTimeout)
		return harness.ObservedEvent{}, false
	}
	return events[0], true
}

// RequireNoEvent drains the full settle window and fails the test if any
// qualifying event arrived. Use to prove an action is silent.
func (t *T) RequireNoEvent(sub *harness.Subscription, pred harness.EventPredicate) {
	events := sub.CollectAll(pred, t.env.Settings.SettleWindow)
	require.Emptyf(t, events, "expected no qualifying events but observed %d", len(events))
}

// OpenTrackingSocket opens a session on the location tracking socket for a
// driver. The session is closed when the scope ends.
func (t *T) OpenTrackingSocket(driverID string) (*harness.SocketSession, error) {
	return t.sessions.Open(t.env.Settings.SocketURL(servicedef.TrackingSocketPath(driverID)))
}

// OpenOrdersSocket opens a session on the order notification socket for a
// driver.
func (t *T) OpenOrdersSocket(driverID string) (*harness.SocketSession, error) {
	return t.sessions.Open(t.env.Settings.SocketURL(servicedef.OrdersSocketPath(driverID)))
}

// Sessions exposes the scope's session manager for stress scenarios.
func (t *T) Sessions() *harness.SessionManager {
	return t.sessions
}

type unexpectedOutcomeError struct {
	op      string
	outcome apiclient.Outcome
}

func (e unexpectedOutcomeError) Error() string {
	return e.op + " returned unexpected " + e.outcome.String()
}

func errUnexpectedOutcome(op string, outcome apiclient.Outcome) error {
	return unexpectedOutcomeError{op: op, outcome: outcome}
}
