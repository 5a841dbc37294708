package harness

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fleetops/driver-contract-tests/logging"
)

// CleanupFunc removes one remote resource. It is called at most once.
type CleanupFunc func(ctx context.Context) error

type trackedResource struct {
	id        string
	kind      string
	createdAt time.Time
	cleanup   CleanupFunc
}

// ResourceLedger tracks the ephemeral resources created during one test
// unit and guarantees an attempt to remove every one of them when the
// unit ends. A ledger is owned by a single test scope and never shared.
type ResourceLedger struct {
	logger    logging.Logger
	resources []trackedResource
	released  bool
	lock      sync.Mutex
}

func NewResourceLedger(logger logging.Logger) *ResourceLedger {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &ResourceLedger{logger: logger}
}

// Track registers a resource that was just confirmed created. Callers must
// only track resources that actually exist remotely, so that ReleaseAll
// never tries to delete something that was never created.
func (l *ResourceLedger) Track(id, kind string, cleanup CleanupFunc) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.released {
		l.logger.Printf("ledger: ignoring %s %q tracked after release", kind, id)
		return
	}
	l.resources = append(l.resources, trackedResource{
		id:        id,
		kind:      kind,
		createdAt: time.Now(),
		cleanup:   cleanup,
	})
}

// Count returns the number of currently tracked resources.
func (l *ResourceLedger) Count() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.resources)
}

// ReleaseAll removes every tracked resource in reverse creation order, so
// resources that depend on earlier ones are deleted before their
// dependencies. A failure for one resource does not stop the others; all
// failures are aggregated into the returned CleanupError. The second and
// later calls are no-ops.
func (l *ResourceLedger) ReleaseAll(ctx context.Context) error {
	l.lock.Lock()
	if l.released {
		l.lock.Unlock()
		return nil
	}
	l.released = true
	resources := l.resources
	l.resources = nil
	l.lock.Unlock()

	var failures []ResourceFailure
	for i := len(resources) - 1; i >= 0; i-- {
		r := resources[i]
		if err := r.cleanup(ctx); err != nil {
			l.logger.Printf("ledger: failed to release %s %q: %s", r.kind, r.id, err)
			failures = append(failures, ResourceFailure{ID: r.id, Kind: r.kind, Err: err})
			continue
		}
		l.logger.Printf("ledger: released %s %q", r.kind, r.id)
	}
	if len(failures) > 0 {
		return &CleanupError{Failures: failures}
	}
	return nil
}

// ResourceFailure records one resource that could not be removed.
type ResourceFailure struct {
	ID   string
	Kind string
	Err  error
}

// CleanupError aggregates every deletion failure from a ReleaseAll pass.
// It is reported at teardown but never overrides the test's own outcome.
type CleanupError struct {
	Failures []ResourceFailure
}

func (e *CleanupError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s %q: %s", f.Kind, f.ID, f.Err))
	}
	return fmt.Sprintf("failed to release %d resource(s): %s",
		len(e.Failures), strings.Join(parts, "; "))
}
