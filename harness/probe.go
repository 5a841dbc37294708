package harness

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetops/driver-contract-tests/logging"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
)

// Probe is an idempotent, side-effect-free check of a single dependency.
// A nil return means the dependency can accept traffic.
type Probe func(ctx context.Context) error

// WaitReady polls probe at a fixed interval until it succeeds or timeout
// elapses. Probe errors before the deadline are treated as "not ready yet"
// and logged; the error from the final attempt is wrapped into the
// returned failure so the caller gets a descriptive message.
func WaitReady(ctx context.Context, logger logging.Logger, description string,
	timeout, interval time.Duration, probe Probe) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, interval*5)
		lastErr = probe(attemptCtx)
		cancel()
		if lastErr == nil {
			logger.Printf("%s is ready", description)
			return nil
		}
		logger.Printf("%s not ready yet: %s", description, lastErr)

		if !time.Now().Add(interval).Before(deadline) {
			return fmt.Errorf("%s did not become ready within %s, last error: %w",
				description, timeout, lastErr)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s readiness wait cancelled: %w", description, ctx.Err())
		case <-time.After(interval):
		}
	}
}

// HTTPProbe checks that a GET of the given URL answers with a 2xx status.
func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
		}
		return nil
	}
}

// DatabaseProbe checks that the Postgres instance answers a ping.
func DatabaseProbe(db *sqlx.DB) Probe {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// BusProbe checks that the message bus accepts and acknowledges traffic.
func BusProbe(nc *nats.Conn) Probe {
	return func(ctx context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("not connected to bus at %s", nc.ConnectedUrl())
		}
		deadline := 2 * time.Second
		if d, ok := ctx.Deadline(); ok {
			if until := time.Until(d); until < deadline {
				deadline = until
			}
		}
		return nc.FlushTimeout(deadline)
	}
}
