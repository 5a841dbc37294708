package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fleetops/driver-contract-tests/apiclient"
	"github.com/fleetops/driver-contract-tests/config"
	"github.com/fleetops/driver-contract-tests/contracttests"
	"github.com/fleetops/driver-contract-tests/fixtures"
	"github.com/fleetops/driver-contract-tests/framework"
	"github.com/fleetops/driver-contract-tests/harness"
	"github.com/fleetops/driver-contract-tests/logging"
	"github.com/fleetops/driver-contract-tests/servicedef"

	"github.com/nats-io/nats.go"
)

func main() {
	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	settings, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err)
		os.Exit(1)
	}
	if params.skipCleanup {
		settings.CleanupAfterTest = false
	}

	mainLogger := logging.Logger(logging.NullLogger())
	if params.debugAll {
		mainLogger = stdLogger{log.New(os.Stdout, "", log.LstdFlags)}
	}

	env, err := buildEnvironment(settings, mainLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup error: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Running test suite")
	testLogger := framework.ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	results := contracttests.RunTestSuite(env, params.filters.AsFilter, testLogger)

	fmt.Println()
	framework.PrintResults(results)
	if !results.OK() {
		fmt.Printf("\nTo rerun the failed tests:\n  %s\n", rerunCommand(os.Args, results.Failures))
		os.Exit(1)
	}
}

// buildEnvironment gates on readiness and probes each optional channel
// once. The HTTP surface is mandatory; the bus, gRPC channel, and database
// become capabilities so dependent tests are skipped rather than failed
// when one of them is unreachable.
func buildEnvironment(settings config.Settings, logger logging.Logger) (*contracttests.SuiteEnv, error) {
	ctx := context.Background()
	env := &contracttests.SuiteEnv{
		Settings:    settings,
		API:         apiclient.New(settings.HTTPBaseURL(), logger),
		Factory:     fixtures.NewFactory(time.Now().UnixNano()),
		TeardownLog: stdLogger{log.New(os.Stderr, "CLEANUP ", log.LstdFlags)},
	}

	fmt.Printf("Waiting for the driver service at %s\n", settings.HTTPBaseURL())
	healthURL := settings.HTTPBaseURL() + servicedef.HealthPath
	if err := harness.WaitReady(ctx, logger, "driver service HTTP API",
		settings.StartupTimeout, settings.ProbeInterval,
		harness.HTTPProbe(nil, healthURL)); err != nil {
		return nil, err
	}

	if nc, err := nats.Connect(settings.BusURL,
		nats.Name("driver-contract-tests"),
		nats.Timeout(5*time.Second)); err == nil {
		if err := harness.WaitReady(ctx, logger, "message bus",
			settings.StartupTimeout, settings.ProbeInterval, harness.BusProbe(nc)); err == nil {
			env.Bus = nc
			env.Capabilities.Bus = true
		} else {
			nc.Close()
			fmt.Printf("Bus tests will be skipped: %s\n", err)
		}
	} else {
		fmt.Printf("Bus tests will be skipped: %s\n", err)
	}

	if conn, err := apiclient.DialGRPC(ctx, settings.GRPCAddress(), settings.StartupTimeout); err == nil {
		env.GRPCConn = conn
		env.Capabilities.GRPC = true
	} else {
		fmt.Printf("gRPC tests will be skipped: %s\n", err)
	}

	if db, err := harness.OpenDatabase(settings.DatabaseDSN(), settings.Workers); err == nil {
		if err := harness.WaitReady(ctx, logger, "database",
			settings.StartupTimeout, settings.ProbeInterval, harness.DatabaseProbe(db)); err == nil {
			env.DB = db
			env.Capabilities.Database = true
			if settings.CleanupAfterTest {
				cleaner := harness.NewDatabaseCleaner(db, logger)
				if err := cleaner.PurgeStaleTestData(ctx, fixtures.EmailDomain); err != nil {
					fmt.Printf("Stale data purge failed: %s\n", err)
				}
			}
		} else {
			_ = db.Close()
			fmt.Printf("Database access disabled: %s\n", err)
		}
	} else {
		fmt.Printf("Database access disabled: %s\n", err)
	}

	return env, nil
}

type stdLogger struct {
	l *log.Logger
}

func (s stdLogger) Printf(message string, args ...interface{}) {
	s.l.Printf(message, args...)
}
