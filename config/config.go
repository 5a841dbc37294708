// Package config resolves the harness configuration from the environment.
// The resulting Settings value is immutable: it is built once in main and
// passed to every component that needs it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EndpointKind identifies which channel a ServiceEndpoint belongs to.
type EndpointKind string

const (
	EndpointHTTP   EndpointKind = "HTTP"
	EndpointGRPC   EndpointKind = "GRPC"
	EndpointBus    EndpointKind = "BUS"
	EndpointSocket EndpointKind = "SOCKET"
)

// ServiceEndpoint is a resolved address for one channel of the service
// under test.
type ServiceEndpoint struct {
	Kind    EndpointKind
	Address string
}

// Settings holds everything the harness reads from the environment. All
// fields have defaults matching a local docker-compose deployment of the
// driver service.
type Settings struct {
	ServiceHost string
	HTTPPort    int
	GRPCPort    int

	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string

	BusURL string

	// StartupTimeout bounds the initial readiness wait for each dependency.
	StartupTimeout time.Duration
	// ProbeInterval is the fixed polling interval for readiness probes.
	ProbeInterval time.Duration
	// SettleWindow is the default bounded wait for an asynchronous effect
	// of an action to surface on another channel.
	SettleWindow time.Duration
	// CollectTimeout is the default deadline for event collection.
	CollectTimeout time.Duration

	// Workers sizes the suite's concurrency: the database connection pool
	// and the session count in concurrency tests.
	Workers          int
	CleanupAfterTest bool
}

// FromEnv reads Settings from environment variables, falling back to
// defaults for anything unset. Malformed numeric or boolean values are
// reported rather than silently defaulted.
func FromEnv() (Settings, error) {
	s := Settings{
		ServiceHost:      envString("SERVICE_HOST", "localhost"),
		DatabaseHost:     envString("TEST_DB_HOST", "localhost"),
		DatabaseUser:     envString("TEST_DB_USER", "test_user"),
		DatabasePassword: envString("TEST_DB_PASSWORD", "test_password"),
		DatabaseName:     envString("TEST_DB_NAME", "driver_service_test"),
		BusURL:           envString("NATS_URL", "nats://localhost:4222"),
	}

	var err error
	if s.HTTPPort, err = envInt("SERVICE_HTTP_PORT", 8001); err != nil {
		return Settings{}, err
	}
	if s.GRPCPort, err = envInt("SERVICE_GRPC_PORT", 9001); err != nil {
		return Settings{}, err
	}
	if s.DatabasePort, err = envInt("TEST_DB_PORT", 5433); err != nil {
		return Settings{}, err
	}
	if s.Workers, err = envInt("TEST_WORKERS", 4); err != nil {
		return Settings{}, err
	}
	timeoutSec, err := envInt("TEST_TIMEOUT", 30)
	if err != nil {
		return Settings{}, err
	}
	s.StartupTimeout = time.Duration(timeoutSec) * time.Second
	s.ProbeInterval = time.Second
	s.SettleWindow = 2 * time.Second
	s.CollectTimeout = 5 * time.Second
	if s.CleanupAfterTest, err = envBool("CLEANUP_AFTER_TEST", true); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// HTTPBaseURL is the base URL of the service's REST surface.
func (s Settings) HTTPBaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.ServiceHost, s.HTTPPort)
}

// GRPCAddress is the host:port of the service's gRPC surface.
func (s Settings) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", s.ServiceHost, s.GRPCPort)
}

// SocketURL builds a ws:// URL for the given socket path. The WebSocket
// listener shares the HTTP port.
func (s Settings) SocketURL(path string) string {
	return fmt.Sprintf("ws://%s:%d%s", s.ServiceHost, s.HTTPPort, path)
}

// DatabaseDSN is the Postgres connection string used only for readiness
// probing and out-of-band cleanup.
func (s Settings) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		s.DatabaseHost, s.DatabasePort, s.DatabaseUser, s.DatabasePassword, s.DatabaseName)
}

// Endpoints returns the resolved endpoint set, one per channel.
func (s Settings) Endpoints() []ServiceEndpoint {
	return []ServiceEndpoint{
		{Kind: EndpointHTTP, Address: s.HTTPBaseURL()},
		{Kind: EndpointGRPC, Address: s.GRPCAddress()},
		{Kind: EndpointBus, Address: s.BusURL},
		{Kind: EndpointSocket, Address: fmt.Sprintf("ws://%s:%d", s.ServiceHost, s.HTTPPort)},
	}
}

func envString(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

func envInt(name string, defaultValue int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s: expected integer, got %q", name, v)
	}
	return n, nil
}

func envBool(name string, defaultValue bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("environment variable %s: expected boolean, got %q", name, v)
	}
	return b, nil
}
