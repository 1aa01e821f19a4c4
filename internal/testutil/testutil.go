// Package testutil provides testing utilities for integration tests.
package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/slipstream/vidgrab/internal/backend"
	"github.com/slipstream/vidgrab/internal/backend/stub"
)

// StubBackend is a running development backend with a client pointed at it.
type StubBackend struct {
	Server *httptest.Server
	Client *backend.Client
	Clock  *clockwork.FakeClock
}

// NewStubBackend starts the development backend on a loopback port. Its
// progress is driven by the returned fake clock. The server is closed when
// the test ends.
func NewStubBackend(t *testing.T, cfg stub.Config) *StubBackend {
	t.Helper()

	clock := clockwork.NewFakeClock()
	cfg.Clock = clock

	// Detached bridge calls can outlive the test, so nothing here logs to t.
	logger := zerolog.Nop()
	srv := httptest.NewServer(stub.New(cfg, logger).Handler())
	t.Cleanup(srv.Close)

	return &StubBackend{
		Server: srv,
		Client: backend.New(backend.Config{BaseURL: srv.URL}, logger),
		Clock:  clock,
	}
}

// NewTestLogger creates a test logger that outputs to t.Log. Only use it for
// components that stop logging before the test returns.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}
