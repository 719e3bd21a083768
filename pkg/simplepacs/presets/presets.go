// Package presets provides ready-made service configurations for common
// use cases, eliminating boilerplate while remaining customizable.
package presets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/tendant/simple-pacs/pkg/simplepacs"
	"github.com/tendant/simple-pacs/pkg/simplepacs/config"
)

// NewDevelopment creates a service configured for local development.
//
// Features:
//   - Filesystem storage at ./dev-pacs-data (persistent across restarts)
//   - In-memory locator index (no database setup required)
//   - Default 2x4 contact-sheet grid
//
// Returns the service, a cleanup function that removes the storage
// directory, and an error if setup fails.
//
// Example:
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (simplepacs.Service, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-pacs-data",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	loaded, err := config.Load(
		config.WithEnvironment("development"),
		config.WithStorageRoot(cfg.storageDir),
		config.WithHeader(cfg.header),
		config.WithMemoryIndex(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load development config: %w", err)
	}

	svc, err := loaded.BuildService(context.Background())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.storageDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates a service configured for unit and integration tests.
//
// Features:
//   - Storage under t.TempDir() (isolated per test, removed automatically)
//   - In-memory locator index
//   - Discarded logs for cleaner test output
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    svc := presets.NewTesting(t)
//	    // Use service in test...
//	}
func NewTesting(t *testing.T, opts ...TestingOption) simplepacs.Service {
	cfg := &testConfig{
		cols: 2,
		rows: 4,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	loaded, err := config.Load(
		config.WithEnvironment("testing"),
		config.WithStorageRoot(t.TempDir()),
		config.WithGrid(cfg.cols, cfg.rows),
		config.WithMemoryIndex(),
		config.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("failed to load testing config: %v", err)
	}

	svc, err := loaded.BuildService(context.Background())
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc
}

// devConfig holds development preset configuration
type devConfig struct {
	storageDir string
	header     string
}

// testConfig holds testing preset configuration
type testConfig struct {
	cols int
	rows int
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevHeader sets the contact-sheet header for development sheets
func WithDevHeader(header string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.header = header
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestGrid sets the contact-sheet grid used in tests
func WithTestGrid(cols, rows int) TestingOption {
	return func(cfg *testConfig) {
		cfg.cols = cols
		cfg.rows = rows
	}
}
