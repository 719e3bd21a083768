package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-pacs/pkg/simplepacs"
	"github.com/tendant/simple-pacs/pkg/simplepacs/dcm"
	indexmemory "github.com/tendant/simple-pacs/pkg/simplepacs/index/memory"
	indexpg "github.com/tendant/simple-pacs/pkg/simplepacs/index/postgres"
	"github.com/tendant/simple-pacs/pkg/simplepacs/sheet"
	fsstore "github.com/tendant/simple-pacs/pkg/simplepacs/store/fs"
)

// Option applies configuration to a ServiceConfig instance.
type Option func(*ServiceConfig) error

// Load constructs a ServiceConfig by applying the supplied options on top
// of library defaults.
func Load(opts ...Option) (*ServiceConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServiceConfig {
	return ServiceConfig{
		Environment: "development",
		StorageRoot: "./pacs-data",
		Cols:        2,
		Rows:        4,
		StudySheets: true,
		IndexType:   "none",
	}
}

// ServiceConfig represents configuration for the simple-pacs service
type ServiceConfig struct {
	Environment string // development, production, testing

	// Storage configuration
	StorageRoot string

	// Contact-sheet configuration
	Header       string
	StudySheets  bool
	Cols         int
	Rows         int
	LayoutPreset string
	LayoutSlots  []sheet.Rect

	// Locator index configuration
	IndexType   string // "none", "memory", "postgres"
	DatabaseURL string

	Logger *slog.Logger
}

// Validate validates the service configuration
func (c *ServiceConfig) Validate() error {
	if c.StorageRoot == "" {
		return errors.New("storage root is required")
	}
	if c.Cols < 1 || c.Rows < 1 {
		return errors.New("sheet grid must have at least one column and one row")
	}
	if c.LayoutPreset != "" && len(c.LayoutSlots) == 0 {
		if _, ok := sheet.Preset(c.LayoutPreset); !ok {
			return fmt.Errorf("unknown layout preset: %s", c.LayoutPreset)
		}
	}

	switch c.IndexType {
	case "none", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return fmt.Errorf("index_type must be 'none', 'memory' or 'postgres', got %q", c.IndexType)
	}

	return nil
}

// BuildService creates a Service instance from the configuration
func (c *ServiceConfig) BuildService(ctx context.Context) (simplepacs.Service, error) {
	store, err := fsstore.New(fsstore.Config{Root: c.StorageRoot})
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}

	composer, err := sheet.NewComposer(sheet.Config{
		Cols:   c.Cols,
		Rows:   c.Rows,
		Preset: c.LayoutPreset,
		Slots:  c.LayoutSlots,
		Logger: c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build composer: %w", err)
	}

	options := []simplepacs.Option{
		simplepacs.WithStore(store),
		simplepacs.WithDecoder(dcm.Decoder{}),
		simplepacs.WithComposer(composer),
		simplepacs.WithHeader(c.Header),
		simplepacs.WithStudySheets(c.StudySheets),
	}
	if c.Logger != nil {
		options = append(options, simplepacs.WithLogger(c.Logger))
	}

	index, err := c.buildIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build locator index: %w", err)
	}
	if index != nil {
		options = append(options, simplepacs.WithLocatorIndex(index))
	}

	return simplepacs.New(options...)
}

// buildIndex creates a LocatorIndex based on the configuration; nil means
// the service runs on filesystem scans alone.
func (c *ServiceConfig) buildIndex(ctx context.Context) (simplepacs.LocatorIndex, error) {
	switch c.IndexType {
	case "none":
		return nil, nil
	case "memory":
		return indexmemory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		idx := indexpg.NewWithPool(pool)
		if err := idx.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported index type: %s", c.IndexType)
	}
}
