package config

import (
	"errors"
	"log/slog"

	"github.com/tendant/simple-pacs/pkg/simplepacs/sheet"
)

// WithEnvironment sets the runtime environment name.
func WithEnvironment(env string) Option {
	return func(c *ServiceConfig) error {
		if env == "" {
			return errors.New("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithStorageRoot sets the root directory of the instance hierarchy.
func WithStorageRoot(root string) Option {
	return func(c *ServiceConfig) error {
		if root == "" {
			return errors.New("storage root cannot be empty")
		}
		c.StorageRoot = root
		return nil
	}
}

// WithHeader sets the header text drawn on every contact-sheet page.
func WithHeader(header string) Option {
	return func(c *ServiceConfig) error {
		c.Header = header
		return nil
	}
}

// WithStudySheets toggles study sheet regeneration on ingest.
func WithStudySheets(enabled bool) Option {
	return func(c *ServiceConfig) error {
		c.StudySheets = enabled
		return nil
	}
}

// WithGrid sets the contact-sheet grid dimensions.
func WithGrid(cols, rows int) Option {
	return func(c *ServiceConfig) error {
		if cols < 1 || rows < 1 {
			return errors.New("grid dimensions must be at least 1x1")
		}
		c.Cols = cols
		c.Rows = rows
		return nil
	}
}

// WithLayoutPreset selects a named mosaic layout for contact sheets.
func WithLayoutPreset(name string) Option {
	return func(c *ServiceConfig) error {
		c.LayoutPreset = name
		return nil
	}
}

// WithLayoutSlots sets an explicit mosaic layout, overriding any preset.
func WithLayoutSlots(slots []sheet.Rect) Option {
	return func(c *ServiceConfig) error {
		c.LayoutSlots = slots
		return nil
	}
}

// WithMemoryIndex enables the in-memory locator index.
func WithMemoryIndex() Option {
	return func(c *ServiceConfig) error {
		c.IndexType = "memory"
		c.DatabaseURL = ""
		return nil
	}
}

// WithPostgresIndex enables the persisted locator index.
func WithPostgresIndex(databaseURL string) Option {
	return func(c *ServiceConfig) error {
		if databaseURL == "" {
			return errors.New("database URL cannot be empty")
		}
		c.IndexType = "postgres"
		c.DatabaseURL = databaseURL
		return nil
	}
}

// WithLogger sets the logger handed to the service and composer.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ServiceConfig) error {
		c.Logger = logger
		return nil
	}
}
