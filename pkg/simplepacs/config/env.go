package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tendant/simple-pacs/pkg/simplepacs/sheet"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
//	ENVIRONMENT       - Runtime environment (default: "development")
//	STORE_DIR         - Root directory of the instance hierarchy
//	PDF_HEADER        - Header text drawn on contact sheets
//	PDF_COLS          - Contact-sheet grid columns (default: 2)
//	PDF_ROWS          - Contact-sheet grid rows (default: 4)
//	PDF_STUDY         - Regenerate study sheets on ingest (default: true)
//	PDF_LAYOUT_PRESET - Named mosaic layout (e.g. "featured8")
//	PDF_LAYOUT_SPEC   - Explicit mosaic layout as a JSON array of
//	                    {"x","y","w","h"} rectangles; overrides the preset
//	DATABASE_URL      - Locator index: empty for none, "memory", or a
//	                    postgresql:// connection string
func WithEnv(prefix string) Option {
	return func(c *ServiceConfig) error {
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}
		if v, ok := lookupEnv(prefix, "STORE_DIR"); ok && v != "" {
			c.StorageRoot = v
		}
		if v, ok := lookupEnv(prefix, "PDF_HEADER"); ok {
			c.Header = v
		}

		if v, ok, err := parseIntEnv(prefix, "PDF_COLS"); err != nil {
			return err
		} else if ok {
			c.Cols = v
		}
		if v, ok, err := parseIntEnv(prefix, "PDF_ROWS"); err != nil {
			return err
		} else if ok {
			c.Rows = v
		}
		if v, ok, err := parseBoolEnv(prefix, "PDF_STUDY"); err != nil {
			return err
		} else if ok {
			c.StudySheets = v
		}

		if v, ok := lookupEnv(prefix, "PDF_LAYOUT_PRESET"); ok && v != "" {
			c.LayoutPreset = v
		}
		if v, ok := lookupEnv(prefix, "PDF_LAYOUT_SPEC"); ok && v != "" {
			var slots []sheet.Rect
			if err := json.Unmarshal([]byte(v), &slots); err != nil {
				return fmt.Errorf("invalid %sPDF_LAYOUT_SPEC: %w", prefix, err)
			}
			c.LayoutSlots = slots
		}

		return applyDatabaseEnv(prefix, c)
	}
}

// applyDatabaseEnv applies locator index configuration from environment
func applyDatabaseEnv(prefix string, c *ServiceConfig) error {
	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")

	switch {
	case !hasURL || dbURL == "":
		return nil
	case dbURL == "memory":
		c.IndexType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://"):
		c.IndexType = "postgres"
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
	}

	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}
