package simplepacs

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrStudyNotFound indicates no study directory matched the UID
	ErrStudyNotFound = errors.New("study not found")

	// ErrSeriesNotFound indicates no series directory matched the UID
	ErrSeriesNotFound = errors.New("series not found")

	// ErrNoPixelData indicates an object carries no sample array
	ErrNoPixelData = errors.New("object has no pixel data")

	// ErrNoImages indicates a composer was asked to lay out an empty image list
	ErrNoImages = errors.New("no images to compose")
)

// DecodeError represents an unreadable or unsupported pixel encoding. It is
// recorded as a diagnostic line and never fails a batch.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed for %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StoreError represents a failed storage-substrate operation.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// SheetError represents a failed contact-sheet composition. It skips that
// one document and never propagates to sibling work.
type SheetError struct {
	Dest string
	Err  error
}

func (e *SheetError) Error() string {
	return fmt.Sprintf("contact sheet composition failed for %s: %v", e.Dest, e.Err)
}

func (e *SheetError) Unwrap() error {
	return e.Err
}
