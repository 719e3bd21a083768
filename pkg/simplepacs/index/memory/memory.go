// Package memory provides an in-memory locator index, used in tests and
// single-process deployments where a persisted index is not worth running.
package memory

import (
	"context"
	"sync"

	"github.com/tendant/simple-pacs/pkg/simplepacs"
)

// Index implements simplepacs.LocatorIndex using in-memory maps.
type Index struct {
	mu     sync.RWMutex
	study  map[string]string
	series map[string]string
}

// New creates a new in-memory locator index.
func New() *Index {
	return &Index{
		study:  make(map[string]string),
		series: make(map[string]string),
	}
}

func (i *Index) RecordStudy(ctx context.Context, studyUID, dir string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.study[studyUID] = dir
	return nil
}

func (i *Index) RecordSeries(ctx context.Context, seriesUID, dir string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.series[seriesUID] = dir
	return nil
}

func (i *Index) LookupStudy(ctx context.Context, studyUID string) (string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	dir, ok := i.study[studyUID]
	if !ok {
		return "", simplepacs.ErrStudyNotFound
	}
	return dir, nil
}

func (i *Index) LookupSeries(ctx context.Context, seriesUID string) (string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	dir, ok := i.series[seriesUID]
	if !ok {
		return "", simplepacs.ErrSeriesNotFound
	}
	return dir, nil
}
