package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pacs/pkg/simplepacs"
)

func TestRecordAndLookup(t *testing.T) {
	ctx := context.Background()
	idx := New()

	_, err := idx.LookupStudy(ctx, "S1")
	assert.ErrorIs(t, err, simplepacs.ErrStudyNotFound)
	_, err = idx.LookupSeries(ctx, "R1")
	assert.ErrorIs(t, err, simplepacs.ErrSeriesNotFound)

	require.NoError(t, idx.RecordStudy(ctx, "S1", "/data/2024/01/01/S1"))
	require.NoError(t, idx.RecordSeries(ctx, "R1", "/data/2024/01/01/S1/R1"))

	dir, err := idx.LookupStudy(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "/data/2024/01/01/S1", dir)

	dir, err = idx.LookupSeries(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "/data/2024/01/01/S1/R1", dir)
}

func TestRecordOverwrites(t *testing.T) {
	ctx := context.Background()
	idx := New()

	require.NoError(t, idx.RecordStudy(ctx, "S1", "/data/2024/01/01/S1"))
	require.NoError(t, idx.RecordStudy(ctx, "S1", "/data/2024/02/02/S1"))

	dir, err := idx.LookupStudy(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "/data/2024/02/02/S1", dir)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	idx := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = idx.RecordStudy(ctx, "S1", "/data/S1")
				_, _ = idx.LookupStudy(ctx, "S1")
			}
		}()
	}
	wg.Wait()

	dir, err := idx.LookupStudy(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "/data/S1", dir)
}
