package simplepacs

import "context"

// Service defines the main interface for the simple-pacs library
type Service interface {
	// Ingest runs the per-object pipeline: persist, generate a preview,
	// regenerate the affected contact sheets. Only a persist failure is
	// returned as an error; downstream failures are recorded on the
	// result and never undo the store.
	Ingest(ctx context.Context, obj ImagingObject) (*IngestResult, error)

	// EnsurePreviews guarantees up to limit previews exist for the series
	// directory and returns their ordered paths plus diagnostic lines for
	// instances that could not be rendered. limit 0 returns an empty list
	// with zero side effects; AllPreviews targets every stored instance.
	EnsurePreviews(ctx context.Context, seriesDir string, limit int) (previews []string, notes []string, err error)

	// ComposeSeriesSheet regenerates the series contact sheet from ensured
	// previews (generating missing ones) and returns its path.
	ComposeSeriesSheet(ctx context.Context, seriesDir string) (string, error)

	// ComposeStudySheet regenerates the study contact sheet with one
	// preview per series (generating a first preview per series if
	// missing) and returns its path.
	ComposeStudySheet(ctx context.Context, studyDir string) (string, error)

	// LocateStudy resolves a study UID to its directory, preferring the
	// most recently modified match when duplicates exist across dates.
	LocateStudy(ctx context.Context, studyUID string) (string, error)

	// LocateSeries resolves a series UID to its directory with the same
	// recency heuristic.
	LocateSeries(ctx context.Context, seriesUID string) (string, error)

	// StudyMetadata derives the descriptive snapshot from the first
	// readable instance across the study's series. An all-empty snapshot
	// is returned without error when nothing is readable.
	StudyMetadata(ctx context.Context, studyDir string) (StudyMetadata, error)

	// ListRecentStudies summarizes studies stored in the last n day
	// buckets, newest bucket first.
	ListRecentStudies(ctx context.Context, days int) ([]StudySummary, error)
}
