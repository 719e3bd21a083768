package simplepacs

import (
	"context"
	"image"
	"time"

	"github.com/tendant/simple-pacs/pkg/simplepacs/pixel"
)

// ImagingObject is a decoded imaging object handed in by the protocol/codec
// layer. Implementations expose identifying tags, a pixel-presence test and
// the raw sample array; they never perform I/O of their own.
type ImagingObject interface {
	StudyUID() string
	SeriesUID() string
	ObjectUID() string

	// InstanceNumber returns the ordinal instance number; ok is false when
	// the tag is absent or non-numeric.
	InstanceNumber() (n int, ok bool)

	// EffectiveDate returns the first populated date-like field on the
	// object (study, series, acquisition, then content date); ok is false
	// when none parse.
	EffectiveDate() (t time.Time, ok bool)

	// Inverted reports inverted display polarity (MONOCHROME1).
	Inverted() bool

	HasPixelData() bool

	// Frame extracts the first frame's sample array. It returns an error
	// for missing pixel data or an undecodable encoding.
	Frame() (pixel.Frame, error)

	// Metadata returns the descriptive fields carried by this object.
	Metadata() StudyMetadata

	// Encoded returns the object's encoded form for persistence.
	Encoded() []byte
}

// Decoder reads stored instances back into imaging objects.
type Decoder interface {
	// Decode performs a full, tolerant decode of the instance at path.
	Decode(path string) (ImagingObject, error)

	// DecodeHeader decodes identifying tags only, skipping pixel data.
	DecodeHeader(path string) (ImagingObject, error)
}

// Composer assembles contact-sheet documents. Writes to dest must be
// atomic; concurrent writers resolve to last-writer-wins.
type Composer interface {
	// Compose lays the images out into a paginated document at dest.
	Compose(imagePaths []string, dest, header, subtitle string) error

	// ComposeDiagnostic writes a text listing of diagnostic lines so that
	// callers always receive some valid artifact.
	ComposeDiagnostic(dest, header string, lines []string) error
}

// Store is the storage substrate for the hierarchy: directory layout,
// listing, atomic writes, modification-time lookup and per-directory
// serialization.
type Store interface {
	Root() string

	// DayDir returns the date bucket directory for t (created or not).
	DayDir(t time.Time) string

	// SeriesDir returns root/YYYY/MM/DD/studyUID/seriesUID for the given
	// placement date.
	SeriesDir(t time.Time, studyUID, seriesUID string) string

	// SaveInstance persists the encoded object under seriesDir atomically
	// and returns the instance path.
	SaveInstance(ctx context.Context, seriesDir, objectUID string, data []byte) (string, error)

	// ListInstances lists stored instance files in filename order.
	ListInstances(seriesDir string) ([]string, error)

	// ListPreviews lists preview files in filename order (sort key then
	// disambiguator).
	ListPreviews(seriesDir string) ([]string, error)

	// SavePreview persists a derived preview raster, atomically allocating
	// the next free disambiguator for sortKey so concurrent writers never
	// collide.
	SavePreview(ctx context.Context, seriesDir string, sortKey int, img image.Image) (string, error)

	ListStudyDirs(dayDir string) ([]string, error)
	ListSeriesDirs(studyDir string) ([]string, error)

	// LocateStudy scans all date buckets for studyUID and returns the
	// match with the latest modification time, or ErrStudyNotFound.
	LocateStudy(studyUID string) (string, error)

	// LocateSeries scans all studies in all date buckets for seriesUID and
	// returns the match with the latest modification time, or
	// ErrSeriesNotFound.
	LocateSeries(seriesUID string) (string, error)

	// Lock serializes ensure-and-generate work on dir; the returned
	// function releases the lock.
	Lock(dir string) (unlock func())
}

// LocatorIndex is an optional persisted UID-to-directory index consulted
// ahead of the filesystem scan. It is advisory: entries are verified
// against the filesystem and stale misses fall back to scanning.
type LocatorIndex interface {
	RecordStudy(ctx context.Context, studyUID, dir string) error
	RecordSeries(ctx context.Context, seriesUID, dir string) error

	// LookupStudy returns the indexed directory or ErrStudyNotFound.
	LookupStudy(ctx context.Context, studyUID string) (string, error)

	// LookupSeries returns the indexed directory or ErrSeriesNotFound.
	LookupSeries(ctx context.Context, seriesUID string) (string, error)
}
