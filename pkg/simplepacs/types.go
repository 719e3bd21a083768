package simplepacs

import "time"

// IngestStage is the domain type for per-object ingestion lifecycle states.
type IngestStage string

// Ingest stage constants (typed). Stages always advance; a downstream
// failure is recorded on the result and never rolls an earlier stage back.
const (
	StageReceived         IngestStage = "received"
	StagePersisted        IngestStage = "persisted"
	StagePreviewAttempted IngestStage = "preview_attempted"
	StageSheetsAttempted  IngestStage = "sheets_attempted"
	StageDone             IngestStage = "done"
)

// AllPreviews requests preview generation for every stored instance.
const AllPreviews = -1

// UnknownInstanceNumber is the sort-key sentinel used when an instance
// number is absent or non-numeric. It sorts after every real instance.
const UnknownInstanceNumber = 999999

// Well-known file and directory names inside a series/study directory.
const (
	InstanceExt     = ".dcm"
	PreviewDirName  = "previews"
	SeriesSheetName = "SeriesContactSheet.pdf"
	StudySheetName  = "StudyContactSheet.pdf"
)

// IngestResult reports the outcome of one object ingestion. The store
// outcome is authoritative; preview and sheet errors are advisory and do
// not undo the stored instance.
type IngestResult struct {
	StudyUID  string
	SeriesUID string
	ObjectUID string

	SeriesDir    string
	InstancePath string

	PreviewPath string
	PreviewErr  error

	SeriesSheetPath string
	SeriesSheetErr  error

	StudySheetPath string
	StudySheetErr  error

	Stage IngestStage
}

// StudyMetadata is the descriptive snapshot derived lazily from the first
// readable instance of a study. All fields may be empty.
type StudyMetadata struct {
	PatientName      string `json:"patient_name,omitempty"`
	PatientID        string `json:"patient_id,omitempty"`
	StudyDescription string `json:"study_description,omitempty"`
	// StudyDate is humanized as DD/MM/YYYY when present.
	StudyDate string `json:"study_date,omitempty"`
}

// Empty reports whether no descriptive field was populated.
func (m StudyMetadata) Empty() bool {
	return m.PatientName == "" && m.PatientID == "" && m.StudyDescription == "" && m.StudyDate == ""
}

// merge fills empty fields of m from other, first-writer-wins.
func (m *StudyMetadata) merge(other StudyMetadata) {
	if m.PatientName == "" {
		m.PatientName = other.PatientName
	}
	if m.PatientID == "" {
		m.PatientID = other.PatientID
	}
	if m.StudyDescription == "" {
		m.StudyDescription = other.StudyDescription
	}
	if m.StudyDate == "" {
		m.StudyDate = other.StudyDate
	}
}

// StudySummary describes one study directory for listing purposes.
type StudySummary struct {
	StudyUID string
	Dir      string
	// Day is the date bucket the study directory lives under.
	Day          time.Time
	Metadata     StudyMetadata
	SeriesCount  int
	PreviewCount int
	// FirstPreview is the path of the first preview across the study's
	// series, or empty when none exist yet.
	FirstPreview string
}
