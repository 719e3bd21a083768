// Package simplepacs provides a reusable library for ingesting medical
// imaging objects into a durable date/study/series hierarchy, deriving
// normalized display previews from raw sample arrays, and assembling
// paginated contact-sheet documents on demand.
//
// It exposes a single Service interface that orchestrates per-object
// ingestion (persist, preview, sheet regeneration), lazy idempotent preview
// generation, contact-sheet composition, and UID-to-directory resolution.
// Implementations of the collaborating pieces are provided under
// subpackages: pixel (sample-array normalization), dcm (DICOM decoding),
// sheet (PDF composition), store/fs (filesystem hierarchy), and index
// (optional UID locator index backed by memory or Postgres).
//
// The wire-level protocol that receives objects, the web layer, print
// spooling, and archive packaging are deliberately outside this library;
// callers hand the Service an already-decoded ImagingObject.
package simplepacs
