// Package dcm adapts DICOM datasets (via suyashkumar/dicom) to the
// simplepacs.ImagingObject interface: identifying-tag lookups, a
// pixel-presence test and first-frame sample extraction.
package dcm

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/tendant/simple-pacs/pkg/simplepacs"
	"github.com/tendant/simple-pacs/pkg/simplepacs/pixel"
)

// Object is a decoded DICOM object. It retains the encoded bytes it was
// parsed from so ingestion can persist the object verbatim.
type Object struct {
	ds  dicom.Dataset
	raw []byte
}

// FromBytes parses a complete DICOM object from its encoded form.
func FromBytes(data []byte) (*Object, error) {
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	return &Object{ds: ds, raw: data}, nil
}

// FromReader reads and parses a complete DICOM object.
func FromReader(r io.Reader) (*Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return FromBytes(data)
}

// ReadFile parses the instance at path, including pixel data.
func ReadFile(path string) (*Object, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &Object{ds: ds}, nil
}

// ReadFileHeader parses identifying tags only, skipping pixel data.
func ReadFileHeader(path string) (*Object, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &Object{ds: ds}, nil
}

// FromDataset wraps an already-parsed dataset, e.g. one assembled in tests
// or received from a protocol adapter that keeps the encoded form itself.
func FromDataset(ds dicom.Dataset, raw []byte) *Object {
	return &Object{ds: ds, raw: raw}
}

func (o *Object) StudyUID() string  { return o.tagString(tag.StudyInstanceUID) }
func (o *Object) SeriesUID() string { return o.tagString(tag.SeriesInstanceUID) }
func (o *Object) ObjectUID() string { return o.tagString(tag.SOPInstanceUID) }

// InstanceNumber parses the ordinal instance number; ok is false when the
// tag is absent or non-numeric.
func (o *Object) InstanceNumber() (int, bool) {
	v := o.tagString(tag.InstanceNumber)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// EffectiveDate returns the first populated date-like field, in tag
// precedence order: study, series, acquisition, content date.
func (o *Object) EffectiveDate() (time.Time, bool) {
	for _, t := range []tag.Tag{tag.StudyDate, tag.SeriesDate, tag.AcquisitionDate, tag.ContentDate} {
		if d, ok := parseDA(o.tagString(t)); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// Inverted reports MONOCHROME1 display polarity.
func (o *Object) Inverted() bool {
	return strings.EqualFold(o.tagString(tag.PhotometricInterpretation), "MONOCHROME1")
}

// HasPixelData reports whether the object carries a pixel data element.
func (o *Object) HasPixelData() bool {
	info, err := o.pixelDataInfo()
	if err != nil {
		return false
	}
	return info.IntentionallySkipped || len(info.Frames) > 0
}

// Frame extracts the first frame's sample array. Encapsulated frames are
// decoded through the image registry; unsupported transfer syntaxes
// surface as decode errors.
func (o *Object) Frame() (pixel.Frame, error) {
	info, err := o.pixelDataInfo()
	if err != nil {
		return pixel.Frame{}, err
	}
	if info.IntentionallySkipped || len(info.Frames) == 0 {
		return pixel.Frame{}, simplepacs.ErrNoPixelData
	}

	fr := info.Frames[0]
	if fr.Encapsulated {
		img, err := fr.GetImage()
		if err != nil {
			return pixel.Frame{}, fmt.Errorf("failed to decode encapsulated frame: %w", err)
		}
		return frameFromImage(img), nil
	}
	return frameFromNative(fr.NativeData)
}

// Metadata returns the descriptive fields carried by this object. The
// study date is humanized as DD/MM/YYYY, falling back to the series date.
func (o *Object) Metadata() simplepacs.StudyMetadata {
	meta := simplepacs.StudyMetadata{
		PatientName:      o.tagString(tag.PatientName),
		PatientID:        o.tagString(tag.PatientID),
		StudyDescription: o.tagString(tag.StudyDescription),
	}
	for _, t := range []tag.Tag{tag.StudyDate, tag.SeriesDate} {
		if d, ok := parseDA(o.tagString(t)); ok {
			meta.StudyDate = d.Format("02/01/2006")
			break
		}
	}
	return meta
}

// Encoded returns the encoded form this object was parsed from; nil for
// header-only reads.
func (o *Object) Encoded() []byte { return o.raw }

func (o *Object) pixelDataInfo() (dicom.PixelDataInfo, error) {
	e, err := o.ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return dicom.PixelDataInfo{}, simplepacs.ErrNoPixelData
	}
	info, ok := e.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return dicom.PixelDataInfo{}, fmt.Errorf("unexpected pixel data value type %T", e.Value.GetValue())
	}
	return info, nil
}

// tagString returns the first string value of t, trimmed, or "".
func (o *Object) tagString(t tag.Tag) string {
	e, err := o.ds.FindElementByTag(t)
	if err != nil || e == nil {
		return ""
	}
	if vals, ok := e.Value.GetValue().([]string); ok && len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// parseDA parses a DICOM DA value (YYYYMMDD, possibly with a suffix).
func parseDA(v string) (time.Time, bool) {
	if len(v) < 8 {
		return time.Time{}, false
	}
	v = v[:8]
	for _, r := range v {
		if r < '0' || r > '9' {
			return time.Time{}, false
		}
	}
	d, err := time.ParseInLocation("20060102", v, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
