package dcm

import "github.com/tendant/simple-pacs/pkg/simplepacs"

// Decoder implements simplepacs.Decoder over stored DICOM instances.
type Decoder struct{}

// Decode performs a full, tolerant decode of the instance at path.
func (Decoder) Decode(path string) (simplepacs.ImagingObject, error) {
	obj, err := ReadFile(path)
	if err != nil {
		return nil, &simplepacs.DecodeError{Path: path, Err: err}
	}
	return obj, nil
}

// DecodeHeader decodes identifying tags only, skipping pixel data.
func (Decoder) DecodeHeader(path string) (simplepacs.ImagingObject, error) {
	obj, err := ReadFileHeader(path)
	if err != nil {
		return nil, &simplepacs.DecodeError{Path: path, Err: err}
	}
	return obj, nil
}
