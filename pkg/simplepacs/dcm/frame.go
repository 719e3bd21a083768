package dcm

import (
	"image"

	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/tendant/simple-pacs/pkg/simplepacs/pixel"
)

// frameFromNative converts a native DICOM frame to a sample array. The
// library hands native data pixel-major, so the result is channel-last.
func frameFromNative(nf frame.NativeFrame) (pixel.Frame, error) {
	if nf.Rows <= 0 || nf.Cols <= 0 || len(nf.Data) == 0 || len(nf.Data[0]) == 0 {
		return pixel.Frame{}, pixel.ErrNotRepresentable
	}
	channels := len(nf.Data[0])
	samples := make([]float64, 0, len(nf.Data)*channels)
	for _, px := range nf.Data {
		if len(px) != channels {
			return pixel.Frame{}, pixel.ErrNotRepresentable
		}
		for _, s := range px {
			samples = append(samples, float64(s))
		}
	}
	return pixel.Frame{
		Rows:     nf.Rows,
		Cols:     nf.Cols,
		Channels: channels,
		Samples:  samples,
	}, nil
}

// frameFromImage converts an already-decoded raster (encapsulated frames
// come back as images) into a display-ready three-channel sample array.
func frameFromImage(img image.Image) pixel.Frame {
	bounds := img.Bounds()
	rows := bounds.Dy()
	cols := bounds.Dx()
	samples := make([]float64, 0, rows*cols*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			samples = append(samples, float64(r>>8), float64(g>>8), float64(b>>8))
		}
	}
	return pixel.Frame{
		Rows:     rows,
		Cols:     cols,
		Channels: 3,
		Samples:  samples,
	}
}
