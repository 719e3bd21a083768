// Package pixel converts raw imaging sample arrays into 8-bit display
// rasters. Normalize is a pure function: it never panics and signals
// layouts it cannot render with ErrNotRepresentable.
package pixel

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sort"
)

// ErrNotRepresentable indicates a sample layout that cannot be converted
// to a display raster.
var ErrNotRepresentable = errors.New("pixel layout not representable as a display raster")

// Frame is a raw sample array: a 2-D single-channel plane, or a 3-D array
// with the channel axis first (ChannelFirst) or last. Samples are stored
// pixel-major when ChannelFirst is false (r0c0ch0, r0c0ch1, ...) and
// plane-major otherwise (all of channel 0, then channel 1, ...).
type Frame struct {
	Rows         int
	Cols         int
	Channels     int
	ChannelFirst bool
	Samples      []float64
}

// Normalize maps a frame to an RGB raster.
//
// Single-channel frames are windowed to the 1st/99th percentile of their
// sample values (falling back to [min, max], widened by one when the frame
// is constant), linearly mapped into [0, 255], clipped and quantized; the
// result is inverted when inverted is true. Three-channel frames in either
// channel order are treated as already display-ready. Other channel-last
// multi-channel frames fall back to their first channel with windowing.
// Anything else returns ErrNotRepresentable.
func Normalize(f Frame, inverted bool) (*image.RGBA, error) {
	if f.Rows <= 0 || f.Cols <= 0 || f.Channels <= 0 {
		return nil, ErrNotRepresentable
	}
	if len(f.Samples) != f.Rows*f.Cols*f.Channels {
		return nil, ErrNotRepresentable
	}

	switch {
	case f.Channels == 3:
		return passthroughRGB(f), nil
	case f.Channels == 1:
		return windowed(f.Rows, f.Cols, f.Samples, 1, inverted), nil
	case !f.ChannelFirst:
		// Multi-channel in channel-last order: first channel, windowed.
		return windowed(f.Rows, f.Cols, f.Samples, f.Channels, inverted), nil
	default:
		return nil, ErrNotRepresentable
	}
}

// passthroughRGB reorders a three-channel frame to channel-last and clips
// each sample to 8 bits without windowing.
func passthroughRGB(f Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Cols, f.Rows))
	plane := f.Rows * f.Cols
	for p := 0; p < plane; p++ {
		var r, g, b float64
		if f.ChannelFirst {
			r, g, b = f.Samples[p], f.Samples[plane+p], f.Samples[2*plane+p]
		} else {
			r, g, b = f.Samples[p*3], f.Samples[p*3+1], f.Samples[p*3+2]
		}
		img.SetRGBA(p%f.Cols, p/f.Cols, color.RGBA{
			R: clip8(r),
			G: clip8(g),
			B: clip8(b),
			A: 255,
		})
	}
	return img
}

// windowed renders the first of stride interleaved channels through a
// percentile display window.
func windowed(rows, cols int, samples []float64, stride int, inverted bool) *image.RGBA {
	channel := make([]float64, rows*cols)
	for p := range channel {
		channel[p] = samples[p*stride]
	}

	lo, hi := window(channel)
	scale := 255.0 / (hi - lo)

	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for p, s := range channel {
		v := clip8((s - lo) * scale)
		if inverted {
			v = 255 - v
		}
		img.SetRGBA(p%cols, p/cols, color.RGBA{R: v, G: v, B: v, A: 255})
	}
	return img
}

// window computes the display window for a sample plane: the 1st and 99th
// percentile, or [min, max] when the percentiles are non-finite or
// degenerate, widening a constant plane by one.
func window(samples []float64) (lo, hi float64) {
	lo = percentile(samples, 1.0)
	hi = percentile(samples, 99.0)
	if isFinite(lo) && isFinite(hi) && hi > lo {
		return lo, hi
	}

	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		if !isFinite(s) {
			continue
		}
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if !isFinite(lo) || !isFinite(hi) {
		// Nothing finite at all; any window yields a uniform raster.
		return 0, 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// percentile interpolates linearly between closest ranks, matching the
// windowing behavior of common numeric libraries.
func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	low := int(math.Floor(rank))
	high := int(math.Ceil(rank))
	if low == high {
		return sorted[low]
	}
	frac := rank - float64(low)
	return sorted[low]*(1-frac) + sorted[high]*frac
}

func clip8(v float64) uint8 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
