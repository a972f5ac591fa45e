package imagedelivery

import (
	"bytes"
	"image"
	"image/png"
)

// effectiveWindow resolves the (center, width) pair a render should use,
// following the override order explicit query params, named preset,
// dataset default, statistical fallback.
type effectiveWindow struct {
	Center float64
	Width  float64
}

// resolveWindow implements the override order: explicit ww/wl params beat a
// named preset, which beats the instance's own default VOI window, which
// beats a statistical min/max fallback computed from the decoded frame.
func resolveWindow(explicitWC, explicitWW *float64, presetName string, defaultWC, defaultWW *float64, frame *decodedFrame) (effectiveWindow, error) {
	if explicitWC != nil && explicitWW != nil {
		return effectiveWindow{Center: *explicitWC, Width: *explicitWW}, nil
	}

	if presetName != "" {
		p, ok := resolvePreset(presetName)
		if !ok {
			return effectiveWindow{}, errUnknownPreset
		}
		return effectiveWindow{Center: p.Center, Width: p.Width}, nil
	}

	if defaultWC != nil && defaultWW != nil {
		return effectiveWindow{Center: *defaultWC, Width: *defaultWW}, nil
	}

	return statisticalWindow(frame), nil
}

// statisticalWindow derives a full-range linear window from the decoded
// frame's own min/max when the dataset carries neither a VOI window nor the
// caller an override — the fallback spec.md names as the last resort.
func statisticalWindow(f *decodedFrame) effectiveWindow {
	if len(f.Values) == 0 {
		return effectiveWindow{Center: 0, Width: 1}
	}
	min, max := f.Values[0], f.Values[0]
	for _, v := range f.Values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	width := max - min
	if width <= 0 {
		width = 1
	}
	return effectiveWindow{Center: (min + max) / 2, Width: width}
}

// applyWindow maps stored pixel values through rescale slope/intercept and
// the effective window to 8-bit grayscale samples, honoring MONOCHROME1
// photometric inversion and the caller's invert flag. The formula matches
// the DICOM VOI LUT linear-windowing transform:
//
//	y = clamp(((v - (WC - 0.5)) / (WW - 1) + 0.5), 0, 1) * 255
func applyWindow(f *decodedFrame, rescaleSlope, rescaleIntercept float64, w effectiveWindow, photometricInterpretation string, invert bool) []byte {
	out := make([]byte, len(f.Values))
	monochrome1 := photometricInterpretation == "MONOCHROME1"

	ww := w.Width
	if ww == 0 {
		ww = 1
	}

	for i, raw := range f.Values {
		v := raw*rescaleSlope + rescaleIntercept
		y := ((v-(w.Center-0.5))/(ww-1) + 0.5)
		if y < 0 {
			y = 0
		} else if y > 1 {
			y = 1
		}
		sample := y * 255

		if monochrome1 {
			sample = 255 - sample
		}
		if invert {
			sample = 255 - sample
		}

		out[i] = byte(sample)
	}

	return out
}

// grayImage builds an *image.Gray from row-major 8-bit samples.
func grayImage(samples []byte, rows, cols int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	copy(img.Pix, samples)
	return img
}

// encodePNG encodes an image deterministically: same pixels always produce
// the same bytes, which is what makes the render cache's content-addressed
// keys valid.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
