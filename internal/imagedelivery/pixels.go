package imagedelivery

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// decodedFrame is the first frame's pixel values, widened to float64 so the
// windowing math in window.go doesn't need to care whether the stored
// samples were 8-bit or 16-bit, signed or unsigned.
type decodedFrame struct {
	Values []float64
	Rows   int
	Cols   int
}

// decodeFirstFrame reads the dataset's first pixel-data frame into a
// decodedFrame. Multi-frame instances are not part of this rendering
// pipeline's scope; only frame 0 is ever rendered.
func decodeFirstFrame(ds dicom.Dataset, rows, cols int) (*decodedFrame, error) {
	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("imagedelivery: dataset has no PixelData element: %w", err)
	}

	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, fmt.Errorf("imagedelivery: PixelData element did not decode to any frames")
	}

	f := info.Frames[0]
	if f.Encapsulated {
		return nil, fmt.Errorf("imagedelivery: encapsulated (compressed) pixel data is not supported by this renderer")
	}

	values, err := nativeFrameValues(f.NativeData)
	if err != nil {
		return nil, err
	}

	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("imagedelivery: dataset is missing Rows/Columns")
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("imagedelivery: pixel count %d does not match Rows*Columns %d", len(values), rows*cols)
	}

	return &decodedFrame{Values: values, Rows: rows, Cols: cols}, nil
}

// nativeFrameValues widens a native (uncompressed) frame's raw samples to
// float64 regardless of the concrete sample type the transfer syntax and
// pixel representation produced.
func nativeFrameValues(nd any) ([]float64, error) {
	switch f := nd.(type) {
	case *frame.NativeFrame[uint16]:
		return widen(f.RawData), nil
	case *frame.NativeFrame[int16]:
		return widen(f.RawData), nil
	case *frame.NativeFrame[uint8]:
		return widen(f.RawData), nil
	case *frame.NativeFrame[int8]:
		return widen(f.RawData), nil
	default:
		return nil, fmt.Errorf("imagedelivery: unsupported native pixel sample type %T", nd)
	}
}

type numeric interface {
	~uint8 | ~int8 | ~uint16 | ~int16
}

func widen[T numeric](raw []T) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out
}
