package imagedelivery

import (
	"image"

	"golang.org/x/image/draw"
)

const thumbnailLongEdge = 256

// downsampleThumbnail scales an 8-bit grayscale image so its longer edge is
// thumbnailLongEdge pixels, preserving aspect ratio, using bilinear
// interpolation.
func downsampleThumbnail(src *image.Gray) *image.Gray {
	srcW, srcH := src.Bounds().Dx(), src.Bounds().Dy()
	if srcW <= 0 || srcH <= 0 {
		return src
	}

	var dstW, dstH int
	if srcW >= srcH {
		dstW = thumbnailLongEdge
		dstH = int(float64(srcH) * float64(thumbnailLongEdge) / float64(srcW))
	} else {
		dstH = thumbnailLongEdge
		dstW = int(float64(srcW) * float64(thumbnailLongEdge) / float64(srcH))
	}
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewGray(image.Rect(0, 0, dstW, dstH))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
