package imagedelivery

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func TestEncodePNGIsDeterministic(t *testing.T) {
	samples := make([]byte, 64*64)
	for i := range samples {
		samples[i] = byte(i % 256)
	}
	img := grayImage(samples, 64, 64)

	first, err := encodePNG(img)
	if err != nil {
		t.Fatalf("encodePNG: %v", err)
	}
	second, err := encodePNG(img)
	if err != nil {
		t.Fatalf("encodePNG: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("encoding the same pixels twice produced different bytes")
	}
}

func TestGrayImageDecodesBackToSamePixels(t *testing.T) {
	samples := []byte{10, 20, 30, 40}
	img := grayImage(samples, 2, 2)

	encoded, err := encodePNG(img)
	if err != nil {
		t.Fatalf("encodePNG: %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	gray, ok := decoded.(*image.Gray)
	if !ok {
		t.Fatalf("decoded image is %T, want *image.Gray", decoded)
	}
	for i, want := range samples {
		if gray.Pix[i] != want {
			t.Fatalf("pixel %d = %d, want %d", i, gray.Pix[i], want)
		}
	}
}

func TestDownsampleThumbnailPreservesAspectRatio(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 512, 256))
	dst := downsampleThumbnail(src)

	if dst.Bounds().Dx() != thumbnailLongEdge {
		t.Fatalf("long edge = %d, want %d", dst.Bounds().Dx(), thumbnailLongEdge)
	}
	if dst.Bounds().Dy() != thumbnailLongEdge/2 {
		t.Fatalf("short edge = %d, want %d", dst.Bounds().Dy(), thumbnailLongEdge/2)
	}
}

func TestDownsampleThumbnailTallerThanWide(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 100, 400))
	dst := downsampleThumbnail(src)

	if dst.Bounds().Dy() != thumbnailLongEdge {
		t.Fatalf("long edge = %d, want %d", dst.Bounds().Dy(), thumbnailLongEdge)
	}
	if dst.Bounds().Dx() != thumbnailLongEdge/4 {
		t.Fatalf("short edge = %d, want %d", dst.Bounds().Dx(), thumbnailLongEdge/4)
	}
}
