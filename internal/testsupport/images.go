package testsupport

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

// WriteIntraoralPNG writes a synthetic photo with the color signature of an
// intraoral shot: saturated pink-red tissue alternating with muted tooth
// tones, which gives high red dominance, brightness, and channel variance.
func WriteIntraoralPNG(t testing.TB, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.RGBA{R: 230, G: 50, B: 60, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 150, G: 120, B: 110, A: 255})
			}
		}
	}
	writePNG(t, path, img)
}

// WriteNearGrayPNG writes an image whose channels are identical, as a
// radiograph export would be. A vertical gradient keeps the variance
// non-degenerate without introducing any color.
func WriteNearGrayPNG(t testing.TB, path string, width, height int) {
	t.Helper()
	writePNG(t, path, nearGrayImage(width, height))
}

// WriteNearGrayBMP is WriteNearGrayPNG with a BMP container.
func WriteNearGrayBMP(t testing.TB, path string, width, height int) {
	t.Helper()
	f := createFile(t, path)
	defer f.Close()
	if err := bmp.Encode(f, nearGrayImage(width, height)); err != nil {
		t.Fatalf("encode bmp %s: %v", path, err)
	}
}

func nearGrayImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		v := uint8(40 + (180*y)/max(height, 1))
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func writePNG(t testing.TB, path string, img image.Image) {
	t.Helper()
	f := createFile(t, path)
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png %s: %v", path, err)
	}
}

func createFile(t testing.TB, path string) *os.File {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	return f
}
