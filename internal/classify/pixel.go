package classify

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// pixelVerdict is the outcome of pixel-content analysis.
type pixelVerdict string

const (
	verdictNone      pixelVerdict = ""
	verdictGrayscale pixelVerdict = "grayscale"
	verdictIntraoral pixelVerdict = "intraoral"
	verdictFacial    pixelVerdict = "facial"
)

// pixelStats aggregates the sampled color statistics of one image. Channel
// averages, saturation, and variance come from a coarse grid; the histogram
// difference is computed over every pixel because it is what separates a
// photographed radiograph from a real color photo, and grid sampling is too
// noisy for it.
type pixelStats struct {
	width, height int

	avgR, avgG, avgB float64
	brightness       float64
	saturation       float64
	maxVariance      float64

	// histDiff is the mean absolute cross-channel histogram difference
	// normalized by pixel count. Identical channels give 0; fully disjoint
	// channel distributions approach 2.
	histDiff float64
}

// aspectRatio is width over height.
func (s pixelStats) aspectRatio() float64 {
	if s.height == 0 {
		return 0
	}
	return float64(s.width) / float64(s.height)
}

// analyzeImage decodes the image and computes its pixel statistics.
// gridSamples is the approximate per-axis sample count.
func analyzeImage(path string, gridSamples int) (pixelStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return pixelStats{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return pixelStats{}, fmt.Errorf("decode image: %w", err)
	}
	return computeStats(img, gridSamples), nil
}

func computeStats(img image.Image, gridSamples int) pixelStats {
	bounds := img.Bounds()
	stats := pixelStats{width: bounds.Dx(), height: bounds.Dy()}
	if stats.width == 0 || stats.height == 0 {
		return stats
	}
	if gridSamples <= 0 {
		gridSamples = 20
	}

	stepX := stats.width / gridSamples
	if stepX < 1 {
		stepX = 1
	}
	stepY := stats.height / gridSamples
	if stepY < 1 {
		stepY = 1
	}

	var (
		sumR, sumG, sumB  float64
		sumSq             [3]float64
		sumBright, sumSat float64
		samples           float64
	)
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := float64(r16 >> 8)
			g := float64(g16 >> 8)
			b := float64(b16 >> 8)

			sumR += r
			sumG += g
			sumB += b
			sumSq[0] += r * r
			sumSq[1] += g * g
			sumSq[2] += b * b
			sumBright += 0.299*r + 0.587*g + 0.114*b

			maxC := max(r, max(g, b))
			minC := min(r, min(g, b))
			if maxC > 0 {
				sumSat += (maxC - minC) / maxC
			}
			samples++
		}
	}
	if samples > 0 {
		stats.avgR = sumR / samples
		stats.avgG = sumG / samples
		stats.avgB = sumB / samples
		stats.brightness = sumBright / samples
		stats.saturation = sumSat / samples
		for i, sum := range []float64{sumR, sumG, sumB} {
			mean := sum / samples
			variance := sumSq[i]/samples - mean*mean
			if variance > stats.maxVariance {
				stats.maxVariance = variance
			}
		}
	}

	stats.histDiff = histogramDifference(img)
	return stats
}

// histogramDifference builds full 256-bin per-channel histograms and returns
// the mean pairwise absolute difference normalized by pixel count.
func histogramDifference(img image.Image) float64 {
	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 0
	}

	var histR, histG, histB [256]int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			histR[r16>>8]++
			histG[g16>>8]++
			histB[b16>>8]++
		}
	}

	var diffRG, diffRB, diffGB int
	for i := 0; i < 256; i++ {
		diffRG += abs(histR[i] - histG[i])
		diffRB += abs(histR[i] - histB[i])
		diffGB += abs(histG[i] - histB[i])
	}
	return float64(diffRG+diffRB+diffGB) / 3 / float64(pixels)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Decision thresholds for the color heuristics. Kept as named constants so
// the decision table in classifyPixels reads close to the values observed
// to separate the three classes in practice.
const (
	// Below grayscaleHistDiff the image is effectively grayscale. Between
	// that and nearGrayHistDiff it is near-grayscale: not a grayscale
	// verdict, but too colorless for the saturation catch-all.
	grayscaleHistDiff = 0.2
	nearGrayHistDiff  = 0.3

	intraoralSaturation = 0.3
	intraoralBrightness = 80.0
	intraoralVariance   = 1000.0

	facialBrightness = 60.0
	facialVariance   = 800.0

	saturationFallback = 0.4
)

// classifyPixels applies the decision table to the computed statistics.
func classifyPixels(s pixelStats) pixelVerdict {
	if s.histDiff < grayscaleHistDiff {
		return verdictGrayscale
	}

	pinkRed := s.avgR > 150 && s.avgG < 120 && s.avgB < 120
	redDominant := s.avgR > s.avgG*1.15 && s.avgR > s.avgB*1.15
	if s.saturation > intraoralSaturation && (pinkRed || redDominant) &&
		s.brightness > intraoralBrightness && s.maxVariance > intraoralVariance {
		return verdictIntraoral
	}

	skinTone := s.avgR > 120 && s.avgR < 200 &&
		s.avgG > 100 && s.avgG < 180 &&
		s.avgB > 80 && s.avgB < 160 &&
		s.avgR > s.avgG && s.avgG > s.avgB
	if s.saturation > 0.2 && s.saturation < 0.6 && skinTone &&
		s.brightness > facialBrightness && s.maxVariance > facialVariance {
		return verdictFacial
	}

	if s.saturation > saturationFallback && s.histDiff >= nearGrayHistDiff {
		return verdictIntraoral
	}
	return verdictNone
}
