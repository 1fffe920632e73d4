// Package quality scores an image's usability before any inference cost is
// spent. Assessment is pure: no I/O, no shared state, safe for concurrent use.
package quality

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"strings"

	// Registered decoders. GIF is registered so unsupported-format uploads
	// are reported as such instead of failing decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/sells-group/claimcheck/internal/claimerr"
	"github.com/sells-group/claimcheck/internal/config"
	"github.com/sells-group/claimcheck/internal/model"
)

// Analyzer assesses image usability against configured policy.
type Analyzer struct {
	val config.ValidationConfig
	q   config.QualityConfig
}

// New creates an Analyzer. The zero-valued sub-scores of a returned
// assessment are meaningful only when Assess returns nil error.
func New(val config.ValidationConfig, q config.QualityConfig) *Analyzer {
	return &Analyzer{val: val, q: q}
}

// Assess validates the image and computes its quality assessment.
//
// Gates run in order: file size, decodability, format, minimum resolution.
// Gate failures return a coded error and are distinct from a low quality
// score, which is reported through the assessment itself.
func (a *Analyzer) Assess(imageBytes []byte) (model.QualityAssessment, error) {
	var zero model.QualityAssessment

	sizeMB := float64(len(imageBytes)) / (1024 * 1024)
	if sizeMB > a.val.MaxFileSizeMB {
		return zero, claimerr.New(claimerr.CodeInvalidImage,
			fmt.Sprintf("image too large: %.1fMB (max %.0fMB)", sizeMB, a.val.MaxFileSizeMB))
	}

	img, format, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return zero, claimerr.Wrap(claimerr.CodeInvalidImage, err,
			"invalid image: file is corrupted or not an image")
	}

	if !a.formatAllowed(format) {
		return zero, claimerr.New(claimerr.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported format: %s (allowed: %s)", format, strings.Join(a.val.AllowedFormats, ", ")))
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < a.val.MinDimension || height < a.val.MinDimension {
		return zero, claimerr.New(claimerr.CodeInvalidImage,
			fmt.Sprintf("resolution too low: %dx%d (minimum %dx%d)", width, height, a.val.MinDimension, a.val.MinDimension))
	}

	return a.score(img), nil
}

// Feedback renders an assessment's issues as a single remediation hint.
func Feedback(qa model.QualityAssessment) string {
	if len(qa.Issues) == 0 {
		return "Image quality is good."
	}
	return "Please improve: " + strings.Join(qa.Issues, "; ")
}

func (a *Analyzer) formatAllowed(format string) bool {
	for _, f := range a.val.AllowedFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// score computes the three sub-scores over the luma plane.
//
// Sharpness:  Laplacian variance normalized by a ceiling chosen so natural
//
//	photos land near 0.7–0.9.
//
// Brightness: distance of mean luma from the 0.5 midpoint, penalizing both
//
//	under- and over-exposure.
//
// Contrast:   luma standard deviation normalized by its ceiling.
func (a *Analyzer) score(img image.Image) model.QualityAssessment {
	luma := grayPlane(img)

	meanLuma := mean(luma.pix)
	sharpness := clamp01(laplacianVariance(luma) / a.q.SharpnessCeiling)
	brightness := clamp01(1.0 - math.Abs(meanLuma/255.0-0.5)*2)
	contrast := clamp01(stddev(luma.pix, meanLuma) / a.q.ContrastCeiling)

	overall := sharpness*a.q.SharpnessWeight +
		brightness*a.q.BrightnessWeight +
		contrast*a.q.ContrastWeight

	var issues []string
	if sharpness < a.q.Threshold {
		issues = append(issues, "image too blurry - hold camera steady")
	}
	if meanLuma/255.0 < a.q.BrightnessLow {
		issues = append(issues, "image too dark - use flash or better lighting")
	} else if meanLuma/255.0 > a.q.BrightnessHigh {
		issues = append(issues, "image too bright - avoid direct sunlight")
	}
	if contrast < a.q.ContrastLow {
		issues = append(issues, "low contrast - ensure good lighting conditions")
	}

	return model.QualityAssessment{
		IsUsable: overall >= a.q.Threshold,
		Overall:  overall,
		Breakdown: model.QualityBreakdown{
			Sharpness:  sharpness,
			Brightness: brightness,
			Contrast:   contrast,
		},
		Issues: issues,
	}
}

// plane is a dense grayscale raster.
type plane struct {
	pix  []float64
	w, h int
}

// grayPlane converts an image to ITU-R 601 luma.
func grayPlane(img image.Image) plane {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]float64, w*h)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// 16-bit channels down to 8-bit luma.
			pix[i] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
			i++
		}
	}
	return plane{pix: pix, w: w, h: h}
}

// laplacianVariance measures edge energy with a 4-neighbor Laplacian kernel
// over interior pixels.
func laplacianVariance(p plane) float64 {
	if p.w < 3 || p.h < 3 {
		return 0
	}
	n := (p.w - 2) * (p.h - 2)
	responses := make([]float64, 0, n)
	for y := 1; y < p.h-1; y++ {
		for x := 1; x < p.w-1; x++ {
			c := p.pix[y*p.w+x]
			lap := 4*c - p.pix[(y-1)*p.w+x] - p.pix[(y+1)*p.w+x] - p.pix[y*p.w+x-1] - p.pix[y*p.w+x+1]
			responses = append(responses, lap)
		}
	}
	m := mean(responses)
	var sum float64
	for _, v := range responses {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(responses))
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64, m float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
