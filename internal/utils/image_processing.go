package utils

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/MeKo-Tech/leafcheck/internal/mempool"
	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ImageNet channel statistics used by the supported classification models.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// FitLongestEdge returns dimensions scaled so that the longer side is at most
// edge, preserving aspect ratio. Images already within bounds are returned
// unchanged; neither side drops below 1.
func FitLongestEdge(width, height, edge int) (int, int) {
	if width <= 0 || height <= 0 || edge <= 0 {
		return width, height
	}
	longest := max(width, height)
	if longest <= edge {
		return width, height
	}
	scale := float64(edge) / float64(longest)
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(min(w, edge), 1), max(min(h, edge), 1)
}

// ResizeToFit scales img so its longer edge is at most edge. Uses Lanczos
// resampling.
func ResizeToFit(img image.Image, edge int) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	if edge <= 0 {
		return nil, &ImageProcessingError{Operation: "resize", Err: fmt.Errorf("invalid target edge %d", edge)}
	}
	b := img.Bounds()
	w, h := FitLongestEdge(b.Dx(), b.Dy(), edge)
	if w == b.Dx() && h == b.Dy() {
		return img, nil
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}

// NormalizeImageNet resizes img to exactly width x height and converts it to
// an NCHW float32 tensor normalised with the ImageNet mean and standard
// deviation. The buffer comes from pool; the caller returns it with Put.
func NormalizeImageNet(img image.Image, width, height int, pool *mempool.Pool) ([]float32, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}
	if width <= 0 || height <= 0 {
		return nil, &ImageProcessingError{
			Operation: "normalize",
			Err:       fmt.Errorf("invalid tensor dimensions %dx%d", width, height),
		}
	}
	if pool == nil {
		pool = mempool.Default
	}

	nrgba := imaging.Resize(img, width, height, imaging.Lanczos)
	plane := width * height
	tensor := pool.Get(3 * plane)

	for y := range height {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range width {
			px := row[x*4 : x*4+3]
			idx := y*width + x
			for c := range 3 {
				v := float32(px[c]) / 255.0
				tensor[c*plane+idx] = (v - ImageNetMean[c]) / ImageNetStd[c]
			}
		}
	}
	return tensor, nil
}
